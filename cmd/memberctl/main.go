package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const programName = "memberctl"

var globalFlags = struct {
	config string
	debug  bool
}{}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Administer chapter memberships from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&globalFlags.config, "config", "", "path to YAML config overlay")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	rootCmd.AddCommand(loginCommand())
	rootCmd.AddCommand(loginGoogleCommand())
	rootCmd.AddCommand(logoutCommand())
	rootCmd.AddCommand(whoamiCommand())
	rootCmd.AddCommand(canCommand())
	rootCmd.AddCommand(requestsCommand())
	rootCmd.AddCommand(membersCommand())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", programName, describe(err))
		os.Exit(1)
	}
}
