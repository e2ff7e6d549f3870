package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"memberconsole/internal/model"
	"memberconsole/internal/permission"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword prompts without echo on a terminal and reads a single line
// when stdin is piped.
func readPassword(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func loginCommand() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in with email and password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if password == "" {
				password = os.Getenv("MEMBERCTL_PASSWORD")
			}
			if password == "" {
				if password, err = readPassword(cmd); err != nil {
					return err
				}
			}

			if err := a.session.Login(cmd.Context(), args[0], password); err != nil {
				return err
			}
			return printPrincipal(cmd, a.session.Principal())
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (default: $MEMBERCTL_PASSWORD or prompt)")
	return cmd
}

func loginGoogleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login-google <credential>",
		Short: "Sign in with a Google ID credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.session.LoginWithGoogle(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printPrincipal(cmd, a.session.Principal())
		},
	}
}

func logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			a.session.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func whoamiCommand() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in principal and its permissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.requireSession(); err != nil {
				return err
			}
			if refresh {
				if _, err := a.session.RefreshPrincipal(cmd.Context()); err != nil {
					return err
				}
			}
			p := a.session.Principal()
			if err := printPrincipal(cmd, p); err != nil {
				return err
			}
			for _, perm := range permission.PermissionsFor(p.Role).Slice() {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", perm)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-read the principal from the server")
	return cmd
}

func canCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "can <PERMISSION>",
		Short: "Check whether the signed-in principal holds a permission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			perm, ok := model.ParsePermission(args[0])
			if !ok {
				return fmt.Errorf("unknown permission %q", args[0])
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if a.session.Can(perm) {
				fmt.Fprintln(cmd.OutOrStdout(), "yes")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "no")
			return nil
		},
	}
}

func printPrincipal(cmd *cobra.Command, p *model.Principal) error {
	if p == nil {
		return errNotSignedIn
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s <%s>\n", p.Name, p.Email)
	fmt.Fprintf(out, "  id:      %s\n", p.ID)
	fmt.Fprintf(out, "  role:    %s\n", p.Role)
	if p.ChapterID != "" {
		fmt.Fprintf(out, "  chapter: %s\n", p.ChapterID)
	}
	return nil
}
