package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"memberconsole/internal/config"
	"memberconsole/internal/devserver"
	"memberconsole/internal/logger"
	"memberconsole/internal/model"
	"memberconsole/internal/openfga"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	cfg := config.NewConfig()
	log := logger.New(*cfg, os.Stderr)

	fgaClient, err := openfga.NewClient(cfg.OpenFGA, log.Logger)
	if err != nil {
		fail(err)
	}

	command := os.Args[1]
	switch command {
	case "print-model":
		handlePrintModel()
	case "write-model":
		handleWriteModel(ctx, fgaClient)
	case "write-tuples":
		handleWriteTuples(ctx, fgaClient, os.Args[2:])
	case "check":
		handleCheck(ctx, fgaClient, os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func handlePrintModel() {
	out, err := json.MarshalIndent(map[string]any{
		"schema_version":   openfga.SchemaVersion,
		"type_definitions": openfga.AuthorizationModel(),
	}, "", "  ")
	if err != nil {
		fail(err)
	}
	fmt.Println(string(out))
}

func handleWriteModel(ctx context.Context, fgaClient *openfga.Client) {
	modelID, err := fgaClient.WriteModel(ctx, openfga.AuthorizationModel())
	if err != nil {
		fail(err)
	}
	fmt.Printf("Authorization model written with ID: %s\n", modelID)
	fmt.Println("Set OPENFGA_AUTHORIZATION_MODEL_ID to use it.")
}

func handleWriteTuples(ctx context.Context, fgaClient *openfga.Client, args []string) {
	seed := devserver.DefaultSeed()
	if len(args) > 0 {
		loaded, err := devserver.LoadSeed(args[0])
		if err != nil {
			fail(err)
		}
		seed = loaded
	}

	tuples := openfga.ChapterTuples(seed.Chapters()...)
	for _, p := range seed.Principals() {
		tuples = append(tuples, openfga.PrincipalTuples(p)...)
	}
	if err := fgaClient.WriteTuples(ctx, tuples); err != nil {
		fail(err)
	}
	fmt.Printf("Wrote %d tuples\n", len(tuples))
}

func handleCheck(ctx context.Context, fgaClient *openfga.Client, args []string) {
	if len(args) < 3 {
		fmt.Println("Usage: openfga check <user_id> <PERMISSION> <chapter_id>")
		os.Exit(1)
	}
	perm, ok := model.ParsePermission(args[1])
	if !ok {
		fail(fmt.Errorf("unknown permission %q", args[1]))
	}

	allowed, err := fgaClient.Check(ctx, openfga.Tuple{
		User:     openfga.UserObject(args[0]),
		Relation: openfga.PermissionRelation(perm),
		Object:   openfga.ChapterObject(args[2]),
	})
	if err != nil {
		fail(err)
	}
	fmt.Printf("%s %s on chapter %s: %t\n", args[0], perm, args[2], allowed)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "openfga:", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println("Usage: openfga <command>")
	fmt.Println("Commands:")
	fmt.Println("  print-model                              Print the chapter authorization model as JSON")
	fmt.Println("  write-model                              Write the authorization model to the configured store")
	fmt.Println("  write-tuples [seed.yaml]                 Write chapter and role tuples for a seed")
	fmt.Println("  check <user_id> <PERMISSION> <chapter>   Check one permission")
}
