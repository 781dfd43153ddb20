// Package main is the entry point for the Argus alert enrichment engine.
package main

import (
	"context"
	"fmt"
	"os"

	"argus/bootstrap"
	"argus/cmd"
)

// run initializes and starts the enrichment service.
func run() error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	go func() {
		if err := app.Start(); err != nil {
			app.Sugar.Errorw("API server stopped unexpectedly", "error", err)
		}
	}()

	app.WaitForShutdown()
	app.Shutdown()
	return nil
}

// main is the entry point.
func main() {
	// Check if running as CLI command
	if len(os.Args) > 1 && os.Args[1] == "enrich" {
		// Strip "enrich" from os.Args since the command already knows it's
		// the enrich command
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)

		enrichCmd := cmd.NewEnrichCmd()
		if err := enrichCmd.Execute(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Otherwise run as the enrichment service
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
