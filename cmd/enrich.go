// Package cmd provides command-line interface commands for Argus.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"argus/bootstrap"
	"argus/core"
	"argus/util"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags for the enrich command
var (
	outputJSON bool
	noColor    bool
	quiet      bool

	batchLimit    int
	batchOffset   int
	batchSeverity string
)

// defaultTimeout bounds a one-shot CLI run.
const defaultTimeout = 5 * time.Minute

// NewEnrichCmd creates the one-shot batch enrichment command.
func NewEnrichCmd() *cobra.Command {
	enrichCmd := &cobra.Command{
		Use:   "enrich",
		Short: "Fetch a batch of alerts and enrich them once",
		Long: `Fetch a batch of alerts from the configured source, enrich each one
against the configured threat-intel providers and print a run summary.
Enriched records are persisted to the configured storage backend.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
		RunE: runEnrich,
	}

	enrichCmd.Flags().IntVar(&batchLimit, "limit", 25, "maximum number of alerts to fetch")
	enrichCmd.Flags().IntVar(&batchOffset, "offset", 0, "offset into the alert source")
	enrichCmd.Flags().StringVar(&batchSeverity, "severity", "", "severity filter (low, medium, high, critical)")
	enrichCmd.Flags().BoolVar(&outputJSON, "json", false, "print enriched records as JSON")
	enrichCmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	enrichCmd.Flags().BoolVar(&quiet, "quiet", false, "only print the summary line")

	return enrichCmd
}

func runEnrich(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
	defer cancel()

	app, err := bootstrap.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer app.Shutdown()

	var spin *spinner.Spinner
	if !quiet && !outputJSON {
		spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		spin.Suffix = " Enriching alerts..."
		spin.Start()
	}

	summary := app.Batch.ProcessBatch(ctx, batchLimit, batchOffset, batchSeverity)

	if spin != nil {
		spin.Stop()
	}

	if outputJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summary)
	}

	printSummary(summary)
	return nil
}

func printSummary(summary *core.RunSummary) {
	headerColor.Println("Enrichment run complete")
	fmt.Printf("  Alerts processed:   %d\n", summary.Processed)
	if summary.MaliciousDetected > 0 {
		errorColor.Printf("  Malicious detected: %d\n", summary.MaliciousDetected)
	} else {
		successColor.Println("  Malicious detected: 0")
	}
	if quiet {
		return
	}

	for _, alert := range summary.Data {
		if !alert.IsMalicious {
			continue
		}
		warningColor.Printf("  [%s] threat score %d\n", alert.ID, alert.ThreatScore)
		for indicator, verdict := range alert.IOCs {
			if verdict.Malicious {
				fmt.Printf("    %s (score %d)\n", util.Defang(indicator), verdict.ThreatScore)
			}
		}
		for _, rec := range alert.Recommendations {
			fmt.Printf("    - %s\n", rec)
		}
	}
}
