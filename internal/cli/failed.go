package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/casemind/casemind-go/internal/tracker"
	"github.com/spf13/cobra"
)

var failedJSON bool

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "Show the failure ledger",
	Long: `Show every file recorded in the failure ledger, with its attempt
count, the stage it failed in, and the last error.`,
	Args: cobra.NoArgs,
	RunE: runFailed,
}

func init() {
	failedCmd.Flags().BoolVar(&failedJSON, "json", false, "output as JSON")
}

func runFailed(cmd *cobra.Command, args []string) error {
	failures, err := tracker.New(cfg.LedgerPath, cfg.MaxAttempts)
	if err != nil {
		return fmt.Errorf("open failure ledger: %w", err)
	}

	records := failures.Records()

	if failedJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Println("Failure ledger is empty.")
		return nil
	}

	summary := failures.Summarize()
	fmt.Printf("%d failed files (%d retryable, %d exhausted)\n\n",
		summary.Total, summary.Retryable, summary.Exhausted)

	for _, rec := range records {
		state := "retryable"
		if !rec.Retryable() {
			state = "exhausted"
		}
		fmt.Printf("  %s\n", rec.FilePath)
		fmt.Printf("    stage=%s attempts=%d/%d (%s)\n", rec.Stage, rec.Attempts, rec.MaxAttempts, state)
		fmt.Printf("    last failure: %s\n", rec.LastFailure.Format("2006-01-02 15:04:05"))
		fmt.Printf("    error: %s\n\n", rec.Error)
	}

	return nil
}
