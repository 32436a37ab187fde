package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-process files from the failure ledger",
	Long: `Re-process every retryable file recorded in the failure ledger.

Files that have exhausted their attempt budget are left alone; clear
them from the ledger manually if they should be retried again.`,
	Args: cobra.NoArgs,
	RunE: runRetry,
}

func runRetry(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := buildRuntime(ctx, printProgress)
	if err != nil {
		return err
	}
	defer rt.shutdown(ctx)

	files := rt.failures.RetryableFiles()
	if len(files) == 0 {
		fmt.Println("No retryable files in the ledger.")
		return nil
	}

	fmt.Printf("Retrying %d files\n", len(files))

	batch, err := rt.pipeline.ProcessFiles(ctx, files)
	if err != nil {
		return err
	}
	printBatch(batch)

	return nil
}
