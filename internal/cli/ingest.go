package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/casemind/casemind-go/internal/convert"
	"github.com/spf13/cobra"
)

var (
	ingestRecursive bool
	ingestDryRun    bool
	ingestNoRetry   bool
	ingestWorkers   int
	ingestTemplate  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Ingest case documents into the store",
	Long: `Ingest case documents from files or directories.

Supported formats: PDF, HTML, Markdown, plain text. Duplicate documents
(same content, any filename) are detected and skipped. Failures are
recorded in the ledger; conversion failures are retried once per run
unless --no-retry is given.

Examples:
  casemind ingest judgment.pdf
  casemind ingest ./judgments --recursive
  casemind ingest ./batch --template writ_petition --workers 8`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestRecursive, "recursive", "r", true, "recursively process subdirectories")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "list files without ingesting")
	ingestCmd.Flags().BoolVar(&ingestNoRetry, "no-retry", false, "disable the automatic conversion retry pass")
	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 0, "conversion workers (default from config)")
	ingestCmd.Flags().StringVar(&ingestTemplate, "template", "", "template id for structured fact extraction")
}

func runIngest(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No supported files found.")
		return nil
	}

	fmt.Printf("Found %d files\n", len(files))

	if ingestDryRun {
		fmt.Println("\nDry run - would ingest:")
		for _, f := range files {
			fmt.Printf("  %s\n", f)
		}
		return nil
	}

	if ingestWorkers > 0 {
		cfg.Workers = ingestWorkers
	}
	if ingestTemplate != "" {
		cfg.TemplateID = ingestTemplate
	}
	if ingestNoRetry {
		cfg.AutoRetry = false
	}

	ctx := cmd.Context()
	rt, err := buildRuntime(ctx, printProgress)
	if err != nil {
		return err
	}
	defer rt.shutdown(ctx)

	if cfg.AutoRetry {
		batch, err := rt.pipeline.ProcessWithRetry(ctx, files)
		if err != nil {
			return err
		}
		printBatch(batch)
	} else {
		batch, err := rt.pipeline.ProcessFiles(ctx, files)
		if err != nil {
			return err
		}
		printBatch(batch)
	}

	for stage, s := range rt.pipeline.Metrics().Stages {
		slog.Debug("stage timing", "stage", stage, "passes", s.Count, "items", s.Items, "avg_ms", s.AvgTimeMs)
	}

	return nil
}

// collectFiles expands the given paths into a sorted list of supported
// files. Directory arguments are scanned; explicit file arguments must
// have a supported extension.
func collectFiles(paths []string) ([]string, error) {
	supported := convert.SupportedExtensions()
	var files []string

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}

		if !info.IsDir() {
			if !slices.Contains(supported, strings.ToLower(filepath.Ext(path))) {
				return nil, fmt.Errorf("unsupported file type: %s", path)
			}
			files = append(files, path)
			continue
		}

		walkFn := func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && !ingestRecursive && p != path {
				return filepath.SkipDir
			}
			if !d.IsDir() && slices.Contains(supported, strings.ToLower(filepath.Ext(p))) {
				files = append(files, p)
			}
			return nil
		}
		if err := filepath.WalkDir(path, walkFn); err != nil {
			return nil, fmt.Errorf("scan directory: %w", err)
		}
	}

	slices.Sort(files)
	return slices.Compact(files), nil
}
