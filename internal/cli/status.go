package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pool and store health",
	Long: `Bring up the pools, run a health check round, and report the state
of each pool plus the failure ledger summary.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := buildRuntime(ctx, nil)
	if err != nil {
		return err
	}
	defer rt.shutdown(ctx)

	report := rt.manager.Status()
	ledger := rt.failures.Summarize()

	if statusJSON {
		out := map[string]any{
			"lifecycle": report,
			"ledger":    ledger,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("State: %s (uptime %s)\n\n", report.State, report.Uptime.Round(time.Millisecond))
	for _, name := range []string{"store", "model", "llm"} {
		st, ok := report.Pools[name]
		if !ok {
			continue
		}
		fmt.Printf("  %-6s initialized=%t ready=%t in_use=%d available=%d\n",
			name, st.Initialized, st.Ready, st.InUse, st.Available)
	}

	if report.Health != nil {
		fmt.Printf("\nHealth (as of %s): ", report.Health.Timestamp.Format("15:04:05"))
		if report.Health.Healthy {
			fmt.Println("ok")
		} else {
			fmt.Println("degraded")
			for name, ok := range report.Health.Checks {
				if !ok {
					fmt.Printf("  %s: failing\n", name)
				}
			}
		}
	}

	fmt.Printf("\nLedger: %d failed (%d retryable, %d exhausted)\n",
		ledger.Total, ledger.Retryable, ledger.Exhausted)

	return nil
}
