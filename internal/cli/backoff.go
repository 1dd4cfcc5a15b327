package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/resilience/internal/core/backoff"
	"github.com/vietddude/resilience/internal/core/retry"
)

var (
	backoffPolicy string
	backoffSeed   uint64
)

var backoffCmd = &cobra.Command{
	Use:   "backoff",
	Short: "Print the backoff schedule of a retry policy",
	Run:   runBackoff,
}

func init() {
	backoffCmd.Flags().StringVar(&backoffPolicy, "policy", "default", "policy name (default, network, database or a configured name)")
	backoffCmd.Flags().Uint64Var(&backoffSeed, "seed", 0, "jitter seed (0 uses the global source)")
	rootCmd.AddCommand(backoffCmd)
}

func policyByName(name string) retry.Policy {
	if _, ok := cfg.Retry.Policies[name]; ok {
		return cfg.Policy(name)
	}
	switch name {
	case retry.NetworkPolicy.Name:
		return retry.NetworkPolicy
	case retry.DatabasePolicy.Name:
		return retry.DatabasePolicy
	default:
		return cfg.Policy(name)
	}
}

func runBackoff(cmd *cobra.Command, args []string) {
	p := policyByName(backoffPolicy)
	exitOnError("Invalid policy", p.Validate())

	var src backoff.Source = backoff.DefaultSource
	if backoffSeed != 0 {
		src = backoff.NewSource(backoffSeed)
	}

	delays, err := backoff.Schedule(p.MaxRetries, p.BaseDelay, p.MaxDelay, p.BackoffMultiplier, src)
	exitOnError("Failed to compute schedule", err)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintf(w, "POLICY\t%s\n", p.Name)
	_, _ = fmt.Fprintln(w, "RETRY\tDELAY\tELAPSED")

	var total time.Duration
	for i, d := range delays {
		total += d
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, d.Round(time.Millisecond), total.Round(time.Millisecond))
	}
	_ = w.Flush()
}
