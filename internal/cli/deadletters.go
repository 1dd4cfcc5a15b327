package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	redisclient "github.com/vietddude/resilience/internal/infra/redis"
)

var deadLettersCmd = &cobra.Command{
	Use:   "dead-letters",
	Short: "Inspect operations that exhausted their retries",
}

var deadLettersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead letters, lowest retry count first",
	RunE:  runDeadLettersList,
}

var deadLettersResolveCmd = &cobra.Command{
	Use:   "resolve ID",
	Short: "Remove a dead letter",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeadLettersResolve,
}

func init() {
	deadLettersCmd.AddCommand(deadLettersListCmd, deadLettersResolveCmd)
	rootCmd.AddCommand(deadLettersCmd)
}

var errRedisNotConfigured = errors.New("redis.url is not configured")

func openDeadLetters(cmd *cobra.Command) (*redisclient.DeadLetterQueue, func(), error) {
	if cfg.Redis.URL == "" {
		return nil, nil, errRedisNotConfigured
	}
	rc, err := redisclient.NewClient(cmd.Context(), cfg.Redis, redisclient.WithExecutor(newExecutor()))
	if err != nil {
		return nil, nil, err
	}
	return redisclient.NewDeadLetterQueue(rc, deadLetterNamespace, logger), func() { _ = rc.Close() }, nil
}

func runDeadLettersList(cmd *cobra.Command, args []string) error {
	dlq, closeFn, err := openDeadLetters(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	items, err := dlq.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list dead letters: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tOPERATION\tCODE\tCLASS\tRETRIES\tFAILED AT\tMESSAGE")
	for _, fo := range items {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			fo.ID, fo.Operation, fo.Code, fo.Classification, fo.RetryCount,
			fo.FailedAt.Format(time.RFC3339), fo.Message)
	}
	return w.Flush()
}

func runDeadLettersResolve(cmd *cobra.Command, args []string) error {
	dlq, closeFn, err := openDeadLetters(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := dlq.Resolve(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to resolve dead letter: %w", err)
	}
	slog.Info("Dead letter resolved", "id", args[0])
	return nil
}
