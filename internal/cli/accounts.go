package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/resilience/internal/core/logging"
	"github.com/vietddude/resilience/internal/core/retry"
	redisclient "github.com/vietddude/resilience/internal/infra/redis"
	"github.com/vietddude/resilience/internal/infra/storage/postgres"
)

var (
	openingBalance int64
	transferFrom   string
	transferTo     string
	transferAmount int64
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage accounts through the transaction retry engine",
}

var accountsCreateCmd = &cobra.Command{
	Use:   "create ID",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsCreate,
}

var accountsGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show an account and its recent transfers",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsGet,
}

var accountsTransferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Move funds between accounts",
	RunE:  runAccountsTransfer,
}

func init() {
	accountsCreateCmd.Flags().Int64Var(&openingBalance, "balance", 0, "opening balance")

	accountsTransferCmd.Flags().StringVar(&transferFrom, "from", "", "source account")
	accountsTransferCmd.Flags().StringVar(&transferTo, "to", "", "destination account")
	accountsTransferCmd.Flags().Int64Var(&transferAmount, "amount", 0, "amount to move")
	_ = accountsTransferCmd.MarkFlagRequired("from")
	_ = accountsTransferCmd.MarkFlagRequired("to")
	_ = accountsTransferCmd.MarkFlagRequired("amount")

	accountsCmd.AddCommand(accountsCreateCmd, accountsGetCmd, accountsTransferCmd)
	rootCmd.AddCommand(accountsCmd)
}

func runAccountsCreate(cmd *cobra.Command, args []string) error {
	ctx, _ := logging.EnsureCorrelationID(cmd.Context())
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	repo, err := openAccountRepo(db)
	if err != nil {
		return err
	}
	acc, err := repo.Create(ctx, args[0], openingBalance)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	fmt.Printf("created %s with balance %d\n", acc.ID, acc.Balance)
	return nil
}

func runAccountsGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	repo, err := openAccountRepo(db)
	if err != nil {
		return err
	}
	acc, err := repo.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	transfers, err := repo.ListTransfers(ctx, acc.ID, 10)
	if err != nil {
		return fmt.Errorf("failed to list transfers: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintf(w, "ACCOUNT\t%s\n", acc.ID)
	_, _ = fmt.Fprintf(w, "BALANCE\t%d\n", acc.Balance)
	_, _ = fmt.Fprintf(w, "UPDATED\t%s\n", acc.UpdatedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintln(w, "TRANSFER\tTO\tAMOUNT\tAT")
	for _, t := range transfers {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			t.ID, t.ToID, strconv.FormatInt(t.Amount, 10), t.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

// runAccountsTransfer retries the whole transfer under the database policy
// on top of the per-transaction conflict retries. Exhausted transfers are
// recorded in the dead letter queue when redis is configured.
func runAccountsTransfer(cmd *cobra.Command, args []string) error {
	ctx, id := logging.EnsureCorrelationID(cmd.Context())
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()
	repo, err := openAccountRepo(db)
	if err != nil {
		return err
	}

	p := policyByName("database")
	if rc := openRedis(ctx); rc != nil {
		defer func() {
			_ = rc.Close()
		}()
		dlq := redisclient.NewDeadLetterQueue(rc, deadLetterNamespace, logger)
		p.OnExhausted = dlq.Hook(ctx, "accounts_transfer")
	}

	t, err := retry.Do(ctx, newExecutor(), p, func(ctx context.Context) (*postgres.Transfer, error) {
		return repo.Transfer(ctx, transferFrom, transferTo, transferAmount)
	})
	if err != nil {
		return fmt.Errorf("transfer failed: %w", err)
	}

	fmt.Printf("transfer %s: %d from %s to %s (correlation %s)\n", t.ID, t.Amount, t.FromID, t.ToID, id)
	return nil
}
