package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vietddude/resilience/internal/core/failure"
	"github.com/vietddude/resilience/internal/core/txretry"
)

// Account is a row of the accounts table.
type Account struct {
	ID        string    `db:"id"`
	Balance   int64     `db:"balance"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Transfer is a row of the transfers table.
type Transfer struct {
	ID        uuid.UUID `db:"id"`
	FromID    string    `db:"from_id"`
	ToID      string    `db:"to_id"`
	Amount    int64     `db:"amount"`
	CreatedAt time.Time `db:"created_at"`
}

// AccountRepo implements account storage. Writes run through txretry so
// serialization conflicts are re-submitted.
type AccountRepo struct {
	db         txretry.Client
	q          sqlx.QueryerContext
	maxRetries int
	txOpts     *sql.TxOptions
	options    []txretry.Option
}

// NewAccountRepo creates a repository. maxRetries and txOpts control the
// transaction retry loop; a nil txOpts uses the server default isolation.
func NewAccountRepo(db *DB, maxRetries int, txOpts *sql.TxOptions, options ...txretry.Option) *AccountRepo {
	return &AccountRepo{
		db:         db,
		q:          db,
		maxRetries: maxRetries,
		txOpts:     txOpts,
		options:    options,
	}
}

// Create inserts a new account with an opening balance.
func (r *AccountRepo) Create(ctx context.Context, id string, balance int64) (*Account, error) {
	if id == "" {
		return nil, failure.New(failure.CodeValidation, "account id is required")
	}
	if balance < 0 {
		return nil, failure.Newf(failure.CodeValidation, "opening balance must be >= 0, got %d", balance)
	}

	acc, err := txretry.Run(ctx, r.db, r.maxRetries, r.txOpts,
		func(ctx context.Context, tx *sqlx.Tx) (*Account, error) {
			var a Account
			err := tx.GetContext(ctx, &a,
				`INSERT INTO accounts (id, balance) VALUES ($1, $2)
				 RETURNING id, balance, updated_at`, id, balance)
			return &a, err
		}, r.options...)
	if err != nil {
		return nil, TranslateError(err)
	}
	return acc, nil
}

// Get returns an account by id.
func (r *AccountRepo) Get(ctx context.Context, id string) (*Account, error) {
	var a Account
	err := sqlx.GetContext(ctx, r.q, &a,
		`SELECT id, balance, updated_at FROM accounts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, failure.Newf(failure.CodeNotFound, "account %s not found", id).
				WithDetail("account_id", id)
		}
		return nil, TranslateError(err)
	}
	return &a, nil
}

// Transfer moves amount from one account to another in a single transaction
// and records the movement.
func (r *AccountRepo) Transfer(ctx context.Context, fromID, toID string, amount int64) (*Transfer, error) {
	switch {
	case amount <= 0:
		return nil, failure.Newf(failure.CodeValidation, "transfer amount must be positive, got %d", amount)
	case fromID == toID:
		return nil, failure.New(failure.CodeValidation, "cannot transfer to the same account")
	}

	t, err := txretry.Run(ctx, r.db, r.maxRetries, r.txOpts,
		func(ctx context.Context, tx *sqlx.Tx) (*Transfer, error) {
			return transferTx(ctx, tx, fromID, toID, amount)
		}, r.options...)
	if err != nil {
		return nil, TranslateError(err)
	}
	return t, nil
}

func transferTx(ctx context.Context, tx *sqlx.Tx, fromID, toID string, amount int64) (*Transfer, error) {
	var balance int64
	if err := tx.GetContext(ctx, &balance,
		`SELECT balance FROM accounts WHERE id = $1`, fromID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, failure.Newf(failure.CodeNotFound, "account %s not found", fromID).
				WithDetail("account_id", fromID)
		}
		return nil, err
	}
	if balance < amount {
		return nil, failure.New(failure.CodeBadRequest, "insufficient funds").
			WithDetail("account_id", fromID).
			WithDetail("balance", balance).
			WithDetail("amount", amount)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance - $1, updated_at = now() WHERE id = $2`,
		amount, fromID); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + $1, updated_at = now() WHERE id = $2`,
		amount, toID)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, failure.Newf(failure.CodeNotFound, "account %s not found", toID).
			WithDetail("account_id", toID)
	}

	t := Transfer{ID: uuid.New(), FromID: fromID, ToID: toID, Amount: amount}
	if err := tx.GetContext(ctx, &t.CreatedAt,
		`INSERT INTO transfers (id, from_id, to_id, amount) VALUES ($1, $2, $3, $4)
		 RETURNING created_at`, t.ID, t.FromID, t.ToID, t.Amount); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTransfers returns the transfers sent from an account, newest first.
func (r *AccountRepo) ListTransfers(ctx context.Context, fromID string, limit int) ([]Transfer, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Transfer
	err := sqlx.SelectContext(ctx, r.q, &out,
		`SELECT id, from_id, to_id, amount, created_at FROM transfers
		 WHERE from_id = $1 ORDER BY created_at DESC LIMIT $2`, fromID, limit)
	if err != nil {
		return nil, TranslateError(err)
	}
	return out, nil
}
