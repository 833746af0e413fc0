package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/tomsrud/auctionhouse/internal/clock"
	"github.com/tomsrud/auctionhouse/internal/store"
)

// AccountRepo implements store.AccountRepository with sqlx.
type AccountRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewAccountRepo returns a new AccountRepo.
func NewAccountRepo(db *sqlx.DB, clk clock.Clock) *AccountRepo {
	return &AccountRepo{db: db, clock: clk}
}

func (r *AccountRepo) Get(ctx context.Context, account, denom string) (*store.Account, error) {
	var a store.Account
	err := r.db.GetContext(ctx, &a,
		`SELECT * FROM balances WHERE account = $1 AND denom = $2`, account, denom)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting balance: %w", err)
	}
	return &a, nil
}

func (r *AccountRepo) List(ctx context.Context, denom string) ([]store.Account, error) {
	var accounts []store.Account
	err := r.db.SelectContext(ctx, &accounts,
		`SELECT * FROM balances WHERE denom = $1 ORDER BY amount DESC`, denom)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepo) Credit(ctx context.Context, account, denom string, amount int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO balances (account, denom, amount, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account, denom)
		 DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = EXCLUDED.updated_at`,
		account, denom, amount, r.clock.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("crediting account: %w", err)
	}
	return nil
}

// Transfer debits from and credits to in one transaction. The debit is
// guarded by the current balance, so the whole transaction fails with
// store.ErrInsufficientBalance when the source cannot cover the amount.
func (r *AccountRepo) Transfer(ctx context.Context, denom, from, to string, amount int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := r.clock.Now().UTC()

	result, err := tx.ExecContext(ctx,
		`UPDATE balances SET amount = amount - $1, updated_at = $2
		 WHERE account = $3 AND denom = $4 AND amount >= $1`,
		amount, now, from, denom,
	)
	if err != nil {
		return fmt.Errorf("debiting %s: %w", from, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrInsufficientBalance
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO balances (account, denom, amount, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account, denom)
		 DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = EXCLUDED.updated_at`,
		to, denom, amount, now,
	); err != nil {
		return fmt.Errorf("crediting %s: %w", to, err)
	}

	return tx.Commit()
}
