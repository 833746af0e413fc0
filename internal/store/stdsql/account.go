package stdsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tomsrud/auctionhouse/internal/clock"
	"github.com/tomsrud/auctionhouse/internal/store"
)

// AccountRepo implements store.AccountRepository using database/sql.
type AccountRepo struct {
	db    *sql.DB
	clock clock.Clock
}

// NewAccountRepo returns a new AccountRepo.
func NewAccountRepo(db *sql.DB, clk clock.Clock) *AccountRepo {
	return &AccountRepo{db: db, clock: clk}
}

func (r *AccountRepo) Get(ctx context.Context, account, denom string) (*store.Account, error) {
	a := &store.Account{}
	err := r.db.QueryRowContext(ctx,
		`SELECT account, denom, amount, updated_at FROM balances WHERE account = $1 AND denom = $2`,
		account, denom,
	).Scan(&a.Account, &a.Denom, &a.Amount, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting balance: %w", err)
	}
	return a, nil
}

func (r *AccountRepo) List(ctx context.Context, denom string) ([]store.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT account, denom, amount, updated_at FROM balances WHERE denom = $1 ORDER BY amount DESC`, denom)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []store.Account
	for rows.Next() {
		var a store.Account
		if err := rows.Scan(&a.Account, &a.Denom, &a.Amount, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
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

func (r *AccountRepo) Transfer(ctx context.Context, denom, from, to string, amount int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
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
