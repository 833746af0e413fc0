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

// AuctionRepo implements store.AuctionRepository with sqlx.
type AuctionRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewAuctionRepo returns a new AuctionRepo.
func NewAuctionRepo(db *sqlx.DB, clk clock.Clock) *AuctionRepo {
	return &AuctionRepo{db: db, clock: clk}
}

func (r *AuctionRepo) Create(ctx context.Context, a *store.Auction) error {
	a.CreatedAt = r.clock.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auctions (id, seller, token_denom, min_increment, expires_height, expires_at, by_seller, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.Seller, a.TokenDenom, a.MinIncrement, a.ExpiresHeight, a.ExpiresAt, a.BySeller, a.Status, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating auction: %w", err)
	}
	return nil
}

func (r *AuctionRepo) GetByID(ctx context.Context, id string) (*store.Auction, error) {
	var a store.Auction
	err := r.db.GetContext(ctx, &a, `SELECT * FROM auctions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting auction: %w", err)
	}
	return &a, nil
}

func (r *AuctionRepo) SetHighBid(ctx context.Context, id, bidder string, amount int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET high_bidder = $1, high_amount = $2
		 WHERE id = $3 AND status = 'open'`,
		bidder, amount, id,
	)
	if err != nil {
		return fmt.Errorf("recording high bid: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("auction %s not found or not open", id)
	}
	return nil
}

func (r *AuctionRepo) Close(ctx context.Context, id string, winner *string, amount int64) error {
	now := r.clock.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET status = 'closed', winner = $1, high_amount = COALESCE($2, high_amount), closed_at = $3
		 WHERE id = $4 AND status = 'open'`,
		winner, nullableAmount(winner, amount), now, id,
	)
	if err != nil {
		return fmt.Errorf("closing auction: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("auction %s not found or already closed", id)
	}
	return nil
}

func (r *AuctionRepo) Cancel(ctx context.Context, id string) error {
	now := r.clock.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET status = 'cancelled', closed_at = $1 WHERE id = $2 AND status = 'open'`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("cancelling auction: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("auction %s not found or already closed", id)
	}
	return nil
}

func (r *AuctionRepo) ListOpen(ctx context.Context) ([]store.Auction, error) {
	var auctions []store.Auction
	err := r.db.SelectContext(ctx, &auctions,
		`SELECT * FROM auctions WHERE status = 'open' ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing open auctions: %w", err)
	}
	return auctions, nil
}

func nullableAmount(winner *string, amount int64) *int64 {
	if winner == nil {
		return nil
	}
	return &amount
}
