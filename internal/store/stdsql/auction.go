package stdsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tomsrud/auctionhouse/internal/clock"
	"github.com/tomsrud/auctionhouse/internal/store"
)

// AuctionRepo implements store.AuctionRepository using database/sql.
type AuctionRepo struct {
	db    *sql.DB
	clock clock.Clock
}

// NewAuctionRepo returns a new AuctionRepo.
func NewAuctionRepo(db *sql.DB, clk clock.Clock) *AuctionRepo {
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
	a := &store.Auction{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, seller, token_denom, min_increment, expires_height, expires_at, by_seller, status, high_bidder, high_amount, winner, created_at, closed_at
		 FROM auctions WHERE id = $1`, id,
	).Scan(&a.ID, &a.Seller, &a.TokenDenom, &a.MinIncrement, &a.ExpiresHeight, &a.ExpiresAt, &a.BySeller, &a.Status, &a.HighBidder, &a.HighAmount, &a.Winner, &a.CreatedAt, &a.ClosedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting auction: %w", err)
	}
	return a, nil
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
	var winAmount *int64
	if winner != nil {
		winAmount = &amount
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET status = 'closed', winner = $1, high_amount = COALESCE($2, high_amount), closed_at = $3
		 WHERE id = $4 AND status = 'open'`,
		winner, winAmount, now, id,
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
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, seller, token_denom, min_increment, expires_height, expires_at, by_seller, status, high_bidder, high_amount, winner, created_at, closed_at
		 FROM auctions WHERE status = 'open' ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing open auctions: %w", err)
	}
	defer rows.Close()

	var auctions []store.Auction
	for rows.Next() {
		var a store.Auction
		if err := rows.Scan(&a.ID, &a.Seller, &a.TokenDenom, &a.MinIncrement, &a.ExpiresHeight, &a.ExpiresAt, &a.BySeller, &a.Status, &a.HighBidder, &a.HighAmount, &a.Winner, &a.CreatedAt, &a.ClosedAt); err != nil {
			return nil, fmt.Errorf("scanning auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}
