package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrInsufficientBalance is returned by Transfer when the source account
// cannot cover the amount.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Account represents a ledger account balance for one token denom.
type Account struct {
	Account   string    `db:"account"`
	Denom     string    `db:"denom"`
	Amount    int64     `db:"amount"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Auction represents a persisted auction record.
type Auction struct {
	ID           string `db:"id"`
	Seller       string `db:"seller"`
	TokenDenom   string `db:"token_denom"`
	MinIncrement int64  `db:"min_increment"`
	// Close condition: exactly one of ExpiresHeight/ExpiresAt is set for a
	// deadline auction; BySeller auctions carry neither.
	ExpiresHeight uint64     `db:"expires_height"`
	ExpiresAt     *time.Time `db:"expires_at"`
	BySeller      bool       `db:"by_seller"`
	Status        string     `db:"status"` // "open", "closed", "cancelled"
	HighBidder    *string    `db:"high_bidder"`
	HighAmount    *int64     `db:"high_amount"`
	Winner        *string    `db:"winner"`
	CreatedAt     time.Time  `db:"created_at"`
	ClosedAt      *time.Time `db:"closed_at"`
}

// AccountRepository defines ledger persistence operations.
// Transfer and Credit are the only ways balances change; both are atomic.
type AccountRepository interface {
	Get(ctx context.Context, account, denom string) (*Account, error)
	List(ctx context.Context, denom string) ([]Account, error)
	// Credit adds amount to an account, creating it at zero first.
	Credit(ctx context.Context, account, denom string, amount int64) error
	// Transfer atomically moves amount between accounts. It fails with
	// ErrInsufficientBalance without moving anything when the source
	// cannot cover the amount.
	Transfer(ctx context.Context, denom, from, to string, amount int64) error
}

// AuctionRepository defines auction persistence operations.
type AuctionRepository interface {
	Create(ctx context.Context, a *Auction) error
	GetByID(ctx context.Context, id string) (*Auction, error)
	// SetHighBid records a new leading bid on an open auction.
	SetHighBid(ctx context.Context, id, bidder string, amount int64) error
	Close(ctx context.Context, id string, winner *string, amount int64) error
	Cancel(ctx context.Context, id string) error
	ListOpen(ctx context.Context) ([]Auction, error)
}
