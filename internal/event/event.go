package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	AuctionCreated   Type = "auction.created"
	AuctionBidPlaced Type = "auction.bid_placed"
	AuctionClosed    Type = "auction.closed"
	AuctionCancelled Type = "auction.cancelled"

	TokensMinted      Type = "ledger.minted"
	TokensTransferred Type = "ledger.transferred"
)

// Event represents a single domain event.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// AuctionCreatedData is the payload for AuctionCreated events.
type AuctionCreatedData struct {
	Seller       string `json:"seller"`
	TokenDenom   string `json:"token_denom"`
	MinIncrement int64  `json:"min_increment"`
	// Close condition. ExpiresHeight/ExpiresAt are zero for seller-closed
	// auctions.
	ExpiresHeight uint64    `json:"expires_height,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
	BySeller      bool      `json:"by_seller,omitempty"`
}

// BidPlacedData is the payload for AuctionBidPlaced events.
type BidPlacedData struct {
	Bidder string `json:"bidder"`
	Amount int64  `json:"amount"`
	// Refunded is the outbid amount returned to the previous bidder,
	// 0 for the first bid.
	Refunded int64 `json:"refunded,omitempty"`
}

// AuctionClosedData is the payload for AuctionClosed events.
type AuctionClosedData struct {
	Winner string `json:"winner,omitempty"`
	Amount int64  `json:"amount,omitempty"`
}

// TokenMovementData is the payload for ledger events.
type TokenMovementData struct {
	Denom  string `json:"denom"`
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}
