package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomsrud/auctionhouse/internal/clock"
	"github.com/tomsrud/auctionhouse/internal/event"
	"github.com/tomsrud/auctionhouse/internal/store"
)

var tracer = otel.Tracer("github.com/tomsrud/auctionhouse/internal/auction")

// Errors returned by auction operations.
var (
	ErrInvalidParams    = errors.New("invalid auction parameters")
	ErrAuctionNotOpen   = errors.New("auction is not open")
	ErrAuctionExpired   = errors.New("auction has expired")
	ErrNotYetExpired    = errors.New("auction has not yet expired")
	ErrBidTooLow        = errors.New("bid does not beat the current high bid")
	ErrUnauthorized     = errors.New("caller is not the seller")
	ErrBidAlreadyPlaced = errors.New("auction already has a bid")
	ErrTransferFailed   = errors.New("token transfer failed")
)

// Gateway moves tokens between ledger accounts. A Transfer either moves the
// full amount or nothing; any error means no balance moved.
type Gateway interface {
	Transfer(ctx context.Context, denom, from, to string, amount int64) error
}

// Bid is a (bidder, amount) pair escrowed in the house account.
type Bid struct {
	Bidder string
	Amount int64
	Time   time.Time
}

// Auction is the aggregate root for a single-item token auction.
// It is safe for concurrent use. The high bid amount is always held in the
// escrow account while the auction is open; terminal auctions hold nothing.
type Auction struct {
	mu sync.RWMutex

	ID           string
	Seller       string
	TokenDenom   string
	MinIncrement int64 // 0 means any strictly positive excess
	Expires      Expiration
	Status       string // "open", "closed", "cancelled"
	HighBid      *Bid
	Winner       string
	Version      int

	events []event.Event
	clock  clock.Clock
}

// Snapshot is a read-only copy of the auction state.
type Snapshot struct {
	ID           string `json:"id"`
	Seller       string `json:"seller"`
	TokenDenom   string `json:"token_denom"`
	MinIncrement int64  `json:"min_increment"`
	Expires      string `json:"expires"`
	Status       string `json:"status"`
	HighBidder   string `json:"high_bidder,omitempty"`
	HighAmount   int64  `json:"high_amount,omitempty"`
	Winner       string `json:"winner,omitempty"`
}

// New creates a new open auction and records a created event.
// The close condition must be strictly in the future.
func New(id, seller, denom string, minIncrement int64, expires Expiration, clk clock.Clock) (*Auction, error) {
	if seller == "" {
		return nil, fmt.Errorf("%w: seller must not be empty", ErrInvalidParams)
	}
	if denom == "" {
		return nil, fmt.Errorf("%w: token denom must not be empty", ErrInvalidParams)
	}
	if minIncrement < 0 {
		return nil, fmt.Errorf("%w: min increment must not be negative", ErrInvalidParams)
	}
	if err := expires.Validate(clk.Now(), clk.Height()); err != nil {
		return nil, err
	}

	a := &Auction{
		ID:           id,
		Seller:       seller,
		TokenDenom:   denom,
		MinIncrement: minIncrement,
		Expires:      expires,
		Status:       "open",
		Version:      0,
		clock:        clk,
	}

	data, _ := json.Marshal(event.AuctionCreatedData{
		Seller:        seller,
		TokenDenom:    denom,
		MinIncrement:  minIncrement,
		ExpiresHeight: expires.Height,
		ExpiresAt:     expires.Time,
		BySeller:      expires.Manual,
	})
	a.recordEvent(event.AuctionCreated, data)
	return a, nil
}

// PlaceBid escrows amount from bidder, refunds the previous high bidder, and
// records the new high bid, in that order. commit persists the new high bid
// and runs after both transfers succeed; if any step fails, the transfers
// already executed are reversed and the auction is left untouched.
// A bidder may outbid themself; their previous escrow is refunded like any
// other.
func (a *Auction) PlaceBid(ctx context.Context, bidder string, amount int64, gw Gateway, escrow string, commit func(bidder string, amount int64) error) error {
	ctx, span := tracer.Start(ctx, "Auction.PlaceBid",
		trace.WithAttributes(
			attribute.String("auction.id", a.ID),
			attribute.String("bidder", bidder),
			attribute.Int64("bid.amount", amount),
		),
	)
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Status != "open" {
		return ErrAuctionNotOpen
	}
	if a.Expires.IsExpired(a.clock.Now(), a.clock.Height()) {
		return ErrAuctionExpired
	}
	if bidder == "" {
		return fmt.Errorf("%w: bidder must not be empty", ErrInvalidParams)
	}
	// A bid from the escrow account would self-cancel the escrow transfer
	// and leave the high bid uncollateralized.
	if bidder == escrow {
		return fmt.Errorf("%w: bidder must not be the escrow account", ErrInvalidParams)
	}
	if amount <= 0 {
		return ErrBidTooLow
	}
	if prev := a.HighBid; prev != nil {
		floor := prev.Amount + 1
		if a.MinIncrement > 0 {
			floor = prev.Amount + a.MinIncrement
		}
		if amount < floor {
			return ErrBidTooLow
		}
	}

	prev := a.HighBid

	// Escrow the new bid first so the refund can never leave the house
	// under-collateralized.
	if err := gw.Transfer(ctx, a.TokenDenom, bidder, escrow, amount); err != nil {
		return fmt.Errorf("%w: escrowing bid: %v", ErrTransferFailed, err)
	}

	if prev != nil {
		if err := gw.Transfer(ctx, a.TokenDenom, escrow, prev.Bidder, prev.Amount); err != nil {
			// Return the freshly escrowed bid; the previous high bid
			// stays escrowed and the record stays unchanged.
			if undoErr := gw.Transfer(ctx, a.TokenDenom, escrow, bidder, amount); undoErr != nil {
				slog.ErrorContext(ctx, "escrow reversal failed, balance stuck in escrow",
					slog.String("auction_id", a.ID),
					slog.String("bidder", bidder),
					slog.Int64("amount", amount),
					slog.Any("error", undoErr),
				)
			}
			return fmt.Errorf("%w: refunding outbid bidder %s: %v", ErrTransferFailed, prev.Bidder, err)
		}
	}

	if commit != nil {
		if err := commit(bidder, amount); err != nil {
			// Reverse in reverse order: re-escrow the refunded bid,
			// then return the new bid. The previous bidder cannot have
			// spent the refund inside this same serialized request.
			if prev != nil {
				if undoErr := gw.Transfer(ctx, a.TokenDenom, prev.Bidder, escrow, prev.Amount); undoErr != nil {
					slog.ErrorContext(ctx, "refund reversal failed after commit error",
						slog.String("auction_id", a.ID),
						slog.String("bidder", prev.Bidder),
						slog.Any("error", undoErr),
					)
				}
			}
			if undoErr := gw.Transfer(ctx, a.TokenDenom, escrow, bidder, amount); undoErr != nil {
				slog.ErrorContext(ctx, "escrow reversal failed after commit error",
					slog.String("auction_id", a.ID),
					slog.String("bidder", bidder),
					slog.Any("error", undoErr),
				)
			}
			return fmt.Errorf("recording high bid: %w", err)
		}
	}

	a.HighBid = &Bid{
		Bidder: bidder,
		Amount: amount,
		Time:   a.clock.Now().UTC(),
	}

	var refunded int64
	if prev != nil {
		refunded = prev.Amount
	}
	data, _ := json.Marshal(event.BidPlacedData{
		Bidder:   bidder,
		Amount:   amount,
		Refunded: refunded,
	})
	a.recordEvent(event.AuctionBidPlaced, data)

	slog.InfoContext(ctx, "bid placed",
		slog.String("auction_id", a.ID),
		slog.String("bidder", bidder),
		slog.Int64("amount", amount),
		slog.Int64("refunded", refunded),
	)
	return nil
}

// Close settles the auction. A deadline auction may be closed by anyone once
// the deadline has passed; a seller-closed auction only by the seller. With a
// high bid the escrowed amount is paid to the seller and the bidder wins;
// without one the auction just closes. commit persists the terminal state and
// runs after the settlement transfer succeeds; on commit failure the
// settlement is reversed.
func (a *Auction) Close(ctx context.Context, caller string, gw Gateway, escrow string, commit func(winner *Bid) error) (winner *Bid, err error) {
	ctx, span := tracer.Start(ctx, "Auction.Close",
		trace.WithAttributes(attribute.String("auction.id", a.ID)),
	)
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Status != "open" {
		return nil, ErrAuctionNotOpen
	}
	if a.Expires.Manual {
		if caller != a.Seller {
			return nil, ErrUnauthorized
		}
	} else if !a.Expires.IsExpired(a.clock.Now(), a.clock.Height()) {
		return nil, ErrNotYetExpired
	}

	high := a.HighBid
	if high != nil {
		if err := gw.Transfer(ctx, a.TokenDenom, escrow, a.Seller, high.Amount); err != nil {
			return nil, fmt.Errorf("%w: settling to seller: %v", ErrTransferFailed, err)
		}
	}

	if commit != nil {
		if err := commit(high); err != nil {
			if high != nil {
				if undoErr := gw.Transfer(ctx, a.TokenDenom, a.Seller, escrow, high.Amount); undoErr != nil {
					slog.ErrorContext(ctx, "settlement reversal failed after commit error",
						slog.String("auction_id", a.ID),
						slog.Any("error", undoErr),
					)
				}
			}
			return nil, fmt.Errorf("recording close: %w", err)
		}
	}

	a.Status = "closed"

	if high != nil {
		a.Winner = high.Bidder
		data, _ := json.Marshal(event.AuctionClosedData{
			Winner: high.Bidder,
			Amount: high.Amount,
		})
		a.recordEvent(event.AuctionClosed, data)
		slog.InfoContext(ctx, "auction closed",
			slog.String("auction_id", a.ID),
			slog.String("winner", high.Bidder),
			slog.Int64("amount", high.Amount),
		)
		return high, nil
	}

	// No bids; close with no winner and nothing to move.
	data, _ := json.Marshal(event.AuctionClosedData{})
	a.recordEvent(event.AuctionClosed, data)
	slog.InfoContext(ctx, "auction closed without bids", slog.String("auction_id", a.ID))
	return nil, nil
}

// Cancel voids an auction that never received a bid. Only the seller may
// cancel; once a bid is escrowed the auction must run to a close so the
// bidder either wins or is refunded.
func (a *Auction) Cancel(ctx context.Context, caller string, commit func() error) error {
	ctx, span := tracer.Start(ctx, "Auction.Cancel",
		trace.WithAttributes(attribute.String("auction.id", a.ID)),
	)
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Status != "open" {
		return ErrAuctionNotOpen
	}
	if caller != a.Seller {
		return ErrUnauthorized
	}
	if a.HighBid != nil {
		return ErrBidAlreadyPlaced
	}

	if commit != nil {
		if err := commit(); err != nil {
			return fmt.Errorf("recording cancel: %w", err)
		}
	}

	a.Status = "cancelled"
	a.recordEvent(event.AuctionCancelled, json.RawMessage(`{}`))
	slog.InfoContext(ctx, "auction cancelled", slog.String("auction_id", a.ID))
	return nil
}

// HighestBid returns the current high bid (thread-safe).
func (a *Auction) HighestBid() *Bid {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.HighBid == nil {
		return nil
	}
	b := *a.HighBid
	return &b
}

// Snapshot returns a read-only copy of the auction state.
func (a *Auction) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Snapshot{
		ID:           a.ID,
		Seller:       a.Seller,
		TokenDenom:   a.TokenDenom,
		MinIncrement: a.MinIncrement,
		Expires:      a.Expires.String(),
		Status:       a.Status,
		Winner:       a.Winner,
	}
	if a.HighBid != nil {
		s.HighBidder = a.HighBid.Bidder
		s.HighAmount = a.HighBid.Amount
	}
	return s
}

// PendingEvents returns uncommitted events and clears the buffer.
func (a *Auction) PendingEvents() []event.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	events := a.events
	a.events = nil
	return events
}

func (a *Auction) recordEvent(t event.Type, data json.RawMessage) {
	a.Version++
	a.events = append(a.events, event.Event{
		AggregateID: a.ID,
		Type:        t,
		Data:        data,
		Version:     a.Version,
	})
}

// Record converts the aggregate into its persisted representation.
func (a *Auction) Record() *store.Auction {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rec := &store.Auction{
		ID:            a.ID,
		Seller:        a.Seller,
		TokenDenom:    a.TokenDenom,
		MinIncrement:  a.MinIncrement,
		ExpiresHeight: a.Expires.Height,
		BySeller:      a.Expires.Manual,
		Status:        a.Status,
	}
	if !a.Expires.Time.IsZero() {
		t := a.Expires.Time.UTC()
		rec.ExpiresAt = &t
	}
	if a.HighBid != nil {
		bidder, amount := a.HighBid.Bidder, a.HighBid.Amount
		rec.HighBidder = &bidder
		rec.HighAmount = &amount
	}
	if a.Winner != "" {
		winner := a.Winner
		rec.Winner = &winner
	}
	return rec
}

// FromRecord reconstructs an aggregate from a persisted record.
func FromRecord(rec *store.Auction, clk clock.Clock) *Auction {
	a := &Auction{
		ID:           rec.ID,
		Seller:       rec.Seller,
		TokenDenom:   rec.TokenDenom,
		MinIncrement: rec.MinIncrement,
		Status:       rec.Status,
		clock:        clk,
	}
	switch {
	case rec.BySeller:
		a.Expires = BySeller()
	case rec.ExpiresHeight > 0:
		a.Expires = AtHeight(rec.ExpiresHeight)
	case rec.ExpiresAt != nil:
		a.Expires = AtTime(*rec.ExpiresAt)
	}
	if rec.HighBidder != nil && rec.HighAmount != nil {
		a.HighBid = &Bid{Bidder: *rec.HighBidder, Amount: *rec.HighAmount}
	}
	if rec.Winner != nil {
		a.Winner = *rec.Winner
	}
	return a
}

// Replay reconstructs an auction from its event history.
func Replay(events []event.Event, clk clock.Clock) (*Auction, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("no events to replay")
	}

	a := &Auction{clock: clk}
	for _, e := range events {
		switch e.Type {
		case event.AuctionCreated:
			var d event.AuctionCreatedData
			if err := json.Unmarshal(e.Data, &d); err != nil {
				return nil, fmt.Errorf("unmarshalling created event: %w", err)
			}
			a.ID = e.AggregateID
			a.Seller = d.Seller
			a.TokenDenom = d.TokenDenom
			a.MinIncrement = d.MinIncrement
			switch {
			case d.BySeller:
				a.Expires = BySeller()
			case d.ExpiresHeight > 0:
				a.Expires = AtHeight(d.ExpiresHeight)
			default:
				a.Expires = AtTime(d.ExpiresAt)
			}
			a.Status = "open"

		case event.AuctionBidPlaced:
			var d event.BidPlacedData
			if err := json.Unmarshal(e.Data, &d); err != nil {
				return nil, fmt.Errorf("unmarshalling bid event: %w", err)
			}
			a.HighBid = &Bid{
				Bidder: d.Bidder,
				Amount: d.Amount,
				Time:   e.CreatedAt,
			}

		case event.AuctionClosed:
			var d event.AuctionClosedData
			if err := json.Unmarshal(e.Data, &d); err != nil {
				return nil, fmt.Errorf("unmarshalling closed event: %w", err)
			}
			a.Status = "closed"
			a.Winner = d.Winner

		case event.AuctionCancelled:
			a.Status = "cancelled"
		}
		a.Version = e.Version
	}
	return a, nil
}
