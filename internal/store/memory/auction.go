package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomsrud/auctionhouse/internal/clock"
	"github.com/tomsrud/auctionhouse/internal/store"
)

// AuctionRepo implements store.AuctionRepository in memory.
type AuctionRepo struct {
	mu       sync.Mutex
	auctions map[string]*store.Auction
	clock    clock.Clock
}

// NewAuctionRepo returns a new AuctionRepo.
func NewAuctionRepo(clk clock.Clock) *AuctionRepo {
	return &AuctionRepo{auctions: make(map[string]*store.Auction), clock: clk}
}

func (r *AuctionRepo) Create(_ context.Context, a *store.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[a.ID]; ok {
		return fmt.Errorf("auction %s already exists", a.ID)
	}
	a.CreatedAt = r.clock.Now().UTC()
	cp := *a
	r.auctions[a.ID] = &cp
	return nil
}

func (r *AuctionRepo) GetByID(_ context.Context, id string) (*store.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *AuctionRepo) SetHighBid(_ context.Context, id, bidder string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[id]
	if !ok || a.Status != "open" {
		return fmt.Errorf("auction %s not found or not open", id)
	}
	a.HighBidder = &bidder
	a.HighAmount = &amount
	return nil
}

func (r *AuctionRepo) Close(_ context.Context, id string, winner *string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[id]
	if !ok || a.Status != "open" {
		return fmt.Errorf("auction %s not found or already closed", id)
	}
	now := r.clock.Now().UTC()
	a.Status = "closed"
	a.ClosedAt = &now
	if winner != nil {
		w := *winner
		a.Winner = &w
		a.HighAmount = &amount
	}
	return nil
}

func (r *AuctionRepo) Cancel(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[id]
	if !ok || a.Status != "open" {
		return fmt.Errorf("auction %s not found or already closed", id)
	}
	now := r.clock.Now().UTC()
	a.Status = "cancelled"
	a.ClosedAt = &now
	return nil
}

func (r *AuctionRepo) ListOpen(_ context.Context) ([]store.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var open []store.Auction
	for _, a := range r.auctions {
		if a.Status == "open" {
			open = append(open, *a)
		}
	}
	return open, nil
}
