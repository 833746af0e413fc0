package auction

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomsrud/auctionhouse/internal/clock"
	"github.com/tomsrud/auctionhouse/internal/event"
	"github.com/tomsrud/auctionhouse/internal/store"
)

// Listing limits for List, matching the query defaults of the wire protocol.
const (
	defaultListLimit = 10
	maxListLimit     = 30
)

// Manager coordinates auction lifecycle, custody transfers and persistence.
type Manager struct {
	mu       sync.RWMutex
	auctions map[string]*Auction

	repo    store.AuctionRepository
	events  event.Store
	gateway Gateway
	escrow  string
	logger  *slog.Logger
	tracer  trace.Tracer
	clock   clock.Clock
}

// NewManager creates a new auction Manager. escrowAccount is the house
// account that custodies the high bid of every open auction.
func NewManager(repo store.AuctionRepository, events event.Store, gw Gateway, escrowAccount string, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Manager {
	return &Manager{
		auctions: make(map[string]*Auction),
		repo:     repo,
		events:   events,
		gateway:  gw,
		escrow:   escrowAccount,
		logger:   logger,
		tracer:   tp.Tracer("github.com/tomsrud/auctionhouse/internal/auction"),
		clock:    clk,
	}
}

// Create opens a new auction for seller, bid in denom, and persists it.
func (m *Manager) Create(ctx context.Context, seller, denom string, minIncrement int64, expires Expiration) (*Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Create",
		trace.WithAttributes(
			attribute.String("seller", seller),
			attribute.String("denom", denom),
		),
	)
	defer span.End()

	id := fmt.Sprintf("auction-%d", m.clock.Now().UnixNano())
	a, err := New(id, seller, denom, minIncrement, expires, m.clock)
	if err != nil {
		return nil, err
	}

	if err := m.repo.Create(ctx, a.Record()); err != nil {
		return nil, fmt.Errorf("persisting auction: %w", err)
	}
	m.appendEvents(ctx, a)

	m.mu.Lock()
	m.auctions[id] = a
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "auction created",
		slog.String("auction_id", id),
		slog.String("seller", seller),
		slog.String("denom", denom),
		slog.String("expires", expires.String()),
	)
	return a, nil
}

// PlaceBid escrows a new high bid and refunds the outbid bidder. The request
// either fully succeeds or leaves the auction, the record and the ledger
// exactly as they were.
func (m *Manager) PlaceBid(ctx context.Context, auctionID, bidder string, amount int64) error {
	ctx, span := m.tracer.Start(ctx, "Manager.PlaceBid",
		trace.WithAttributes(
			attribute.String("auction_id", auctionID),
			attribute.String("bidder", bidder),
			attribute.Int64("amount", amount),
		),
	)
	defer span.End()

	a, err := m.get(ctx, auctionID)
	if err != nil {
		return err
	}

	err = a.PlaceBid(ctx, bidder, amount, m.gateway, m.escrow, func(bidder string, amount int64) error {
		return m.repo.SetHighBid(ctx, auctionID, bidder, amount)
	})
	if err != nil {
		return err
	}

	m.appendEvents(ctx, a)
	return nil
}

// Close settles an auction: the escrowed high bid goes to the seller and the
// high bidder wins, or the auction closes empty. Returns the winning bid, nil
// if there were no bids.
func (m *Manager) Close(ctx context.Context, auctionID, caller string) (*Bid, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Close",
		trace.WithAttributes(attribute.String("auction_id", auctionID)),
	)
	defer span.End()

	a, err := m.get(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	winner, err := a.Close(ctx, caller, m.gateway, m.escrow, func(winner *Bid) error {
		var winnerID *string
		var amount int64
		if winner != nil {
			winnerID = &winner.Bidder
			amount = winner.Amount
		}
		return m.repo.Close(ctx, auctionID, winnerID, amount)
	})
	if err != nil {
		return nil, err
	}

	m.appendEvents(ctx, a)

	m.mu.Lock()
	delete(m.auctions, auctionID)
	m.mu.Unlock()

	return winner, nil
}

// Cancel voids an auction that never received a bid. Seller only.
func (m *Manager) Cancel(ctx context.Context, auctionID, caller string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Cancel",
		trace.WithAttributes(attribute.String("auction_id", auctionID)),
	)
	defer span.End()

	a, err := m.get(ctx, auctionID)
	if err != nil {
		return err
	}

	err = a.Cancel(ctx, caller, func() error {
		return m.repo.Cancel(ctx, auctionID)
	})
	if err != nil {
		return err
	}

	m.appendEvents(ctx, a)

	m.mu.Lock()
	delete(m.auctions, auctionID)
	m.mu.Unlock()

	return nil
}

// Get returns a read-only snapshot of an auction, open or terminal.
func (m *Manager) Get(ctx context.Context, auctionID string) (Snapshot, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Get",
		trace.WithAttributes(attribute.String("auction_id", auctionID)),
	)
	defer span.End()

	m.mu.RLock()
	a, ok := m.auctions[auctionID]
	m.mu.RUnlock()
	if ok {
		return a.Snapshot(), nil
	}

	rec, err := m.repo.GetByID(ctx, auctionID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("auction %s: %w", auctionID, err)
	}
	return FromRecord(rec, m.clock).Snapshot(), nil
}

// List returns ids of open auctions in ascending order, starting after
// startAfter, capped at limit (default 10, max 30).
func (m *Manager) List(ctx context.Context, startAfter string, limit int) ([]string, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.List")
	defer span.End()

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	open, err := m.repo.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing open auctions: %w", err)
	}

	ids := make([]string, 0, len(open))
	for _, rec := range open {
		if startAfter != "" && rec.ID <= startAfter {
			continue
		}
		ids = append(ids, rec.ID)
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// ReplayAuction reconstructs an auction from stored events. The live
// aggregate state comes from the auction records; replay serves audits and
// debugging of the event trail.
func (m *Manager) ReplayAuction(ctx context.Context, auctionID string) (*Auction, error) {
	events, err := m.events.Load(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	return Replay(events, m.clock)
}

// RecoverOpenAuctions loads all open auction records into the in-memory map.
// This is used on leader startup to restore state after a failover.
func (m *Manager) RecoverOpenAuctions(ctx context.Context) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.RecoverOpenAuctions")
	defer span.End()

	open, err := m.repo.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading open auctions: %w", err)
	}

	recovered := 0
	m.mu.Lock()
	for i := range open {
		rec := open[i]
		if _, ok := m.auctions[rec.ID]; ok {
			continue
		}
		m.auctions[rec.ID] = m.hydrate(ctx, &rec)
		recovered++
	}
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "auction recovery complete",
		slog.Int("open", len(open)),
		slog.Int("recovered", recovered),
	)
	return recovered, nil
}

// get returns the tracked aggregate, hydrating it from the repository when
// the auction is not in memory (e.g. after a restart without recovery).
func (m *Manager) get(ctx context.Context, auctionID string) (*Auction, error) {
	m.mu.RLock()
	a, ok := m.auctions[auctionID]
	m.mu.RUnlock()
	if ok {
		return a, nil
	}

	rec, err := m.repo.GetByID(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("auction %s: %w", auctionID, err)
	}
	a = m.hydrate(ctx, rec)

	m.mu.Lock()
	// Another request may have hydrated it in the meantime; keep the first.
	if existing, ok := m.auctions[auctionID]; ok {
		a = existing
	} else if rec.Status == "open" {
		m.auctions[auctionID] = a
	}
	m.mu.Unlock()

	return a, nil
}

// hydrate rebuilds an aggregate from its record and resumes event numbering
// after the newest stored event, so events appended by the hydrated aggregate
// never collide with the existing trail.
func (m *Manager) hydrate(ctx context.Context, rec *store.Auction) *Auction {
	a := FromRecord(rec, m.clock)
	stored, err := m.events.Load(ctx, rec.ID)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to load event trail during hydration",
			slog.String("auction_id", rec.ID),
			slog.Any("error", err),
		)
		return a
	}
	for _, e := range stored {
		if e.Version > a.Version {
			a.Version = e.Version
		}
	}
	return a
}

// appendEvents persists the aggregate's pending events. Append failures are
// logged, not returned: the auction record and the ledger are the source of
// truth, events are the audit trail.
func (m *Manager) appendEvents(ctx context.Context, a *Auction) {
	pending := a.PendingEvents()
	if len(pending) == 0 {
		return
	}
	if err := m.events.Append(ctx, pending...); err != nil {
		m.logger.ErrorContext(ctx, "failed to persist events",
			slog.String("auction_id", a.ID),
			slog.Any("error", err),
		)
	}
}
