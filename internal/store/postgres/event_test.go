package postgres_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/tomsrud/auctionhouse/internal/event"
	"github.com/tomsrud/auctionhouse/internal/store/postgres"
)

func TestEventStore_AppendAndLoad(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)
	ctx := context.Background()

	events := []event.Event{
		{
			AggregateID: "auction-1",
			Type:        event.AuctionCreated,
			Data:        json.RawMessage(`{"seller":"seller","token_denom":"gold"}`),
			Version:     1,
		},
		{
			AggregateID: "auction-1",
			Type:        event.AuctionBidPlaced,
			Data:        json.RawMessage(`{"bidder":"alice","amount":100}`),
			Version:     2,
		},
		{
			AggregateID: "auction-2",
			Type:        event.AuctionCreated,
			Data:        json.RawMessage(`{"seller":"other","token_denom":"gold"}`),
			Version:     1,
		},
	}
	if err := es.Append(ctx, events...); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := es.Load(ctx, "auction-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Load returned %d events, want 2", len(got))
	}
	// Ordered by version ASC with server-assigned ids and timestamps.
	if got[0].Version != 1 || got[1].Version != 2 {
		t.Errorf("versions = %d, %d, want 1, 2", got[0].Version, got[1].Version)
	}
	if got[0].ID == "" {
		t.Error("expected event ID to be assigned")
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	var bid event.BidPlacedData
	if err := json.Unmarshal(got[1].Data, &bid); err != nil {
		t.Fatalf("unmarshalling bid data: %v", err)
	}
	if bid.Bidder != "alice" || bid.Amount != 100 {
		t.Errorf("bid = %+v, want alice @ 100", bid)
	}
}

func TestEventStore_LoadByType(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)
	ctx := context.Background()

	if err := es.Append(ctx,
		event.Event{AggregateID: "alice", Type: event.TokensMinted, Data: json.RawMessage(`{"denom":"gold","to":"alice","amount":100}`), Version: 0},
		event.Event{AggregateID: "auction-1", Type: event.AuctionCreated, Data: json.RawMessage(`{}`), Version: 1},
	); err != nil {
		t.Fatalf("Append: %v", err)
	}

	minted, err := es.LoadByType(ctx, event.TokensMinted)
	if err != nil {
		t.Fatalf("LoadByType: %v", err)
	}
	if len(minted) != 1 {
		t.Fatalf("LoadByType returned %d events, want 1", len(minted))
	}
	if minted[0].AggregateID != "alice" {
		t.Errorf("aggregate = %q, want alice", minted[0].AggregateID)
	}
}

func TestEventStore_Load_Empty(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)

	got, err := es.Load(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Load returned %d events, want 0", len(got))
	}
}
