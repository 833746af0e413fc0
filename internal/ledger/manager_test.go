package ledger_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tomsrud/auctionhouse/internal/clock"
	"github.com/tomsrud/auctionhouse/internal/event"
	"github.com/tomsrud/auctionhouse/internal/ledger"
	"github.com/tomsrud/auctionhouse/internal/store/memory"
)

var testClk = clock.Mock{T: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

func newManager(t *testing.T) (*ledger.Manager, *memory.EventStore) {
	t.Helper()
	es := memory.NewEventStore(testClk)
	accounts := memory.NewAccountRepo(testClk)
	return ledger.NewManager(accounts, es, slog.Default(), noop.NewTracerProvider()), es
}

func TestMint(t *testing.T) {
	m, es := newManager(t)

	if err := m.Mint(context.Background(), "alice", "gold", 100, "initial grant"); err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	got, err := m.Balance(context.Background(), "alice", "gold")
	if err != nil {
		t.Fatal(err)
	}
	if got != 100 {
		t.Errorf("balance = %d, want 100", got)
	}

	minted, err := es.LoadByType(context.Background(), event.TokensMinted)
	if err != nil {
		t.Fatal(err)
	}
	if len(minted) != 1 {
		t.Errorf("minted events = %d, want 1", len(minted))
	}
}

func TestMint_InvalidAmount(t *testing.T) {
	m, _ := newManager(t)

	for _, amount := range []int64{0, -5} {
		if err := m.Mint(context.Background(), "alice", "gold", amount, ""); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Errorf("Mint(%d) error = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestTransfer(t *testing.T) {
	m, _ := newManager(t)
	if err := m.Mint(context.Background(), "alice", "gold", 100, ""); err != nil {
		t.Fatal(err)
	}

	if err := m.Transfer(context.Background(), "gold", "alice", "bob", 60); err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}

	aliceBal, _ := m.Balance(context.Background(), "alice", "gold")
	bobBal, _ := m.Balance(context.Background(), "bob", "gold")
	if aliceBal != 40 || bobBal != 60 {
		t.Errorf("balances = %d/%d, want 40/60", aliceBal, bobBal)
	}
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	m, _ := newManager(t)
	if err := m.Mint(context.Background(), "alice", "gold", 50, ""); err != nil {
		t.Fatal(err)
	}

	err := m.Transfer(context.Background(), "gold", "alice", "bob", 100)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("Transfer() error = %v, want ErrInsufficientBalance", err)
	}

	// Nothing moved.
	aliceBal, _ := m.Balance(context.Background(), "alice", "gold")
	bobBal, _ := m.Balance(context.Background(), "bob", "gold")
	if aliceBal != 50 || bobBal != 0 {
		t.Errorf("balances = %d/%d, want 50/0", aliceBal, bobBal)
	}
}

func TestTransfer_Self(t *testing.T) {
	m, _ := newManager(t)
	if err := m.Mint(context.Background(), "alice", "gold", 50, ""); err != nil {
		t.Fatal(err)
	}

	// A covered self-transfer leaves the balance unchanged.
	if err := m.Transfer(context.Background(), "gold", "alice", "alice", 30); err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	got, _ := m.Balance(context.Background(), "alice", "gold")
	if got != 50 {
		t.Errorf("balance = %d, want 50", got)
	}

	// An uncovered one fails like any other transfer.
	err := m.Transfer(context.Background(), "gold", "alice", "alice", 100)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("Transfer() error = %v, want ErrInsufficientBalance", err)
	}
}

func TestTransfer_InvalidAmount(t *testing.T) {
	m, _ := newManager(t)

	if err := m.Transfer(context.Background(), "gold", "alice", "bob", 0); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("Transfer(0) error = %v, want ErrInvalidAmount", err)
	}
}

func TestBalance_UnknownAccountIsZero(t *testing.T) {
	m, _ := newManager(t)

	got, err := m.Balance(context.Background(), "nobody", "gold")
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

func TestAccounts(t *testing.T) {
	m, _ := newManager(t)
	for account, amount := range map[string]int64{"alice": 100, "bob": 200} {
		if err := m.Mint(context.Background(), account, "gold", amount, ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Mint(context.Background(), "carol", "silver", 50, ""); err != nil {
		t.Fatal(err)
	}

	accounts, err := m.Accounts(context.Background(), "gold")
	if err != nil {
		t.Fatalf("Accounts() error = %v", err)
	}
	if len(accounts) != 2 {
		t.Errorf("accounts = %d, want 2 (silver excluded)", len(accounts))
	}
}
