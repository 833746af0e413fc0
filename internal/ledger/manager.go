// Package ledger tracks fungible token balances per account and denom.
// It is the custody backend of the auction engine: escrow, refund and
// settlement all go through Transfer.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomsrud/auctionhouse/internal/event"
	"github.com/tomsrud/auctionhouse/internal/store"
)

// Errors returned by ledger operations.
var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Manager handles token ledger operations.
type Manager struct {
	accounts store.AccountRepository
	events   event.Store
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewManager returns a new ledger Manager.
func NewManager(accounts store.AccountRepository, events event.Store, logger *slog.Logger, tp trace.TracerProvider) *Manager {
	return &Manager{
		accounts: accounts,
		events:   events,
		logger:   logger,
		tracer:   tp.Tracer("github.com/tomsrud/auctionhouse/internal/ledger"),
	}
}

// Mint credits freshly issued tokens to an account.
func (m *Manager) Mint(ctx context.Context, account, denom string, amount int64, reason string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Mint",
		trace.WithAttributes(
			attribute.String("account", account),
			attribute.String("denom", denom),
			attribute.Int64("amount", amount),
		),
	)
	defer span.End()

	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := m.accounts.Credit(ctx, account, denom, amount); err != nil {
		return fmt.Errorf("minting tokens: %w", err)
	}

	data, _ := json.Marshal(event.TokenMovementData{
		Denom:  denom,
		To:     account,
		Amount: amount,
		Reason: reason,
	})
	evt := event.Event{
		AggregateID: account,
		Type:        event.TokensMinted,
		Data:        data,
		Version:     0,
	}
	if err := m.events.Append(ctx, evt); err != nil {
		m.logger.ErrorContext(ctx, "failed to append mint event", slog.Any("error", err))
	}

	m.logger.InfoContext(ctx, "tokens minted",
		slog.String("account", account),
		slog.String("denom", denom),
		slog.Int64("amount", amount),
		slog.String("reason", reason),
	)
	return nil
}

// Transfer moves amount of denom from one account to another. It moves the
// full amount or nothing; a source that cannot cover the amount fails with
// ErrInsufficientBalance and no balance changes.
func (m *Manager) Transfer(ctx context.Context, denom, from, to string, amount int64) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Transfer",
		trace.WithAttributes(
			attribute.String("denom", denom),
			attribute.String("from", from),
			attribute.String("to", to),
			attribute.Int64("amount", amount),
		),
	)
	defer span.End()

	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := m.accounts.Transfer(ctx, denom, from, to, amount); err != nil {
		if errors.Is(err, store.ErrInsufficientBalance) {
			return fmt.Errorf("%w: %s has less than %d %s", ErrInsufficientBalance, from, amount, denom)
		}
		return fmt.Errorf("transferring tokens: %w", err)
	}

	data, _ := json.Marshal(event.TokenMovementData{
		Denom:  denom,
		From:   from,
		To:     to,
		Amount: amount,
	})
	evt := event.Event{
		AggregateID: from,
		Type:        event.TokensTransferred,
		Data:        data,
		Version:     0,
	}
	if err := m.events.Append(ctx, evt); err != nil {
		m.logger.ErrorContext(ctx, "failed to append transfer event", slog.Any("error", err))
	}

	m.logger.InfoContext(ctx, "tokens transferred",
		slog.String("denom", denom),
		slog.String("from", from),
		slog.String("to", to),
		slog.Int64("amount", amount),
	)
	return nil
}

// Balance returns the balance of an account for a denom. Unknown accounts
// hold zero.
func (m *Manager) Balance(ctx context.Context, account, denom string) (int64, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Balance")
	defer span.End()

	acc, err := m.accounts.Get(ctx, account, denom)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("getting balance: %w", err)
	}
	return acc.Amount, nil
}

// Accounts returns all accounts holding a denom, ordered by balance.
func (m *Manager) Accounts(ctx context.Context, denom string) ([]store.Account, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Accounts")
	defer span.End()

	return m.accounts.List(ctx, denom)
}
