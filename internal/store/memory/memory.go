// Package memory provides an in-process store.Driver keeping every record in
// keyed maps. Each Open call returns isolated stores, which is what tests and
// local development need; nothing survives a restart.
package memory

import (
	"context"
	"sync"

	"github.com/tomsrud/auctionhouse/internal/clock"
	"github.com/tomsrud/auctionhouse/internal/config"
	"github.com/tomsrud/auctionhouse/internal/store"
)

func init() {
	store.Register("memory", func(_ context.Context, _ config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
		return Open(clk), nil
	})
}

// closerFunc adapts a func() error into an io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Open returns a fresh set of in-memory repositories.
func Open(clk clock.Clock) *store.Repositories {
	return &store.Repositories{
		Accounts: NewAccountRepo(clk),
		Auctions: NewAuctionRepo(clk),
		Events:   NewEventStore(clk),
		Closer:   closerFunc(func() error { return nil }),
		Ping:     func(context.Context) error { return nil },
	}
}

type balanceKey struct {
	account string
	denom   string
}

// AccountRepo implements store.AccountRepository in memory.
type AccountRepo struct {
	mu       sync.Mutex
	balances map[balanceKey]int64
	clock    clock.Clock
}

// NewAccountRepo returns a new AccountRepo.
func NewAccountRepo(clk clock.Clock) *AccountRepo {
	return &AccountRepo{balances: make(map[balanceKey]int64), clock: clk}
}

func (r *AccountRepo) Get(_ context.Context, account, denom string) (*store.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	amount, ok := r.balances[balanceKey{account, denom}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &store.Account{Account: account, Denom: denom, Amount: amount}, nil
}

func (r *AccountRepo) List(_ context.Context, denom string) ([]store.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var accounts []store.Account
	for k, amount := range r.balances {
		if k.denom != denom {
			continue
		}
		accounts = append(accounts, store.Account{Account: k.account, Denom: denom, Amount: amount})
	}
	return accounts, nil
}

func (r *AccountRepo) Credit(_ context.Context, account, denom string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.balances[balanceKey{account, denom}] += amount
	return nil
}

func (r *AccountRepo) Transfer(_ context.Context, denom, from, to string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fromKey := balanceKey{from, denom}
	if r.balances[fromKey] < amount {
		return store.ErrInsufficientBalance
	}
	r.balances[fromKey] -= amount
	r.balances[balanceKey{to, denom}] += amount
	return nil
}
