package auction_test

import (
	"errors"
	"testing"
	"time"

	"github.com/tomsrud/auctionhouse/internal/auction"
)

func TestExpiration_IsExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		e      auction.Expiration
		now    time.Time
		height uint64
		want   bool
	}{
		{"manual never expires", auction.BySeller(), now.Add(100 * time.Hour), 1 << 40, false},
		{"height below threshold", auction.AtHeight(1000), now, 999, false},
		{"height at threshold", auction.AtHeight(1000), now, 1000, true},
		{"height past threshold", auction.AtHeight(1000), now, 1001, true},
		{"time before deadline", auction.AtTime(now), now.Add(-time.Second), 0, false},
		{"time at deadline", auction.AtTime(now), now, 0, true},
		{"time past deadline", auction.AtTime(now), now.Add(time.Second), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.IsExpired(tt.now, tt.height); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpiration_Validate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		e       auction.Expiration
		wantErr bool
	}{
		{"manual", auction.BySeller(), false},
		{"future height", auction.AtHeight(101), false},
		{"future time", auction.AtTime(now.Add(time.Hour)), false},
		{"nothing set", auction.Expiration{}, true},
		{"height equals current", auction.AtHeight(100), true},
		{"time equals now", auction.AtTime(now), true},
		{"height and time both set", auction.Expiration{Height: 200, Time: now.Add(time.Hour)}, true},
		{"manual and height both set", auction.Expiration{Manual: true, Height: 200}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.e.Validate(now, 100)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, auction.ErrInvalidParams) {
				t.Errorf("Validate() error = %v, want ErrInvalidParams", err)
			}
		})
	}
}

func TestExpiration_String(t *testing.T) {
	tests := []struct {
		e    auction.Expiration
		want string
	}{
		{auction.BySeller(), "by_seller"},
		{auction.AtHeight(42), "at_height:42"},
		{auction.AtTime(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)), "at_time:2025-06-01T12:00:00Z"},
		{auction.Expiration{}, "unset"},
	}

	for _, tt := range tests {
		if got := tt.e.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
