package auction

import (
	"fmt"
	"time"
)

// Expiration is the close condition of an auction: a block height threshold,
// an absolute time, or an explicit close by the seller. Exactly one of the
// three is set.
type Expiration struct {
	// Height closes the auction once the observed height reaches it.
	Height uint64
	// Time closes the auction once the wall clock reaches it.
	Time time.Time
	// Manual means the auction has no deadline and only the seller may
	// close it.
	Manual bool
}

// AtHeight returns a close condition at the given block height.
func AtHeight(h uint64) Expiration { return Expiration{Height: h} }

// AtTime returns a close condition at the given time.
func AtTime(t time.Time) Expiration { return Expiration{Time: t} }

// BySeller returns a close condition with no deadline, triggered by the seller.
func BySeller() Expiration { return Expiration{Manual: true} }

// IsExpired reports whether the condition has been reached. A seller-closed
// auction never expires on its own.
func (e Expiration) IsExpired(now time.Time, height uint64) bool {
	switch {
	case e.Manual:
		return false
	case e.Height > 0:
		return height >= e.Height
	case !e.Time.IsZero():
		return !now.Before(e.Time)
	}
	return false
}

// Validate checks that the condition is well formed and, for deadline
// conditions, strictly in the future.
func (e Expiration) Validate(now time.Time, height uint64) error {
	set := 0
	if e.Manual {
		set++
	}
	if e.Height > 0 {
		set++
	}
	if !e.Time.IsZero() {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%w: exactly one close condition must be set", ErrInvalidParams)
	}
	if e.Height > 0 && e.Height <= height {
		return fmt.Errorf("%w: close height %d is not in the future (current %d)", ErrInvalidParams, e.Height, height)
	}
	if !e.Time.IsZero() && !e.Time.After(now) {
		return fmt.Errorf("%w: close time %s is not in the future", ErrInvalidParams, e.Time.Format(time.RFC3339))
	}
	return nil
}

// String renders the condition for logs and API responses.
func (e Expiration) String() string {
	switch {
	case e.Manual:
		return "by_seller"
	case e.Height > 0:
		return fmt.Sprintf("at_height:%d", e.Height)
	case !e.Time.IsZero():
		return "at_time:" + e.Time.UTC().Format(time.RFC3339)
	}
	return "unset"
}
