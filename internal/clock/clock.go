package clock

import "time"

// Clock abstracts time and chain-height observation for testability.
// Height is the external block height the service tracks for height-based
// auction expiry; deployments without a height source report 0.
type Clock interface {
	Now() time.Time
	Height() uint64
}

// Real is a Clock backed by the system clock and an optional height source.
type Real struct {
	// HeightFn reports the current height. Nil means no height source.
	HeightFn func() uint64
}

// Now returns the current time.
func (r Real) Now() time.Time { return time.Now() }

// Height returns the current height, or 0 without a height source.
func (r Real) Height() uint64 {
	if r.HeightFn == nil {
		return 0
	}
	return r.HeightFn()
}

// Mock is a Clock that always returns a fixed time and height.
type Mock struct {
	T time.Time
	H uint64
}

// Now returns the fixed time.
func (m Mock) Now() time.Time { return m.T }

// Height returns the fixed height.
func (m Mock) Height() uint64 { return m.H }
