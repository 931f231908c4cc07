package throttle

import (
	"fmt"
	"time"
)

// CapacityAdjuster supplies the current ceiling for a bandwidth whose
// capacity varies at runtime. It is invoked on every refill of that
// bandwidth with the current clock reading. Implementations must return
// a positive capacity; a non-positive result is treated as 1.
type CapacityAdjuster interface {
	CurrentCapacity(nowNanos int64) int64
}

// CapacityAdjusterFunc adapts a plain function to the CapacityAdjuster interface.
type CapacityAdjusterFunc func(nowNanos int64) int64

func (f CapacityAdjusterFunc) CurrentCapacity(nowNanos int64) int64 {
	return f(nowNanos)
}

// Bandwidth is an immutable description of one rate constraint: a capacity
// (fixed or dynamically supplied) that regenerates over a period. Limited
// bandwidths gate grants; the guaranteed bandwidth only bounds how long a
// bounded-wait caller can be made to wait.
type Bandwidth struct {
	capacity   int64
	adjuster   CapacityAdjuster
	period     time.Duration
	initial    int64
	hasInitial bool
	guaranteed bool
}

// BandwidthOption configures optional bandwidth attributes.
type BandwidthOption func(*Bandwidth)

// WithInitialTokens sets the number of tokens present when a bucket is
// created. Without it a fresh bucket starts full.
func WithInitialTokens(n int64) BandwidthOption {
	return func(bw *Bandwidth) {
		bw.initial = n
		bw.hasInitial = true
	}
}

// LimitedBandwidth creates a fixed-capacity limited bandwidth: capacity
// tokens regenerate over period, and a grant requires every limited
// bandwidth to hold enough tokens.
func LimitedBandwidth(capacity int64, period time.Duration, opts ...BandwidthOption) (Bandwidth, error) {
	return newBandwidth(capacity, nil, period, false, opts)
}

// GuaranteedBandwidth creates a fixed-capacity guaranteed bandwidth. It never
// blocks a grant; it caps the wait time computed for bounded-wait operations
// so limited bandwidths cannot starve a caller indefinitely.
func GuaranteedBandwidth(capacity int64, period time.Duration, opts ...BandwidthOption) (Bandwidth, error) {
	return newBandwidth(capacity, nil, period, true, opts)
}

// DynamicLimitedBandwidth creates a limited bandwidth whose ceiling is
// resolved through the adjuster on every refill.
func DynamicLimitedBandwidth(adjuster CapacityAdjuster, period time.Duration, opts ...BandwidthOption) (Bandwidth, error) {
	if adjuster == nil {
		return Bandwidth{}, ErrMissingAdjuster
	}
	return newBandwidth(0, adjuster, period, false, opts)
}

// DynamicGuaranteedBandwidth creates a guaranteed bandwidth whose ceiling is
// resolved through the adjuster on every refill.
func DynamicGuaranteedBandwidth(adjuster CapacityAdjuster, period time.Duration, opts ...BandwidthOption) (Bandwidth, error) {
	if adjuster == nil {
		return Bandwidth{}, ErrMissingAdjuster
	}
	return newBandwidth(0, adjuster, period, true, opts)
}

func newBandwidth(capacity int64, adjuster CapacityAdjuster, period time.Duration, guaranteed bool, opts []BandwidthOption) (Bandwidth, error) {
	bw := Bandwidth{
		capacity:   capacity,
		adjuster:   adjuster,
		period:     period,
		guaranteed: guaranteed,
	}

	for _, opt := range opts {
		opt(&bw)
	}

	if bw.adjuster == nil && bw.capacity <= 0 {
		return Bandwidth{}, fmt.Errorf("%w: got %d", ErrInvalidCapacity, bw.capacity)
	}
	if bw.period <= 0 {
		return Bandwidth{}, fmt.Errorf("%w: got %dns", ErrInvalidPeriod, bw.period.Nanoseconds())
	}
	if bw.hasInitial && bw.initial < 0 {
		return Bandwidth{}, fmt.Errorf("%w: got %d", ErrInvalidInitialTokens, bw.initial)
	}

	return bw, nil
}

// Capacity returns the fixed ceiling, or 0 for dynamic bandwidths.
func (bw Bandwidth) Capacity() int64 {
	if bw.IsDynamic() {
		return 0
	}
	return bw.capacity
}

// IsDynamic reports whether the ceiling is supplied by a CapacityAdjuster.
func (bw Bandwidth) IsDynamic() bool {
	return bw.adjuster != nil
}

// Period returns the refill period.
func (bw Bandwidth) Period() time.Duration {
	return bw.period
}

// IsGuaranteed reports whether this bandwidth plays the guaranteed role.
func (bw Bandwidth) IsGuaranteed() bool {
	return bw.guaranteed
}

// InitialTokens returns the configured initial token count and whether one
// was set explicitly.
func (bw Bandwidth) InitialTokens() (int64, bool) {
	return bw.initial, bw.hasInitial
}

// capacityAt resolves the ceiling at the given timestamp. Adjusters are
// contractually required to return positive values; anything else is clamped
// to keep the refill arithmetic defined.
func (bw Bandwidth) capacityAt(nowNanos int64) int64 {
	if bw.adjuster == nil {
		return bw.capacity
	}
	if c := bw.adjuster.CurrentCapacity(nowNanos); c > 0 {
		return c
	}
	return 1
}

func (bw Bandwidth) String() string {
	role := "limited"
	if bw.guaranteed {
		role = "guaranteed"
	}
	if bw.IsDynamic() {
		return fmt.Sprintf("%s dynamic/%s", role, bw.period)
	}
	return fmt.Sprintf("%s %d/%s", role, bw.capacity, bw.period)
}
