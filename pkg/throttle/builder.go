package throttle

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/dmitrymomot/throttle/pkg/clock"
)

// Builder accumulates bandwidth definitions in declaration order and
// validates the whole set as a unit. A Builder is not safe for concurrent
// use; the Config it produces is.
type Builder struct {
	clk        clock.Clock
	bandwidths []Bandwidth
}

// NewBuilder creates a builder bound to the given clock. The clock is
// required up front because every bucket built from the resulting
// configuration reads it.
func NewBuilder(clk clock.Clock) (*Builder, error) {
	if clk == nil {
		return nil, ErrMissingClock
	}
	return &Builder{clk: clk}, nil
}

// AddBandwidth appends a bandwidth definition. Order is preserved and
// observable: build errors identify definitions by index.
func (b *Builder) AddBandwidth(bw Bandwidth) *Builder {
	b.bandwidths = append(b.bandwidths, bw)
	return b
}

// Build validates the accumulated definitions and returns an immutable
// configuration. Validation fails fast on the first violation:
//
//  1. at least one limited bandwidth must exist;
//  2. at most one guaranteed bandwidth is allowed;
//  3. a fixed guaranteed rate must not exceed any fixed limited rate;
//  4. no two fixed-capacity limited bandwidths may share a period granularity,
//     since their combined refill schedule would be ambiguous.
//
// Checks 3 and 4 are skipped for dynamic-capacity participants, whose
// effective rate is unknowable until runtime.
func (b *Builder) Build() (*Config, error) {
	hasLimited := false
	for _, bw := range b.bandwidths {
		if !bw.guaranteed {
			hasLimited = true
			break
		}
	}
	if !hasLimited {
		return nil, ErrNoLimitedBandwidth
	}

	guaranteedIdx := -1
	for i, bw := range b.bandwidths {
		if !bw.guaranteed {
			continue
		}
		if guaranteedIdx >= 0 {
			return nil, fmt.Errorf("%w: definitions %d and %d", ErrDuplicateGuaranteed, guaranteedIdx, i)
		}
		guaranteedIdx = i
	}

	if guaranteedIdx >= 0 && !b.bandwidths[guaranteedIdx].IsDynamic() {
		g := b.bandwidths[guaranteedIdx]
		for i, bw := range b.bandwidths {
			if bw.guaranteed || bw.IsDynamic() {
				continue
			}
			if rateGreater(g.capacity, g.period, bw.capacity, bw.period) {
				return nil, fmt.Errorf("%w: guaranteed definition %d (%s) vs limited definition %d (%s)",
					ErrGuaranteedExceedsLimited, guaranteedIdx, g, i, bw)
			}
		}
	}

	for i := 0; i < len(b.bandwidths); i++ {
		first := b.bandwidths[i]
		if first.guaranteed || first.IsDynamic() {
			continue
		}
		for j := i + 1; j < len(b.bandwidths); j++ {
			second := b.bandwidths[j]
			if second.guaranteed || second.IsDynamic() {
				continue
			}
			if periodGranularity(first.period) == periodGranularity(second.period) {
				return nil, fmt.Errorf("%w: definitions %d (%s) and %d (%s)",
					ErrOverlappingBandwidths, i, first, j, second)
			}
		}
	}

	bandwidths := make([]Bandwidth, len(b.bandwidths))
	copy(bandwidths, b.bandwidths)

	return &Config{clk: b.clk, bandwidths: bandwidths}, nil
}

// rateGreater reports whether c1/p1 > c2/p2 without losing precision:
// the cross products are compared in 128 bits.
func rateGreater(c1 int64, p1 time.Duration, c2 int64, p2 time.Duration) bool {
	hi1, lo1 := bits.Mul64(uint64(c1), uint64(p2))
	hi2, lo2 := bits.Mul64(uint64(c2), uint64(p1))
	if hi1 != hi2 {
		return hi1 > hi2
	}
	return lo1 > lo2
}

// periodGranularity returns the largest standard time unit that evenly
// divides the period. Two limited bandwidths refilling on the same
// granularity are considered overlapping regardless of their numeric rates.
func periodGranularity(p time.Duration) time.Duration {
	for _, unit := range []time.Duration{
		time.Hour,
		time.Minute,
		time.Second,
		time.Millisecond,
		time.Microsecond,
	} {
		if p%unit == 0 {
			return unit
		}
	}
	return time.Nanosecond
}

// Config is an ordered, validated, immutable set of bandwidth definitions.
// It is safe to share across goroutines and to build any number of buckets
// from.
type Config struct {
	clk        clock.Clock
	bandwidths []Bandwidth
}

// Len returns the number of bandwidth definitions.
func (c *Config) Len() int {
	return len(c.bandwidths)
}

// BandwidthAt returns the definition at the given declaration index,
// for diagnostics.
func (c *Config) BandwidthAt(i int) Bandwidth {
	return c.bandwidths[i]
}
