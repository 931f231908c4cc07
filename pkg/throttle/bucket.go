package throttle

import (
	"context"
	"fmt"
	"math"
	"math/bits"
	"sync"
	"time"

	"github.com/dmitrymomot/throttle/pkg/clock"
)

// Bucket holds the runtime token state for one configuration: a token
// counter, a last-refill timestamp and a refill remainder per bandwidth.
// A single bucket is meant to be shared by many concurrent callers; one
// mutex guards all counters so every operation sees a consistent refill
// snapshot across the whole bandwidth set.
type Bucket struct {
	cfg *Config

	mu     sync.Mutex
	states []bandwidthState
}

type bandwidthState struct {
	tokens     int64
	lastRefill int64
	// remainder carries the credit below one whole token between refills,
	// in token-nanoseconds (always < period), so repeated small refills
	// lose no throughput to rounding.
	remainder int64
}

// NewBucket constructs a bucket from the configuration. Each bandwidth
// starts with its configured initial token count, or full when none was set.
func (c *Config) NewBucket() *Bucket {
	now := c.clk.Now()
	states := make([]bandwidthState, len(c.bandwidths))
	for i, bw := range c.bandwidths {
		tokens := bw.initial
		if !bw.hasInitial {
			tokens = bw.capacityAt(now)
		}
		states[i] = bandwidthState{tokens: tokens, lastRefill: now}
	}
	return &Bucket{cfg: c, states: states}
}

// TryConsume attempts to take n tokens immediately. It returns false without
// waiting when any limited bandwidth holds fewer than n tokens.
func (b *Bucket) TryConsume(n int64) (bool, error) {
	if n <= 0 {
		return false, fmt.Errorf("%w: got %d", ErrInvalidTokenCount, n)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(b.cfg.clk.Now())
	if !b.satisfiableLocked(n) {
		return false, nil
	}
	b.deductLocked(n)
	return true, nil
}

// TryConsumeWithWait attempts to take n tokens, waiting up to maxWait for
// them to become available. The grant time is the earliest instant at which
// every limited bandwidth holds n tokens, capped by the guaranteed
// bandwidth's rate when one is configured. If that instant lies beyond
// maxWait the call denies immediately without deducting anything; otherwise
// it suspends outside the lock until the grant time and then deducts.
func (b *Bucket) TryConsumeWithWait(n int64, maxWait time.Duration) (bool, error) {
	if n <= 0 {
		return false, fmt.Errorf("%w: got %d", ErrInvalidTokenCount, n)
	}
	if maxWait <= 0 {
		return false, fmt.Errorf("%w: got %dns", ErrInvalidWaitTime, maxWait.Nanoseconds())
	}

	b.mu.Lock()
	now := b.cfg.clk.Now()
	b.refillLocked(now)
	if b.satisfiableLocked(n) {
		b.deductLocked(n)
		b.mu.Unlock()
		return true, nil
	}

	wait := b.nanosToAvailableLocked(n, now)
	if wait > maxWait.Nanoseconds() {
		b.mu.Unlock()
		return false, nil
	}
	grantAt := satAdd(now, wait)
	b.mu.Unlock()

	// The grant is committed: suspension and re-checks happen outside the
	// critical section, and the deduction lands once the grant time passes
	// even if a concurrent caller drained the counters meanwhile.
	for {
		b.sleep(time.Duration(grantAt - now))

		b.mu.Lock()
		now = b.cfg.clk.Now()
		b.refillLocked(now)
		if now >= grantAt || b.satisfiableLocked(n) {
			b.deductLocked(n)
			b.mu.Unlock()
			return true, nil
		}
		b.mu.Unlock()
	}
}

// TryConsumeSingle is shorthand for TryConsumeWithWait(1, maxWait).
func (b *Bucket) TryConsumeSingle(maxWait time.Duration) (bool, error) {
	return b.TryConsumeWithWait(1, maxWait)
}

// Consume takes n tokens, blocking until every limited bandwidth can supply
// them. Cancellation is composed through the context; the bucket itself
// imposes no deadline.
func (b *Bucket) Consume(ctx context.Context, n int64) error {
	if n <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTokenCount, n)
	}

	for {
		b.mu.Lock()
		now := b.cfg.clk.Now()
		b.refillLocked(now)
		if b.satisfiableLocked(n) {
			b.deductLocked(n)
			b.mu.Unlock()
			return nil
		}
		wait := b.nanosToAvailableLocked(n, now)
		if wait == 0 {
			// The guaranteed bandwidth can supply the tokens right away.
			b.deductLocked(n)
			b.mu.Unlock()
			return nil
		}
		b.mu.Unlock()

		if err := b.sleepCtx(ctx, time.Duration(wait)); err != nil {
			return err
		}
	}
}

// ConsumeUpTo takes as many tokens as are available right now, up to limit,
// and returns the number taken. It may return zero.
func (b *Bucket) ConsumeUpTo(limit int64) (int64, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidTokenCount, limit)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(b.cfg.clk.Now())
	granted := min(limit, b.availableLocked())
	if granted > 0 {
		b.deductLocked(granted)
	}
	return granted, nil
}

// Available returns the number of tokens currently grantable: the minimum
// counter across limited bandwidths after a refill, floored at zero.
func (b *Bucket) Available() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(b.cfg.clk.Now())
	return b.availableLocked()
}

// EstimateWait returns how long a caller would have to wait before n tokens
// become grantable, without consuming anything. Zero means the tokens are
// available now.
func (b *Bucket) EstimateWait(n int64) (time.Duration, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidTokenCount, n)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.clk.Now()
	b.refillLocked(now)
	if b.satisfiableLocked(n) {
		return 0, nil
	}
	return time.Duration(b.nanosToAvailableLocked(n, now)), nil
}

// Capacity returns the smallest ceiling across limited bandwidths, resolving
// dynamic capacities at the current time. Useful for reporting limits to
// callers.
func (b *Bucket) Capacity() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.clk.Now()
	capacity := int64(math.MaxInt64)
	for _, bw := range b.cfg.bandwidths {
		if bw.guaranteed {
			continue
		}
		capacity = min(capacity, bw.capacityAt(now))
	}
	return capacity
}

// refillLocked lazily replenishes every bandwidth. The elapsed span earns
// elapsed*capacity token-nanoseconds of credit; whole tokens are taken out
// of the credit and the sub-token remainder is carried to the next refill,
// so successive calls lose nothing to rounding. Reaching capacity discards
// the remainder: a full bucket banks no credit.
func (b *Bucket) refillLocked(now int64) {
	for i := range b.states {
		bw := b.cfg.bandwidths[i]
		st := &b.states[i]

		elapsed := now - st.lastRefill
		if elapsed <= 0 {
			continue
		}
		st.lastRefill = now

		capacity := bw.capacityAt(now)
		period := uint64(bw.period.Nanoseconds())

		hi, lo := bits.Mul64(uint64(elapsed), uint64(capacity))
		var carry uint64
		lo, carry = bits.Add64(lo, uint64(st.remainder), 0)
		hi += carry

		if hi >= period {
			// Credit beyond any representable deficit; the bucket is full.
			st.tokens = capacity
			st.remainder = 0
			continue
		}

		generated64, rem := bits.Div64(hi, lo, period)
		generated := int64(math.MaxInt64)
		if generated64 < uint64(math.MaxInt64) {
			generated = int64(generated64)
		}

		tokens := satAdd(st.tokens, generated)
		if tokens >= capacity {
			st.tokens = capacity
			st.remainder = 0
			continue
		}
		st.tokens = tokens
		st.remainder = int64(rem)
	}
}

// satisfiableLocked reports whether every limited bandwidth holds n tokens.
// The guaranteed bandwidth never gates a grant.
func (b *Bucket) satisfiableLocked(n int64) bool {
	for i := range b.states {
		if b.cfg.bandwidths[i].guaranteed {
			continue
		}
		if b.states[i].tokens < n {
			return false
		}
	}
	return true
}

// availableLocked returns the minimum limited counter, floored at zero.
func (b *Bucket) availableLocked() int64 {
	available := int64(math.MaxInt64)
	for i := range b.states {
		if b.cfg.bandwidths[i].guaranteed {
			continue
		}
		available = min(available, b.states[i].tokens)
	}
	return max(available, 0)
}

// deductLocked removes n tokens from every bandwidth, guaranteed included.
// Counters may go negative: the guaranteed counter by design, limited
// counters only when a committed bounded-wait grant lands after concurrent
// callers drained them.
func (b *Bucket) deductLocked(n int64) {
	for i := range b.states {
		b.states[i].tokens = satSub(b.states[i].tokens, n)
	}
}

// nanosToAvailableLocked computes how long until every limited bandwidth can
// supply n tokens at its own rate, capped by the guaranteed bandwidth's rate
// when one exists. Dynamic capacities are resolved at now.
func (b *Bucket) nanosToAvailableLocked(n int64, now int64) int64 {
	var wait int64
	guaranteedIdx := -1
	for i := range b.states {
		bw := b.cfg.bandwidths[i]
		if bw.guaranteed {
			guaranteedIdx = i
			continue
		}
		deficit := n - b.states[i].tokens
		if deficit <= 0 {
			continue
		}
		wait = max(wait, nanosForDeficit(deficit, bw.period.Nanoseconds(), bw.capacityAt(now), b.states[i].remainder))
	}

	if guaranteedIdx >= 0 && wait > 0 {
		bw := b.cfg.bandwidths[guaranteedIdx]
		st := b.states[guaranteedIdx]
		bound := int64(0)
		if deficit := n - st.tokens; deficit > 0 {
			bound = nanosForDeficit(deficit, bw.period.Nanoseconds(), bw.capacityAt(now), st.remainder)
		}
		wait = min(wait, bound)
	}
	return wait
}

func (b *Bucket) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if s, ok := b.cfg.clk.(clock.Sleeper); ok {
		s.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (b *Bucket) sleepCtx(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	if s, ok := b.cfg.clk.(clock.Sleeper); ok {
		s.Sleep(d)
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// nanosForDeficit returns the nanoseconds needed to generate deficit tokens
// at capacity per period, after spending the banked remainder. The product
// is widened to 128 bits; results beyond int64 saturate.
func nanosForDeficit(deficit, periodNanos, capacity, remainder int64) int64 {
	hi, lo := bits.Mul64(uint64(deficit), uint64(periodNanos))
	var borrow uint64
	lo, borrow = bits.Sub64(lo, uint64(remainder), 0)
	hi -= borrow

	if hi >= uint64(capacity) {
		return math.MaxInt64
	}
	q, r := bits.Div64(hi, lo, uint64(capacity))
	if r > 0 {
		q++
	}
	if q > uint64(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(q)
}

func satAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func satSub(a, b int64) int64 {
	if b > 0 && a < math.MinInt64+b {
		return math.MinInt64
	}
	return a - b
}
