// Package throttle provides an in-process token-bucket rate limiter with
// multiple simultaneous rate constraints, bounded-wait consumption, and a
// pluggable time source.
//
// A bucket is configured from one or more bandwidths. Limited bandwidths
// gate grants: a request for n tokens succeeds only when every limited
// bandwidth can supply n. An optional guaranteed bandwidth never blocks a
// grant; it caps how long bounded-wait callers can be made to wait, so
// interacting limited bandwidths cannot starve them.
//
// # Basic Usage
//
// Declare bandwidths, validate them through the builder, and consume:
//
//	clk := clock.NewSystemClock()
//
//	perMinute, err := throttle.LimitedBandwidth(100, time.Minute)
//	if err != nil {
//		log.Fatal(err)
//	}
//	perSecond, err := throttle.LimitedBandwidth(10, time.Second)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	builder, err := throttle.NewBuilder(clk)
//	if err != nil {
//		log.Fatal(err)
//	}
//	cfg, err := builder.AddBandwidth(perMinute).AddBandwidth(perSecond).Build()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	bucket := cfg.NewBucket()
//
//	ok, err := bucket.TryConsume(1)
//	if err != nil {
//		return err
//	}
//	if !ok {
//		// Denied; the caller decides whether to retry.
//	}
//
// Build rejects inconsistent sets eagerly: a missing limited bandwidth, a
// second guaranteed bandwidth, a guaranteed rate above a limited rate, or
// two fixed-capacity limited bandwidths whose periods share a granularity
// (their combined refill schedule would be ambiguous).
//
// # Consumption Protocol
//
// Every operation lazily refills all bandwidths, then decides:
//
//	bucket.TryConsume(n)                 // immediate grant or deny
//	bucket.TryConsumeWithWait(n, maxWait) // waits when the grant is near enough
//	bucket.TryConsumeSingle(maxWait)      // one token, bounded wait
//	bucket.Consume(ctx, n)                // blocks until granted or ctx ends
//	bucket.ConsumeUpTo(limit)             // takes whatever is available now
//
// Refill arithmetic is exact: the last-refill timestamp advances only by the
// nanoseconds the generated whole tokens account for, so fractional
// remainders carry into the next call and no throughput is lost to rounding.
//
// # Dynamic Capacity
//
// A bandwidth's ceiling can be resolved at refill time instead of fixed at
// configuration time:
//
//	adjuster := throttle.CapacityAdjusterFunc(func(nowNanos int64) int64 {
//		return currentPlanLimit()
//	})
//	bw, err := throttle.DynamicLimitedBandwidth(adjuster, time.Minute)
//
// # Declarative Settings
//
// Bandwidth sets can come from YAML or THROTTLE_* environment variables and
// are validated by the same builder:
//
//	settings, err := throttle.ParseSettings(data)
//	if err != nil {
//		return err
//	}
//	cfg, err := settings.Build(clk)
//
// # Per-Key Buckets and HTTP Middleware
//
// One bucket throttles one subject. Services limiting many subjects use the
// registry, which creates buckets lazily and sweeps idle ones:
//
//	reg := throttle.NewRegistry(cfg)
//	defer reg.Close()
//
//	keyFunc := func(r *http.Request) string { return r.RemoteAddr }
//	handler := throttle.Middleware(reg, keyFunc)(mux)
//
// The middleware sets X-RateLimit-Limit, X-RateLimit-Remaining and
// Retry-After headers and fails open on internal errors.
//
// # Time and Testing
//
// The clock is explicit everywhere; nothing reads the system time ambiently.
// Tests drive a clock.ManualClock so refill behavior is deterministic, and
// because ManualClock advances its own time when slept on, bounded-wait
// operations complete without real delays.
//
// # Errors
//
// All failures are synchronous programmer errors, detected eagerly and
// comparable with errors.Is; runtime token exhaustion is a deny, not an
// error:
//
//	if errors.Is(err, throttle.ErrInvalidCapacity) { ... }
//	if errors.Is(err, throttle.ErrOverlappingBandwidths) { ... }
//
// # Thread Safety
//
// A bucket serializes every refill-then-deduct sequence behind one mutex, so
// concurrent callers always observe a consistent counter snapshot across the
// whole bandwidth set. Configurations are immutable and safely shared;
// suspension for bounded waits happens outside the critical section.
package throttle
