// Package clock abstracts the time source used by rate limiting code so
// time-dependent behavior can be tested deterministically.
//
// Production code uses SystemClock, which reads the process monotonic clock:
//
//	clk := clock.NewSystemClock()
//
// Tests use ManualClock and drive time explicitly:
//
//	clk := clock.NewManualClock(0)
//	clk.Advance(time.Second)
//
// ManualClock also implements Sleeper by advancing its own time, so code
// that would block on a real clock completes immediately under test.
package clock
