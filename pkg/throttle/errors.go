package throttle

import "errors"

// Package-level error definitions. Every error is raised synchronously from
// malformed configuration or call arguments; insufficient tokens at runtime
// is reported as a deny, never as an error.
var (
	// ErrInvalidCapacity indicates a fixed bandwidth capacity that is not positive.
	ErrInvalidCapacity = errors.New("capacity must be positive")

	// ErrInvalidInitialTokens indicates a negative initial token count.
	ErrInvalidInitialTokens = errors.New("initial tokens must not be negative")

	// ErrInvalidPeriod indicates a refill period that is not positive.
	ErrInvalidPeriod = errors.New("period must be positive")

	// ErrMissingAdjuster indicates a dynamic bandwidth constructed without a capacity adjuster.
	ErrMissingAdjuster = errors.New("capacity adjuster is required")

	// ErrMissingClock indicates a builder constructed without a clock.
	ErrMissingClock = errors.New("clock is required")

	// ErrNoLimitedBandwidth indicates a configuration without a single limited bandwidth.
	ErrNoLimitedBandwidth = errors.New("at least one limited bandwidth is required")

	// ErrDuplicateGuaranteed indicates more than one guaranteed bandwidth in a configuration.
	ErrDuplicateGuaranteed = errors.New("only one guaranteed bandwidth is allowed")

	// ErrGuaranteedExceedsLimited indicates a guaranteed rate faster than a limited rate.
	ErrGuaranteedExceedsLimited = errors.New("guaranteed rate exceeds limited rate")

	// ErrOverlappingBandwidths indicates two fixed-capacity limited bandwidths
	// whose periods share a refill granularity.
	ErrOverlappingBandwidths = errors.New("limited bandwidths share a refill granularity")

	// ErrInvalidTokenCount indicates a consumption request for a non-positive token count.
	ErrInvalidTokenCount = errors.New("token count must be positive")

	// ErrInvalidWaitTime indicates a non-positive maximum wait.
	ErrInvalidWaitTime = errors.New("wait time must be positive")

	// ErrParseSettings indicates declarative settings that could not be decoded.
	ErrParseSettings = errors.New("failed to parse throttle settings")
)
