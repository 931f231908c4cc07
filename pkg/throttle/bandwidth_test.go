package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitedBandwidth_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		capacity    int64
		period      time.Duration
		opts        []BandwidthOption
		expectError error
	}{
		{
			name:        "zero capacity",
			capacity:    0,
			period:      time.Second,
			expectError: ErrInvalidCapacity,
		},
		{
			name:        "negative capacity",
			capacity:    -5,
			period:      time.Second,
			expectError: ErrInvalidCapacity,
		},
		{
			name:        "zero period",
			capacity:    10,
			period:      0,
			expectError: ErrInvalidPeriod,
		},
		{
			name:        "negative period",
			capacity:    10,
			period:      -time.Second,
			expectError: ErrInvalidPeriod,
		},
		{
			name:        "negative initial tokens",
			capacity:    10,
			period:      time.Second,
			opts:        []BandwidthOption{WithInitialTokens(-1)},
			expectError: ErrInvalidInitialTokens,
		},
		{
			name:     "valid",
			capacity: 10,
			period:   time.Second,
		},
		{
			name:     "valid with zero initial tokens",
			capacity: 10,
			period:   time.Second,
			opts:     []BandwidthOption{WithInitialTokens(0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			bw, err := LimitedBandwidth(tt.capacity, tt.period, tt.opts...)
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.capacity, bw.Capacity())
			assert.Equal(t, tt.period, bw.Period())
			assert.False(t, bw.IsGuaranteed())
			assert.False(t, bw.IsDynamic())
		})
	}
}

func TestGuaranteedBandwidth_Validation(t *testing.T) {
	t.Parallel()

	t.Run("same validation as limited", func(t *testing.T) {
		t.Parallel()
		_, err := GuaranteedBandwidth(0, time.Second)
		assert.ErrorIs(t, err, ErrInvalidCapacity)
		_, err = GuaranteedBandwidth(10, 0)
		assert.ErrorIs(t, err, ErrInvalidPeriod)
		_, err = GuaranteedBandwidth(10, time.Second, WithInitialTokens(-3))
		assert.ErrorIs(t, err, ErrInvalidInitialTokens)
	})

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		bw, err := GuaranteedBandwidth(10, time.Second)
		require.NoError(t, err)
		assert.True(t, bw.IsGuaranteed())
	})
}

func TestDynamicBandwidth_Validation(t *testing.T) {
	t.Parallel()

	adjuster := CapacityAdjusterFunc(func(int64) int64 { return 100 })

	t.Run("nil adjuster limited", func(t *testing.T) {
		t.Parallel()
		_, err := DynamicLimitedBandwidth(nil, time.Second)
		assert.ErrorIs(t, err, ErrMissingAdjuster)
		assert.NotErrorIs(t, err, ErrInvalidCapacity, "missing adjuster must not be reported as a capacity problem")
	})

	t.Run("nil adjuster guaranteed", func(t *testing.T) {
		t.Parallel()
		_, err := DynamicGuaranteedBandwidth(nil, time.Second)
		assert.ErrorIs(t, err, ErrMissingAdjuster)
		assert.NotErrorIs(t, err, ErrInvalidCapacity, "missing adjuster must not be reported as a capacity problem")
	})

	t.Run("invalid period", func(t *testing.T) {
		t.Parallel()
		_, err := DynamicLimitedBandwidth(adjuster, -time.Minute)
		assert.ErrorIs(t, err, ErrInvalidPeriod)
	})

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		bw, err := DynamicLimitedBandwidth(adjuster, time.Second)
		require.NoError(t, err)
		assert.True(t, bw.IsDynamic())
		assert.Equal(t, int64(0), bw.Capacity())
	})
}

func TestBandwidth_ErrorCarriesOffendingValue(t *testing.T) {
	t.Parallel()

	_, err := LimitedBandwidth(-7, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-7")

	_, err = LimitedBandwidth(10, -2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-2")

	_, err = LimitedBandwidth(10, time.Second, WithInitialTokens(-9))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-9")
}

func TestBandwidth_InitialTokens(t *testing.T) {
	t.Parallel()

	bw, err := LimitedBandwidth(10, time.Second)
	require.NoError(t, err)
	_, set := bw.InitialTokens()
	assert.False(t, set)

	bw, err = LimitedBandwidth(10, time.Second, WithInitialTokens(3))
	require.NoError(t, err)
	initial, set := bw.InitialTokens()
	assert.True(t, set)
	assert.Equal(t, int64(3), initial)
}

func TestBandwidth_String(t *testing.T) {
	t.Parallel()

	bw, err := LimitedBandwidth(100, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "limited 100/1m0s", bw.String())

	bw, err = GuaranteedBandwidth(5, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "guaranteed 5/1s", bw.String())

	bw, err = DynamicLimitedBandwidth(CapacityAdjusterFunc(func(int64) int64 { return 1 }), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "limited dynamic/1s", bw.String())
}
