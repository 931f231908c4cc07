package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/throttle/pkg/clock"
)

func TestParseSettings(t *testing.T) {
	t.Parallel()

	t.Run("full document", func(t *testing.T) {
		t.Parallel()
		data := []byte(`
bandwidths:
  - capacity: 100
    period: 1m
  - capacity: 10
    period: 1s
    initial_tokens: 3
  - capacity: 5
    period: 1h
    guaranteed: true
`)
		s, err := ParseSettings(data)
		require.NoError(t, err)
		require.Len(t, s.Bandwidths, 3)

		assert.Equal(t, int64(100), s.Bandwidths[0].Capacity)
		assert.Equal(t, time.Minute, s.Bandwidths[0].Period)
		assert.Nil(t, s.Bandwidths[0].InitialTokens)

		require.NotNil(t, s.Bandwidths[1].InitialTokens)
		assert.Equal(t, int64(3), *s.Bandwidths[1].InitialTokens)

		assert.True(t, s.Bandwidths[2].Guaranteed)
		assert.Equal(t, time.Hour, s.Bandwidths[2].Period)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()
		_, err := ParseSettings([]byte("bandwidths: ["))
		assert.ErrorIs(t, err, ErrParseSettings)
	})

	t.Run("unparseable period", func(t *testing.T) {
		t.Parallel()
		_, err := ParseSettings([]byte("bandwidths:\n  - capacity: 10\n    period: soon\n"))
		assert.ErrorIs(t, err, ErrParseSettings)
	})
}

func TestSettings_Build(t *testing.T) {
	t.Parallel()

	clk := clock.NewManualClock(0)

	t.Run("produces a working configuration", func(t *testing.T) {
		t.Parallel()
		initial := int64(2)
		s := Settings{Bandwidths: []BandwidthSettings{
			{Capacity: 100, Period: time.Minute},
			{Capacity: 10, Period: time.Second, InitialTokens: &initial},
		}}

		cfg, err := s.Build(clk)
		require.NoError(t, err)
		require.Equal(t, 2, cfg.Len())

		bucket := cfg.NewBucket()
		assert.Equal(t, int64(2), bucket.Available())
	})

	t.Run("constructor validation applies", func(t *testing.T) {
		t.Parallel()
		s := Settings{Bandwidths: []BandwidthSettings{
			{Capacity: 0, Period: time.Minute},
		}}
		_, err := s.Build(clk)
		require.ErrorIs(t, err, ErrInvalidCapacity)
		assert.Contains(t, err.Error(), "bandwidth 0")
	})

	t.Run("cross validation applies", func(t *testing.T) {
		t.Parallel()
		s := Settings{Bandwidths: []BandwidthSettings{
			{Capacity: 999, Period: 10 * time.Minute},
			{Capacity: 998, Period: 11 * time.Minute},
		}}
		_, err := s.Build(clk)
		assert.ErrorIs(t, err, ErrOverlappingBandwidths)
	})

	t.Run("requires a clock", func(t *testing.T) {
		t.Parallel()
		s := Settings{Bandwidths: []BandwidthSettings{
			{Capacity: 10, Period: time.Second},
		}}
		_, err := s.Build(nil)
		assert.ErrorIs(t, err, ErrMissingClock)
	})
}

func TestLoadSettings(t *testing.T) {
	t.Run("limited only", func(t *testing.T) {
		t.Setenv("THROTTLE_CAPACITY", "100")
		t.Setenv("THROTTLE_PERIOD", "1m")

		s, err := LoadSettings()
		require.NoError(t, err)
		require.Len(t, s.Bandwidths, 1)
		assert.Equal(t, int64(100), s.Bandwidths[0].Capacity)
		assert.Equal(t, time.Minute, s.Bandwidths[0].Period)
		assert.Nil(t, s.Bandwidths[0].InitialTokens)
	})

	t.Run("with initial tokens and guaranteed", func(t *testing.T) {
		t.Setenv("THROTTLE_CAPACITY", "100")
		t.Setenv("THROTTLE_PERIOD", "1m")
		t.Setenv("THROTTLE_INITIAL_TOKENS", "0")
		t.Setenv("THROTTLE_GUARANTEED_CAPACITY", "10")
		t.Setenv("THROTTLE_GUARANTEED_PERIOD", "1m")

		s, err := LoadSettings()
		require.NoError(t, err)
		require.Len(t, s.Bandwidths, 2)

		require.NotNil(t, s.Bandwidths[0].InitialTokens)
		assert.Equal(t, int64(0), *s.Bandwidths[0].InitialTokens)

		assert.True(t, s.Bandwidths[1].Guaranteed)
		assert.Equal(t, int64(10), s.Bandwidths[1].Capacity)

		cfg, err := s.Build(clock.NewManualClock(0))
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Len())
	})

	t.Run("missing required capacity", func(t *testing.T) {
		// No THROTTLE_CAPACITY in the environment.
		_, err := LoadSettings()
		assert.ErrorIs(t, err, ErrParseSettings)
	})
}
