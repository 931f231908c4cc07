package throttle

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/throttle/pkg/clock"
)

// BandwidthSettings is the declarative form of one bandwidth definition.
// Dynamic capacities cannot be declared this way; wire adjusters through the
// builder in code.
type BandwidthSettings struct {
	Capacity      int64         `yaml:"capacity"`
	Period        time.Duration `yaml:"period"`
	InitialTokens *int64        `yaml:"initial_tokens,omitempty"`
	Guaranteed    bool          `yaml:"guaranteed,omitempty"`
}

// UnmarshalYAML decodes the period from the human-readable duration syntax
// ("500ms", "1m30s") instead of raw nanoseconds.
func (s *BandwidthSettings) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Capacity      int64  `yaml:"capacity"`
		Period        string `yaml:"period"`
		InitialTokens *int64 `yaml:"initial_tokens"`
		Guaranteed    bool   `yaml:"guaranteed"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	period, err := time.ParseDuration(raw.Period)
	if err != nil {
		return fmt.Errorf("%w: period %q: %v", ErrParseSettings, raw.Period, err)
	}

	*s = BandwidthSettings{
		Capacity:      raw.Capacity,
		Period:        period,
		InitialTokens: raw.InitialTokens,
		Guaranteed:    raw.Guaranteed,
	}
	return nil
}

// Settings declares a full bandwidth set. It funnels through the builder in
// Build, so declarative input gets exactly the same validation as code.
type Settings struct {
	Bandwidths []BandwidthSettings `yaml:"bandwidths"`
}

// ParseSettings decodes a YAML document:
//
//	bandwidths:
//	  - capacity: 100
//	    period: 1m
//	  - capacity: 10
//	    period: 1s
//	    guaranteed: true
func ParseSettings(data []byte) (Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, errors.Join(ErrParseSettings, err)
	}
	return s, nil
}

// envSettings is the deployment shape most services need: one limited
// bandwidth plus an optional guaranteed one.
type envSettings struct {
	Capacity           int64         `env:"THROTTLE_CAPACITY,required"`
	Period             time.Duration `env:"THROTTLE_PERIOD" envDefault:"1s"`
	InitialTokens      int64         `env:"THROTTLE_INITIAL_TOKENS" envDefault:"-1"`
	GuaranteedCapacity int64         `env:"THROTTLE_GUARANTEED_CAPACITY" envDefault:"0"`
	GuaranteedPeriod   time.Duration `env:"THROTTLE_GUARANTEED_PERIOD" envDefault:"1s"`
}

// LoadSettings reads THROTTLE_* environment variables, loading a .env file
// first when one exists. THROTTLE_INITIAL_TOKENS below zero means "start
// full"; THROTTLE_GUARANTEED_CAPACITY of zero means no guaranteed bandwidth.
func LoadSettings() (Settings, error) {
	// The .env file is optional; a missing one is not an error.
	_ = godotenv.Load()

	var raw envSettings
	if err := env.Parse(&raw); err != nil {
		return Settings{}, errors.Join(ErrParseSettings, err)
	}

	limited := BandwidthSettings{
		Capacity: raw.Capacity,
		Period:   raw.Period,
	}
	if raw.InitialTokens >= 0 {
		limited.InitialTokens = &raw.InitialTokens
	}

	s := Settings{Bandwidths: []BandwidthSettings{limited}}
	if raw.GuaranteedCapacity > 0 {
		s.Bandwidths = append(s.Bandwidths, BandwidthSettings{
			Capacity:   raw.GuaranteedCapacity,
			Period:     raw.GuaranteedPeriod,
			Guaranteed: true,
		})
	}
	return s, nil
}

// Build turns the declared bandwidths into a validated configuration.
func (s Settings) Build(clk clock.Clock) (*Config, error) {
	builder, err := NewBuilder(clk)
	if err != nil {
		return nil, err
	}

	for i, bs := range s.Bandwidths {
		var opts []BandwidthOption
		if bs.InitialTokens != nil {
			opts = append(opts, WithInitialTokens(*bs.InitialTokens))
		}

		var (
			bw     Bandwidth
			bwErr  error
			create = LimitedBandwidth
		)
		if bs.Guaranteed {
			create = GuaranteedBandwidth
		}
		bw, bwErr = create(bs.Capacity, bs.Period, opts...)
		if bwErr != nil {
			return nil, fmt.Errorf("bandwidth %d: %w", i, bwErr)
		}
		builder.AddBandwidth(bw)
	}

	return builder.Build()
}
