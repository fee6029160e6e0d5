package privacy

import (
	"time"

	"github.com/spf13/viper"
)

// Configuration keys understood by LoadConfig
const (
	ConfigKeyTimingBaseDelay        = "privacy.timing.base_delay"
	ConfigKeyTimingMaxJitter        = "privacy.timing.max_jitter"
	ConfigKeyExportIterations       = "privacy.key_export.iterations"
	ConfigKeyExportMinIterations    = "privacy.key_export.min_iterations"
	ConfigKeyEscrowVotingWindow     = "privacy.escrow.voting_window"
	ConfigKeyEscrowMaxVotingWindow  = "privacy.escrow.max_voting_window"
	ConfigKeyCurveGeneratorAttempts = "privacy.curve.generator_attempts"
)

// Default configuration values
const (
	DefaultTimingBaseDelay        = 2 * time.Millisecond
	DefaultTimingMaxJitter        = 3 * time.Millisecond
	DefaultExportIterations       = 600000
	DefaultExportMinIterations    = 210000
	DefaultEscrowVotingWindow     = 72 * time.Hour
	DefaultEscrowMaxVotingWindow  = 30 * 24 * time.Hour
	DefaultCurveGeneratorAttempts = 4096

	// hard floor for key export; configuration cannot go below it
	absoluteMinExportIterations = 10000
)

// Config holds the tunables of the privacy layer
type Config struct {
	Timing    TimingPolicy    `json:"timing"`
	KeyExport KeyExportConfig `json:"key_export"`
	Escrow    EscrowConfig    `json:"escrow"`
	Curve     CurveConfig     `json:"curve"`
}

// KeyExportConfig controls password-based key wrapping
type KeyExportConfig struct {
	Iterations    int `json:"iterations"`
	MinIterations int `json:"min_iterations"`
}

// EscrowConfig controls the reconstruction voting window
type EscrowConfig struct {
	VotingWindow    time.Duration `json:"voting_window"`
	MaxVotingWindow time.Duration `json:"max_voting_window"`
}

// CurveConfig controls generator derivation
type CurveConfig struct {
	MaxGeneratorAttempts int `json:"max_generator_attempts"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() *Config {
	return &Config{
		Timing: TimingPolicy{
			BaseDelay: DefaultTimingBaseDelay,
			MaxJitter: DefaultTimingMaxJitter,
		},
		KeyExport: KeyExportConfig{
			Iterations:    DefaultExportIterations,
			MinIterations: DefaultExportMinIterations,
		},
		Escrow: EscrowConfig{
			VotingWindow:    DefaultEscrowVotingWindow,
			MaxVotingWindow: DefaultEscrowMaxVotingWindow,
		},
		Curve: CurveConfig{
			MaxGeneratorAttempts: DefaultCurveGeneratorAttempts,
		},
	}
}

// SetDefaults registers DefaultConfig on a viper instance
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault(ConfigKeyTimingBaseDelay, d.Timing.BaseDelay)
	v.SetDefault(ConfigKeyTimingMaxJitter, d.Timing.MaxJitter)
	v.SetDefault(ConfigKeyExportIterations, d.KeyExport.Iterations)
	v.SetDefault(ConfigKeyExportMinIterations, d.KeyExport.MinIterations)
	v.SetDefault(ConfigKeyEscrowVotingWindow, d.Escrow.VotingWindow)
	v.SetDefault(ConfigKeyEscrowMaxVotingWindow, d.Escrow.MaxVotingWindow)
	v.SetDefault(ConfigKeyCurveGeneratorAttempts, d.Curve.MaxGeneratorAttempts)
}

// LoadConfig reads the privacy section from v, filling gaps with defaults,
// and validates the result
func LoadConfig(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	cfg := &Config{
		Timing: TimingPolicy{
			BaseDelay: v.GetDuration(ConfigKeyTimingBaseDelay),
			MaxJitter: v.GetDuration(ConfigKeyTimingMaxJitter),
		},
		KeyExport: KeyExportConfig{
			Iterations:    v.GetInt(ConfigKeyExportIterations),
			MinIterations: v.GetInt(ConfigKeyExportMinIterations),
		},
		Escrow: EscrowConfig{
			VotingWindow:    v.GetDuration(ConfigKeyEscrowVotingWindow),
			MaxVotingWindow: v.GetDuration(ConfigKeyEscrowMaxVotingWindow),
		},
		Curve: CurveConfig{
			MaxGeneratorAttempts: v.GetInt(ConfigKeyCurveGeneratorAttempts),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile reads a config file (any format viper understands)
func LoadConfigFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, ErrInvalidConfig.WithDetails("reading %s", path).WithCause(err)
	}
	return LoadConfig(v)
}

// Validate checks internal consistency
func (c *Config) Validate() error {
	if c.Timing.BaseDelay < 0 || c.Timing.MaxJitter < 0 {
		return ErrInvalidConfig.WithDetails("timing delays must be non-negative")
	}
	if c.KeyExport.MinIterations < absoluteMinExportIterations {
		return ErrInvalidConfig.WithDetails("key export minimum iterations %d below floor %d",
			c.KeyExport.MinIterations, absoluteMinExportIterations)
	}
	if c.KeyExport.Iterations < c.KeyExport.MinIterations {
		return ErrInvalidConfig.WithDetails("key export iterations %d below configured minimum %d",
			c.KeyExport.Iterations, c.KeyExport.MinIterations)
	}
	if c.Escrow.VotingWindow <= 0 {
		return ErrInvalidConfig.WithDetails("voting window must be positive")
	}
	if c.Escrow.MaxVotingWindow < c.Escrow.VotingWindow {
		return ErrInvalidConfig.WithDetails("voting window %s exceeds maximum %s",
			c.Escrow.VotingWindow, c.Escrow.MaxVotingWindow)
	}
	if c.Curve.MaxGeneratorAttempts < MinGeneratorAttempts {
		return ErrInvalidConfig.WithDetails("generator attempts %d below minimum %d",
			c.Curve.MaxGeneratorAttempts, MinGeneratorAttempts)
	}
	return nil
}
