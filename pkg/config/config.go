// Package config provides configuration loading and management for galsynth.
// It handles loading configuration from YAML files and provides default
// values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"galsynth/internal/cosmo"
	"galsynth/pkg/background"
	"galsynth/pkg/fov"
	"galsynth/pkg/noise"
)

// TileRef points at one background mosaic file and its calibration.
type TileRef struct {
	// Path is the FITS file holding the mosaic.
	Path string `yaml:"path"`

	// ZeroPoint is the AB zero point calibrating the tile counts.
	ZeroPoint float64 `yaml:"zeroPoint"`
}

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Cosmology parameters; distances are derived from these once per
	// run by the cosmology collaborator.
	Cosmology struct {
		Redshift float64 `yaml:"redshift"`
		H0       float64 `yaml:"h0"`
		OmegaM   float64 `yaml:"omegaM"`
		OmegaV   float64 `yaml:"omegaV"`
	} `yaml:"cosmology"`

	// Telescope describes the instrument being emulated.
	Telescope struct {
		PSFFWHMArcsec    float64 `yaml:"psfFwhmArcsec"`
		PixelScaleArcsec float64 `yaml:"pixelScaleArcsec"`
	} `yaml:"telescope"`

	// Realism parameters.
	Realism struct {
		// SNLimit calibrates the sky noise; SkySigma, when positive,
		// overrides the derivation.
		SNLimit  float64 `yaml:"snLimit"`
		SkySigma float64 `yaml:"skySigma"`

		// RandomSeed seeds both the noise draw and the background
		// placement.
		RandomSeed uint64 `yaml:"randomSeed"`

		// PetrosianScaleConstant and CanonicalPixelCount define the
		// normalized output grid.
		PetrosianScaleConstant float64 `yaml:"petrosianScaleConstant"`
		CanonicalPixelCount    int     `yaml:"canonicalPixelCount"`

		// PetrosianRadiusKpc, when positive, bypasses the radius
		// estimation entirely.
		PetrosianRadiusKpc float64 `yaml:"petrosianRadiusKpc"`

		// FixedSeed accepts the first background draw unconditionally
		// instead of running the adaptive acceptance loop.
		FixedSeed bool `yaml:"fixedSeed"`

		// OverflowTolerance and MaxBackgroundAttempts parameterize
		// the adaptive loop.
		OverflowTolerance     float64 `yaml:"overflowTolerance"`
		MaxBackgroundAttempts int     `yaml:"maxBackgroundAttempts"`
	} `yaml:"realism"`

	// Stages toggles individual pipeline stages.
	Stages struct {
		PSF           bool `yaml:"psf"`
		Rebin         bool `yaml:"rebin"`
		Noise         bool `yaml:"noise"`
		FOVResize     bool `yaml:"fovResize"`
		Background    bool `yaml:"background"`
		RebinToTarget bool `yaml:"rebinToTarget"`
	} `yaml:"stages"`

	// Backgrounds maps a photometric band name to its sky mosaic.
	Backgrounds map[string]TileRef `yaml:"backgrounds"`

	// Output parameters.
	Output struct {
		// Verbose controls the level of logging output.
		Verbose bool `yaml:"verbose"`

		// ProfilePlot, when set, is where the Petrosian ratio curve
		// diagnostic PNG is written.
		ProfilePlot string `yaml:"profilePlot"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Cosmology.Redshift = 0.05
	cfg.Cosmology.H0 = cosmo.DefaultH0
	cfg.Cosmology.OmegaM = cosmo.DefaultOmegaM
	cfg.Cosmology.OmegaV = cosmo.DefaultOmegaV

	cfg.Telescope.PSFFWHMArcsec = 1.0
	cfg.Telescope.PixelScaleArcsec = 0.24

	cfg.Realism.SNLimit = noise.DefaultSNLimit
	cfg.Realism.RandomSeed = 12345
	cfg.Realism.PetrosianScaleConstant = fov.DefaultScaleConstant
	cfg.Realism.CanonicalPixelCount = fov.DefaultTargetPixels
	cfg.Realism.OverflowTolerance = background.DefaultOverflowTolerance
	cfg.Realism.MaxBackgroundAttempts = background.DefaultMaxAttempts

	cfg.Stages.PSF = true
	cfg.Stages.Rebin = true
	cfg.Stages.Noise = true
	cfg.Stages.FOVResize = true
	cfg.Stages.Background = true

	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
