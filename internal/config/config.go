// Package config centralizes the compiler's tunable defaults, the same
// "one struct, one Default constructor" shape as the teacher's
// mml.ParserConfig, extended with optional YAML-file loading of named
// presets.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the handful of process-wide knobs the compiler needs
// beyond the dictionary (internal/dict): the sequence resolution and the
// defaults a channel starts with before any INSTRUMENTS entry or option
// touches it.
type Config struct {
	Resolution      int `yaml:"resolution"`
	DefaultVelocity int `yaml:"default_velocity"`
	DefaultOctave   int `yaml:"default_octave"`
	IncludeBasePath string `yaml:"include_base_path"`
}

// Default returns the spec's documented defaults: resolution 480 ticks
// per quarter, velocity 64, base octave 5, and the compiled-in "inc/"
// resource directory for bare INCLUDE names.
func Default() Config {
	return Config{
		Resolution:      480,
		DefaultVelocity: 64,
		DefaultOctave:   5,
		IncludeBasePath: "inc",
	}
}

// Load reads a YAML document at path and overlays it onto Default(); a
// field absent from the document leaves the corresponding default
// untouched, while a field set explicitly (even to zero) replaces it.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var overlay struct {
		Resolution      *int    `yaml:"resolution"`
		DefaultVelocity *int    `yaml:"default_velocity"`
		DefaultOctave   *int    `yaml:"default_octave"`
		IncludeBasePath *string `yaml:"include_base_path"`
	}
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return Config{}, err
	}
	if overlay.Resolution != nil {
		cfg.Resolution = *overlay.Resolution
	}
	if overlay.DefaultVelocity != nil {
		cfg.DefaultVelocity = *overlay.DefaultVelocity
	}
	if overlay.DefaultOctave != nil {
		cfg.DefaultOctave = *overlay.DefaultOctave
	}
	if overlay.IncludeBasePath != nil {
		cfg.IncludeBasePath = *overlay.IncludeBasePath
	}
	return cfg, nil
}
