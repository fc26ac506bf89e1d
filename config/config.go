// Package config loads the settings of the mibitiff tool from YAML and turns
// them into the option structs of the library packages.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	tiff "github.com/AlanRace/go-mibi"
	"github.com/AlanRace/go-mibi/composite"
	"github.com/AlanRace/go-mibi/mibi"
	"github.com/AlanRace/go-mibi/mibitiff"
)

// Config represents the tool configuration loaded from YAML
type Config struct {
	// Codec parameters used when writing MIBItiff files
	Codec struct {
		// WriteFloat stores float planes as floats rather than scaled uint16
		WriteFloat bool `yaml:"writeFloat"`

		// Compression is one of none, lzw, deflate or zstd
		Compression string `yaml:"compression"`

		// Software is written to the Software tag
		Software string `yaml:"software"`
	} `yaml:"codec"`

	// PNG export parameters
	Export struct {
		// Depth is the PNG bit depth, 8 or 16
		Depth int `yaml:"depth"`

		// Scale multiplies raw values; 0 scales each channel by its maximum
		Scale float64 `yaml:"scale"`

		Gamma float64 `yaml:"gamma"`
	} `yaml:"export"`

	// Colour composite parameters
	Composite struct {
		// MinScaling is the smallest value a channel is divided by
		MinScaling float64 `yaml:"minScaling"`

		Gamma float64 `yaml:"gamma"`

		// Colors maps channel targets to colour names or hex codes
		Colors map[string]string `yaml:"colors"`

		// Invert draws the composite on white instead of black
		Invert bool `yaml:"invert"`

		Overlay struct {
			// Mode is alpha or max
			Mode string `yaml:"mode"`

			Alpha float64 `yaml:"alpha"`
		} `yaml:"overlay"`
	} `yaml:"composite"`

	// Segmentation post-processing parameters
	Segmentation struct {
		// MaxCellSize limits object growth in pixels
		MaxCellSize int `yaml:"maxCellSize"`

		// MinSize and MaxSize bound the object areas kept by filtering
		MinSize int `yaml:"minSize"`
		MaxSize int `yaml:"maxSize"`

		// NumSectors splits cells into angular sectors in the cell table
		NumSectors int `yaml:"numSectors"`
	} `yaml:"segmentation"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Codec.WriteFloat = true
	cfg.Codec.Compression = "none"
	cfg.Codec.Software = mibitiff.DefaultSoftware

	cfg.Export.Depth = 8
	cfg.Export.Gamma = 1

	cfg.Composite.MinScaling = 0
	cfg.Composite.Gamma = 1
	cfg.Composite.Colors = map[string]string{}
	cfg.Composite.Overlay.Mode = "alpha"
	cfg.Composite.Overlay.Alpha = 0.5

	cfg.Segmentation.MaxCellSize = 100
	cfg.Segmentation.MinSize = 5
	cfg.Segmentation.MaxSize = 1000

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
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

// SaveConfig saves the configuration to a YAML file
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

var compressionNames = map[string]tiff.CompressionID{
	"none":    tiff.Uncompressed,
	"":        tiff.Uncompressed,
	"lzw":     tiff.LZW,
	"deflate": tiff.AdobeDeflate,
	"zstd":    tiff.ZSTD,
}

// ParseCompression maps a compression name to its TIFF identifier.
func ParseCompression(name string) (tiff.CompressionID, error) {
	id, ok := compressionNames[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("%w: unknown compression %q", mibi.ErrValidation, name)
	}
	return id, nil
}

func (cfg *Config) WriteOptions() (*mibitiff.WriteOptions, error) {
	compression, err := ParseCompression(cfg.Codec.Compression)
	if err != nil {
		return nil, err
	}
	return &mibitiff.WriteOptions{
		WriteFloat:  cfg.Codec.WriteFloat,
		Compression: compression,
		Software:    cfg.Codec.Software,
	}, nil
}

func (cfg *Config) ExportOptions() *mibi.ExportOptions {
	return &mibi.ExportOptions{
		Depth: cfg.Export.Depth,
		Scale: cfg.Export.Scale,
		Gamma: cfg.Export.Gamma,
	}
}

func (cfg *Config) CompositeOptions() *composite.Options {
	return &composite.Options{
		MinScaling: cfg.Composite.MinScaling,
		Gamma:      cfg.Composite.Gamma,
	}
}

// ColorMap resolves the configured colours.
func (cfg *Config) ColorMap() (map[string][3]float64, error) {
	return composite.ColorMap(cfg.Composite.Colors)
}

func (cfg *Config) BlendMode() (composite.BlendMode, error) {
	return composite.ParseBlendMode(cfg.Composite.Overlay.Mode)
}
