package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	tiff "github.com/AlanRace/go-mibi"
	"github.com/AlanRace/go-mibi/composite"
	"github.com/AlanRace/go-mibi/mibi"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Codec.WriteFloat || cfg.Export.Depth != 8 {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mibi.yaml")
	data := `
codec:
  writeFloat: false
  compression: ZSTD
composite:
  gamma: 0.5
  colors:
    CD45: red
    dsDNA: "#0000ff"
  overlay:
    mode: max
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	opts, err := cfg.WriteOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.WriteFloat || opts.Compression != tiff.ZSTD || opts.Software == "" {
		t.Errorf("write options = %+v", opts)
	}

	// unset keys keep their defaults
	if cfg.Export.Depth != 8 || cfg.Segmentation.MaxCellSize != 100 {
		t.Error("defaults lost for keys missing from the file")
	}

	if cfg.CompositeOptions().Gamma != 0.5 {
		t.Errorf("composite gamma = %v", cfg.CompositeOptions().Gamma)
	}
	colorMap, err := cfg.ColorMap()
	if err != nil {
		t.Fatal(err)
	}
	if colorMap["CD45"] != [3]float64{1, 0, 0} || colorMap["dsDNA"] != [3]float64{0, 0, 1} {
		t.Errorf("colour map = %v", colorMap)
	}
	if mode, err := cfg.BlendMode(); err != nil || mode != composite.Max {
		t.Errorf("blend mode = %v, %v", mode, err)
	}
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mibi.yaml")
	cfg := DefaultConfig()
	cfg.Export.Depth = 16
	cfg.Composite.Colors["Ki67"] = "green"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ExportOptions().Depth != 16 || loaded.Composite.Colors["Ki67"] != "green" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestInvalidValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Codec.Compression = "jpeg"
	if _, err := cfg.WriteOptions(); !errors.Is(err, mibi.ErrValidation) {
		t.Errorf("unknown compression: %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("codec: [1, 2"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected a parse error")
	}
}
