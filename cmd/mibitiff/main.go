package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AlanRace/go-mibi/composite"
	"github.com/AlanRace/go-mibi/config"
	"github.com/AlanRace/go-mibi/libjpeg"
	"github.com/AlanRace/go-mibi/mibitiff"
	"github.com/AlanRace/go-mibi/segmentation"
)

const usage = `usage: mibitiff <command> [flags] <files>

commands:
  info       print the channels and metadata of MIBItiff files
  merge      merge MIBItiff files of one point into a single file
  export     write one PNG per channel
  composite  render a colour composite as PNG or JPEG
  cells      write a per-cell table from a label image
  config     write the default configuration file
`

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	command, args := os.Args[1], os.Args[2:]
	switch command {
	case "info":
		info(args)
	case "merge":
		merge(args)
	case "export":
		export(args)
	case "composite":
		compose(args)
	case "cells":
		cells(args)
	case "config":
		writeConfig(args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "mibitiff.yaml", "path to the configuration file")
	return fs, configPath
}

func loadConfig(path string) *config.Config {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

func info(args []string) {
	fs, _ := newFlagSet("info")
	fs.Parse(args)

	for _, filename := range fs.Args() {
		summary, err := mibitiff.InfoFile(filename)
		if err != nil {
			log.Fatal(err)
		}
		md := summary.Metadata

		fmt.Println(filename)
		fmt.Printf("Image size: %d x %d\n", summary.Width, summary.Height)
		fmt.Printf("DType: %s\n", summary.DType)
		fmt.Printf("Compression: %s\n", summary.Compression)
		fmt.Printf("Run: %s\n", md.Run)
		fmt.Printf("Point: %s\n", md.PointName())
		if md.Date != nil {
			fmt.Printf("Date: %s\n", md.Date)
		}
		if md.Size > 0 {
			fmt.Printf("Size: %g um\n", md.Size)
		}
		for _, key := range md.Extra.Keys() {
			value, _ := md.Extra.Get(key)
			fmt.Printf("%s: %v\n", key, value)
		}

		fmt.Printf("Number of channels: %d\n", len(summary.Channels))
		for index, channel := range summary.Channels {
			fmt.Printf("- Channel %d: %s\n", index, channel)
		}
		fmt.Println()
	}
}

func merge(args []string) {
	fs, configPath := newFlagSet("merge")
	out := fs.String("o", "merged.tiff", "output file")
	fs.Parse(args)

	opts, err := loadConfig(*configPath).WriteOptions()
	if err != nil {
		log.Fatal(err)
	}
	if err := mibitiff.MergeFiles(*out, opts, fs.Args()...); err != nil {
		log.Fatal(err)
	}
}

func export(args []string) {
	fs, configPath := newFlagSet("export")
	out := fs.String("o", ".", "output directory")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if err := os.MkdirAll(*out, 0755); err != nil {
		log.Fatal(err)
	}

	for _, filename := range fs.Args() {
		img, err := mibitiff.ReadFile(filename)
		if err != nil {
			log.Fatal(err)
		}
		if err := img.ExportPNGs(*out, cfg.ExportOptions()); err != nil {
			log.Fatal(err)
		}
	}
}

func compose(args []string) {
	fs, configPath := newFlagSet("composite")
	out := fs.String("o", "composite.png", "output file, .png or .jpg")
	overlayPath := fs.String("overlay", "", "MIBItiff file drawn over the composite with the overlay colours")
	quality := fs.Int("quality", libjpeg.DefaultQuality, "JPEG quality")
	fs.Parse(args)

	if fs.NArg() != 1 {
		log.Fatal("composite takes one MIBItiff file")
	}
	cfg := loadConfig(*configPath)

	colorMap, err := cfg.ColorMap()
	if err != nil {
		log.Fatal(err)
	}
	img, err := mibitiff.ReadFile(fs.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	rgb, err := composite.Composite(img, colorMap, cfg.CompositeOptions())
	if err != nil {
		log.Fatal(err)
	}

	if *overlayPath != "" {
		overlayImg, err := mibitiff.ReadFile(*overlayPath)
		if err != nil {
			log.Fatal(err)
		}
		overlay, err := composite.Composite(overlayImg, colorMap, cfg.CompositeOptions())
		if err != nil {
			log.Fatal(err)
		}
		mode, err := cfg.BlendMode()
		if err != nil {
			log.Fatal(err)
		}
		rgb, err = composite.ComposeOverlay(rgb, overlay, mode, cfg.Composite.Overlay.Alpha)
		if err != nil {
			log.Fatal(err)
		}
	}

	if cfg.Composite.Invert {
		rgb = composite.InvertLuminosity(rgb)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(*out)) {
	case ".jpg", ".jpeg":
		err = libjpeg.Encode(f, rgb.ToRGB(), &libjpeg.EncoderOptions{Quality: *quality})
	default:
		err = composite.EncodePNG(f, rgb)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func cells(args []string) {
	fs, configPath := newFlagSet("cells")
	labelsPath := fs.String("labels", "", "single page TIFF holding the segmentation labels")
	out := fs.String("o", "cells.csv", "output CSV file")
	fs.Parse(args)

	if fs.NArg() != 1 || *labelsPath == "" {
		log.Fatal("cells takes -labels and one MIBItiff file")
	}
	cfg := loadConfig(*configPath)

	plane, err := mibitiff.ReadPlaneFile(*labelsPath, 0)
	if err != nil {
		log.Fatal(err)
	}
	labels, err := segmentation.LabelsFromPlane(plane)
	if err != nil {
		log.Fatal(err)
	}

	labels, removed, err := segmentation.FilterBySize(labels, cfg.Segmentation.MinSize, cfg.Segmentation.MaxSize)
	if err != nil {
		log.Fatal(err)
	}
	if len(removed) > 0 {
		log.Printf("[cells] removed %d objects outside %d..%d pixels\n", len(removed), cfg.Segmentation.MinSize, cfg.Segmentation.MaxSize)
	}
	labels, err = segmentation.ExpandObjects(labels, cfg.Segmentation.MaxCellSize)
	if err != nil {
		log.Fatal(err)
	}

	img, err := mibitiff.ReadFile(fs.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	table, err := segmentation.ExtractCellTable(labels, img, &segmentation.CellTableOptions{NumSectors: cfg.Segmentation.NumSectors})
	if err != nil {
		log.Fatal(err)
	}

	if err := writeCellTable(*out, table); err != nil {
		log.Fatal(err)
	}
}

func writeCellTable(filename string, table *segmentation.CellTable) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"label", "area", "centroid_row", "centroid_col"}
	header = append(header, table.Targets...)
	if err := w.Write(header); err != nil {
		return err
	}

	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for _, row := range table.Rows {
		record := []string{
			strconv.FormatUint(uint64(row.Label), 10),
			strconv.Itoa(row.Area),
			format(row.CentroidRow),
			format(row.CentroidCol),
		}
		for _, total := range row.Total {
			record = append(record, format(total))
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func writeConfig(args []string) {
	fs, configPath := newFlagSet("config")
	fs.Parse(args)

	if err := config.SaveConfig(config.DefaultConfig(), *configPath); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Wrote %s\n", *configPath)
}
