// Package cogstac ties the conversion pipeline and the catalog builder
// into one run over a tiled raster product: containers are converted to
// per-band cloud-optimized rasters gated by descriptor commit markers,
// then the item/catalog hierarchy is regenerated from whatever the output
// tree currently holds.
package cogstac

import (
	"context"
	"fmt"

	"go.airbusds-geo.com/log"

	"github.com/terrapipe/cogstac/catalog"
	"github.com/terrapipe/cogstac/config"
	"github.com/terrapipe/cogstac/convert"
	"github.com/terrapipe/cogstac/gdalcmd"
	"github.com/terrapipe/cogstac/proj"
	"github.com/terrapipe/cogstac/publish"
	"github.com/terrapipe/cogstac/runstats"
	"github.com/terrapipe/cogstac/tiles"
)

// Runner holds the resolved configuration and the capabilities one run
// needs. Stages run strictly sequentially: conversion first, catalog
// generation second, publishing last, each independently toggled.
type Runner struct {
	Cfg    *config.Config
	Source gdalcmd.Source
	Conv   gdalcmd.Converter
	// Verify structurally checks each emitted raster; nil disables.
	Verify func(path string) error
	// Projector maps grid coordinates to WGS84 for item geometry.
	Projector proj.PointTransformer
	// Meta supplies the root catalog metadata block.
	Meta catalog.MetadataSource
	// Publisher is nil unless publishing is enabled.
	Publisher *publish.Publisher
}

// Run executes the enabled stages and accounts them against stats.
func (r *Runner) Run(ctx context.Context, stats *runstats.Stats) error {
	sugar := log.Logger(ctx).Sugar()

	if r.Cfg.Convert {
		inTiles, err := tiles.Walk(r.Cfg.Input, r.Cfg.Tiles)
		if err != nil {
			return err
		}
		p := &convert.Pipeline{
			Source:   r.Source,
			Conv:     r.Conv,
			Verify:   r.Verify,
			Input:    r.Cfg.Input,
			Output:   r.Cfg.Output,
			Excluded: r.Cfg.ExcludeSuffixes,
		}
		err = stats.Time(runstats.StepConvert, func() error {
			return p.Run(ctx, inTiles, stats)
		})
		if err != nil {
			return fmt.Errorf("conversion: %w", err)
		}
	}

	if r.Cfg.Catalog {
		publish.Probe(ctx, r.Cfg.BaseURL+r.Cfg.Product+"/")
		outTiles, err := tiles.Walk(r.Cfg.Output, r.Cfg.Tiles)
		if err != nil {
			return err
		}
		b := &catalog.Builder{
			Output:    r.Cfg.Output,
			BaseURL:   r.Cfg.BaseURL,
			Product:   r.Cfg.Product,
			Projector: r.Projector,
			Meta:      r.Meta,
			Labels:    r.Cfg.BandLabels,
		}
		err = stats.Time(runstats.StepCatalog, func() error {
			return b.Run(ctx, outTiles, stats)
		})
		if err != nil {
			return fmt.Errorf("catalog generation: %w", err)
		}
	}

	if r.Publisher != nil {
		err := stats.Time(runstats.StepPublish, func() error {
			return r.Publisher.Sync(ctx, r.Cfg.Output)
		})
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	}

	sugar.Debugf("run complete")
	return nil
}
