// Package convert implements the resumable per-tile conversion pipeline:
// multi-subdataset containers in, per-band cloud-optimized rasters plus
// dataset descriptors out. A source whose descriptor exists is never
// touched again; the descriptor is written last and is the commit marker.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.airbusds-geo.com/log"

	"github.com/terrapipe/cogstac/gdalcmd"
	"github.com/terrapipe/cogstac/runstats"
)

// SourceExt is the container extension the discovery walk selects.
const SourceExt = ".nc"

// Pipeline converts every container found under the selected input tiles.
type Pipeline struct {
	Source gdalcmd.Source
	Conv   gdalcmd.Converter
	// Verify, when set, structurally checks each emitted raster. A
	// verification failure aborts the source like a failed encode.
	Verify func(path string) error

	Input    string
	Output   string
	Excluded []string
}

// Run discovers and converts sources under the given input tiles. A
// failing source is logged and skipped; only a broken walk aborts the
// run.
func (p *Pipeline) Run(ctx context.Context, tiles []string, stats *runstats.Stats) error {
	sugar := log.Logger(ctx).Sugar()
	for _, tile := range tiles {
		tileDir := filepath.Join(p.Input, tile)
		entries, err := os.ReadDir(tileDir)
		if err != nil {
			return fmt.Errorf("scan %s: %w", tileDir, err)
		}
		outDir := filepath.Join(p.Output, tile)
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), SourceExt) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			src := filepath.Join(tileDir, e.Name())
			switch err := p.convertSource(ctx, src, outDir); {
			case err == nil:
				stats.Count("sources_converted", 1)
			case errors.Is(err, errAlreadyConverted):
				sugar.Infof("skip %s: descriptor exists", src)
				stats.Count("sources_skipped", 1)
			default:
				sugar.Errorf("convert %s: %v", src, err)
				stats.Count("sources_failed", 1)
			}
		}
	}
	return nil
}

var errAlreadyConverted = errors.New("already converted")

// convertSource runs the whole conversion of one container: probe, per
// (subdataset, band) extract/overview/encode, then descriptors. All
// intermediates live in a scratch directory removed on every exit path.
func (p *Pipeline) convertSource(ctx context.Context, src, outDir string) error {
	sugar := log.Logger(ctx).Sugar()
	info, err := p.Source.Probe(ctx, src)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	base := BaseName(src)
	if DescriptorDone(outDir, base, info.BandCount) {
		return errAlreadyConverted
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", outDir, err)
	}

	scratch, err := os.MkdirTemp("", "cogstac-"+uuid.New().String()[:8]+"-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	for _, sub := range info.Subdatasets {
		if !DataSubdataset(sub.Band) {
			continue
		}
		if AncillaryBand(sub.Band, p.Excluded) {
			sugar.Debugf("skip ancillary band %s", sub.Band)
			continue
		}
		for band := 1; band <= info.BandCount; band++ {
			ordinal := 0
			if info.BandCount > 1 {
				ordinal = band
			}
			name := AssetFileName(base, ordinal, sub.Band)
			tmp := filepath.Join(scratch, name)
			dst := filepath.Join(outDir, name)

			if err := p.Conv.ExtractBand(ctx, sub.Name, band, tmp, scratch); err != nil {
				return err
			}
			if err := p.Conv.BuildOverviews(ctx, tmp, scratch); err != nil {
				return err
			}
			if err := p.Conv.EncodeCOG(ctx, tmp, dst, outDir); err != nil {
				return err
			}
			if p.Verify != nil {
				if err := p.Verify(dst); err != nil {
					return fmt.Errorf("verify: %w", err)
				}
			}
			sugar.Infof("wrote %s", dst)
		}
	}

	w := &MetadataWriter{Source: p.Source, Excluded: p.Excluded}
	if err := w.Write(ctx, src, outDir, info); err != nil {
		return fmt.Errorf("descriptors: %w", err)
	}
	sugar.Infof("converted %s", src)
	return nil
}
