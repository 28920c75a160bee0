package convert

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"

	"github.com/terrapipe/cogstac/gdalcmd"
)

// Descriptor is the per-subdataset dataset document. Its presence on disk
// marks the source as fully converted; it is also the sole input of
// catalog generation.
type Descriptor struct {
	ID          string      `json:"id,omitempty"`
	CreationDT  string      `json:"creation_dt,omitempty"`
	Label       string      `json:"label,omitempty"`
	ProductType string      `json:"product_type,omitempty"`
	Platform    *CodeRef    `json:"platform,omitempty"`
	Instrument  *NameRef    `json:"instrument,omitempty"`
	Format      *NameRef    `json:"format,omitempty"`
	Extent      Extent      `json:"extent,omitempty"`
	GridSpatial GridSpatial `json:"grid_spatial,omitempty"`
	Image       Image       `json:"image,omitempty"`
	Lineage     Lineage     `json:"lineage"`
}

type NameRef struct {
	Name string `json:"name,omitempty"`
}

type CodeRef struct {
	Code string `json:"code,omitempty"`
}

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Extent holds the acquisition timestamps and the four WGS84 corner
// coordinates (ll, lr, ul, ur).
type Extent struct {
	CenterDT string           `json:"center_dt,omitempty"`
	FromDT   string           `json:"from_dt,omitempty"`
	ToDT     string           `json:"to_dt,omitempty"`
	Coord    map[string]Coord `json:"coord,omitempty"`
}

type GridSpatial struct {
	Projection Projection `json:"projection,omitempty"`
}

// Projection carries the grid CRS and the valid-data footprint in grid
// coordinates.
type Projection struct {
	SpatialReference string          `json:"spatial_reference,omitempty"`
	GeoRefPoints     json.RawMessage `json:"geo_ref_points,omitempty"`
	ValidData        Geometry        `json:"valid_data,omitempty"`
}

type Geometry struct {
	Type        string        `json:"type,omitempty"`
	Coordinates [][][]float64 `json:"coordinates,omitempty"`
}

type Image struct {
	Bands map[string]Band `json:"bands,omitempty"`
}

type Band struct {
	Layer string `json:"layer,omitempty"`
	Path  string `json:"path,omitempty"`
}

type Lineage struct {
	SourceDatasets map[string]json.RawMessage `json:"source_datasets"`
}

// ParseDescriptor decodes one descriptor document.
func ParseDescriptor(buf []byte) (*Descriptor, error) {
	d := &Descriptor{}
	if err := yaml.Unmarshal(buf, d); err != nil {
		return nil, fmt.Errorf("parse descriptor: %w", err)
	}
	return d, nil
}

// ReadDescriptor loads and decodes a persisted descriptor file.
func ReadDescriptor(path string) (*Descriptor, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	d, err := ParseDescriptor(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// MetadataWriter derives descriptor files from a converted source's
// embedded descriptor blobs. Writing the last descriptor is the commit
// point making the source "done" for the conversion idempotency check.
type MetadataWriter struct {
	Source   gdalcmd.Source
	Excluded []string
}

// DescriptorDone reports whether the commit marker of a source exists:
// the descriptor of the last stack slice, or the single descriptor of an
// unstacked source.
func DescriptorDone(outDir, base string, bandCount int) bool {
	ordinal := 0
	if bandCount > 1 {
		ordinal = bandCount
	}
	_, err := os.Stat(filepath.Join(outDir, DescriptorFileName(base, ordinal)))
	return err == nil
}

// Write persists one descriptor per stack slice of the source at srcPath
// into outDir, rewriting the band map to point at the converted assets.
func (w *MetadataWriter) Write(ctx context.Context, srcPath, outDir string, info *gdalcmd.ContainerInfo) error {
	base := BaseName(srcPath)
	n := 1
	if info.BandCount > 1 {
		n = info.BandCount
	}
	blobs, err := w.Source.EmbeddedDescriptors(ctx, srcPath, n)
	if err != nil {
		return fmt.Errorf("embedded descriptors: %w", err)
	}
	if len(blobs) != n {
		return fmt.Errorf("embedded descriptors: got %d, want %d", len(blobs), n)
	}
	for i, blob := range blobs {
		ordinal := 0
		if info.BandCount > 1 {
			ordinal = i + 1
		}
		desc, err := ParseDescriptor([]byte(blob))
		if err != nil {
			return fmt.Errorf("slice %d: %w", i, err)
		}
		w.rewrite(desc, base, ordinal)
		buf, err := yaml.Marshal(desc)
		if err != nil {
			return fmt.Errorf("marshal descriptor: %w", err)
		}
		dst := filepath.Join(outDir, DescriptorFileName(base, ordinal))
		if err := os.WriteFile(dst, buf, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", dst, err)
		}
	}
	return nil
}

// rewrite points every retained band at its converted asset, drops
// ancillary bands, sets the format marker and clears lineage.
func (w *MetadataWriter) rewrite(desc *Descriptor, base string, ordinal int) {
	for key, band := range desc.Image.Bands {
		if AncillaryBand(key, w.Excluded) {
			delete(desc.Image.Bands, key)
			continue
		}
		band.Layer = "1"
		band.Path = AssetFileName(base, ordinal, key)
		desc.Image.Bands[key] = band
	}
	desc.Format = &NameRef{Name: "GeoTIFF"}
	desc.Lineage = Lineage{SourceDatasets: map[string]json.RawMessage{}}
}
