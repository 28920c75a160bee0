package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.airbusds-geo.com/log"

	"github.com/terrapipe/cogstac/convert"
	"github.com/terrapipe/cogstac/proj"
	"github.com/terrapipe/cogstac/runstats"
	"github.com/terrapipe/cogstac/tiles"
)

const catalogFile = "catalog.json"

// Builder regenerates the item and catalog documents over the output
// tree. Nothing here is idempotency-gated: every document is rewritten.
type Builder struct {
	Output  string
	BaseURL string
	Product string

	// Projector maps descriptor footprints from the grid CRS to WGS84.
	Projector proj.PointTransformer
	// Meta supplies the root metadata block.
	Meta MetadataSource
	// Labels maps band keys to human-readable asset labels.
	Labels map[string]string
}

// Run builds items and tile catalogs for the given tiles, then the root
// catalog from a full rescan of the output root. Per-descriptor failures
// are logged and skipped.
func (b *Builder) Run(ctx context.Context, tileSet []string, stats *runstats.Stats) error {
	md := b.Meta.RootMetadata(ctx)
	for _, tile := range tileSet {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.buildTile(ctx, tile, md, stats); err != nil {
			return fmt.Errorf("tile %s: %w", tile, err)
		}
	}
	return b.buildRoot(ctx, md)
}

// buildTile writes one item per descriptor in the tile directory, then
// the tile catalog whose item links mirror the json documents present.
func (b *Builder) buildTile(ctx context.Context, tile string, md RootMetadata, stats *runstats.Stats) error {
	sugar := log.Logger(ctx).Sugar()
	dir := filepath.Join(b.Output, tile)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), convert.DescriptorExt) {
			continue
		}
		descPath := filepath.Join(dir, e.Name())
		desc, err := convert.ReadDescriptor(descPath)
		if err != nil {
			sugar.Errorf("%v, skipping item", err)
			continue
		}
		itemFile := ItemFileName(e.Name())
		item, err := b.buildItem(tile, itemFile, desc, md)
		if err != nil {
			sugar.Errorf("item for %s: %v, skipping", descPath, err)
			continue
		}
		if err := writeJSON(filepath.Join(dir, itemFile), item); err != nil {
			return err
		}
		stats.Count("items_written", 1)
	}

	// item links come from a fresh scan so that the catalog exactly
	// matches the documents on disk, whoever wrote them
	entries, err = os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("rescan: %w", err)
	}
	cat := &Catalog{
		Name:        tile,
		Description: fmt.Sprintf("%s - list of items", b.Product),
		Links: []Link{
			{Href: b.BaseURL + b.Product + "/" + tile + "/" + catalogFile, Rel: RelSelf},
			{Href: b.BaseURL + b.Product + "/" + catalogFile, Rel: RelParent},
			{Href: b.BaseURL + b.Product + "/" + catalogFile, Rel: RelRoot},
		},
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || name == catalogFile {
			continue
		}
		cat.Links = append(cat.Links, Link{Href: name, Rel: RelItem})
	}
	return writeJSON(filepath.Join(dir, catalogFile), cat)
}

// buildRoot writes the root catalog with one child link per tile
// directory currently on disk, independent of this run's selector.
func (b *Builder) buildRoot(ctx context.Context, md RootMetadata) error {
	onDisk, err := tiles.List(b.Output)
	if err != nil {
		return fmt.Errorf("rescan output root: %w", err)
	}
	self := b.BaseURL + b.Product + "/" + catalogFile
	cat := &Catalog{
		Name:        b.Product,
		Description: md.Description,
		License:     md.License,
		Contact:     md.Contact,
		Formats:     md.Formats,
		Keywords:    md.Keywords,
		Homepage:    md.Homepage,
		Provider:    md.Provider,
		Links: []Link{
			{Href: self, Rel: RelSelf},
			{Href: self, Rel: RelParent},
			{Href: self, Rel: RelRoot},
		},
	}
	if cat.Description == "" {
		cat.Description = fmt.Sprintf("%s - list of tiles", b.Product)
	}
	for _, tile := range onDisk {
		cat.Links = append(cat.Links, Link{Href: tile + "/" + catalogFile, Rel: RelChild})
	}
	log.Logger(ctx).Sugar().Infof("root catalog: %d tiles", len(onDisk))
	return writeJSON(filepath.Join(b.Output, catalogFile), cat)
}

// buildItem derives the feature record for one descriptor.
func (b *Builder) buildItem(tile, itemFile string, desc *convert.Descriptor, md RootMetadata) (*Item, error) {
	if desc.ID == "" {
		return nil, fmt.Errorf("descriptor has no id")
	}
	ring := desc.GridSpatial.Projection.ValidData.Coordinates
	if len(ring) == 0 {
		return nil, fmt.Errorf("descriptor has no valid-data polygon")
	}
	geo, err := proj.ReprojectPolygon(b.Projector, ring)
	if err != nil {
		return nil, fmt.Errorf("reproject footprint: %w", err)
	}
	bbox, err := extentBBox(desc.Extent.Coord)
	if err != nil {
		return nil, err
	}
	dt, err := NormalizeDatetime(desc.Extent.CenterDT)
	if err != nil {
		return nil, fmt.Errorf("center_dt: %w", err)
	}

	item := &Item{
		ID:       desc.ID,
		Type:     "Feature",
		BBox:     bbox,
		Geometry: Geometry{Type: "Polygon", Coordinates: geo},
		Properties: Properties{
			Datetime:    dt,
			ProductType: desc.ProductType,
			Homepage:    md.Homepage,
		},
		Links: map[string]ItemLink{
			RelSelf: {Rel: RelSelf, Href: b.BaseURL + b.Product + "/" + tile + "/" + itemFile},
		},
		Assets: map[string]Asset{},
	}
	if md.Contact != nil {
		item.Properties.Provider = md.Contact.Name
	}
	if md.License != nil {
		item.Properties.License = md.License.Name
		item.Properties.Copyright = md.License.Copyright
	}
	for key, band := range desc.Image.Bands {
		label := key
		if l, ok := b.Labels[key]; ok {
			label = l
		}
		item.Assets[label] = Asset{Href: band.Path, Required: true, Type: "GeoTIFF"}
	}
	return item, nil
}

// ItemFileName maps a descriptor file name to its item document name:
// base.yaml -> base_item.json.
func ItemFileName(descriptorName string) string {
	return strings.TrimSuffix(descriptorName, convert.DescriptorExt) + "_item.json"
}

// extentBBox computes [min-lon, min-lat, max-lon, max-lat] over the four
// recorded corner coordinates.
func extentBBox(coord map[string]convert.Coord) ([4]float64, error) {
	bbox := [4]float64{}
	first := true
	for _, corner := range []string{"ll", "lr", "ul", "ur"} {
		c, ok := coord[corner]
		if !ok {
			return bbox, fmt.Errorf("extent corner %s missing", corner)
		}
		if first {
			bbox = [4]float64{c.Lon, c.Lat, c.Lon, c.Lat}
			first = false
			continue
		}
		if c.Lon < bbox[0] {
			bbox[0] = c.Lon
		}
		if c.Lat < bbox[1] {
			bbox[1] = c.Lat
		}
		if c.Lon > bbox[2] {
			bbox[2] = c.Lon
		}
		if c.Lat > bbox[3] {
			bbox[3] = c.Lat
		}
	}
	return bbox, nil
}

// datetimeLayouts is the parse ladder for descriptor timestamps, zone
// aware first.
var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// NormalizeDatetime parses a descriptor timestamp and renders it as
// ISO-8601 with a numeric offset at second precision. A timestamp with no
// zone is taken as UTC.
func NormalizeDatetime(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty timestamp")
	}
	for _, layout := range datetimeLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return t.Format("2006-01-02T15:04:05-07:00"), nil
	}
	return "", fmt.Errorf("unparseable timestamp %q", s)
}

func writeJSON(path string, v interface{}) error {
	buf, err := json.MarshalIndent(v, "", " ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(buf, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
