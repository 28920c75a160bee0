package convert

import (
	"path/filepath"
	"strconv"
	"strings"
)

// AssetExt is the extension of final converted rasters.
const AssetExt = ".tif"

// DescriptorExt is the extension of persisted dataset descriptors.
const DescriptorExt = ".yaml"

// BaseName strips the directory and extension from a source path:
// /in/-15_-40/FC_-15_-40.nc -> FC_-15_-40.
func BaseName(src string) string {
	name := filepath.Base(src)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// AssetFileName derives the final raster name for one (subdataset, band)
// pair. ordinal is the 1-based stack index, or 0 for unstacked sources
// where it is omitted.
func AssetFileName(base string, ordinal int, band string) string {
	if ordinal > 0 {
		return base + "_" + strconv.Itoa(ordinal) + "_" + band + AssetExt
	}
	return base + "_" + band + AssetExt
}

// DescriptorFileName derives the descriptor name for one stack slice,
// ordinal 0 meaning unstacked.
func DescriptorFileName(base string, ordinal int) string {
	if ordinal > 0 {
		return base + "_" + strconv.Itoa(ordinal) + DescriptorExt
	}
	return base + DescriptorExt
}

// AncillaryBand reports whether a band name carries one of the reserved
// ancillary suffixes, marking it excluded from output.
func AncillaryBand(name string, suffixes []string) bool {
	for _, sfx := range suffixes {
		if strings.HasSuffix(name, sfx) {
			return true
		}
	}
	return false
}

// DataSubdataset reports whether the subdataset's trailing name segment
// identifies raster data. The datacube prep step appends a non-raster
// "dataset" variable carrying the indexing document; it must never be
// converted.
func DataSubdataset(band string) bool {
	return band != "dataset"
}
