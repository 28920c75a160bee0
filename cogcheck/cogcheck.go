// Package cogcheck verifies the structural layout of an emitted raster:
// internally tiled, no strip fields, consistent tile offset/bytecount
// pairs, and full-resolution plus reduced-resolution IFDs ordered largest
// first. It checks structure only; pixel data is never touched.
package cogcheck

import (
	"fmt"
	"os"
	"sort"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
)

const subfileTypeReducedImage = 1

type ifdHeader struct {
	SubfileType    uint32   `tiff:"field,tag=254"`
	ImageWidth     uint64   `tiff:"field,tag=256"`
	ImageLength    uint64   `tiff:"field,tag=257"`
	TileWidth      uint16   `tiff:"field,tag=322"`
	TileLength     uint16   `tiff:"field,tag=323"`
	TileOffsets    []uint64 `tiff:"field,tag=324"`
	TileByteCounts []uint64 `tiff:"field,tag=325"`
	StripOffsets   []uint64 `tiff:"field,tag=273"`
	StripByteCnts  []uint64 `tiff:"field,tag=279"`
}

// File checks the raster at path.
func File(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if err := Check(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Check parses r as a (big)TIFF and validates its layout.
func Check(r tiff.ReadAtReadSeeker) error {
	tif, err := tiff.Parse(r, nil, nil)
	if err != nil {
		return fmt.Errorf("parse tiff: %w", err)
	}
	if order := tif.Order(); order != "MM" && order != "II" {
		return fmt.Errorf("unknown byte order %q", order)
	}
	tifds := tif.IFDs()
	if len(tifds) == 0 {
		return fmt.Errorf("no ifds")
	}
	hdrs := make([]*ifdHeader, len(tifds))
	for i, tifd := range tifds {
		hdr := &ifdHeader{}
		if err := tiff.UnmarshalIFD(tifd, hdr); err != nil {
			return fmt.Errorf("ifd %d: %w", i, err)
		}
		if err := checkIFD(hdr); err != nil {
			return fmt.Errorf("ifd %d: %w", i, err)
		}
		hdrs[i] = hdr
	}
	return checkPyramid(hdrs)
}

func checkIFD(hdr *ifdHeader) error {
	if len(hdr.StripOffsets) > 0 || len(hdr.StripByteCnts) > 0 {
		return fmt.Errorf("has strips")
	}
	if len(hdr.TileOffsets) == 0 || len(hdr.TileByteCounts) == 0 {
		return fmt.Errorf("no tiles")
	}
	if len(hdr.TileOffsets) != len(hdr.TileByteCounts) {
		return fmt.Errorf("inconsistent tile off/len count: %d/%d",
			len(hdr.TileOffsets), len(hdr.TileByteCounts))
	}
	if hdr.TileWidth == 0 || hdr.TileLength == 0 {
		return fmt.Errorf("missing tile dimensions")
	}
	if hdr.ImageWidth == 0 || hdr.ImageLength == 0 {
		return fmt.Errorf("missing image dimensions")
	}
	return nil
}

// checkPyramid verifies one full-resolution image plus strictly smaller
// reduced-resolution copies.
func checkPyramid(hdrs []*ifdHeader) error {
	sorted := make([]*ifdHeader, len(hdrs))
	copy(sorted, hdrs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ImageLength != sorted[j].ImageLength {
			return sorted[i].ImageLength > sorted[j].ImageLength
		}
		return sorted[i].SubfileType < sorted[j].SubfileType
	})
	if sorted[0].SubfileType&subfileTypeReducedImage != 0 {
		return fmt.Errorf("largest ifd is a reduced image")
	}
	last := sorted[0].ImageLength
	for _, hdr := range sorted[1:] {
		if hdr.SubfileType&subfileTypeReducedImage == 0 {
			return fmt.Errorf("multiple full-resolution ifds")
		}
		if hdr.ImageLength >= last {
			return fmt.Errorf("overview not smaller than predecessor: %d >= %d",
				hdr.ImageLength, last)
		}
		last = hdr.ImageLength
	}
	return nil
}
