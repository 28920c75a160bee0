// Package proj reprojects extent geometry between the fixed source grid
// CRS and WGS84. Vertices go through one at a time; nothing here reorders,
// drops or deduplicates them, so a closed ring stays closed.
package proj

import (
	"fmt"

	"github.com/airbusgeo/godal"
)

// Default EPSG codes for the product grid (GDA94 / Australian Albers)
// and the catalog CRS.
const (
	GridEPSG  = 3577
	WGS84EPSG = 4326
)

// PointTransformer maps a single coordinate pair between two reference
// systems.
type PointTransformer interface {
	TransformPoint(x, y float64) (tx, ty float64, err error)
}

// Projector transforms points from a projected source CRS to a geographic
// one and back. It owns GDAL handles and must be Closed after use.
type Projector struct {
	src, dst *godal.SpatialRef
	fwd, inv *godal.Transform
}

// NewProjector builds a projector between two EPSG codes. GDAL drivers
// must be registered beforehand.
func NewProjector(srcEPSG, dstEPSG int) (*Projector, error) {
	src, err := godal.NewSpatialRefFromEPSG(srcEPSG)
	if err != nil {
		return nil, fmt.Errorf("srs from epsg:%d: %w", srcEPSG, err)
	}
	dst, err := godal.NewSpatialRefFromEPSG(dstEPSG)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("srs from epsg:%d: %w", dstEPSG, err)
	}
	fwd, err := godal.NewTransform(src, dst)
	if err != nil {
		src.Close()
		dst.Close()
		return nil, fmt.Errorf("transform %d->%d: %w", srcEPSG, dstEPSG, err)
	}
	inv, err := godal.NewTransform(dst, src)
	if err != nil {
		fwd.Close()
		src.Close()
		dst.Close()
		return nil, fmt.Errorf("transform %d->%d: %w", dstEPSG, srcEPSG, err)
	}
	return &Projector{src: src, dst: dst, fwd: fwd, inv: inv}, nil
}

func (p *Projector) Close() {
	p.fwd.Close()
	p.inv.Close()
	p.src.Close()
	p.dst.Close()
}

// TransformPoint maps one source-CRS point to the destination CRS.
func (p *Projector) TransformPoint(x, y float64) (float64, float64, error) {
	return transformOne(p.fwd, x, y)
}

// Inverse returns the destination→source direction of the projector.
func (p *Projector) Inverse() PointTransformer {
	return inverse{p}
}

type inverse struct{ p *Projector }

func (i inverse) TransformPoint(x, y float64) (float64, float64, error) {
	return transformOne(i.p.inv, x, y)
}

func transformOne(trn *godal.Transform, x, y float64) (float64, float64, error) {
	xs := []float64{x}
	ys := []float64{y}
	if err := trn.TransformEx(xs, ys, nil, nil); err != nil {
		return 0, 0, fmt.Errorf("transform (%g,%g): %w", x, y, err)
	}
	return xs[0], ys[0], nil
}

// ReprojectRing maps every vertex of ring through tr, in order. The input
// is never modified. Vertices with fewer than two ordinates are rejected.
func ReprojectRing(tr PointTransformer, ring [][]float64) ([][]float64, error) {
	out := make([][]float64, len(ring))
	for i, v := range ring {
		if len(v) < 2 {
			return nil, fmt.Errorf("ring vertex %d: want [x y], got %d ordinates", i, len(v))
		}
		x, y, err := tr.TransformPoint(v[0], v[1])
		if err != nil {
			return nil, fmt.Errorf("ring vertex %d: %w", i, err)
		}
		out[i] = []float64{x, y}
	}
	return out, nil
}

// ReprojectPolygon maps every ring of a polygon coordinate array.
func ReprojectPolygon(tr PointTransformer, rings [][][]float64) ([][][]float64, error) {
	out := make([][][]float64, len(rings))
	for i, ring := range rings {
		r, err := ReprojectRing(tr, ring)
		if err != nil {
			return nil, fmt.Errorf("ring %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}
