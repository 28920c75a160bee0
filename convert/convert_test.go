package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrapipe/cogstac/gdalcmd"
	"github.com/terrapipe/cogstac/runstats"
)

const blobPV = `
id: 0e761a47-0b56-4f62-bbd5-000000000001
product_type: fractional_cover
platform:
  code: LANDSAT_8
instrument:
  name: OLI
format:
  name: NETCDF
extent:
  center_dt: "2020-01-01T00:00:00"
  coord:
    ll: {lat: -36.0, lon: 149.0}
    lr: {lat: -36.0, lon: 150.0}
    ul: {lat: -35.0, lon: 149.0}
    ur: {lat: -35.0, lon: 150.0}
grid_spatial:
  projection:
    spatial_reference: EPSG:3577
    valid_data:
      type: Polygon
      coordinates: [[[1500000, -4000000], [1600000, -4000000], [1600000, -3900000], [1500000, -3900000], [1500000, -4000000]]]
image:
  bands:
    PV: {layer: "1", path: ""}
    NPV: {layer: "1", path: ""}
    FC_observed_date: {layer: "1", path: ""}
lineage:
  source_datasets: {}
`

var excluded = []string{"_observed_date", "_source"}

// fakeSource serves canned container info and descriptor blobs.
type fakeSource struct {
	info   *gdalcmd.ContainerInfo
	blobs  []string
	probes int
}

func (s *fakeSource) Probe(ctx context.Context, path string) (*gdalcmd.ContainerInfo, error) {
	s.probes++
	return s.info, nil
}

func (s *fakeSource) EmbeddedDescriptors(ctx context.Context, path string, n int) ([]string, error) {
	if n != len(s.blobs) {
		return nil, fmt.Errorf("want %d blobs, have %d", n, len(s.blobs))
	}
	return s.blobs, nil
}

// fakeConv records step calls and materializes outputs like the real
// toolchain would.
type fakeConv struct {
	calls    []string
	failStep string
}

func (c *fakeConv) step(step, dst string) error {
	c.calls = append(c.calls, step)
	if step == c.failStep {
		return &gdalcmd.StepError{Step: step, Cmd: []string{step}, Code: 1, Err: fmt.Errorf("boom")}
	}
	return os.WriteFile(dst, []byte(step), 0o644)
}

func (c *fakeConv) ExtractBand(ctx context.Context, subdataset string, band int, dst, workdir string) error {
	return c.step(gdalcmd.StepExtract, dst)
}

func (c *fakeConv) BuildOverviews(ctx context.Context, path, workdir string) error {
	c.calls = append(c.calls, gdalcmd.StepOverviews)
	return nil
}

func (c *fakeConv) EncodeCOG(ctx context.Context, src, dst, workdir string) error {
	return c.step(gdalcmd.StepEncode, dst)
}

func unstackedInfo(container string) *gdalcmd.ContainerInfo {
	sub := func(band string) gdalcmd.Subdataset {
		return gdalcmd.Subdataset{
			Name: fmt.Sprintf("NETCDF:%q:%s", container, band),
			Band: band,
		}
	}
	return &gdalcmd.ContainerInfo{
		Subdatasets: []gdalcmd.Subdataset{sub("PV"), sub("NPV"), sub("FC_observed_date"), sub("dataset")},
		BandCount:   1,
	}
}

func writeSource(t *testing.T, root, tile, name string) string {
	t.Helper()
	dir := filepath.Join(root, tile)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	src := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(src, []byte("netcdf"), 0o644))
	return src
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestConvertUnstackedSource(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	src := writeSource(t, in, "-15_-40", "FC_-15_-40.nc")
	source := &fakeSource{info: unstackedInfo(src), blobs: []string{blobPV}}
	conv := &fakeConv{}
	p := &Pipeline{Source: source, Conv: conv, Input: in, Output: out, Excluded: excluded}
	stats := runstats.New()

	require.NoError(t, p.Run(context.Background(), []string{"-15_-40"}, stats))

	// PV and NPV converted, ancillary and non-data subdatasets skipped
	assert.Equal(t, []string{
		"FC_-15_-40.yaml",
		"FC_-15_-40_NPV.tif",
		"FC_-15_-40_PV.tif",
	}, listFiles(t, filepath.Join(out, "-15_-40")))
	assert.Equal(t, 1, stats.Counter("sources_converted"))

	desc, err := ReadDescriptor(filepath.Join(out, "-15_-40", "FC_-15_-40.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "GeoTIFF", desc.Format.Name)
	assert.Empty(t, desc.Lineage.SourceDatasets)
	require.Len(t, desc.Image.Bands, 2)
	assert.Equal(t, "FC_-15_-40_PV.tif", desc.Image.Bands["PV"].Path)
	assert.Equal(t, "FC_-15_-40_NPV.tif", desc.Image.Bands["NPV"].Path)

	// descriptor references only assets that exist on disk
	for _, band := range desc.Image.Bands {
		_, err := os.Stat(filepath.Join(out, "-15_-40", band.Path))
		assert.NoError(t, err, band.Path)
	}
}

func TestConvertIdempotent(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	src := writeSource(t, in, "-15_-40", "FC_-15_-40.nc")
	source := &fakeSource{info: unstackedInfo(src), blobs: []string{blobPV}}
	conv := &fakeConv{}
	p := &Pipeline{Source: source, Conv: conv, Input: in, Output: out, Excluded: excluded}

	require.NoError(t, p.Run(context.Background(), []string{"-15_-40"}, runstats.New()))
	firstCalls := len(conv.calls)
	require.Greater(t, firstCalls, 0)

	stats := runstats.New()
	require.NoError(t, p.Run(context.Background(), []string{"-15_-40"}, stats))
	assert.Equal(t, firstCalls, len(conv.calls), "no extract/encode on the second run")
	assert.Equal(t, 1, stats.Counter("sources_skipped"))
	assert.Equal(t, 0, stats.Counter("sources_converted"))
}

func TestConvertStackedSource(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	src := writeSource(t, in, "18_-28", "FC_P_18_-28.nc")
	info := &gdalcmd.ContainerInfo{
		Subdatasets: []gdalcmd.Subdataset{
			{Name: fmt.Sprintf("NETCDF:%q:PV", src), Band: "PV"},
			{Name: fmt.Sprintf("NETCDF:%q:dataset", src), Band: "dataset"},
		},
		BandCount: 2,
	}
	source := &fakeSource{info: info, blobs: []string{blobPV, blobPV}}
	conv := &fakeConv{}
	p := &Pipeline{Source: source, Conv: conv, Input: in, Output: out, Excluded: excluded}

	require.NoError(t, p.Run(context.Background(), []string{"18_-28"}, runstats.New()))

	assert.Equal(t, []string{
		"FC_P_18_-28_1.yaml",
		"FC_P_18_-28_1_PV.tif",
		"FC_P_18_-28_2.yaml",
		"FC_P_18_-28_2_PV.tif",
	}, listFiles(t, filepath.Join(out, "18_-28")))

	desc, err := ReadDescriptor(filepath.Join(out, "18_-28", "FC_P_18_-28_2.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "FC_P_18_-28_2_PV.tif", desc.Image.Bands["PV"].Path)
}

func TestConvertStepFailureLeavesNoDescriptor(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	src := writeSource(t, in, "-15_-40", "FC_-15_-40.nc")
	source := &fakeSource{info: unstackedInfo(src), blobs: []string{blobPV}}
	conv := &fakeConv{failStep: gdalcmd.StepEncode}
	p := &Pipeline{Source: source, Conv: conv, Input: in, Output: out, Excluded: excluded}
	stats := runstats.New()

	require.NoError(t, p.Run(context.Background(), []string{"-15_-40"}, stats))
	assert.Equal(t, 1, stats.Counter("sources_failed"))

	names := listFiles(t, filepath.Join(out, "-15_-40"))
	for _, n := range names {
		assert.False(t, strings.HasSuffix(n, DescriptorExt), "no descriptor after a failed step, got %s", n)
	}

	// failed source is retried in full on the next run
	conv.failStep = ""
	stats = runstats.New()
	require.NoError(t, p.Run(context.Background(), []string{"-15_-40"}, stats))
	assert.Equal(t, 1, stats.Counter("sources_converted"))
}

func TestConvertVerifyFailureAbortsSource(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	src := writeSource(t, in, "-15_-40", "FC_-15_-40.nc")
	source := &fakeSource{info: unstackedInfo(src), blobs: []string{blobPV}}
	p := &Pipeline{
		Source:   source,
		Conv:     &fakeConv{},
		Verify:   func(string) error { return fmt.Errorf("not tiled") },
		Input:    in,
		Output:   out,
		Excluded: excluded,
	}
	stats := runstats.New()

	require.NoError(t, p.Run(context.Background(), []string{"-15_-40"}, stats))
	assert.Equal(t, 1, stats.Counter("sources_failed"))
}
