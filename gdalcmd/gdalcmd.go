// Package gdalcmd wraps the raster primitives the pipeline consumes as
// opaque capabilities: probing multi-subdataset containers through godal,
// and running the GDAL command line tools for band extraction, overview
// building and COG encoding. Each external step is a blocking call; a
// non-zero exit aborts the current source with the failed command and its
// status attached.
package gdalcmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/alessio/shellescape"
	shellwords "github.com/mattn/go-shellwords"
)

// Step names reported by StepError.
const (
	StepExtract   = "extract"
	StepOverviews = "overviews"
	StepEncode    = "encode"
)

// StepError reports a failed external conversion step.
type StepError struct {
	Step string
	Cmd  []string
	Code int
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step: command %s exited with status %d: %v",
		e.Step, shellescape.QuoteCommand(e.Cmd), e.Code, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Subdataset is one addressable sub-raster of a container.
type Subdataset struct {
	// Name is the full GDAL identifier, e.g. NETCDF:"/in/f.nc":PV.
	Name string
	// Band is the trailing identifier segment, e.g. PV.
	Band string
}

// ContainerInfo describes a multi-subdataset container.
type ContainerInfo struct {
	Subdatasets []Subdataset
	// BandCount is the per-subdataset raster count R, probed from the
	// first subdataset. R>1 means a stacked container.
	BandCount int
}

// Source is the read-side capability over raster containers.
type Source interface {
	Probe(ctx context.Context, path string) (*ContainerInfo, error)
	EmbeddedDescriptors(ctx context.Context, path string, n int) ([]string, error)
}

// Converter is the write-side capability: the three external steps of one
// band conversion.
type Converter interface {
	ExtractBand(ctx context.Context, subdataset string, band int, dst string, workdir string) error
	BuildOverviews(ctx context.Context, path string, workdir string) error
	EncodeCOG(ctx context.Context, src, dst string, workdir string) error
}

// Toolchain implements Source and Converter over godal and the gdal CLI
// tools.
type Toolchain struct {
	// ExtraTranslateSwitches is appended to the extraction step,
	// operator-supplied via ParseTranslateSwitches.
	ExtraTranslateSwitches []string

	// run is swapped in tests.
	run func(ctx context.Context, workdir string, cmd []string) error
}

func New() *Toolchain {
	return &Toolchain{run: runCommand}
}

// ParseTranslateSwitches splits an operator-supplied gdal_translate switch
// string and rejects switches that would alter geometry or band layout.
func ParseTranslateSwitches(s string) ([]string, error) {
	switches, err := shellwords.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid translate switches: %w", err)
	}
	for _, sw := range switches {
		switch sw {
		case "-b", "-sds", "-of", "-te", "-outsize", "-tr", "-srcwin", "-projwin", "-a_ullr":
			return nil, fmt.Errorf("%s switch not allowed", sw)
		}
	}
	return switches, nil
}

// Probe enumerates the container's subdatasets and the band count of the
// first one.
func (t *Toolchain) Probe(ctx context.Context, path string) (*ContainerInfo, error) {
	ds, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer ds.Close()

	md := ds.Metadatas(godal.Domain("SUBDATASETS"))
	type entry struct {
		key, name string
	}
	entries := make([]entry, 0, len(md)/2)
	for k, v := range md {
		if strings.HasSuffix(k, "_NAME") {
			entries = append(entries, entry{k, v})
		}
	}
	// keys are SUBDATASET_<n>_NAME; <n> is small enough that the
	// lexical order only breaks past 9 subdatasets
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].key) != len(entries[j].key) {
			return len(entries[i].key) < len(entries[j].key)
		}
		return entries[i].key < entries[j].key
	})
	info := &ContainerInfo{}
	for _, e := range entries {
		info.Subdatasets = append(info.Subdatasets, Subdataset{
			Name: e.name,
			Band: BandName(e.name),
		})
	}
	if len(info.Subdatasets) == 0 {
		// plain single-dataset container
		info.Subdatasets = append(info.Subdatasets, Subdataset{Name: path, Band: BandName(path)})
	}

	first, err := godal.Open(info.Subdatasets[0].Name, godal.RasterOnly())
	if err != nil {
		return nil, fmt.Errorf("open subdataset %s: %w", info.Subdatasets[0].Name, err)
	}
	defer first.Close()
	info.BandCount = len(first.Bands())
	return info, nil
}

// EmbeddedDescriptors returns the n indexing documents the container
// carries, one per stacked slice. The datacube prep step stores them in
// the "dataset" variable, which the netCDF driver surfaces through the
// container metadata domain.
func (t *Toolchain) EmbeddedDescriptors(ctx context.Context, path string, n int) ([]string, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer ds.Close()
	md := ds.Metadatas()
	if n <= 1 {
		if v, ok := md["dataset"]; ok {
			return []string{v}, nil
		}
		return nil, fmt.Errorf("%s: no embedded descriptor", path)
	}
	blobs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		v, ok := md[fmt.Sprintf("dataset#%d", i)]
		if !ok {
			return nil, fmt.Errorf("%s: no embedded descriptor for slice %d", path, i)
		}
		blobs = append(blobs, v)
	}
	return blobs, nil
}

// BandName extracts the trailing identifier segment of a subdataset name,
// e.g. PV from NETCDF:"/in/f.nc":PV.
func BandName(subdataset string) string {
	idx := strings.LastIndex(subdataset, ":")
	if idx < 0 {
		return subdataset
	}
	return subdataset[idx+1:]
}

// ExtractBand pulls one band of a subdataset into a plain GeoTIFF.
func (t *Toolchain) ExtractBand(ctx context.Context, subdataset string, band int, dst string, workdir string) error {
	cmd := []string{"gdal_translate", "-b", fmt.Sprintf("%d", band)}
	cmd = append(cmd, t.ExtraTranslateSwitches...)
	cmd = append(cmd, subdataset, dst)
	if err := t.run(ctx, workdir, cmd); err != nil {
		return stepError(StepExtract, cmd, err)
	}
	return nil
}

// BuildOverviews adds the fixed reduced-resolution pyramid: levels
// 2,4,8,16,32, area-averaging resampling, 512 internal overview tiles.
func (t *Toolchain) BuildOverviews(ctx context.Context, path string, workdir string) error {
	cmd := []string{"gdaladdo",
		"-r", "average",
		"--config", "GDAL_TIFF_OVR_BLOCKSIZE", "512",
		path, "2", "4", "8", "16", "32"}
	if err := t.run(ctx, workdir, cmd); err != nil {
		return stepError(StepOverviews, cmd, err)
	}
	return nil
}

// EncodeCOG re-encodes src as the final tiled compressed raster, copying
// the source overviews through.
func (t *Toolchain) EncodeCOG(ctx context.Context, src, dst string, workdir string) error {
	cmd := []string{"gdal_translate",
		"-co", "TILED=YES",
		"-co", "COPY_SRC_OVERVIEWS=YES",
		"-co", "COMPRESS=DEFLATE",
		"-co", "ZLEVEL=9",
		"--config", "GDAL_TIFF_OVR_BLOCKSIZE", "512",
		"-co", "BLOCKXSIZE=512",
		"-co", "BLOCKYSIZE=512",
		"-co", "PREDICTOR=1",
		"-co", "PROFILE=GeoTIFF",
		src, dst}
	if err := t.run(ctx, workdir, cmd); err != nil {
		return stepError(StepEncode, cmd, err)
	}
	return nil
}

func stepError(step string, cmd []string, err error) error {
	code := -1
	var xerr *exec.ExitError
	if errors.As(err, &xerr) {
		code = xerr.ExitCode()
	}
	return &StepError{Step: step, Cmd: cmd, Code: code, Err: err}
}

func runCommand(ctx context.Context, workdir string, cmd []string) error {
	c := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	c.Dir = workdir
	stderr := bytes.Buffer{}
	c.Stderr = &stderr
	if err := c.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}
