package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrapipe/cogstac/config"
)

func TestConfiguredSource(t *testing.T) {
	cfg := &config.Config{
		Description: "Fractional Cover",
		Homepage:    "https://example.com/fc",
		License:     &config.License{Name: "CC BY 4.0"},
		Formats:     []string{"cog"},
	}
	md := ConfiguredSource{Cfg: cfg}.RootMetadata(context.Background())
	assert.Equal(t, "Fractional Cover", md.Description)
	assert.Equal(t, "https://example.com/fc", md.Homepage)
	require.NotNil(t, md.License)
	assert.Equal(t, "CC BY 4.0", md.License.Name)
	assert.Equal(t, []string{"cog"}, md.Formats)
	assert.Nil(t, md.Contact)
}

func TestSidecarSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.yaml")
	doc := `
description: Fractional Cover
contact:
  name: Example Org
  email: data@example.com
keywords: [vegetation, landsat]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	md := SidecarSource{Path: path}.RootMetadata(context.Background())
	assert.Equal(t, "Fractional Cover", md.Description)
	require.NotNil(t, md.Contact)
	assert.Equal(t, "data@example.com", md.Contact.Email)
	assert.Equal(t, []string{"vegetation", "landsat"}, md.Keywords)
}

func TestSidecarSourceDegradesToEmpty(t *testing.T) {
	dir := t.TempDir()

	md := SidecarSource{Path: filepath.Join(dir, "absent.yaml")}.RootMetadata(context.Background())
	assert.Equal(t, RootMetadata{}, md)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("{{{ nope"), 0o644))
	md = SidecarSource{Path: bad}.RootMetadata(context.Background())
	assert.Equal(t, RootMetadata{}, md)
}
