package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseName(t *testing.T) {
	assert.Equal(t, "FC_-15_-40_2020", BaseName("/in/-15_-40/FC_-15_-40_2020.nc"))
	assert.Equal(t, "plain", BaseName("plain.tif"))
}

func TestAssetFileName(t *testing.T) {
	assert.Equal(t, "FC_PV.tif", AssetFileName("FC", 0, "PV"))
	assert.Equal(t, "FC_3_PV.tif", AssetFileName("FC", 3, "PV"))
	assert.Equal(t, "FC_12_BS_PC_10.tif", AssetFileName("FC", 12, "BS_PC_10"))
}

func TestDescriptorFileName(t *testing.T) {
	assert.Equal(t, "FC.yaml", DescriptorFileName("FC", 0))
	assert.Equal(t, "FC_2.yaml", DescriptorFileName("FC", 2))
}

func TestAncillaryBand(t *testing.T) {
	suffixes := []string{"_observed_date", "_source"}
	cases := []struct {
		band string
		want bool
	}{
		{"PV", false},
		{"NPV", false},
		{"FC_observed_date", true},
		{"FC_source", true},
		{"observed_date_PV", false},
		{"source", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, AncillaryBand(c.band, suffixes), c.band)
	}
}

func TestDataSubdataset(t *testing.T) {
	assert.True(t, DataSubdataset("PV"))
	assert.False(t, DataSubdataset("dataset"))
}
