// Package catalog assembles the three-level catalog hierarchy over the
// converted output tree: one Item per descriptor, one catalog per tile
// linking its items, and one root catalog linking every tile. Documents
// are regenerated and overwritten on every run.
package catalog

import (
	"github.com/terrapipe/cogstac/config"
)

// Link is one edge of the catalog link graph.
type Link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

// Link relations.
const (
	RelSelf   = "self"
	RelParent = "parent"
	RelRoot   = "root"
	RelChild  = "child"
	RelItem   = "item"
)

// Catalog is a link-graph node: item links at tile level, child links at
// root level. Root catalogs additionally carry the product metadata
// block.
type Catalog struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	License     *config.License  `json:"license,omitempty"`
	Contact     *config.Contact  `json:"contact,omitempty"`
	Formats     []string         `json:"formats,omitempty"`
	Keywords    []string         `json:"keywords,omitempty"`
	Homepage    string           `json:"homepage,omitempty"`
	Provider    *config.Provider `json:"provider,omitempty"`
	Links       []Link           `json:"links"`
}

// Geometry is a WGS84 GeoJSON geometry.
type Geometry struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

type ItemLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type Asset struct {
	Href     string `json:"href"`
	Required bool   `json:"required"`
	Type     string `json:"type"`
}

type Properties struct {
	Datetime    string `json:"datetime"`
	Provider    string `json:"provider,omitempty"`
	License     string `json:"license,omitempty"`
	Copyright   string `json:"copyright,omitempty"`
	ProductType string `json:"product_type,omitempty"`
	Homepage    string `json:"homepage,omitempty"`
}

// Item is the feature record derived from exactly one descriptor.
type Item struct {
	ID         string              `json:"id"`
	Type       string              `json:"type"`
	BBox       [4]float64          `json:"bbox"`
	Geometry   Geometry            `json:"geometry"`
	Properties Properties          `json:"properties"`
	Links      map[string]ItemLink `json:"links"`
	Assets     map[string]Asset    `json:"assets"`
}
