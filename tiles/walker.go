// Package tiles enumerates tile directories under a product root. Tile
// directories follow a strict grid naming convention: coordinate pairs
// built from digits, minus signs and an underscore separator, e.g.
// "-15_-40". Anything else under the root (catalogs, scratch leftovers)
// is not a tile.
package tiles

import (
	"fmt"
	"os"
	"path/filepath"
)

// IsTileName reports whether name follows the numeric grid naming
// convention. Only digits, hyphens and underscores qualify, and at least
// one digit must be present.
func IsTileName(name string) bool {
	digit := false
	for _, r := range name {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return digit
}

// Walk resolves a tile selector against the directories currently under
// root. The single selector element "ALL" expands to every qualifying
// subdirectory; explicit selections that have no directory on disk are
// silently dropped. Order follows the directory listing (lexical).
func Walk(root string, selector []string) ([]string, error) {
	if len(selector) == 1 && selector[0] == "ALL" {
		return List(root)
	}
	out := make([]string, 0, len(selector))
	for _, tile := range selector {
		if !IsTileName(tile) {
			continue
		}
		st, err := os.Stat(filepath.Join(root, tile))
		if err != nil || !st.IsDir() {
			continue
		}
		out = append(out, tile)
	}
	return out, nil
}

// List returns every tile directory currently under root.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && IsTileName(e.Name()) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
