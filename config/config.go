// Package config loads and resolves the pipeline configuration. Resolution
// happens exactly once: defaults are folded in, the environment tile
// selector override is applied, and required keys are validated. Every
// other package consumes the resolved value and never asks where a field
// came from.
package config

import (
	"fmt"
	"os"
	"strings"

	"sigs.k8s.io/yaml"
)

// SelectorAll is the sentinel expanding to every tile directory on disk.
const SelectorAll = "ALL"

// TilesEnv overrides the configured tile selector when set
// (comma-separated tile names, or ALL).
const TilesEnv = "COGSTAC_TILES"

// KeyError reports a required configuration key that is missing or empty.
// It is fatal at startup: no partial run is attempted.
type KeyError struct {
	Key string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("configuration: required key %q missing", e.Key)
}

type License struct {
	Name      string `json:"name,omitempty"`
	Copyright string `json:"copyright,omitempty"`
}

type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	URL   string `json:"url,omitempty"`
}

type Provider struct {
	Scheme        string `json:"scheme,omitempty"`
	Region        string `json:"region,omitempty"`
	RequesterPays bool   `json:"requester_pays,omitempty"`
}

type Publish struct {
	Enabled bool   `json:"enabled,omitempty"`
	Bucket  string `json:"bucket,omitempty"`
	Prefix  string `json:"prefix,omitempty"`
	Region  string `json:"region,omitempty"`
}

// Config is the resolved configuration for one run.
type Config struct {
	Input   string `json:"input"`
	Output  string `json:"output"`
	BaseURL string `json:"base_url"`
	Product string `json:"product"`

	// Tiles is the tile selector: explicit directory names, or the
	// single element ALL.
	Tiles []string `json:"tiles,omitempty"`

	Convert bool `json:"convert"`
	Catalog bool `json:"catalog"`

	BandLabels      map[string]string `json:"band_labels,omitempty"`
	ExcludeSuffixes []string          `json:"exclude_suffixes,omitempty"`

	// TranslateSwitches carries extra gdal_translate switches for the
	// band extraction step, shellwords syntax.
	TranslateSwitches string `json:"translate_switches,omitempty"`

	Description string    `json:"description,omitempty"`
	Homepage    string    `json:"homepage,omitempty"`
	License     *License  `json:"license,omitempty"`
	Contact     *Contact  `json:"contact,omitempty"`
	Provider    *Provider `json:"provider,omitempty"`
	Formats     []string  `json:"formats,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`

	Publish Publish `json:"publish,omitempty"`
}

// rawConfig distinguishes absent booleans from explicit false so that the
// stage toggles can default to on.
type rawConfig struct {
	Config
	Convert *bool `json:"convert,omitempty"`
	Catalog *bool `json:"catalog,omitempty"`
}

// Resolve reads the configuration document at path and returns the one
// fully-populated value the rest of the run consumes.
func Resolve(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return resolve(buf)
}

func resolve(buf []byte) (*Config, error) {
	raw := rawConfig{}
	if err := yaml.UnmarshalStrict(buf, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg := raw.Config
	cfg.Convert = raw.Convert == nil || *raw.Convert
	cfg.Catalog = raw.Catalog == nil || *raw.Catalog

	if env := os.Getenv(TilesEnv); env != "" {
		cfg.Tiles = nil
		for _, t := range strings.Split(env, ",") {
			if t = strings.TrimSpace(t); t != "" {
				cfg.Tiles = append(cfg.Tiles, t)
			}
		}
	}
	if len(cfg.Tiles) == 0 {
		cfg.Tiles = []string{SelectorAll}
	}
	if len(cfg.ExcludeSuffixes) == 0 {
		cfg.ExcludeSuffixes = []string{"_observed_date", "_source"}
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = []string{"geotiff", "cog"}
	}

	if cfg.Input == "" {
		return nil, &KeyError{Key: "input"}
	}
	if cfg.Output == "" {
		return nil, &KeyError{Key: "output"}
	}
	if cfg.Catalog {
		if cfg.BaseURL == "" {
			return nil, &KeyError{Key: "base_url"}
		}
		if cfg.Product == "" {
			return nil, &KeyError{Key: "product"}
		}
		// link construction assumes a trailing slash, as the
		// original pipeline did
		if !strings.HasSuffix(cfg.BaseURL, "/") {
			cfg.BaseURL += "/"
		}
	}
	if cfg.Publish.Enabled && cfg.Publish.Bucket == "" {
		return nil, &KeyError{Key: "publish.bucket"}
	}
	return &cfg, nil
}

// SelectsAll reports whether the tile selector is the ALL sentinel.
func (c *Config) SelectsAll() bool {
	return len(c.Tiles) == 1 && c.Tiles[0] == SelectorAll
}
