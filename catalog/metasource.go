package catalog

import (
	"context"
	"fmt"
	"os"

	"go.airbusds-geo.com/log"
	"sigs.k8s.io/yaml"

	"github.com/terrapipe/cogstac/config"
)

// RootMetadata is the product metadata block merged into the root
// catalog and item properties.
type RootMetadata struct {
	Description string           `json:"description,omitempty"`
	Homepage    string           `json:"homepage,omitempty"`
	License     *config.License  `json:"license,omitempty"`
	Contact     *config.Contact  `json:"contact,omitempty"`
	Provider    *config.Provider `json:"provider,omitempty"`
	Formats     []string         `json:"formats,omitempty"`
	Keywords    []string         `json:"keywords,omitempty"`
}

// MetadataSource supplies the root metadata block. It is selected once at
// startup; the builder never branches on which kind it got.
type MetadataSource interface {
	RootMetadata(ctx context.Context) RootMetadata
}

// ConfiguredSource serves metadata straight from the resolved
// configuration.
type ConfiguredSource struct {
	Cfg *config.Config
}

func (s ConfiguredSource) RootMetadata(context.Context) RootMetadata {
	return RootMetadata{
		Description: s.Cfg.Description,
		Homepage:    s.Cfg.Homepage,
		License:     s.Cfg.License,
		Contact:     s.Cfg.Contact,
		Provider:    s.Cfg.Provider,
		Formats:     s.Cfg.Formats,
		Keywords:    s.Cfg.Keywords,
	}
}

// SidecarSource reads the metadata block from an auxiliary document next
// to the output tree. An absent or unreadable sidecar degrades to an
// empty block: the fields it would have populated are omitted.
type SidecarSource struct {
	Path string
}

func (s SidecarSource) RootMetadata(ctx context.Context) RootMetadata {
	md := RootMetadata{}
	buf, err := os.ReadFile(s.Path)
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("metadata sidecar %s: %v", s.Path, err)
		return md
	}
	if err := yaml.Unmarshal(buf, &md); err != nil {
		log.Logger(ctx).Sugar().Warnf("metadata sidecar %s: %v", s.Path, fmt.Errorf("parse: %w", err))
		return RootMetadata{}
	}
	return md
}
