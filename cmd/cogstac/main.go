package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/osio"
	"github.com/airbusgeo/osio/gcs"
	"github.com/spf13/cobra"
	"go.airbusds-geo.com/log"

	"github.com/terrapipe/cogstac"
	"github.com/terrapipe/cogstac/catalog"
	"github.com/terrapipe/cogstac/cogcheck"
	"github.com/terrapipe/cogstac/config"
	"github.com/terrapipe/cogstac/gdalcmd"
	"github.com/terrapipe/cogstac/proj"
	"github.com/terrapipe/cogstac/publish"
	"github.com/terrapipe/cogstac/runstats"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "cogstac",
	Short: "tiled raster product to COG + catalog converter",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !verbose {
			os.Setenv("LOGLEVEL", "info")
			log.Structured()
		}
		godal.RegisterAll()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")
	rootCmd.AddCommand(runCmd, checkCmd)
	runCmd.Flags().String("config", "cogstac.yaml", "configuration document")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "convert sources and regenerate catalogs per the configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Resolve(cfgPath)
		if err != nil {
			return err
		}

		if strings.HasPrefix(cfg.Input, "gs://") {
			if err := registerGCS(ctx); err != nil {
				return err
			}
		}

		tc := gdalcmd.New()
		if cfg.TranslateSwitches != "" {
			sw, err := gdalcmd.ParseTranslateSwitches(cfg.TranslateSwitches)
			if err != nil {
				return err
			}
			tc.ExtraTranslateSwitches = sw
		}

		var projector *proj.Projector
		if cfg.Catalog {
			if projector, err = proj.NewProjector(proj.GridEPSG, proj.WGS84EPSG); err != nil {
				return err
			}
			defer projector.Close()
		}

		runner := &cogstac.Runner{
			Cfg:       cfg,
			Source:    tc,
			Conv:      tc,
			Verify:    cogcheck.File,
			Projector: projector,
			Meta:      metadataSource(cfg),
		}
		if cfg.Publish.Enabled {
			runner.Publisher = publish.New(cfg.Publish)
		}

		stats := runstats.New()
		defer stats.Log(ctx)
		return runner.Run(ctx, stats)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check file.tif...",
	Short: "verify the structural layout of emitted rasters",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		for _, arg := range args {
			if err := cogcheck.File(arg); err != nil {
				fmt.Fprintln(os.Stderr, err.Error())
				failed++
				continue
			}
			fmt.Printf("%s: ok\n", arg)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(args))
		}
		return nil
	},
}

// metadataSource picks the root metadata capability once: configuration
// when it carries a metadata block, else the sidecar next to the output
// tree.
func metadataSource(cfg *config.Config) catalog.MetadataSource {
	if cfg.License != nil || cfg.Contact != nil || cfg.Description != "" {
		return catalog.ConfiguredSource{Cfg: cfg}
	}
	return catalog.SidecarSource{Path: filepath.Join(cfg.Output, "metadata.yaml")}
}

func registerGCS(ctx context.Context) error {
	stcl, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("storage.newclient: %w", err)
	}
	gcsh, err := gcs.Handle(ctx, gcs.GCSClient(stcl))
	if err != nil {
		return fmt.Errorf("gcs.handle: %w", err)
	}
	gcsa, err := osio.NewAdapter(gcsh)
	if err != nil {
		return fmt.Errorf("osio.new: %w", err)
	}
	if err := godal.RegisterVSIHandler("gs://", gcsa); err != nil {
		return fmt.Errorf("register osio: %w", err)
	}
	return nil
}
