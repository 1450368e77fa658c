package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/star/goeschip/internal/api"
	"github.com/star/goeschip/internal/auth"
	"github.com/star/goeschip/internal/cache"
	"github.com/star/goeschip/internal/chip"
	"github.com/star/goeschip/internal/fixedgrid"
	"github.com/star/goeschip/internal/output"
	"github.com/star/goeschip/internal/pipeline"
	"github.com/star/goeschip/internal/scene"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func preset(c *cli.Context) (string, fixedgrid.ProjectionConfig, error) {
	name := c.String("satellite")
	cfg, ok := fixedgrid.Preset(name)
	if !ok {
		return "", cfg, fmt.Errorf("unknown satellite %q (known: %v)", name, fixedgrid.PresetNames())
	}
	return name, cfg, nil
}

func targetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:     "lat",
			EnvVars:  []string{"GOESCHIP_LAT"},
			Required: true,
			Usage:    "chip centre latitude in degrees",
		},
		&cli.Float64Flag{
			Name:     "lon",
			EnvVars:  []string{"GOESCHIP_LON"},
			Required: true,
			Usage:    "chip centre longitude in degrees",
		},
		&cli.IntFlag{
			Name:    "buffer",
			EnvVars: []string{"GOESCHIP_BUFFER"},
			Value:   50,
			Usage:   "half-width of the chip in pixels",
		},
	}
}

func writerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "out",
			EnvVars: []string{"GOESCHIP_OUT_DIR"},
			Value:   "chips",
			Usage:   "directory chips are written to",
		},
		&cli.BoolFlag{
			Name:    "tiff",
			EnvVars: []string{"GOESCHIP_TIFF"},
			Usage:   "also write a 16-bit centikelvin TIFF per chip",
		},
		&cli.IntFlag{
			Name:    "resize",
			EnvVars: []string{"GOESCHIP_RESIZE"},
			Usage:   "scale PNG chips so their long edge has this many pixels (0 keeps native size)",
		},
		&cli.BoolFlag{
			Name:    "catalog",
			EnvVars: []string{"GOESCHIP_CATALOG"},
			Value:   true,
			Usage:   "record written chips in a Parquet catalog under the output directory",
		},
	}
}

func locateCommand() *cli.Command {
	return &cli.Command{
		Name:  "locate",
		Usage: "Convert a latitude/longitude to fixed-grid scan angles",
		Flags: targetFlags()[:2],
		Action: func(c *cli.Context) error {
			name, cfg, err := preset(c)
			if err != nil {
				return err
			}
			lat, lon := c.Float64("lat"), c.Float64("lon")
			x, y := fixedgrid.LatLonToScanAngles(cfg, lat, lon)
			return printJSON(map[string]any{
				"satellite": name,
				"lat":       lat,
				"lon":       lon,
				"x":         x,
				"y":         y,
				"visible":   fixedgrid.Visible(cfg, lat, lon),
			})
		},
	}
}

func geolocateCommand() *cli.Command {
	return &cli.Command{
		Name:  "geolocate",
		Usage: "Convert fixed-grid scan angles to latitude/longitude",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "x", Required: true, Usage: "E/W scan angle in radians"},
			&cli.Float64Flag{Name: "y", Required: true, Usage: "N/S elevation angle in radians"},
		},
		Action: func(c *cli.Context) error {
			name, cfg, err := preset(c)
			if err != nil {
				return err
			}
			x, y := c.Float64("x"), c.Float64("y")
			lat, lon, err := fixedgrid.ScanAnglesToLatLon(cfg, x, y)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"satellite": name,
				"x":         x,
				"y":         y,
				"lat":       lat,
				"lon":       lon,
			})
		},
	}
}

func synthCommand() *cli.Command {
	defaults := scene.DefaultSynthOptions()
	return &cli.Command{
		Name:      "synth",
		Usage:     "Write a synthetic full-disk scene bundle",
		ArgsUsage: "DIR",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "rows", Value: defaults.Rows, Usage: "scene height in pixels"},
			&cli.IntFlag{Name: "cols", Value: defaults.Cols, Usage: "scene width in pixels"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
			}
			logger, err := newLogger(c)
			if err != nil {
				return err
			}
			name, cfg, err := preset(c)
			if err != nil {
				return err
			}

			opts := defaults
			opts.Rows, opts.Cols = c.Int("rows"), c.Int("cols")
			s, err := scene.Synthesize(cfg, opts)
			if err != nil {
				return err
			}
			dir := c.Args().First()
			if err := scene.Save(dir, s); err != nil {
				return err
			}
			logger.Info("synthetic scene written", "dir", dir, "satellite", name, "rows", opts.Rows, "cols", opts.Cols)
			return nil
		},
	}
}

// newProcessor wires the output directory and optional catalog shared by
// extract and batch.
func newProcessor(c *cli.Context, root string) (*pipeline.Processor, *output.Catalog) {
	logger, _ := newLogger(c)
	out := output.NewDir(c.String("out"), output.Options{TIFF: c.Bool("tiff"), Resize: c.Int("resize")})
	var catalog *output.Catalog
	if c.Bool("catalog") {
		catalog = output.NewCatalog(c.String("out"))
	}
	return pipeline.NewProcessor(os.DirFS(root), out, catalog, logger), catalog
}

func flushCatalog(c *cli.Context, catalog *output.Catalog) error {
	if catalog == nil {
		return nil
	}
	logger, _ := newLogger(c)
	path, err := catalog.Flush()
	if err != nil {
		return err
	}
	if path != "" {
		logger.Info("catalog written", "path", path)
	}
	return nil
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "Extract one chip from a scene bundle",
		ArgsUsage: "SCENE_DIR",
		Flags:     append(targetFlags(), writerFlags()...),
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
			}
			if _, err := newLogger(c); err != nil {
				return err
			}

			dir, err := filepath.Abs(c.Args().First())
			if err != nil {
				return err
			}
			proc, catalog := newProcessor(c, filepath.Dir(dir))
			res, err := proc.Process(c.Context, pipeline.Job{
				Dir:    filepath.Base(dir),
				Center: chip.GeoPoint{Lat: c.Float64("lat"), Lon: c.Float64("lon")},
				Buffer: c.Int("buffer"),
			})
			if err != nil {
				return err
			}
			if err := flushCatalog(c, catalog); err != nil {
				return err
			}
			return printJSON(map[string]any{
				"tag":       res.Written.Tag,
				"png":       res.Written.PNG,
				"tiff":      res.Written.TIFF,
				"window":    res.Chip.Window,
				"clamped":   res.Chip.Clamped,
				"truncated": res.Chip.Window.Truncated,
			})
		},
	}
}

func batchCommand() *cli.Command {
	flags := append(targetFlags(), writerFlags()...)
	flags = append(flags, &cli.IntFlag{
		Name:    "workers",
		EnvVars: []string{"GOESCHIP_WORKERS"},
		Value:   runtime.NumCPU(),
		Usage:   "number of scenes processed concurrently",
	})

	return &cli.Command{
		Name:      "batch",
		Usage:     "Extract the same target from every scene bundle under a directory",
		ArgsUsage: "ROOT",
		Flags:     flags,
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
			}
			logger, err := newLogger(c)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			root := c.Args().First()
			dirs, err := scene.Find(os.DirFS(root), ".")
			if err != nil {
				return err
			}
			if len(dirs) == 0 {
				return fmt.Errorf("no scene bundles under %s", root)
			}

			center := chip.GeoPoint{Lat: c.Float64("lat"), Lon: c.Float64("lon")}
			jobs := make([]pipeline.Job, len(dirs))
			for i, d := range dirs {
				jobs[i] = pipeline.Job{Dir: d, Center: center, Buffer: c.Int("buffer")}
			}

			logger.Info("batch config",
				"root", root,
				"scenes", len(jobs),
				"workers", c.Int("workers"),
				"center", center.String(),
				"buffer", c.Int("buffer"),
				"out", c.String("out"),
			)

			proc, catalog := newProcessor(c, root)
			pool := pipeline.NewWorkerPool(c.Int("workers"), proc, logger)
			results, success, failed := pool.ProcessBatch(ctx, jobs)
			if err := flushCatalog(c, catalog); err != nil {
				return err
			}

			logger.Info("batch complete", "success", success, "failed", failed, "written", len(results))
			if success == 0 {
				return errors.New("no chips extracted")
			}
			return nil
		},
	}
}

func catalogCommand() *cli.Command {
	return &cli.Command{
		Name:      "catalog",
		Usage:     "Summarise the Parquet chip catalog of an output directory",
		ArgsUsage: "OUT_DIR",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
			}
			summary, err := output.Summarize(c.Context, output.CatalogGlob(c.Args().First()))
			if err != nil {
				return err
			}
			if summary == nil {
				summary = []output.SourceSummary{}
			}
			return printJSON(summary)
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve geolocation and chip endpoints over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", EnvVars: []string{"GOESCHIP_HTTP_ADDR"}, Value: ":8080", Usage: "listen address"},
			&cli.StringFlag{Name: "root", EnvVars: []string{"GOESCHIP_SCENE_ROOT"}, Value: "scenes", Usage: "directory holding scene bundles"},
			&cli.BoolFlag{Name: "auth-enabled", EnvVars: []string{"GOESCHIP_AUTH_ENABLED"}, Usage: "require a bearer token on scene endpoints"},
			&cli.StringFlag{Name: "auth-token", EnvVars: []string{"GOESCHIP_AUTH_TOKEN"}, Usage: "bearer token"},
			&cli.BoolFlag{Name: "trust-proxy", EnvVars: []string{"GOESCHIP_TRUST_PROXY"}, Usage: "log client addresses from X-Forwarded-For"},
			&cli.IntFlag{Name: "default-buffer", EnvVars: []string{"GOESCHIP_DEFAULT_BUFFER"}, Value: 50, Usage: "chip buffer when a request names none"},
			&cli.IntFlag{Name: "max-buffer", EnvVars: []string{"GOESCHIP_MAX_BUFFER"}, Value: 256, Usage: "largest chip buffer a request may ask for"},
			&cli.DurationFlag{Name: "cache-ttl", EnvVars: []string{"GOESCHIP_CACHE_TTL"}, Value: 10 * time.Minute, Usage: "how long a decoded scene stays cached after last use"},
			&cli.IntFlag{Name: "cache-entries", EnvVars: []string{"GOESCHIP_CACHE_ENTRIES"}, Value: 4, Usage: "decoded scenes held in memory"},
		},
		Action: func(c *cli.Context) error {
			logger, err := newLogger(c)
			if err != nil {
				return err
			}

			authCfg := auth.Config{Enabled: c.Bool("auth-enabled"), Token: c.String("auth-token")}
			if authCfg.Enabled && authCfg.Token == "" {
				return errors.New("GOESCHIP_AUTH_TOKEN is required when auth is enabled")
			}
			if _, ok := fixedgrid.Preset(c.String("satellite")); !ok {
				return fmt.Errorf("unknown satellite %q", c.String("satellite"))
			}

			root := c.String("root")
			sceneFS := os.DirFS(root)
			cacheCfg := cache.Config{TTL: c.Duration("cache-ttl"), MaxEntries: c.Int("cache-entries")}
			scenes := cache.NewSceneCache(cacheCfg, func(name string) (*scene.Scene, error) {
				return scene.Load(sceneFS, name)
			}, logger)

			srv := api.NewServer(api.Config{
				Addr:          c.String("addr"),
				Auth:          authCfg,
				TrustProxy:    c.Bool("trust-proxy"),
				Satellite:     c.String("satellite"),
				DefaultBuffer: c.Int("default-buffer"),
				MaxBuffer:     c.Int("max-buffer"),
			}, sceneFS, scenes, logger)

			// Graceful shutdown on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go scenes.Start(ctx)

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting server",
					"addr", c.String("addr"),
					"scene_root", root,
					"satellite", c.String("satellite"),
					"auth_enabled", authCfg.Enabled,
					"cache_ttl_seconds", cacheCfg.TTL.Seconds(),
					"cache_entries", cacheCfg.MaxEntries,
				)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("server listen error: %w", err)
			case <-ctx.Done():
			}
			logger.Info("shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			logger.Info("server stopped")
			return nil
		},
	}
}
