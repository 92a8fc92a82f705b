package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/astromechza/pixelwar/pkg/api"
	"github.com/astromechza/pixelwar/pkg/archive"
	"github.com/astromechza/pixelwar/pkg/canvas"
	"github.com/astromechza/pixelwar/pkg/config"
	"github.com/astromechza/pixelwar/pkg/export"
	"github.com/astromechza/pixelwar/pkg/hub"
	"github.com/astromechza/pixelwar/pkg/journal"
	"github.com/astromechza/pixelwar/pkg/metrics"
	"github.com/astromechza/pixelwar/pkg/render"
	"github.com/astromechza/pixelwar/pkg/stream"
)

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured canvases over HTTP and websockets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().String("addr", "localhost:8080", "the address to listen on")
	cmd.Flags().String("log-level", "info", "debug, info, warn or error")
	cmd.Flags().Int("max-conns", 0, "maximum simultaneous connections, 0 for no limit")
	cmd.Flags().String("journal-path", ":memory:", "sqlite file recording edit history")
	cmd.Flags().String("dump-dir", "", "directory to dump every canvas into on shutdown")
	return cmd
}

func buildRegistry(cfg *config.Config, j *journal.Journal, m *metrics.Metrics) (*canvas.Registry, error) {
	registry := canvas.NewRegistry()
	for _, cc := range cfg.Canvases {
		opts := []canvas.CanvasOption{
			canvas.WithHubOptions(hub.WithObserver(m.HubObserver(cc.Name))),
		}
		if j != nil {
			opts = append(opts, canvas.WithObserver(j))
		}
		if _, err := registry.Create(cc.Name, canvas.Options{Width: cc.Width, Height: cc.Height, Cooldown: cc.Cooldown}, opts...); err != nil {
			return nil, err
		}
		slog.Info("canvas ready", "canvas", cc.Name, "width", cc.Width, "height", cc.Height, "cooldown", cc.Cooldown)
	}
	return registry, nil
}

func serve(cfg *config.Config) error {
	level, _ := cfg.SlogLevel()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promRegistry)

	slog.Info("Opening journal", "path", cfg.Journal.Path)
	j, err := journal.Open(cfg.Journal.Path, journal.Options{
		Buffer:        cfg.Journal.Buffer,
		FlushInterval: cfg.Journal.FlushInterval,
		Metrics:       m,
	})
	if err != nil {
		return err
	}
	defer j.Close()

	registry, err := buildRegistry(cfg, j, m)
	if err != nil {
		return err
	}

	s := api.New(api.Options{
		Registry:     registry,
		Journal:      j,
		Metrics:      m,
		Gatherer:     promRegistry,
		CookieSecure: cfg.Cookie.Secure,
		CookieMaxAge: cfg.Cookie.MaxAge,
		Stream: stream.Options{
			SendBuffer:   cfg.Stream.SendBuffer,
			WriteTimeout: cfg.Stream.WriteTimeout,
		},
		PreinitRate:  cfg.Preinit.Rate,
		PreinitBurst: cfg.Preinit.Burst,
	})

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if cfg.MaxConns > 0 {
		listener = netutil.LimitListener(listener, cfg.MaxConns)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		j.Run(ctx)
	}()

	if cfg.Archive.Bucket != "" {
		client := archive.NewS3Client(archive.ClientOptions{
			Region:    cfg.Archive.Region,
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			PathStyle: cfg.Archive.PathStyle,
		})
		arch := archive.New(client, registry, archive.Options{
			Bucket:   cfg.Archive.Bucket,
			Prefix:   cfg.Archive.Prefix,
			Interval: cfg.Archive.Interval,
			Scale:    cfg.Archive.Scale,
			Metrics:  m,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			arch.Run(ctx)
		}()
		slog.Info("archiving snapshots", "bucket", cfg.Archive.Bucket, "interval", cfg.Archive.Interval)
	}

	httpServer := &http.Server{Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("listening", "addr", listener.Addr().String())
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen failed", "err", err)
		}
	}()

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)

	// websockets are hijacked, so Shutdown does not see them
	registry.Each(func(c *canvas.Canvas) bool {
		c.Hub().CloseAll()
		return true
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down cleanly", "err", err)
		_ = httpServer.Close()
	}
	cancel()

	wg.Wait()

	if cfg.DumpDir != "" {
		dump(cfg.DumpDir, registry)
	}
	return nil
}

// dump writes every canvas as an exported document and a PNG into dir.
func dump(dir string, registry *canvas.Registry) {
	registry.Each(func(c *canvas.Canvas) bool {
		grid, version := c.Snapshot()
		raw, err := export.Save(c.Name(), grid)
		if err != nil {
			slog.Error("failed to dump", "canvas", c.Name(), "err", err)
			return true
		}
		docPath := filepath.Join(dir, c.Name()+".automerge")
		if err := os.WriteFile(docPath, raw, 0o644); err != nil {
			slog.Error("failed to dump", "canvas", c.Name(), "err", err)
			return true
		}
		slog.Info("dumped", "canvas", c.Name(), "path", docPath, "version", version)

		pngPath := filepath.Join(dir, c.Name()+".png")
		f, err := os.Create(pngPath)
		if err != nil {
			slog.Error("failed to render", "canvas", c.Name(), "err", err)
			return true
		}
		defer f.Close()
		if err := render.PNG(f, grid, render.Options{Scale: 4, Caption: fmt.Sprintf("%s v%d", c.Name(), version)}); err != nil {
			slog.Error("failed to render", "canvas", c.Name(), "err", err)
		} else {
			slog.Info("rendered", "canvas", c.Name(), "path", "file://"+pngPath)
		}
		return true
	})
}
