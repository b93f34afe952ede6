package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/bladelsp/internal/config"
	"github.com/standardbeagle/bladelsp/internal/engine"
	"github.com/standardbeagle/bladelsp/internal/filetype"
	"github.com/standardbeagle/bladelsp/internal/watcher"
)

func watchCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: watch DIR")
	}

	e, cfg, err := newEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			log.Printf("Received signal %v, shutting down...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return runWatch(ctx, watchOptions{
		root:        c.Args().First(),
		metricsAddr: c.String("metrics-addr"),
		out:         c.App.Writer,
	}, e, cfg)
}

type watchOptions struct {
	root        string
	metricsAddr string
	out         io.Writer
	// ready receives the metrics listener address once serving starts
	ready func(addr string)
}

// runWatch blocks until ctx is done, printing the performance report on
// every report interval and once more on exit.
func runWatch(ctx context.Context, opts watchOptions, e *engine.Engine, cfg *config.Config) error {
	info, err := os.Stat(opts.root)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", opts.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", opts.root)
	}

	w, err := watcher.New(cfg.Watch, filetype.NewClassifier(cfg.FileTypes), e,
		watcher.WithBatchCallback(func(count int, d time.Duration) {
			log.Printf("Processed %d file events in %v", count, d.Round(time.Millisecond))
		}))
	if err != nil {
		return err
	}
	if err := w.Start(opts.root); err != nil {
		return err
	}
	defer func() {
		if err := w.Stop(); err != nil {
			log.Printf("Error stopping watcher: %v", err)
		}
	}()

	if opts.metricsAddr != "" {
		srv, err := newMetricsServer(opts.metricsAddr, e)
		if err != nil {
			return err
		}
		srv.start()
		if opts.ready != nil {
			opts.ready(srv.addr())
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.stop(shutdownCtx); err != nil {
				log.Printf("Error stopping metrics server: %v", err)
			}
		}()
	}

	fmt.Fprintf(opts.out, "Watching %s\n", opts.root)

	interval := cfg.Performance.ReportInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(opts.out, e.PerformanceReport())
			return nil
		case <-ticker.C:
			fmt.Fprintln(opts.out, e.PerformanceReport())
		}
	}
}

// metricsServer exposes the engine collectors on /metrics and the current
// load on /health.
type metricsServer struct {
	listener net.Listener
	server   *http.Server
	done     chan struct{}
}

func newMetricsServer(addr string, e *engine.Engine) (*metricsServer, error) {
	registry := prometheus.NewRegistry()
	for _, c := range e.Collectors() {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		snap := e.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":     "up",
			"under_load": snap.LoadNow,
			"in_flight":  snap.InFlight,
		})
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &metricsServer{
		listener: ln,
		server:   &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		done:     make(chan struct{}),
	}, nil
}

func (s *metricsServer) addr() string { return s.listener.Addr().String() }

func (s *metricsServer) start() {
	log.Printf("Metrics server listening on %s", s.addr())
	go func() {
		defer close(s.done)
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Metrics server failed: %v", err)
		}
	}()
}

func (s *metricsServer) stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	<-s.done
	return err
}
