package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-library/internal/handlers"
	"media-library/internal/indexer"
	"media-library/internal/logging"
	"media-library/internal/memory"
	"media-library/internal/metrics"
	"media-library/internal/middleware"
	"media-library/internal/mutation"
	"media-library/internal/startup"
	"media-library/internal/thumbnails"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

const (
	metricsCollectInterval = 30 * time.Second
	shutdownTimeout        = 30 * time.Second
)

// background is the set of long-running components shared by watch and
// serve.
type background struct {
	watcher   *indexer.Watcher
	worker    *thumbnails.Worker
	monitor   *memory.Monitor
	collector *metrics.Collector
}

// startBackground starts the filesystem watcher, the thumbnail worker, the
// memory monitor and the metrics collector. Files added by a sync are
// queued for thumbnails.
func startBackground(a *app, limit memory.Limit) (*background, error) {
	monitor := memory.NewMonitor(limit.Bytes)
	monitor.Start()

	worker := thumbnails.NewWorker(thumbnails.NewGenerator(a.cfg, a.tools), a.cfg.ThumbnailQueue)
	worker.SetGate(monitor)
	worker.Start()

	watcher := indexer.NewWatcher(a.cfg, indexer.NewSynchronizer(a.cfg, a.db, a.hasher, a.tools))
	watcher.SetOnSyncComplete(func(result *indexer.SyncResult) {
		queueThumbnails(a, worker, result.Details.UntrackedFiles)
	})
	if err := watcher.Start(); err != nil {
		worker.Stop()
		monitor.Stop()
		return nil, fmt.Errorf("starting watcher: %w", err)
	}

	collector := metrics.NewCollector(a.db, metricsCollectInterval)
	collector.Start()

	return &background{watcher: watcher, worker: worker, monitor: monitor, collector: collector}, nil
}

// stop shuts the components down in reverse start order.
func (b *background) stop() {
	b.collector.Stop()
	startup.LogShutdownStepComplete("Metrics collector stopped")

	b.watcher.Stop()
	startup.LogShutdownStepComplete("Watcher stopped")

	b.worker.Stop()
	startup.LogShutdownStepComplete("Thumbnail worker stopped")

	b.monitor.Stop()
}

func queueThumbnails(a *app, worker *thumbnails.Worker, paths []string) {
	ctx := context.Background()
	for _, rel := range paths {
		rec, err := a.db.GetRecordByPath(ctx, rel)
		if err != nil {
			logging.Debug("No record for synced file %s: %v", rel, err)
			continue
		}
		if !worker.Enqueue(thumbnails.Job{Path: a.cfg.Abs(rec.Path), Hash: rec.ContentHash, Kind: rec.Kind}) {
			logging.Debug("Thumbnail queue full, %s will be generated on demand", rel)
		}
	}
}

// prepareLongRunning sets the memory limit, logs the startup report and
// creates the library layout before a watch or serve session.
func prepareLongRunning(cmd *cobra.Command) (*app, memory.Limit, error) {
	limit := memory.ConfigureFromEnv()

	a, err := newApp(cmd.Context())
	if err != nil {
		return nil, limit, err
	}
	startup.LogConfig(a.cfg)
	if err := startup.EnsureLayout(a.cfg); err != nil {
		return nil, limit, multierr.Append(err, a.Close())
	}
	startup.LogToolCheck()
	return a, limit, nil
}

func waitForSignal() os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	return <-sigChan
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the index in sync as files change, until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, limit, err := prepareLongRunning(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		bg, err := startBackground(a, limit)
		if err != nil {
			return err
		}
		logging.Info("Watching %s (Ctrl+C to stop)", a.cfg.Root)

		sig := waitForSignal()
		startup.LogShutdownInitiated(sig.String())
		bg.stop()
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the watcher and the operations HTTP endpoint",
	Long: `serve keeps the index in sync like watch and exposes:

  GET  /metrics    Prometheus metrics
  GET  /healthz    index health, sync state and library totals
  GET  /livez      liveness probe
  GET  /version    build information
  POST /api/sync   run a sync (?mode=incremental|full) and stream its
                   progress as newline-delimited JSON
  POST /api/bulk-edit-date
                   apply a batch date edit and stream its progress as
                   newline-delimited JSON`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		startTime := time.Now()

		a, limit, err := prepareLongRunning(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		bg, err := startBackground(a, limit)
		if err != nil {
			return err
		}

		h := handlers.New(a.cfg, a.db, bg.watcher, mutation.NewEditor(a.cfg, a.db, a.tools, a.hasher))
		router := setupRouter(h)
		startup.LogHTTPRoutes(router)

		handler := middleware.Logger(middleware.DefaultLoggingConfig())(router)
		handler = middleware.Metrics(middleware.DefaultMetricsConfig())(handler)

		srv := &http.Server{
			Addr:              ":" + a.cfg.MetricsPort,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			// Sync responses stream for as long as the run takes.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		}

		serveErr := make(chan error, 1)
		go func() {
			startup.LogServerStarted(a.cfg.MetricsPort, time.Since(startTime))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		var runErr error
		select {
		case sig := <-sigChan:
			startup.LogShutdownInitiated(sig.String())
		case err := <-serveErr:
			runErr = fmt.Errorf("server error: %w", err)
			logging.Error("%v", runErr)
		}

		return multierr.Append(runErr, shutdown(srv, bg))
	},
}

func shutdown(srv *http.Server, bg *background) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error
	if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
		logging.Warn("Server shutdown error: %v", shutdownErr)
		err = shutdownErr
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	bg.stop()
	return err
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", h.MetricsHandler()).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sync", h.TriggerSync).Methods("POST")
	api.HandleFunc("/bulk-edit-date", h.BulkEditDate).Methods("POST")

	return r
}
