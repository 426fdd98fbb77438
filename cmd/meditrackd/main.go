package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mvdwal/meditrack/internal/api"
	"github.com/mvdwal/meditrack/internal/config"
	"github.com/mvdwal/meditrack/internal/cron"
	"github.com/mvdwal/meditrack/internal/mail"
	"github.com/mvdwal/meditrack/internal/metrics"
	"github.com/mvdwal/meditrack/internal/refdata"
	"github.com/mvdwal/meditrack/internal/storage"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

// App holds the long-lived application components.
type App struct {
	config  *config.Config
	store   *storage.Store
	catalog *refdata.Catalog
	mailer  mail.Mailer
	server  *api.Server
	cron    *cron.Runner
	logger  *zap.Logger
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "sweep":
			runSweepOnce(os.Args[2:])
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "version", "--version", "-v":
			fmt.Printf("meditrackd version %s\n", version)
			return
		}
	}

	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting meditrackd", zap.String("version", version))

	app, err := newApp(*configPath, *dataDir, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer app.close()

	app.run()
}

func newApp(configPath, dataDir string, logger *zap.Logger) (*App, error) {
	cfg, err := config.Load(configPath, dataDir)
	if err != nil {
		return nil, err
	}
	if err := config.WriteStarter(filepath.Join(cfg.Storage.DataDir, "meditrack.yaml"), cfg); err != nil {
		logger.Warn("failed to write starter config", zap.Error(err))
	}

	store, err := storage.Open(cfg, logger)
	if err != nil {
		return nil, err
	}

	var catalog *refdata.Catalog
	if cfg.Storage.RefDataPath != "" {
		catalog, err = refdata.Open(cfg.Storage.RefDataPath, logger)
		if err != nil {
			logger.Warn("reference catalog unavailable", zap.Error(err))
			catalog = nil
		}
	}

	mailer := mail.New(cfg.Mail, logger)

	app := &App{
		config:  cfg,
		store:   store,
		catalog: catalog,
		mailer:  mailer,
		server:  api.New(cfg, store, catalog, mailer, logger),
		cron:    cron.NewRunner(cfg.Cron, store, mailer, logger),
		logger:  logger,
	}
	return app, nil
}

func (a *App) run() {
	if a.config.Cron.Enabled {
		if err := a.cron.Start(); err != nil {
			a.logger.Fatal("failed to start cron runner", zap.Error(err))
		}
	}

	if a.config.Metrics.Enabled {
		go a.serveMetrics()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.logger.Error("http server stopped", zap.Error(err))
	case sig := <-quit:
		a.logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	if err := a.server.Shutdown(); err != nil {
		a.logger.Error("http shutdown failed", zap.Error(err))
	}
	if a.config.Cron.Enabled {
		a.cron.Stop()
	}
}

// serveMetrics exposes Prometheus metrics on its own listener so the
// exposition port can stay off the public interface.
func (a *App) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              a.config.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.logger.Info("metrics listening", zap.String("addr", a.config.Metrics.Address))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		a.logger.Error("metrics server stopped", zap.Error(err))
	}
}

func (a *App) close() {
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			a.logger.Error("failed to close catalog", zap.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close store", zap.Error(err))
	}
}

// runSweepOnce runs the low-stock sweep immediately and exits. Useful
// for testing mail configuration and for external schedulers.
func runSweepOnce(args []string) {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to config file")
	data := fs.String("data", "", "Path to data directory")
	_ = fs.Parse(args)

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	app, err := newApp(*cfgPath, *data, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer app.close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	app.cron.RunExpirySweep(ctx)
}

func printHelp() {
	fmt.Println(`meditrackd - personal medication tracking server

Usage:
  meditrackd [flags]          Run the server
  meditrackd sweep [flags]    Run the low-stock sweep once and exit
  meditrackd version          Print version

Flags:
  -config string   Path to config file
  -data string     Path to data directory

Configuration may also be set via MEDITRACK_* environment variables,
e.g. MEDITRACK_SERVER_PORT=9000.`)
}
