package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"h1b_ingest/internal/app"
	"h1b_ingest/internal/config"
	"h1b_ingest/internal/db"
	"h1b_ingest/internal/logger"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "Path to the ingestion config file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file with INGEST_* overrides")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	schedule := flag.String("schedule", "", "Cron schedule; empty runs a single pass")
	metricsAddr := flag.String("metrics-addr", "", "Address for the Prometheus /metrics endpoint")
	status := flag.Bool("status", false, "Print the last recorded run of each source and exit")
	flag.Parse()

	log := logger.New(*verbose)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var history *db.MongoDB
	if cfg.History.Enabled() {
		history, err = db.NewMongoDB(ctx, cfg.History, log)
		if err != nil {
			return err
		}
		defer history.Close()
	}

	if *status {
		if history == nil {
			return errors.New("--status needs history.connection to be configured")
		}
		return printStatus(ctx, cfg, history)
	}

	store, err := db.Open(ctx, cfg.DB, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, log)
	}

	opts := []app.Option{}
	if history != nil {
		opts = append(opts, app.WithHistory(history))
	}
	ingest, err := app.NewIngestApp(cfg, log, store, opts...)
	if err != nil {
		return err
	}

	report, err := ingest.Run(ctx, *schedule)
	if err != nil {
		return err
	}
	if *schedule == "" && report.Failed() {
		return errors.New("one or more sources failed")
	}
	return nil
}

func serveMetrics(addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server stopped", "error", err)
	}
}

func printStatus(ctx context.Context, cfg *config.IngestConfig, history *db.MongoDB) error {
	for _, s := range cfg.Sources {
		last, err := history.LastRun(ctx, s.ID)
		if err != nil {
			return err
		}
		if last == nil {
			fmt.Printf("%-28s never run\n", s.ID)
			continue
		}
		fmt.Printf("%-28s %-7s inserted=%d updated=%d rejected=%d elapsed=%s %s\n",
			s.ID, last.State, last.Written.Inserted, last.Written.Updated, last.RowsRejected,
			last.Elapsed.Round(time.Millisecond), last.Error)
	}
	return nil
}
