// cablewatchd scrapes one cable modem and ships channel telemetry to
// ClickHouse.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cablewatch/cablewatch/config"
	"github.com/cablewatch/cablewatch/internal/logging"
	"github.com/cablewatch/cablewatch/internal/metrics"
	"github.com/cablewatch/cablewatch/internal/modem"
	"github.com/cablewatch/cablewatch/internal/queue"
	"github.com/cablewatch/cablewatch/internal/sampler"
	"github.com/cablewatch/cablewatch/internal/store"
	"github.com/cablewatch/cablewatch/internal/writer"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "", "config file path (optional, env vars override)")
	initSchema := flag.Bool("init-schema", false, "create the readings table and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	jsonLogs := flag.Bool("log-json", false, "log in JSON format")
	flag.Parse()

	if *showVersion {
		fmt.Printf("cablewatchd %s\n", Version)
		return
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logging.Init(slog.LevelInfo, *jsonLogs)
		logging.Critical("invalid configuration", "error", err)
		os.Exit(1)
	}

	logging.Init(cfg.SlogLevel(), *jsonLogs || cfg.Log.JSON)
	log := logging.Component("main")
	log.Info("cablewatchd starting",
		"version", Version,
		"modem", cfg.Modem.Name,
		"backend", cfg.Modem.Backend,
		"interval", cfg.ScrapeInterval())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// =========================================================================
	// Datastore
	// =========================================================================

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	ch, err := store.New(connectCtx, store.Config{
		Addr:     cfg.ClickHouse.URL,
		Database: cfg.ClickHouse.Database,
		Table:    cfg.ClickHouse.Table,
		Username: cfg.ClickHouse.Username,
		Password: cfg.ClickHouse.Password,
	})
	cancel()
	if err != nil {
		logging.Critical("clickhouse connection failed", "error", err)
		os.Exit(1)
	}
	defer ch.Close()

	if *initSchema {
		if err := ch.InitSchema(ctx); err != nil {
			logging.Critical("schema init failed", "error", err)
			os.Exit(1)
		}
		log.Info("schema initialized", "table", cfg.ClickHouse.Table)
		return
	}

	// =========================================================================
	// Pipeline
	// =========================================================================

	backend, err := modem.New(modem.Config{
		Name:          cfg.Modem.Name,
		Backend:       cfg.Modem.Backend,
		URL:           cfg.Modem.URL,
		Username:      cfg.Modem.Username,
		Password:      cfg.Modem.Password,
		SNMPCommunity: cfg.Modem.SNMPCommunity,
	})
	if err != nil {
		logging.Critical("backend setup failed", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	q := queue.New(cfg.ClickHouse.QueueLimit)

	s := sampler.New(sampler.Config{
		Backend:  backend,
		Queue:    q,
		Metrics:  m,
		Interval: cfg.ScrapeInterval(),
	})
	w := writer.New(writer.Config{
		Queue:        q,
		Store:        ch,
		Metrics:      m,
		PollInterval: cfg.WriterPollInterval(),
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return s.Run(groupCtx) })
	group.Go(func() error { return w.Run(groupCtx) })
	if cfg.Metrics.Listen != "" {
		group.Go(func() error { return m.Serve(groupCtx, cfg.Metrics.Listen) })
	}

	err = group.Wait()
	if err != nil && err != context.Canceled {
		logging.Critical("daemon failed", "error", err)
		os.Exit(1)
	}
	log.Info("cablewatchd stopped")
}
