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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/lrhodin/chatcache/pkg/ingest"
)

var watchCommand = &cli.Command{
	Name:      "watch",
	Usage:     "Ingest <room>.json files dropped into a directory and sweep old messages periodically",
	ArgsUsage: "DIR",
	Before:    prepareApp,
	After:     closeApp,
	Action:    cmdWatch,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "metrics-listen",
			Usage: "Address to serve Prometheus metrics on (overrides config)",
		},
	},
}

func cmdWatch(ctx *cli.Context) error {
	if err := requireArgs(ctx, "a directory"); err != nil {
		return err
	}
	cfg := getConfig(ctx)
	log := getLogger(ctx)
	cache := getCache(ctx)
	if !cache.Enabled() {
		return fmt.Errorf("no storage engine could open %s", cfg.Cache.Path)
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	listen := ctx.String("metrics-listen")
	if listen == "" {
		listen = cfg.Watch.MetricsListen
	}
	if listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Addr:              listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Str("address", listen).Msg("Serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Err(err).Msg("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	w := &ingest.Watcher{
		Dir:           ctx.Args().Get(0),
		Store:         cache,
		MaxMessages:   cfg.Cache.MaxMessages,
		RetentionDays: cfg.Cache.RetentionDays,
		SweepInterval: cfg.Watch.SweepInterval,
		Debounce:      cfg.Watch.Debounce,
		Log:           log.With().Str("component", "ingest").Logger(),
	}
	return w.Run(runCtx)
}
