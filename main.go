package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"gioui.org/app"
	"gioui.org/op"
	"gioui.org/unit"
	"gioui.org/x/explorer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.sr.ht/~whereswaldon/glucoscope/backend"
	"git.sr.ht/~whereswaldon/glucoscope/config"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `%[1]s: a real-time continuous glucose monitor dashboard
Usage:

 %[1]s [-config glucoscope.yaml]

connects to the API configured in the file and in GLUCOSCOPE_* environment
variables, or

 %[1]s -trace trace.csv

replays and follows a trace written by glucoscope-sim.

`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	configPath := flag.String("config", "", "YAML configuration file (defaults to $GLUCOSCOPE_CONFIG)")
	tracePath := flag.String("trace", "", "CSV trace file to replay instead of connecting to the API")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed loading configuration: %v", err)
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	metrics := backend.NewMetrics()
	if cfg.Metrics.Addr != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			log.Fatalf("failed registering metrics: %v", err)
		}
		go serveMetrics(cfg.Metrics.Addr, logger)
	}

	client := backend.NewClient(cfg.API.BaseURL, cfg.API.Token, cfg.API.Timeout, logger, metrics)
	var newFeed func() backend.Feed
	if !cfg.Feed.Disabled {
		newFeed = func() backend.Feed {
			return backend.NewWebSocketFeed(backend.WebSocketConfig{
				URL:          cfg.FeedURL(),
				Token:        cfg.API.Token,
				PingInterval: cfg.Feed.PingInterval,
				Backoff:      cfg.Backoff(),
				Logger:       logger,
				Metrics:      metrics,
			})
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := app.NewWindow(app.Title("glucoscope"), app.Size(unit.Dp(1000), unit.Dp(800)))
	bundle := backend.NewBundle(ctx, client, newFeed, metrics, logger, w.Invalidate)
	ws := backend.NewWindowState(ctx, bundle, w)
	expl := explorer.NewExplorer(w)

	if *tracePath != "" {
		f, err := os.Open(*tracePath)
		if err != nil {
			log.Fatalf("failed opening trace: %v", err)
		}
		if err := bundle.Datasource.OpenTrace(f); err != nil {
			log.Fatalf("failed reading trace: %v", err)
		}
	} else {
		bundle.Datasource.Connect(backend.EntriesQuery{Hours: cfg.Chart.DefaultHours})
	}

	go func() {
		defer cancel()
		ui := NewUI(ws, expl, cfg)
		err := loop(w, ui, expl)
		if closeErr := bundle.Datasource.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		if err != nil {
			log.Fatal(err)
		}
		os.Exit(0)
	}()
	app.Main()
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "err", err)
	}
}

func loop(w *app.Window, ui *UI, expl *explorer.Explorer) error {
	var ops op.Ops
	for {
		ev := w.NextEvent()
		expl.ListenEvents(ev)
		switch ev := ev.(type) {
		case app.DestroyEvent:
			return ev.Err
		case app.FrameEvent:
			gtx := app.NewContext(&ops, ev)
			ui.Layout(gtx)
			ev.Frame(gtx.Ops)
		}
	}
}
