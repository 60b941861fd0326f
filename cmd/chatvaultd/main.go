package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/you/chatvault/internal/adapter"
	"github.com/you/chatvault/internal/adapter/chatgpt"
	"github.com/you/chatvault/internal/adapter/claude"
	"github.com/you/chatvault/internal/adapter/gemini"
	"github.com/you/chatvault/internal/capture"
	"github.com/you/chatvault/internal/config"
	"github.com/you/chatvault/internal/httpapi"
	"github.com/you/chatvault/internal/store"
	"github.com/you/chatvault/internal/version"
)

func main() {
	var (
		versionFlag bool
		dbPath      string
		httpAddr    string
		rulesPath   string
		rateRPS     int
		rateBurst   int
		logLevel    string
		logJSON     bool
		dumpConfig  bool
	)

	flag.BoolVar(&versionFlag, "version", false, "Print build version and exit")
	flag.StringVar(&dbPath, "sqlite", "", "Path to SQLite database file")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address (e.g., :8090)")
	flag.StringVar(&rulesPath, "rules", "", "Path to platform rules JSON file")
	flag.IntVar(&rateRPS, "rate-rps", 0, "Maximum capture requests per second per client (0 disables)")
	flag.IntVar(&rateBurst, "rate-burst", 0, "Burst size for the capture rate limiter")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&logJSON, "log-json", false, "Emit JSON logs")
	flag.BoolVar(&dumpConfig, "dump-config", false, "Print the effective config and exit")
	flag.Parse()

	if versionFlag {
		fmt.Printf("chatvaultd version: %s (commit %s, built %s)\n",
			version.Version, version.Commit, version.BuildTime)
		os.Exit(0)
	}

	overrides := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		overrides[f.Name] = true
	})

	cfg := config.Load()
	if overrides["sqlite"] {
		cfg.Store.SQLitePath = strings.TrimSpace(dbPath)
	}
	if overrides["http-addr"] {
		cfg.HTTP.Addr = strings.TrimSpace(httpAddr)
	}
	if overrides["rules"] {
		cfg.Rules.Path = strings.TrimSpace(rulesPath)
		cfg.Rules.Watch = cfg.Rules.Path != ""
	}
	if overrides["rate-rps"] {
		cfg.HTTP.RateRPS = rateRPS
	}
	if overrides["rate-burst"] {
		cfg.HTTP.RateBurst = rateBurst
	}
	if overrides["log-level"] {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(logLevel))
	}
	if overrides["log-json"] {
		cfg.Log.JSON = logJSON
	}

	if dumpConfig {
		fmt.Println(string(cfg.RedactedJSON()))
		os.Exit(0)
	}

	log, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting chatvaultd",
		zap.String("version", version.Version),
		zap.String("sqlite", cfg.Store.SQLitePath),
		zap.String("addr", cfg.HTTP.Addr))

	db, err := store.Open(cfg.Store.SQLitePath)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	var writer store.Writer = db
	var buffered *store.BufferedWriter
	if cfg.Batch() > 1 || cfg.FlushInterval() > 0 {
		buffered = store.NewBufferedWriter(db, store.BufferedOptions{
			BatchSize:     cfg.Batch(),
			FlushInterval: cfg.FlushInterval(),
		})
		writer = buffered
	}

	rules, err := capture.LoadRules(cfg.Rules.Path)
	if err != nil {
		log.Fatal("load rules", zap.Error(err))
	}
	if cfg.Rules.Watch {
		if err := capture.WatchRules(rules, log); err != nil {
			log.Warn("rules watch unavailable", zap.Error(err))
		}
	}

	reg := adapter.NewRegistry(claude.New(), chatgpt.New(), gemini.New())
	metrics := capture.NewMetrics()
	capSrv := capture.NewServer(log, reg, writer, rules, metrics, capture.Options{
		RateRPS:   cfg.HTTP.RateRPS,
		RateBurst: cfg.HTTP.RateBurst,
	})

	api := httpapi.New(db, log, httpapi.Options{
		Addr:    cfg.HTTP.Addr,
		Metrics: metrics.Handler(),
		Capture: capSrv,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- api.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	if buffered != nil {
		if err := buffered.Close(); err != nil {
			log.Error("flush buffered writes", zap.Error(err))
		}
	}
	log.Info("stopped")
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zcfg := zap.NewDevelopmentConfig()
	if cfg.JSON {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
