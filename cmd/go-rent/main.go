package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rsilvagit/go-rent/internal/cache"
	"github.com/rsilvagit/go-rent/internal/config"
	"github.com/rsilvagit/go-rent/internal/dispatch"
	"github.com/rsilvagit/go-rent/internal/extract"
	"github.com/rsilvagit/go-rent/internal/filter"
	"github.com/rsilvagit/go-rent/internal/httpclient"
	"github.com/rsilvagit/go-rent/internal/ingest"
	"github.com/rsilvagit/go-rent/internal/liveness"
	"github.com/rsilvagit/go-rent/internal/logger"
	"github.com/rsilvagit/go-rent/internal/model"
	"github.com/rsilvagit/go-rent/internal/output"
	"github.com/rsilvagit/go-rent/internal/pipeline"
	"github.com/rsilvagit/go-rent/internal/scraper"
	"github.com/rsilvagit/go-rent/internal/sites"
	"github.com/rsilvagit/go-rent/internal/store"
	"github.com/rsilvagit/go-rent/internal/store/mongostore"
)

// backend is everything the runner persists to.
type backend interface {
	store.ListingStore
	store.AlertStore
	store.EventLog
}

type ledger interface {
	pipeline.Ledger
	Close() error
}

func main() {
	mode := flag.String("mode", "all", "Run to execute: crawl, liveness, dispatch, purge or all")
	every := flag.Duration("every", 0, "Repeat the run at this interval (0 runs once)")
	dryRun := flag.Bool("dry-run", false, "Use in-memory storage and print digests to stdout")
	logLevel := flag.String("log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")
	alertsFile := flag.String("alerts", "", "JSON file with alerts to upsert before running")
	flag.Parse()

	cfg := config.Load()
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	log := logger.Init(cfg.LogLevel, cfg.LogFormat)

	run, err := runFor(*mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := start(ctx, cfg, log, run, needsExtraction(*mode), *every, *dryRun, *alertsFile); err != nil {
		log.Error("go-rent stopped", "error", err)
		os.Exit(1)
	}
}

type runFunc func(context.Context, *pipeline.Runner) error

func runFor(mode string) (runFunc, error) {
	single := func(fn func(*pipeline.Runner, context.Context) (pipeline.Summary, error)) runFunc {
		return func(ctx context.Context, r *pipeline.Runner) error {
			_, err := fn(r, ctx)
			return err
		}
	}

	switch mode {
	case "crawl":
		return single((*pipeline.Runner).RunCrawl), nil
	case "liveness":
		return single((*pipeline.Runner).RunLivenessSweep), nil
	case "dispatch":
		return single((*pipeline.Runner).RunAlertDispatch), nil
	case "purge":
		return single((*pipeline.Runner).RunPurge), nil
	case "all":
		return func(ctx context.Context, r *pipeline.Runner) error {
			_, err := r.RunAll(ctx)
			return err
		}, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

// needsExtraction reports whether mode crawls and so calls the LLM.
func needsExtraction(mode string) bool {
	return mode == "crawl" || mode == "all"
}

func start(ctx context.Context, cfg *config.Config, log *slog.Logger, run runFunc, crawl bool, every time.Duration, dryRun bool, alertsFile string) error {
	db, closeDB, err := openBackend(ctx, cfg, log, dryRun)
	if err != nil {
		return err
	}
	defer closeDB()

	if alertsFile != "" {
		if err := loadAlerts(ctx, db, alertsFile); err != nil {
			return err
		}
	}

	sent := openLedger(cfg, log, dryRun)
	defer sent.Close()

	runner, err := buildRunner(cfg, log, db, sent, crawl, dryRun)
	if err != nil {
		return err
	}

	if every <= 0 {
		return run(ctx, runner)
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if err := run(ctx, runner); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("run failed, waiting for next tick", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func openBackend(ctx context.Context, cfg *config.Config, log *slog.Logger, dryRun bool) (backend, func(), error) {
	if dryRun {
		log.Info("dry run, using in-memory store")
		return store.NewMemory(), func() {}, nil
	}

	db, err := mongostore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	log.Info("connected to mongo", "database", cfg.Mongo.Database)

	closeFn := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Close(closeCtx); err != nil {
			log.Warn("mongo disconnect failed", "error", err)
		}
	}
	return db, closeFn, nil
}

// openLedger returns the Redis ledger when configured. Without Redis the
// ledger only lives for this process.
func openLedger(cfg *config.Config, log *slog.Logger, dryRun bool) ledger {
	ttl := pipeline.LedgerTTL(cfg.Dispatch.MaxLookback)
	if cfg.RedisURL != "" && !dryRun {
		l, err := cache.New(cfg.RedisURL, ttl)
		if err == nil {
			return l
		}
		log.Warn("redis unavailable, using in-memory sent ledger", "error", err)
	}
	return cache.NewMemoryLedger(ttl)
}

// buildRunner wires the stages. The extraction service is only built when
// crawl is set, so liveness, dispatch and purge run without an LLM key.
func buildRunner(cfg *config.Config, log *slog.Logger, db backend, sent ledger, crawl, dryRun bool) (*pipeline.Runner, error) {
	client, err := httpclient.New(httpclient.Options{
		UserAgent: cfg.HTTP.UserAgent,
		ProxyURL:  cfg.HTTP.ProxyURL,
		Timeout:   cfg.HTTP.Timeout,
		HostDelay: cfg.HTTP.HostDelay,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}

	var jsFetcher scraper.Fetcher
	if scraper.ChromeAvailable(cfg.HTTP.ChromeBin) {
		jsFetcher = scraper.NewChromeFetcher(cfg.HTTP.ChromeBin, client.UserAgent(), 2*cfg.HTTP.Timeout)
	} else {
		log.Warn("chrome not found, script-rendered sources fall back to plain HTTP")
	}
	crawler := scraper.NewCrawler(scraper.NewHTTPFetcher(client), jsFetcher, cfg.Crawl.MaxListingsPerSource, log)

	var extractor *extract.Service
	if crawl {
		completer, err := extract.NewOpenAICompleter(extract.OpenAIOptions{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("extraction: %w", err)
		}
		extractor = extract.NewService(completer, extract.Options{
			TargetCity:     cfg.Crawl.TargetCity,
			MaxMarkupBytes: cfg.Crawl.MaxMarkupBytes,
			Logger:         log,
		})
	}

	notifier, err := buildRouter(cfg, dryRun)
	if err != nil {
		return nil, err
	}

	sweeper := liveness.NewSweeper(db, db, client, liveness.Options{
		BatchSize:    cfg.Liveness.BatchSize,
		Delay:        cfg.Liveness.Delay,
		ProbeTimeout: cfg.Liveness.ProbeTimeout,
		StaleAfter:   cfg.Liveness.StaleAfter,
		Logger:       log,
	})

	return pipeline.NewRunner(pipeline.Deps{
		Registry:   registry(cfg, log),
		Crawler:    crawler,
		Extractor:  extractor,
		Ingest:     ingest.New(db, log),
		Listings:   db,
		Alerts:     db,
		Events:     db,
		Sweeper:    sweeper,
		Matcher:    filter.NewEngine(db, cfg.Dispatch.MatchLimit),
		Dispatcher: dispatch.New(notifier, cfg.Dispatch.BaseURL, log),
		Ledger:     sent,
		Logger:     log,
	}, pipeline.Options{
		ListingDelay:    cfg.Crawl.ListingDelay,
		RefreshExisting: cfg.Crawl.RefreshExisting,
		DispatchWindow:  cfg.Dispatch.Window,
		MaxLookback:     cfg.Dispatch.MaxLookback,
	}), nil
}

func registry(cfg *config.Config, log *slog.Logger) *sites.Registry {
	all := sites.Default()
	for _, p := range cfg.Crawl.DisabledProviders {
		if _, ok := all.Provider(p); !ok {
			log.Warn("disabled provider is not registered", "provider", p)
		}
	}
	return all.Without(cfg.Crawl.DisabledProviders...)
}

func buildRouter(cfg *config.Config, dryRun bool) (*output.Router, error) {
	router := output.NewRouter()
	if dryRun {
		return router.Fallback(output.NewConsolePrinter()), nil
	}

	if cfg.SMTP.Host != "" {
		email, err := output.NewEmailSender(output.EmailOptions{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			return nil, err
		}
		router.Handle(model.ChannelEmail, email)
	}
	if cfg.Telegram.Token != "" {
		router.Handle(model.ChannelTelegram, output.NewTelegramSender(cfg.Telegram.Token))
	}
	router.Handle(model.ChannelDiscord, output.NewDiscordSender())
	return router, nil
}

func loadAlerts(ctx context.Context, alerts store.AlertStore, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read alerts: %w", err)
	}
	var list []model.Alert
	if err := json.Unmarshal(raw, &list); err != nil {
		return fmt.Errorf("decode alerts: %w", err)
	}
	for _, a := range list {
		if a.ID == "" {
			return errors.New("alerts: every alert needs an id")
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now()
		}
		if err := alerts.SaveAlert(ctx, a); err != nil {
			return fmt.Errorf("save alert %s: %w", a.ID, err)
		}
	}
	return nil
}
