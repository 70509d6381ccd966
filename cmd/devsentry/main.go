// Package main provides the DevSentry command-line entry point: hardware
// event monitoring, scan history, database initialization, and the status
// API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ptnguyen/devsentry/internal/api"
	"github.com/ptnguyen/devsentry/internal/cliui"
	"github.com/ptnguyen/devsentry/internal/config"
	"github.com/ptnguyen/devsentry/internal/eventlog"
	"github.com/ptnguyen/devsentry/internal/llm"
	"github.com/ptnguyen/devsentry/internal/monitor"
	"github.com/ptnguyen/devsentry/internal/storage"
	"github.com/ptnguyen/devsentry/internal/verdictcache"
)

// Version information (injected at build time via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	prog := filepath.Base(os.Args[0])
	if len(os.Args) < 2 {
		printRootHelp(os.Stderr, prog)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "monitor":
		err = monitorCommand(ctx, args)
	case "serve":
		err = serveCommand(ctx, args)
	case "history":
		err = historyCommand(args)
	case "initdb":
		err = initdbCommand(args)
	case "version":
		fmt.Printf("DevSentry %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
	case "help", "-h", "--help":
		printRootHelp(os.Stdout, prog)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		printRootHelp(os.Stderr, prog)
		return 2
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if errors.Is(err, context.Canceled) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func monitorCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "Path to config file")
	once := fs.Bool("once", false, "Run a single scan session and exit")
	noLLM := fs.Bool("no-llm", false, "Skip the anomaly classifier for this run")
	verbose := fs.Bool("verbose", false, "Log at debug level")
	quiet := fs.Bool("quiet", false, "Log warnings and errors only")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *noLLM {
		cfg.LLM.Enabled = false
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	if *quiet {
		cfg.Logging.Level = "warn"
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting devsentry monitor",
		zap.String("version", Version),
		zap.String("config", *configPath),
		zap.String("log_path", cfg.EventLog.LogPath))

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	runner, cleanup := buildRunner(cfg, store, logger)
	defer cleanup()

	openSource := jsonlOpener(cfg, logger)

	if *once || cfg.Monitor.PollInterval <= 0 {
		src, closeFn, err := openSource()
		if err != nil {
			return err
		}
		defer closeFn()
		_, err = runner.RunOnce(ctx, src)
		return err
	}

	logger.Info("polling event log", zap.Duration("interval", cfg.Monitor.PollInterval))
	return runner.Poll(ctx, cfg.Monitor.PollInterval, openSource)
}

func serveCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting devsentry server",
		zap.String("version", Version),
		zap.Int("port", cfg.Server.Port))

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	runner, cleanup := buildRunner(cfg, store, logger)
	defer cleanup()

	srv := api.New(cfg.Server, store, runner, jsonlOpener(cfg, logger), logger, Version)
	return srv.Run(ctx)
}

func historyCommand(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "Path to config file")
	days := fs.Int("days", 7, "How many days back to show")
	limit := fs.Int("limit", 50, "Maximum number of events to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	since := time.Now().AddDate(0, 0, -*days)
	events, err := store.RecentEvents(since, *limit)
	if err != nil {
		return fmt.Errorf("querying events: %w", err)
	}
	if len(events) == 0 {
		fmt.Printf("no events recorded in the last %d day(s)\n", *days)
		return nil
	}

	fmt.Printf("%d event(s) in the last %d day(s):\n\n", len(events), *days)
	for _, ev := range events {
		fmt.Println(cliui.EventLine(ev.Timestamp, ev.Source, ev.EventID, ev.Message, ev.Abnormal))
	}
	return nil
}

func initdbCommand(args []string) error {
	fs := flag.NewFlagSet("initdb", flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "Path to config file")
	force := fs.Bool("force", false, "Delete any existing database first")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	if *force {
		if err := os.Remove(cfg.Storage.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing existing database: %w", err)
		}
	}

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer store.Close()

	fmt.Printf("database ready at %s\n", cfg.Storage.Path)
	return nil
}

// buildRunner wires the classifier and optional verdict cache into a scan
// runner backed by the given store. The returned cleanup closes the cache
// connection when one was opened.
func buildRunner(cfg *config.Config, store *storage.Store, logger *zap.Logger) (*monitor.Runner, func()) {
	var classifier monitor.Classifier
	if cfg.LLM.Enabled {
		key := cfg.LLM.APIKey()
		if key == "" {
			logger.Warn("API key not set, disabling classifier",
				zap.String("env", cfg.LLM.APIKeyEnv))
			cfg.LLM.Enabled = false
		} else {
			classifier = llm.NewClient(llm.Config{
				APIURL:           cfg.LLM.APIURL,
				APIKey:           key,
				Model:            cfg.LLM.Model,
				Temperature:      cfg.LLM.Temperature,
				Timeout:          cfg.LLM.RequestTimeout,
				AbnormalKeywords: cfg.LLM.AbnormalKeywords,
			}, logger)
		}
	}

	if !cfg.Cache.Enabled {
		return monitor.NewRunner(cfg, classifier, nil, store, logger), func() {}
	}

	cache := verdictcache.New(verdictcache.Config{
		Addr: cfg.Cache.Addr,
		DB:   cfg.Cache.DB,
		TTL:  cfg.Cache.TTL,
	}, logger)
	cleanup := func() { cache.Close() }
	return monitor.NewRunner(cfg, classifier, cache, store, logger), cleanup
}

func jsonlOpener(cfg *config.Config, logger *zap.Logger) monitor.SourceOpener {
	return func() (eventlog.Source, func() error, error) {
		src, err := eventlog.OpenJSONL(cfg.EventLog.LogPath, logger)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.DefaultConfig()
		} else {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.TimeKey = "timestamp"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return zapCfg.Build()
}

func printRootHelp(w io.Writer, prog string) {
	fmt.Fprintf(w, "%s: hardware event monitor with LLM-backed anomaly classification\n\n", prog)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s <command> [flags]\n\n", prog)

	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  monitor    Scan the event log for hardware events (once, or on an interval).")
	fmt.Fprintln(w, "  serve      Run the status API server.")
	fmt.Fprintln(w, "  history    Show recently recorded events.")
	fmt.Fprintln(w, "  initdb     Create and initialize the database.")
	fmt.Fprintln(w, "  version    Show version information.")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Examples:")
	fmt.Fprintf(w, "  %s monitor --once\n", prog)
	fmt.Fprintf(w, "  %s monitor --config configs/config.yaml\n", prog)
	fmt.Fprintf(w, "  %s history --days 3 --limit 20\n", prog)
	fmt.Fprintf(w, "  %s serve\n", prog)
}
