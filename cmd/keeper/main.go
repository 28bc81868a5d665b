package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/darkpool/config"
	"github.com/alejandrodnm/darkpool/internal/adapters/notify"
	"github.com/alejandrodnm/darkpool/internal/adapters/onchain"
	"github.com/alejandrodnm/darkpool/internal/adapters/pyth"
	"github.com/alejandrodnm/darkpool/internal/adapters/redislock"
	"github.com/alejandrodnm/darkpool/internal/adapters/storage"
	"github.com/alejandrodnm/darkpool/internal/application/keeper"
	"github.com/alejandrodnm/darkpool/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one keeper cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	history := flag.Int("history", 0, "print the last N keeper actions and exit")
	flag.Parse()

	// sin archivo de config se corre solo con variables de entorno
	if _, err := os.Stat(*configPath); errors.Is(err, os.ErrNotExist) && !flagSet("config") {
		*configPath = ""
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *history > 0 {
		actions, err := store.RecentActions(ctx, *history)
		if err != nil {
			slog.Error("failed to read history", "err", err)
			os.Exit(1)
		}
		notify.NewConsole(false).PrintActions(actions)
		return
	}

	if err := cfg.ValidateKeeper(); err != nil {
		slog.Error("invalid keeper config", "err", err)
		os.Exit(1)
	}

	redacted := cfg.Redacted()
	slog.Info("darkpool keeper starting",
		"config", *configPath,
		"rpc", redacted.Chain.RPCURL,
		"market", cfg.Chain.MarketAddress,
		"factory", cfg.Chain.FactoryAddress,
		"poll_interval", cfg.PollInterval(),
		"create_interval", cfg.CreateInterval(),
		"redis", cfg.Redis.Addr != "",
		"once", *once,
	)

	key, err := onchain.LoadKey(onchain.KeySource{
		PrivateKey: cfg.Keeper.PrivateKey,
		KeyFile:    cfg.Keeper.KeyFile,
		Password:   cfg.Keeper.KeyPassword,
	})
	if err != nil {
		slog.Error("failed to load keeper key", "err", err)
		os.Exit(1)
	}

	client, err := onchain.Dial(ctx, cfg.Chain.RPCURL, key, cfg.Chain.ChainID)
	if err != nil {
		slog.Error("failed to connect to chain", "err", err, "rpc", cfg.Chain.RPCURL)
		os.Exit(1)
	}
	client.SetReceiptTimeout(cfg.ReceiptTimeout())
	slog.Info("keeper account", "address", client.Address())

	oracle := pyth.NewClient(cfg.Oracle.HermesURL)

	var lock ports.LeaderLock
	if cfg.Redis.Addr != "" {
		l, err := redislock.Dial(ctx, redislock.Config{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			TLSEnabled: cfg.Redis.TLS,
		})
		if err != nil {
			slog.Error("failed to connect to redis", "err", err)
			os.Exit(1)
		}
		defer l.Close()
		lock = l
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Chain.MarketAddress != "" {
		market, err := onchain.NewMarket(client, cfg.Chain.MarketAddress)
		if err != nil {
			slog.Error("invalid market address", "err", err)
			os.Exit(1)
		}
		kcfg := keeper.DefaultConfig()
		kcfg.MarketAddress = cfg.Chain.MarketAddress
		kcfg.FeedID = cfg.Oracle.FeedID
		kcfg.PollInterval = cfg.PollInterval()
		kcfg.LockTTL = cfg.LockTTL()
		kcfg.Once = *once

		k := keeper.New(kcfg, market, oracle, store, lock)
		g.Go(func() error { return k.Run(gctx) })
	}

	if cfg.Chain.FactoryAddress != "" && !*once {
		factory, err := onchain.NewFactory(client, cfg.Chain.FactoryAddress)
		if err != nil {
			slog.Error("invalid factory address", "err", err)
			os.Exit(1)
		}
		params, err := cfg.MarketParams(client.Address())
		if err != nil {
			slog.Error("invalid market params", "err", err)
			os.Exit(1)
		}
		creator := keeper.NewCreator(keeper.CreatorConfig{
			FactoryAddress: cfg.Chain.FactoryAddress,
			FeedID:         cfg.Oracle.FeedID,
			Interval:       cfg.CreateInterval(),
			Params:         params,
		}, factory, oracle, store)
		g.Go(func() error { return creator.Run(gctx) })
	} else if cfg.Chain.FactoryAddress == "" {
		slog.Info("no factory address set, skipping auto-create")
	}

	if err := g.Wait(); err != nil {
		slog.Error("keeper exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("darkpool keeper stopped cleanly")
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
