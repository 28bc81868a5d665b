package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/alejandrodnm/darkpool/config"
	"github.com/alejandrodnm/darkpool/internal/domain"
)

func main() {
	app := cli.NewApp()

	app.Name = "darkpool"
	app.Usage = "sealed-bet BTC/USD price markets: commit, reveal, claim"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "path to config file (empty = env only)",
			Value:   "config/config.yaml",
			EnvVars: []string{"DARKPOOL_CONFIG"},
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "set log level to debug",
		},
		&cli.StringFlag{
			Name:  "format",
			Usage: "log format: text|json (overrides config)",
		},
	}
	app.Before = func(c *cli.Context) error {
		path := c.String("config")
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !c.IsSet("config") {
			path = ""
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if c.Bool("verbose") {
			cfg.Log.Level = "debug"
		}
		if f := c.String("format"); f != "" {
			cfg.Log.Format = f
		}
		setupLogger(cfg.Log)
		c.App.Metadata = map[string]any{"config": cfg}
		return nil
	}
	app.Commands = []*cli.Command{
		&marketCmd,
		&commitCmd,
		&revealCmd,
		&claimCmd,
		&betsCmd,
		&watchCmd,
		&keyCmd,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func getConfig(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}

// fatal imprime el error con su categoría: los errores de wallet piden una
// acción nueva del usuario y no se reintentan.
func fatal(err error) {
	var hint string
	switch {
	case errors.Is(err, domain.ErrUserRejected):
		hint = "rejected by signer"
	case errors.Is(err, domain.ErrInsufficientFunds):
		hint = "insufficient funds: top up the wallet and try again"
	case errors.Is(err, domain.ErrAlreadyClaimed):
		hint = "already claimed"
	case errors.Is(err, domain.ErrSecretMissing):
		hint = "no local secret: run `darkpool bets import` or `darkpool bets restore` first"
	case errors.Is(err, domain.ErrWrongPhase):
		hint = "not the right moment for this action"
	case errors.Is(err, domain.ErrNothingToClaim):
		hint = "nothing to claim"
	}
	if hint != "" {
		fmt.Fprintf(os.Stderr, "[darkpool] %s (%v)\n", hint, err)
	} else {
		fmt.Fprintf(os.Stderr, "[darkpool] %v\n", err)
	}
	os.Exit(1)
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
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
