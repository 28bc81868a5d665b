package main

import (
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/alejandrodnm/darkpool/internal/adapters/notify"
	"github.com/alejandrodnm/darkpool/internal/adapters/pyth"
	"github.com/alejandrodnm/darkpool/internal/application/monitor"
)

var watchCmd = cli.Command{
	Name:  "watch",
	Usage: "live view of the market: phase, countdown, BTC price and your position",
	Flags: []cli.Flag{
		marketFlag,
		&cli.BoolFlag{Name: "auto-reveal", Usage: "reveal your bet as soon as the market enters Revealing"},
		&cli.BoolFlag{Name: "table", Usage: "print the full table on every tick (default: compact 1-line)"},
	},
	Action: watchAction,
}

func watchAction(c *cli.Context) error {
	cfg := getConfig(c)

	svc, market, cleanup, err := openBettor(c)
	if err != nil {
		return err
	}
	defer cleanup()

	mcfg := monitor.DefaultConfig()
	mcfg.MarketInterval = cfg.MarketInterval()
	mcfg.PriceInterval = cfg.PriceInterval()
	mcfg.FeedID = cfg.Oracle.FeedID
	mcfg.AutoReveal = c.Bool("auto-reveal")

	mon := monitor.New(mcfg, market, pyth.NewClient(cfg.Oracle.HermesURL), svc, notify.NewConsole(!c.Bool("table")))

	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return mon.Run(ctx)
}
