package main

import (
	"fmt"
	"math/big"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/alejandrodnm/darkpool/internal/adapters/notify"
	"github.com/alejandrodnm/darkpool/internal/domain"
)

var marketCmd = cli.Command{
	Name:   "market",
	Usage:  "show market status, countdown and your position",
	Flags:  []cli.Flag{marketFlag},
	Action: marketAction,
}

func marketAction(c *cli.Context) error {
	svc, _, cleanup, err := openBettor(c)
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := svc.Preview(c.Context)
	if err != nil {
		return err
	}

	return notify.NewConsole(false).Render(c.Context, domain.MonitorView{
		Now:       time.Now(),
		Market:    &p.Market,
		Remaining: p.Remaining,
		Bet:       p.Bet,
		Status:    p.Status,
		Claim:     p.Claim,
	})
}

var commitCmd = cli.Command{
	Name:  "commit",
	Usage: "place a sealed bet on the current market",
	Flags: []cli.Flag{
		marketFlag,
		&cli.BoolFlag{Name: "up", Usage: "bet the price ends above the strike"},
		&cli.BoolFlag{Name: "down", Usage: "bet the price ends at or below the strike"},
		&cli.StringFlag{
			Name:     "amount",
			Usage:    "hidden bet amount in tokens (e.g. 2.5), or smallest unit with a 'wei' suffix",
			Required: true,
		},
	},
	Action: commitAction,
}

func commitAction(c *cli.Context) error {
	if c.Bool("up") == c.Bool("down") {
		return fmt.Errorf("pass exactly one of --up or --down")
	}
	direction := domain.DirectionDown
	if c.Bool("up") {
		direction = domain.DirectionUp
	}
	amount, err := parseTokenAmount(c.String("amount"))
	if err != nil {
		return err
	}

	svc, _, cleanup, err := openBettor(c)
	if err != nil {
		return err
	}
	defer cleanup()

	bet, err := svc.PlaceBet(c.Context, direction, amount)
	if bet.CommitTx != "" {
		fmt.Printf("Commit tx: %s\n", bet.CommitTx)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Sealed bet placed: %s %s on %s\n", bet.Direction, notify.FormatAmount(amount), bet.MarketAddress)
	fmt.Println("Your secret is stored locally. Run `darkpool bets export` or `darkpool bets backup` to keep a copy.")
	return nil
}

var revealCmd = cli.Command{
	Name:   "reveal",
	Usage:  "reveal your sealed bet (Revealing phase only)",
	Flags:  []cli.Flag{marketFlag},
	Action: revealAction,
}

func revealAction(c *cli.Context) error {
	svc, _, cleanup, err := openBettor(c)
	if err != nil {
		return err
	}
	defer cleanup()

	bet, err := svc.Reveal(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("Revealed %s %s (tx %s)\n", bet.Direction, notify.FormatAmount(betAmount(bet)), bet.RevealTx)
	return nil
}

var claimCmd = cli.Command{
	Name:   "claim",
	Usage:  "claim your payout (Finalized) or refund (Cancelled)",
	Flags:  []cli.Flag{marketFlag},
	Action: claimAction,
}

func claimAction(c *cli.Context) error {
	svc, _, cleanup, err := openBettor(c)
	if err != nil {
		return err
	}
	defer cleanup()

	bet, claim, err := svc.Claim(c.Context)
	if err != nil {
		return err
	}
	switch claim.Kind {
	case domain.ClaimRefund:
		fmt.Printf("Refunded %s\n", notify.FormatAmount(claim.Amount.ToBig()))
	default:
		fmt.Printf("Claimed ~%s (estimate; the contract computes the exact amount)\n", notify.FormatAmount(claim.Amount.ToBig()))
	}
	if bet.ClaimTx != "" {
		fmt.Printf("Claim tx: %s\n", bet.ClaimTx)
	}
	return nil
}

func betAmount(bet domain.SealedBet) *big.Int {
	v, err := bet.AmountInt()
	if err != nil {
		return nil
	}
	return v
}
