package notify

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/darkpool/internal/domain"
	"github.com/alejandrodnm/darkpool/internal/ports"
)

// tokenDecimals es la precisión del token de apuesta (ERC20 estándar).
const tokenDecimals = 18

// Console implementa ports.ViewRenderer e imprime tablas de mercado, apuestas e historial.
type Console struct {
	out     io.Writer
	compact bool
}

var _ ports.ViewRenderer = (*Console)(nil)

// NewConsole crea un Console que escribe a stdout.
// En modo compact el monitor imprime una línea por tick en vez de la tabla.
func NewConsole(compact bool) *Console {
	return &Console{out: os.Stdout, compact: compact}
}

// NewConsoleWriter crea un Console sobre w (tests).
func NewConsoleWriter(w io.Writer, compact bool) *Console {
	return &Console{out: w, compact: compact}
}

// Render imprime el estado del monitor.
func (c *Console) Render(_ context.Context, v domain.MonitorView) error {
	if v.Market == nil {
		msg := "waiting for market data"
		if v.MarketErr != nil {
			msg = "market unavailable: " + v.MarketErr.Error()
		}
		fmt.Fprintf(c.out, "[%s] %s\n", v.Now.Format("15:04:05"), msg)
		return nil
	}
	if c.compact {
		c.printCompact(v)
		return nil
	}
	c.PrintMarket(*v.Market, v.Now)
	if v.Price != nil {
		fmt.Fprintf(c.out, "  Oracle: %s (conf ±%s, %s ago)\n",
			domain.FormatPrice(v.Price.Price, v.Price.Expo),
			domain.FormatPrice(int64(v.Price.Conf), v.Price.Expo),
			v.Now.Sub(v.Price.PublishTime).Truncate(time.Second))
	}
	if v.Bet != nil {
		c.printPosition(v)
	}
	if v.MarketErr != nil {
		fmt.Fprintf(c.out, "  ⚠ last refresh failed: %v\n", v.MarketErr)
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(v domain.MonitorView) {
	m := v.Market
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s %s", v.Now.Format("15:04:05"), shortAddr(m.Address), m.Phase)
	if _, ok := m.DeadlineFor(m.Phase); ok {
		fmt.Fprintf(&sb, " %s", domain.FormatCountdown(v.Remaining))
	}
	if v.Price != nil {
		fmt.Fprintf(&sb, " | BTC %s", domain.FormatPrice(v.Price.Price, v.Price.Expo))
	}
	fmt.Fprintf(&sb, " | strike %s", formatStrike(m.StrikePrice, m.StrikeExpo))
	if v.Bet != nil {
		fmt.Fprintf(&sb, " | bet %s %s %s", v.Bet.Direction, formatAmountString(v.Bet.Amount), v.Status)
		if v.Claim.Kind != domain.ClaimNone {
			fmt.Fprintf(&sb, " → %s %s", v.Claim.Kind, FormatAmount(v.Claim.Amount.ToBig()))
		}
	}
	if v.MarketErr != nil {
		sb.WriteString(" | stale")
	}
	fmt.Fprintln(c.out, sb.String())
}

// PrintMarket imprime el snapshot del mercado con el tiempo restante de la fase.
func (c *Console) PrintMarket(m domain.Market, now time.Time) {
	fmt.Fprintf(c.out, "\n[%s] market %s (#%s)\n", now.Format("15:04:05"), m.Address, bigString(m.ID))

	table := tablewriter.NewWriter(c.out)
	table.Header("Phase", "Left", "Strike", "Resolution", "Outcome", "Commits", "Reveals", "Up pool", "Down pool", "Forfeited")

	left := "-"
	if _, ok := m.DeadlineFor(m.Phase); ok {
		left = domain.FormatCountdown(domain.TimeRemaining(m, now))
	}
	resolution := "-"
	if m.Outcome != domain.SideNone {
		resolution = formatStrike(m.ResolutionPrice, m.ResolutionExpo)
	}
	table.Append(
		m.Phase.String(),
		left,
		formatStrike(m.StrikePrice, m.StrikeExpo),
		resolution,
		m.Outcome.String(),
		fmt.Sprintf("%d", m.CommitCount),
		fmt.Sprintf("%d", m.RevealCount),
		FormatAmount(m.UpPool),
		FormatAmount(m.DownPool),
		FormatAmount(m.TotalForfeited),
	)
	table.Render()

	fmt.Fprintf(c.out, "  commit until %s | expiry %s | reveal until %s | escrow %s\n",
		m.CommitDeadline.Format("15:04:05"), m.ExpiryTime.Format("15:04:05"),
		m.RevealDeadline.Format("15:04:05"), FormatAmount(m.FixedEscrow))
}

func (c *Console) printPosition(v domain.MonitorView) {
	b := v.Bet
	fmt.Fprintf(c.out, "  Your bet: %s %s (%s)", b.Direction, formatAmountString(b.Amount), v.Status)
	switch v.Claim.Kind {
	case domain.ClaimPayout:
		fmt.Fprintf(c.out, ", est. payout %s (contract is authoritative)", FormatAmount(v.Claim.Amount.ToBig()))
	case domain.ClaimRefund:
		fmt.Fprintf(c.out, ", refund %s", FormatAmount(v.Claim.Amount.ToBig()))
	}
	fmt.Fprintln(c.out)
}

// PrintBets imprime las apuestas locales de una wallet.
func (c *Console) PrintBets(bets []domain.SealedBet) {
	if len(bets) == 0 {
		fmt.Fprintln(c.out, "No bets stored for this wallet.")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Market", "Dir", "Amount", "Status", "Placed", "Commit tx", "Reveal tx", "Claim tx")
	for i, b := range bets {
		table.Append(
			fmt.Sprintf("%d", i+1),
			shortAddr(b.MarketAddress),
			b.Direction.String(),
			formatAmountString(b.Amount),
			string(b.Status),
			b.CreatedAt().Local().Format("2006-01-02 15:04"),
			shortAddr(b.CommitTx),
			shortAddr(b.RevealTx),
			shortAddr(b.ClaimTx),
		)
	}
	table.Render()
	fmt.Fprintln(c.out, "  Keep a backup: without the salt a bet cannot be revealed and its escrow is forfeited.")
}

// PrintActions imprime el historial del keeper.
func (c *Console) PrintActions(actions []domain.KeeperAction) {
	if len(actions) == 0 {
		fmt.Fprintln(c.out, "No keeper actions recorded.")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("When", "Cycle", "Market", "Action", "Price", "Tx", "Result")
	for _, a := range actions {
		result := "ok"
		if !a.Success {
			result = "FAIL " + truncate(a.Error, 40)
		}
		price := "-"
		if a.Kind != domain.ActionFinalize {
			price = domain.FormatPrice(a.Price, a.Expo)
		}
		table.Append(
			a.ExecutedAt.Local().Format("01-02 15:04:05"),
			truncate(a.CycleID, 8),
			shortAddr(a.MarketAddress),
			string(a.Kind),
			price,
			shortAddr(a.TxHash),
			result,
		)
	}
	table.Render()
}

// FormatAmount formatea una cantidad en la unidad mínima del token (18 decimales).
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -tokenDecimals).StringFixed(4)
}

func formatAmountString(s string) string {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return s
	}
	return FormatAmount(v)
}

func formatStrike(price *big.Int, expo int32) string {
	if price == nil || !price.IsInt64() {
		return "-"
	}
	return domain.FormatPrice(price.Int64(), expo)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "?"
	}
	return v.String()
}

// shortAddr abrevia direcciones y hashes: 0x1234…abcd.
func shortAddr(s string) string {
	if s == "" {
		return "-"
	}
	if len(s) <= 12 {
		return s
	}
	return s[:6] + "…" + s[len(s)-4:]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
