// Package monitor mantiene una vista en vivo de un mercado: estado, precio
// del oráculo, cuenta regresiva y la posición del apostador.
package monitor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/darkpool/internal/application/bettor"
	"github.com/alejandrodnm/darkpool/internal/domain"
	"github.com/alejandrodnm/darkpool/internal/ports"
)

// Config contiene los intervalos del monitor.
type Config struct {
	MarketInterval time.Duration
	PriceInterval  time.Duration
	RenderInterval time.Duration
	FeedID         string
	AutoReveal     bool
}

// DefaultConfig devuelve los intervalos por defecto.
func DefaultConfig() Config {
	return Config{
		MarketInterval: 5 * time.Second,
		PriceInterval:  10 * time.Second,
		RenderInterval: time.Second,
	}
}

// Positions da la posición local del apostador y el hook de auto-reveal.
// *bettor.Service lo implementa.
type Positions interface {
	Position(ctx context.Context, m domain.Market) bettor.Position
	RevealIfDue(ctx context.Context, m domain.Market) (bool, error)
}

type marketState struct {
	market *domain.Market
	err    error
}

// Monitor corre dos polls independientes (mercado y precio) y un tick de
// render. Cada poll escribe solo su propio estado.
type Monitor struct {
	cfg       Config
	market    ports.MarketReader
	oracle    ports.PriceOracle
	renderer  ports.ViewRenderer
	positions Positions
	now       func() time.Time

	state atomic.Pointer[marketState]
	price atomic.Pointer[domain.OraclePrice]
}

// New crea un Monitor. oracle y positions son opcionales.
func New(cfg Config, market ports.MarketReader, oracle ports.PriceOracle, positions Positions, renderer ports.ViewRenderer) *Monitor {
	def := DefaultConfig()
	if cfg.MarketInterval <= 0 {
		cfg.MarketInterval = def.MarketInterval
	}
	if cfg.PriceInterval <= 0 {
		cfg.PriceInterval = def.PriceInterval
	}
	if cfg.RenderInterval <= 0 {
		cfg.RenderInterval = def.RenderInterval
	}
	return &Monitor{
		cfg:       cfg,
		market:    market,
		oracle:    oracle,
		renderer:  renderer,
		positions: positions,
		now:       time.Now,
	}
}

// WithClock reemplaza el reloj (tests).
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Run arranca los loops y bloquea hasta que el contexto se cancele.
func (m *Monitor) Run(ctx context.Context) error {
	slog.Info("monitor starting",
		"market_interval", m.cfg.MarketInterval,
		"price_interval", m.cfg.PriceInterval,
		"auto_reveal", m.cfg.AutoReveal,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return every(ctx, m.cfg.MarketInterval, m.PollMarket) })
	if m.oracle != nil {
		g.Go(func() error { return every(ctx, m.cfg.PriceInterval, m.PollPrice) })
	}
	g.Go(func() error {
		return every(ctx, m.cfg.RenderInterval, func(ctx context.Context) {
			if err := m.Render(ctx); err != nil {
				slog.Warn("render error", "err", err)
			}
		})
	})

	err := g.Wait()
	slog.Info("monitor stopped")
	return err
}

// every ejecuta fn ahora y luego cada interval hasta que ctx se cancele.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	fn(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// PollMarket refresca el snapshot del mercado. Si falla conserva el último
// snapshot bueno y guarda el error para mostrarlo.
func (m *Monitor) PollMarket(ctx context.Context) {
	snap, err := m.market.GetMarket(ctx)
	if err != nil {
		prev := m.state.Load()
		next := &marketState{err: err}
		if prev != nil {
			next.market = prev.market
		}
		m.state.Store(next)
		slog.Debug("market poll failed", "err", err)
		return
	}
	m.state.Store(&marketState{market: &snap})

	if m.cfg.AutoReveal && m.positions != nil {
		revealed, err := m.positions.RevealIfDue(ctx, snap)
		if err != nil {
			slog.Error("auto-reveal failed", "market", snap.Address, "err", err)
		} else if revealed {
			slog.Info("auto-reveal done", "market", snap.Address)
		}
	}
}

// PollPrice refresca el precio del oráculo. Los errores se ignoran: el
// ticker de precio no es crítico.
func (m *Monitor) PollPrice(ctx context.Context) {
	p, err := m.oracle.LatestPrice(ctx, m.cfg.FeedID)
	if err != nil {
		slog.Debug("price poll failed", "err", err)
		return
	}
	m.price.Store(&p)
}

// View arma la vista del instante actual con el último estado conocido.
func (m *Monitor) View(ctx context.Context) domain.MonitorView {
	v := domain.MonitorView{Now: m.now(), Price: m.price.Load()}

	st := m.state.Load()
	if st == nil {
		return v
	}
	v.MarketErr = st.err
	if st.market == nil {
		return v
	}
	v.Market = st.market
	v.Remaining = domain.TimeRemaining(*st.market, v.Now)

	if m.positions != nil {
		pos := m.positions.Position(ctx, *st.market)
		v.Bet, v.Status, v.Claim = pos.Bet, pos.Status, pos.Claim
	}
	return v
}

// Render entrega la vista actual al renderer.
func (m *Monitor) Render(ctx context.Context) error {
	return m.renderer.Render(ctx, m.View(ctx))
}
