package keeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/darkpool/internal/domain"
	"github.com/alejandrodnm/darkpool/internal/ports"
)

// CreatorConfig configura la creación automática de mercados.
// Params lleva todo menos el strike, que sale del oráculo en cada creación.
type CreatorConfig struct {
	FactoryAddress string
	FeedID         string
	Interval       time.Duration
	Params         domain.MarketParams
}

// Creator crea un mercado nuevo en cada múltiplo de Interval del reloj de pared.
type Creator struct {
	cfg     CreatorConfig
	factory ports.MarketFactory
	oracle  ports.PriceOracle
	actions ports.ActionLog
	now     func() time.Time
}

// NewCreator crea un Creator. actions es opcional.
func NewCreator(cfg CreatorConfig, factory ports.MarketFactory, oracle ports.PriceOracle, actions ports.ActionLog) *Creator {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Creator{
		cfg:     cfg,
		factory: factory,
		oracle:  oracle,
		actions: actions,
		now:     time.Now,
	}
}

// WithClock reemplaza el reloj (tests).
func (c *Creator) WithClock(now func() time.Time) *Creator {
	c.now = now
	return c
}

// NextTick devuelve cuánto falta para el próximo múltiplo de interval.
// En un múltiplo exacto devuelve interval completo.
func NextTick(now time.Time, interval time.Duration) time.Duration {
	next := now.Truncate(interval).Add(interval)
	return next.Sub(now)
}

// Run espera al próximo múltiplo de Interval, crea un mercado y repite cada
// Interval hasta que el contexto se cancele. Los errores se loguean.
func (c *Creator) Run(ctx context.Context) error {
	if count, err := c.factory.MarketCount(ctx); err != nil {
		slog.Warn("factory market count unavailable", "err", err)
	} else {
		slog.Info("creator starting", "factory", c.cfg.FactoryAddress, "markets", count, "interval", c.cfg.Interval)
	}

	delay := NextTick(c.now(), c.cfg.Interval)
	slog.Info("next market creation", "in", delay.Round(time.Second))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		slog.Info("creator stopped")
		return nil
	case <-timer.C:
	}

	if err := c.CreateOnce(ctx); err != nil {
		slog.Error("market creation failed", "err", err)
	}

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("creator stopped")
			return nil
		case <-ticker.C:
			if err := c.CreateOnce(ctx); err != nil {
				slog.Error("market creation failed", "err", err)
			}
		}
	}
}

// CreateOnce crea un mercado con el precio actual del oráculo como strike y
// espera el receipt.
func (c *Creator) CreateOnce(ctx context.Context) error {
	action := domain.KeeperAction{
		ID:            uuid.NewString(),
		CycleID:       uuid.NewString(),
		MarketAddress: c.cfg.FactoryAddress,
		Kind:          domain.ActionCreate,
	}

	price, err := c.oracle.LatestPrice(ctx, c.cfg.FeedID)
	if err != nil {
		return c.fail(ctx, action, fmt.Errorf("keeper.CreateOnce: oracle: %w", err))
	}
	action.Price, action.Expo = price.Price, price.Expo

	count, err := c.factory.MarketCount(ctx)
	if err != nil {
		return c.fail(ctx, action, fmt.Errorf("keeper.CreateOnce: market count: %w", err))
	}
	nextID := count + 1

	params := c.cfg.Params
	params.StrikePrice = price.Price
	params.StrikeExpo = price.Expo

	slog.Info("creating market",
		"id", nextID,
		"strike", domain.FormatPrice(price.Price, price.Expo),
		"commit", params.CommitDuration,
		"closed", params.ClosedDuration,
		"reveal", params.RevealDuration,
	)
	hash, err := c.factory.CreateMarket(ctx, params)
	if err != nil {
		return c.fail(ctx, action, fmt.Errorf("keeper.CreateOnce: submit: %w", err))
	}
	action.TxHash = hash
	slog.Info("create submitted", "tx", hash, "id", nextID)

	if err := c.factory.WaitForTx(ctx, hash); err != nil {
		return c.fail(ctx, action, fmt.Errorf("keeper.CreateOnce: wait %s: %w", hash, err))
	}
	slog.Info("market created", "id", nextID, "tx", hash)

	action.Success = true
	c.record(ctx, action)
	return nil
}

func (c *Creator) fail(ctx context.Context, action domain.KeeperAction, err error) error {
	action.Error = err.Error()
	c.record(ctx, action)
	return err
}

func (c *Creator) record(ctx context.Context, action domain.KeeperAction) {
	if c.actions == nil {
		return
	}
	action.ExecutedAt = c.now().UTC()
	if err := c.actions.SaveAction(context.WithoutCancel(ctx), action); err != nil {
		slog.Warn("action log error", "err", err, "kind", action.Kind)
	}
}
