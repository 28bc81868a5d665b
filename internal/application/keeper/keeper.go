package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/darkpool/internal/domain"
	"github.com/alejandrodnm/darkpool/internal/ports"
)

// Config contiene la configuración del keeper.
type Config struct {
	MarketAddress string
	FeedID        string
	PollInterval  time.Duration
	LockTTL       time.Duration
	Once          bool
}

// DefaultConfig devuelve una configuración sensata para producción.
func DefaultConfig() Config {
	return Config{
		PollInterval: 30 * time.Second,
		LockTTL:      3 * time.Minute,
	}
}

// Keeper empuja un mercado por sus transiciones temporales (resolve, finalize).
// No guarda estado entre ciclos: cada ciclo vuelve a leer el snapshot.
type Keeper struct {
	cfg     Config
	market  ports.MarketAuthority
	oracle  ports.PriceOracle
	actions ports.ActionLog
	lock    ports.LeaderLock
	now     func() time.Time
}

// New crea un Keeper. actions y lock son opcionales (nil).
func New(
	cfg Config,
	market ports.MarketAuthority,
	oracle ports.PriceOracle,
	actions ports.ActionLog,
	lock ports.LeaderLock,
) *Keeper {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultConfig().LockTTL
	}
	return &Keeper{
		cfg:     cfg,
		market:  market,
		oracle:  oracle,
		actions: actions,
		lock:    lock,
		now:     time.Now,
	}
}

// WithClock reemplaza el reloj (tests).
func (k *Keeper) WithClock(now func() time.Time) *Keeper {
	k.now = now
	return k
}

// Run ejecuta un ciclo inmediato y luego uno por PollInterval hasta que el
// contexto se cancele. Los errores de ciclo se loguean y el loop sigue.
// Con cfg.Once solo ejecuta un ciclo y devuelve su error.
func (k *Keeper) Run(ctx context.Context) error {
	slog.Info("keeper starting",
		"market", k.cfg.MarketAddress,
		"interval", k.cfg.PollInterval,
		"once", k.cfg.Once,
		"lock", k.lock != nil,
	)

	if err := k.RunCycle(ctx); err != nil {
		slog.Error("keeper cycle failed", "err", err)
		if k.cfg.Once {
			return err
		}
	}

	if k.cfg.Once {
		return nil
	}

	ticker := time.NewTicker(k.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("keeper stopped")
			return nil
		case <-ticker.C:
			if err := k.RunCycle(ctx); err != nil {
				slog.Error("keeper cycle failed", "err", err)
			}
		}
	}
}

// RunCycle ejecuta un ciclo completo: snapshot, resolve si toca, finalize si toca.
// Nunca manda una segunda mutación antes de tener el receipt de la primera.
func (k *Keeper) RunCycle(ctx context.Context) error {
	cycleID := uuid.NewString()
	log := slog.With("cycle", cycleID)

	var lease ports.Lease
	if k.lock != nil {
		l, err := k.lock.Acquire(ctx, k.lockKey(), k.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			log.Info("another keeper holds the lock, skipping cycle")
			return nil
		}
		if err != nil {
			return fmt.Errorf("keeper.RunCycle: lock: %w", err)
		}
		defer l.Release()
		lease = l
	}

	m, err := k.market.GetMarket(ctx)
	if err != nil {
		return fmt.Errorf("keeper.RunCycle: get market: %w", err)
	}
	now := k.now()

	log.Info("market status",
		"phase", m.Phase,
		"commits", m.CommitCount,
		"reveals", m.RevealCount,
		"remaining", domain.FormatCountdown(domain.TimeRemaining(m, now)),
	)

	if m.NeedsResolve(now) {
		if m.CommitCount == 0 {
			log.Info("no commits, skipping resolution")
			return nil
		}
		if err := k.resolve(ctx, log, lease, cycleID, m); err != nil {
			return err
		}
		// la fase cambió: se vuelve a leer antes de decidir el finalize
		if m, err = k.market.GetMarket(ctx); err != nil {
			return fmt.Errorf("keeper.RunCycle: refresh market: %w", err)
		}
		now = k.now()
	}

	if m.NeedsFinalize(now) {
		if err := k.finalize(ctx, log, lease, cycleID, m); err != nil {
			return err
		}
	}
	return nil
}

func (k *Keeper) resolve(ctx context.Context, log *slog.Logger, lease ports.Lease, cycleID string, m domain.Market) error {
	action := k.newAction(cycleID, m, domain.ActionResolve)

	log.Info("market expired, fetching oracle price", "feed", k.cfg.FeedID)
	price, err := k.oracle.LatestPrice(ctx, k.cfg.FeedID)
	if err != nil {
		return k.fail(ctx, action, fmt.Errorf("keeper.resolve: oracle: %w", err))
	}
	action.Price, action.Expo = price.Price, price.Expo

	if err := renew(ctx, lease); err != nil {
		return k.fail(ctx, action, fmt.Errorf("keeper.resolve: %w", err))
	}
	log.Info("resolving market",
		"price", domain.FormatPrice(price.Price, price.Expo),
		"strike", formatStrike(m),
	)
	hash, err := k.market.Resolve(ctx, price.Price, price.Expo)
	if err != nil {
		return k.fail(ctx, action, fmt.Errorf("keeper.resolve: submit: %w", err))
	}
	action.TxHash = hash
	log.Info("resolve submitted", "tx", hash)

	if err := k.market.WaitForTx(ctx, hash); err != nil {
		return k.fail(ctx, action, fmt.Errorf("keeper.resolve: wait %s: %w", hash, err))
	}
	log.Info("market resolved", "tx", hash)
	k.succeed(ctx, action)
	return nil
}

func (k *Keeper) finalize(ctx context.Context, log *slog.Logger, lease ports.Lease, cycleID string, m domain.Market) error {
	action := k.newAction(cycleID, m, domain.ActionFinalize)

	if err := renew(ctx, lease); err != nil {
		return k.fail(ctx, action, fmt.Errorf("keeper.finalize: %w", err))
	}

	log.Info("reveal deadline passed, finalizing market")
	hash, err := k.market.Finalize(ctx)
	if err != nil {
		return k.fail(ctx, action, fmt.Errorf("keeper.finalize: submit: %w", err))
	}
	action.TxHash = hash
	log.Info("finalize submitted", "tx", hash)

	if err := k.market.WaitForTx(ctx, hash); err != nil {
		return k.fail(ctx, action, fmt.Errorf("keeper.finalize: wait %s: %w", hash, err))
	}
	log.Info("market finalized", "tx", hash)
	k.succeed(ctx, action)
	return nil
}

// renew extiende el lock antes de cada mutación: el TTL tiene que cubrir
// un envío más la espera del receipt, no el ciclo entero.
func renew(ctx context.Context, lease ports.Lease) error {
	if lease == nil {
		return nil
	}
	if err := lease.Extend(ctx); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	return nil
}

func (k *Keeper) newAction(cycleID string, m domain.Market, kind domain.KeeperActionKind) domain.KeeperAction {
	addr := m.Address
	if addr == "" {
		addr = k.cfg.MarketAddress
	}
	return domain.KeeperAction{
		ID:            uuid.NewString(),
		CycleID:       cycleID,
		MarketAddress: addr,
		Kind:          kind,
	}
}

func (k *Keeper) succeed(ctx context.Context, action domain.KeeperAction) {
	action.Success = true
	k.record(ctx, action)
}

// fail registra la acción fallida y devuelve err sin tocar.
func (k *Keeper) fail(ctx context.Context, action domain.KeeperAction, err error) error {
	action.Error = err.Error()
	k.record(ctx, action)
	return err
}

func (k *Keeper) record(ctx context.Context, action domain.KeeperAction) {
	if k.actions == nil {
		return
	}
	action.ExecutedAt = k.now().UTC()
	// el contexto puede estar cancelado si el ciclo se cortó; el historial se guarda igual
	if err := k.actions.SaveAction(context.WithoutCancel(ctx), action); err != nil {
		slog.Warn("action log error", "err", err, "kind", action.Kind)
	}
}

func (k *Keeper) lockKey() string {
	return "keeper:" + strings.ToLower(k.cfg.MarketAddress)
}

func formatStrike(m domain.Market) string {
	if m.StrikePrice == nil || !m.StrikePrice.IsInt64() {
		return "?"
	}
	return domain.FormatPrice(m.StrikePrice.Int64(), m.StrikeExpo)
}
