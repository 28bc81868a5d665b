// Package bettor implementa los flujos del apostador: commit, reveal y claim.
// El contrato es la única autoridad de fase; cada flujo lee un snapshot
// fresco antes de mandar nada.
package bettor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alejandrodnm/darkpool/internal/application/secrets"
	"github.com/alejandrodnm/darkpool/internal/commitment"
	"github.com/alejandrodnm/darkpool/internal/domain"
	"github.com/alejandrodnm/darkpool/internal/ports"
)

// Config contiene los límites del apostador.
type Config struct {
	MinBet *big.Int
}

// Service orquesta los flujos del apostador sobre un mercado.
type Service struct {
	cfg     Config
	market  ports.BettorAuthority
	secrets *secrets.Store
	now     func() time.Time
}

// Position es lo que el apostador tiene en un mercado.
type Position struct {
	Bet    *domain.SealedBet
	Status domain.BetStatus
	Claim  domain.Claim
}

// Preview es el estado completo que muestra `darkpool market`.
type Preview struct {
	Market    domain.Market
	Remaining time.Duration
	Position
}

// New crea un Service.
func New(cfg Config, market ports.BettorAuthority, store *secrets.Store) *Service {
	if cfg.MinBet == nil {
		cfg.MinBet = big.NewInt(1)
	}
	return &Service{cfg: cfg, market: market, secrets: store, now: time.Now}
}

// WithClock reemplaza el reloj (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Wallet devuelve la cuenta que firma.
func (s *Service) Wallet() string {
	return s.market.Address()
}

// PlaceBet sella una apuesta: genera el salt, calcula el commitment, lo manda
// y guarda el secreto ANTES de esperar el receipt. Si el proceso muere
// esperando, el secreto ya está en el store.
func (s *Service) PlaceBet(ctx context.Context, direction domain.Direction, amount *big.Int) (domain.SealedBet, error) {
	if !direction.Valid() {
		return domain.SealedBet{}, commitment.ErrInvalidDirection
	}
	m, err := s.market.GetMarket(ctx)
	if err != nil {
		return domain.SealedBet{}, fmt.Errorf("bettor.PlaceBet: get market: %w", err)
	}
	if m.Phase != domain.PhaseCommitting || !s.now().Before(m.CommitDeadline) {
		return domain.SealedBet{}, fmt.Errorf("bettor.PlaceBet: phase %s: %w", m.Phase, domain.ErrWrongPhase)
	}
	if amount == nil || amount.Cmp(s.cfg.MinBet) < 0 {
		return domain.SealedBet{}, fmt.Errorf("bettor.PlaceBet: min %s: %w", s.cfg.MinBet, domain.ErrBetTooSmall)
	}
	if m.FixedEscrow != nil && amount.Cmp(m.FixedEscrow) > 0 {
		return domain.SealedBet{}, fmt.Errorf("bettor.PlaceBet: escrow %s: %w", m.FixedEscrow, domain.ErrBetTooLarge)
	}

	salt, err := commitment.GenerateSalt()
	if err != nil {
		return domain.SealedBet{}, fmt.Errorf("bettor.PlaceBet: %w", err)
	}
	hash, err := commitment.CommitHex(direction, amount, salt, s.Wallet())
	if err != nil {
		return domain.SealedBet{}, fmt.Errorf("bettor.PlaceBet: %w", err)
	}

	tx, err := s.market.Commit(ctx, hash)
	if err != nil {
		return domain.SealedBet{}, fmt.Errorf("bettor.PlaceBet: commit: %w", err)
	}

	bet := domain.SealedBet{
		MarketAddress:  m.Address,
		Direction:      direction,
		Amount:         amount.String(),
		Salt:           commitment.FormatSalt(salt),
		CommitmentHash: hash,
		CommitTx:       tx,
		Status:         domain.BetCommitted,
		Timestamp:      s.now().UnixMilli(),
	}
	if err := s.secrets.SaveBet(ctx, s.Wallet(), bet); err != nil {
		// la tx ya salió: sin el secreto no hay reveal posible
		slog.Error("SECRET NOT PERSISTED, write it down",
			"market", bet.MarketAddress,
			"direction", bet.Direction,
			"amount", bet.Amount,
			"salt", bet.Salt,
			"err", err,
		)
		return bet, fmt.Errorf("bettor.PlaceBet: save secret: %w", err)
	}
	slog.Info("commit submitted", "market", bet.MarketAddress, "tx", tx)

	if err := s.market.WaitForTx(ctx, tx); err != nil {
		return bet, fmt.Errorf("bettor.PlaceBet: wait %s: %w", tx, err)
	}
	return bet, nil
}

// Reveal revela la apuesta guardada para el mercado actual. Verifica el
// commitment localmente antes de mandar la tx.
func (s *Service) Reveal(ctx context.Context) (domain.SealedBet, error) {
	m, err := s.market.GetMarket(ctx)
	if err != nil {
		return domain.SealedBet{}, fmt.Errorf("bettor.Reveal: get market: %w", err)
	}
	return s.reveal(ctx, m)
}

// RevealIfDue revela solo si el mercado está en Revealing y hay una apuesta
// committed sin revelar. Lo usa el monitor con --auto-reveal.
func (s *Service) RevealIfDue(ctx context.Context, m domain.Market) (bool, error) {
	if m.Phase != domain.PhaseRevealing || !s.now().Before(m.RevealDeadline) {
		return false, nil
	}
	bet, ok := s.secrets.GetBetForMarket(ctx, s.Wallet(), m.Address)
	if !ok || bet.Status != domain.BetCommitted {
		return false, nil
	}
	if _, err := s.reveal(ctx, m); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) reveal(ctx context.Context, m domain.Market) (domain.SealedBet, error) {
	if m.Phase != domain.PhaseRevealing {
		return domain.SealedBet{}, fmt.Errorf("bettor.Reveal: phase %s: %w", m.Phase, domain.ErrWrongPhase)
	}
	bet, ok := s.secrets.GetBetForMarket(ctx, s.Wallet(), m.Address)
	if !ok {
		return domain.SealedBet{}, domain.ErrSecretMissing
	}
	if bet.Status != domain.BetCommitted {
		return bet, fmt.Errorf("bettor.Reveal: bet is %s: %w", bet.Status, domain.ErrWrongPhase)
	}
	if err := commitment.Verify(bet, s.Wallet()); err != nil {
		return bet, fmt.Errorf("bettor.Reveal: %w", err)
	}

	amount, err := bet.AmountInt()
	if err != nil {
		return bet, fmt.Errorf("bettor.Reveal: %w", err)
	}
	salt, err := commitment.ParseSalt(bet.Salt)
	if err != nil {
		return bet, fmt.Errorf("bettor.Reveal: %w", err)
	}

	tx, err := s.market.Reveal(ctx, bet.Direction, amount, salt)
	if err != nil {
		return bet, fmt.Errorf("bettor.Reveal: submit: %w", err)
	}
	slog.Info("reveal submitted", "market", m.Address, "tx", tx)

	if err := s.market.WaitForTx(ctx, tx); err != nil {
		return bet, fmt.Errorf("bettor.Reveal: wait %s: %w", tx, err)
	}

	update := domain.StatusUpdate(domain.BetRevealed, tx)
	if err := s.secrets.UpdateBetStatus(ctx, s.Wallet(), bet.MarketAddress, bet.Salt, update); err != nil {
		slog.Warn("bet status not updated", "err", err)
	}
	return update.Apply(bet), nil
}

// Claim cobra el pago (Finalized, ganador) o el reembolso (Cancelled).
// Cualquier otro caso devuelve domain.ErrNothingToClaim sin mandar nada.
func (s *Service) Claim(ctx context.Context) (domain.SealedBet, domain.Claim, error) {
	m, err := s.market.GetMarket(ctx)
	if err != nil {
		return domain.SealedBet{}, domain.Claim{}, fmt.Errorf("bettor.Claim: get market: %w", err)
	}

	bet, ok := s.secrets.GetBetForMarket(ctx, s.Wallet(), m.Address)
	var claim domain.Claim
	switch {
	case ok:
		if claim, err = domain.Entitlement(m, bet); err != nil {
			return bet, claim, fmt.Errorf("bettor.Claim: %w", err)
		}
	case m.Phase == domain.PhaseCancelled:
		// el reembolso no necesita el secreto; el contrato sabe si hubo commit
		if claim, err = domain.Entitlement(m, domain.SealedBet{Status: domain.BetCommitted}); err != nil {
			return bet, claim, fmt.Errorf("bettor.Claim: %w", err)
		}
	}

	var tx string
	switch claim.Kind {
	case domain.ClaimRefund:
		tx, err = s.market.Refund(ctx)
	case domain.ClaimPayout:
		tx, err = s.market.Claim(ctx)
	default:
		return bet, claim, domain.ErrNothingToClaim
	}
	if errors.Is(err, domain.ErrAlreadyClaimed) && ok {
		s.markClaimed(ctx, bet, "")
	}
	if err != nil {
		return bet, claim, fmt.Errorf("bettor.Claim: submit %s: %w", claim.Kind, err)
	}
	slog.Info("claim submitted", "kind", claim.Kind, "market", m.Address, "tx", tx)

	if err := s.market.WaitForTx(ctx, tx); err != nil {
		return bet, claim, fmt.Errorf("bettor.Claim: wait %s: %w", tx, err)
	}
	if ok {
		bet = s.markClaimed(ctx, bet, tx)
	}
	return bet, claim, nil
}

func (s *Service) markClaimed(ctx context.Context, bet domain.SealedBet, tx string) domain.SealedBet {
	update := domain.StatusUpdate(domain.BetClaimed, tx)
	if err := s.secrets.UpdateBetStatus(ctx, s.Wallet(), bet.MarketAddress, bet.Salt, update); err != nil {
		slog.Warn("bet status not updated", "err", err)
	}
	return update.Apply(bet)
}

// Position calcula la posición del apostador en el snapshot m.
// No hace llamadas on-chain.
func (s *Service) Position(ctx context.Context, m domain.Market) Position {
	bet, ok := s.secrets.GetBetForMarket(ctx, s.Wallet(), m.Address)
	if !ok {
		return Position{}
	}
	p := Position{Bet: &bet, Status: bet.EffectiveStatus(m, s.now())}
	claim, err := domain.Entitlement(m, bet)
	if err != nil {
		slog.Warn("entitlement unavailable", "market", m.Address, "err", err)
		return p
	}
	p.Claim = claim
	return p
}

// Preview lee el mercado y arma la posición del apostador.
func (s *Service) Preview(ctx context.Context) (Preview, error) {
	m, err := s.market.GetMarket(ctx)
	if err != nil {
		return Preview{}, fmt.Errorf("bettor.Preview: %w", err)
	}
	return Preview{
		Market:    m,
		Remaining: domain.TimeRemaining(m, s.now()),
		Position:  s.Position(ctx, m),
	}, nil
}
