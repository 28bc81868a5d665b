package domain

import (
	"math/big"
	"time"
)

// Phase es la fase del mercado según el contrato. El contrato es la única
// autoridad: el core nunca cambia la fase salvo pidiendo resolve/finalize.
type Phase uint8

const (
	PhaseCommitting Phase = iota
	PhaseClosed
	PhaseResolved
	PhaseRevealing
	PhaseFinalized
	PhaseCancelled

	// PhaseUnknown es el fallback cuando la respuesta no se pudo decodificar.
	// Nunca se actúa sobre un mercado en esta fase.
	PhaseUnknown Phase = 255
)

var phaseNames = map[Phase]string{
	PhaseCommitting: "Committing",
	PhaseClosed:     "Closed",
	PhaseResolved:   "Resolved",
	PhaseRevealing:  "Revealing",
	PhaseFinalized:  "Finalized",
	PhaseCancelled:  "Cancelled",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "Unknown"
}

// IsTerminal devuelve true para Finalized y Cancelled: una vez ahí la fase no cambia más.
func (p Phase) IsTerminal() bool {
	return p == PhaseFinalized || p == PhaseCancelled
}

// Side es el resultado de un mercado resuelto.
type Side uint8

const (
	SideNone Side = iota
	SideUp
	SideDown
)

func (s Side) String() string {
	switch s {
	case SideUp:
		return "Up"
	case SideDown:
		return "Down"
	default:
		return "None"
	}
}

// Market es el snapshot de solo lectura de un mercado, refrescado en cada poll.
// No se cachean suposiciones de fase entre ciclos.
type Market struct {
	ID       *big.Int
	Address  string // dirección del contrato (0x...)
	BetToken string // token del escrow

	StartTime      time.Time
	CommitDeadline time.Time
	ExpiryTime     time.Time
	RevealDeadline time.Time

	StrikePrice *big.Int
	StrikeExpo  int32

	FixedEscrow    *big.Int
	UpPool         *big.Int
	DownPool       *big.Int
	TotalForfeited *big.Int
	CommitCount    uint64
	RevealCount    uint64

	Phase Phase

	// Fijados una sola vez en la transición Closed → Resolved.
	ResolutionPrice *big.Int
	ResolutionExpo  int32
	Outcome         Side
}

// Pools devuelve (pool ganador, pool perdedor) según el outcome.
// Con outcome None ambos son cero.
func (m Market) Pools() (win, lose *big.Int) {
	up, down := orZero(m.UpPool), orZero(m.DownPool)
	switch m.Outcome {
	case SideUp:
		return up, down
	case SideDown:
		return down, up
	default:
		return new(big.Int), new(big.Int)
	}
}

// DeadlineFor devuelve el deadline que cierra la fase dada.
// ok es false para fases sin temporizador.
func (m Market) DeadlineFor(p Phase) (deadline time.Time, ok bool) {
	switch p {
	case PhaseCommitting:
		return m.CommitDeadline, true
	case PhaseClosed:
		return m.ExpiryTime, true
	case PhaseRevealing:
		return m.RevealDeadline, true
	default:
		return time.Time{}, false
	}
}

// NeedsResolve indica si el keeper debe resolver el mercado en este instante.
func (m Market) NeedsResolve(now time.Time) bool {
	return m.Phase == PhaseClosed && !now.Before(m.ExpiryTime)
}

// NeedsFinalize indica si el keeper debe finalizar el mercado en este instante.
func (m Market) NeedsFinalize(now time.Time) bool {
	return (m.Phase == PhaseResolved || m.Phase == PhaseRevealing) && !now.Before(m.RevealDeadline)
}

// MarketParams son los parámetros con los que la factory crea un mercado nuevo.
type MarketParams struct {
	BetToken       string
	FixedEscrow    *big.Int
	StrikePrice    int64
	StrikeExpo     int32
	CommitDuration time.Duration
	ClosedDuration time.Duration
	RevealDuration time.Duration
	FeeCollector   string
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
