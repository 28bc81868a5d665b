package domain

// payout.go — cálculo parimutuel estimado.
//
//   fee           = losePool * 300 / 10000          (división entera)
//   distributable = winPool + losePool - fee + totalForfeited
//   payout        = userAmount * distributable / winPool
//
// Es una ESTIMACIÓN: el contrato hace el cálculo autoritativo en el claim y
// puede diferir por el orden de redondeo. La aritmética es uint256, igual que
// en el contrato, y falla explícitamente si se sale del rango.

import (
	"math/big"

	"github.com/holiman/uint256"
)

const (
	// FeeBps es la comisión sobre el pool perdedor, en basis points.
	FeeBps = 300
	// BpsDenominator es la base de los basis points.
	BpsDenominator = 10_000
)

// ClaimKind clasifica lo que un apostador puede reclamar.
type ClaimKind int

const (
	ClaimNone ClaimKind = iota
	ClaimPayout
	ClaimRefund
)

func (k ClaimKind) String() string {
	switch k {
	case ClaimPayout:
		return "payout"
	case ClaimRefund:
		return "refund"
	default:
		return "none"
	}
}

// Claim es el derecho de cobro estimado de un apostador.
type Claim struct {
	Kind   ClaimKind
	Amount *uint256.Int
}

// Fee devuelve la comisión sobre el pool perdedor.
func Fee(losePool *uint256.Int) (*uint256.Int, error) {
	fee, overflow := new(uint256.Int).MulDivOverflow(losePool, uint256.NewInt(FeeBps), uint256.NewInt(BpsDenominator))
	if overflow {
		return nil, ErrOverflow
	}
	return fee, nil
}

// Distributable devuelve el total a repartir entre los ganadores.
// Siempre es <= winPool + losePool + totalForfeited.
func Distributable(winPool, losePool, totalForfeited *uint256.Int) (*uint256.Int, error) {
	fee, err := Fee(losePool)
	if err != nil {
		return nil, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(winPool, losePool)
	if overflow {
		return nil, ErrOverflow
	}
	sum.Sub(sum, fee) // fee <= losePool
	if _, overflow := sum.AddOverflow(sum, totalForfeited); overflow {
		return nil, ErrOverflow
	}
	return sum, nil
}

// EstimatePayout devuelve el pago estimado de un ganador que apostó userAmount.
// Devuelve ErrNoWinners si winPool es cero.
func EstimatePayout(winPool, losePool, totalForfeited, userAmount *uint256.Int) (*uint256.Int, error) {
	if winPool.IsZero() {
		return nil, ErrNoWinners
	}
	distributable, err := Distributable(winPool, losePool, totalForfeited)
	if err != nil {
		return nil, err
	}
	payout, overflow := new(uint256.Int).MulDivOverflow(userAmount, distributable, winPool)
	if overflow {
		return nil, ErrOverflow
	}
	return payout, nil
}

// Entitlement calcula qué puede reclamar el dueño de bet en el mercado m:
//   - Cancelled: reembolso exacto del escrow fijo, sin matemática de pools.
//   - Finalized + revelada + dirección ganadora: pago estimado.
//   - Cualquier otro caso (perdedor, no revelada, ya cobrada, mercado abierto): nada.
//
// Las apuestas no reveladas no cobran: su escrow pasa a totalForfeited y
// agranda el pool de los ganadores.
func Entitlement(m Market, bet SealedBet) (Claim, error) {
	none := Claim{Kind: ClaimNone, Amount: new(uint256.Int)}

	if bet.Status == BetClaimed {
		return none, nil
	}

	if m.Phase == PhaseCancelled {
		escrow, err := toU256(m.FixedEscrow)
		if err != nil {
			return none, err
		}
		return Claim{Kind: ClaimRefund, Amount: escrow}, nil
	}

	if m.Phase != PhaseFinalized || bet.Status != BetRevealed || !bet.Direction.Wins(m.Outcome) {
		return none, nil
	}

	amount, err := bet.AmountInt()
	if err != nil {
		return none, err
	}
	winBig, loseBig := m.Pools()

	user, err := toU256(amount)
	if err != nil {
		return none, err
	}
	win, err := toU256(winBig)
	if err != nil {
		return none, err
	}
	lose, err := toU256(loseBig)
	if err != nil {
		return none, err
	}
	forfeited, err := toU256(m.TotalForfeited)
	if err != nil {
		return none, err
	}

	payout, err := EstimatePayout(win, lose, forfeited, user)
	if err != nil {
		return none, err
	}
	return Claim{Kind: ClaimPayout, Amount: payout}, nil
}

// toU256 convierte un *big.Int (nil = 0) a uint256, rechazando negativos y overflow.
func toU256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrOverflow
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrOverflow
	}
	return u, nil
}
