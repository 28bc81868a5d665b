package domain_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/alejandrodnm/darkpool/internal/domain"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func finalizedMarket(up, down, forfeited int64, outcome domain.Side) domain.Market {
	return domain.Market{
		Phase:          domain.PhaseFinalized,
		Outcome:        outcome,
		UpPool:         big.NewInt(up),
		DownPool:       big.NewInt(down),
		TotalForfeited: big.NewInt(forfeited),
		FixedEscrow:    big.NewInt(10),
	}
}

func TestEstimatePayout_EndToEndScenario(t *testing.T) {
	// up=40 down=60 outcome=Up: fee=1, distributable=99, payout=40*99/40
	fee, err := domain.Fee(u(60))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), fee.Uint64())

	payout, err := domain.EstimatePayout(u(40), u(60), u(0), u(40))
	require.NoError(t, err)
	assert.Equal(t, uint64(99), payout.Uint64())
}

func TestEstimatePayout_NoWinners(t *testing.T) {
	_, err := domain.EstimatePayout(u(0), u(60), u(0), u(10))
	assert.ErrorIs(t, err, domain.ErrNoWinners)
}

func TestEstimatePayout_ForfeitedEnlargesPool(t *testing.T) {
	without, err := domain.EstimatePayout(u(40), u(60), u(0), u(20))
	require.NoError(t, err)
	with, err := domain.EstimatePayout(u(40), u(60), u(10), u(20))
	require.NoError(t, err)
	assert.True(t, with.Gt(without))
}

func TestEstimatePayout_MonotonicInUserAmount(t *testing.T) {
	win, lose, forfeited := u(1_000), u(5_000), u(30)
	prev := new(uint256.Int)
	for amount := uint64(1); amount <= 1_000; amount += 37 {
		p, err := domain.EstimatePayout(win, lose, forfeited, u(amount))
		require.NoError(t, err)
		assert.True(t, p.Gt(prev), "payout must strictly increase (amount=%d)", amount)
		prev = p
	}
}

func TestEstimatePayout_SumNeverExceedsPools(t *testing.T) {
	cases := []struct {
		stakes    []uint64
		lose      uint64
		forfeited uint64
	}{
		{[]uint64{40}, 60, 0},
		{[]uint64{1, 2, 3, 4}, 977, 13},
		{[]uint64{333, 333, 334}, 10_001, 7},
		{[]uint64{5}, 0, 0},
	}
	for _, c := range cases {
		var win uint64
		for _, s := range c.stakes {
			win += s
		}
		total := new(uint256.Int)
		for _, s := range c.stakes {
			p, err := domain.EstimatePayout(u(win), u(c.lose), u(c.forfeited), u(s))
			require.NoError(t, err)
			total.Add(total, p)
		}
		assert.LessOrEqual(t, total.Uint64(), win+c.lose+c.forfeited)
	}
}

func TestEstimatePayout_Overflow(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	_, err := domain.EstimatePayout(max, max, u(0), u(1))
	assert.ErrorIs(t, err, domain.ErrOverflow)
}

func TestEntitlement_Winner(t *testing.T) {
	m := finalizedMarket(40, 60, 0, domain.SideUp)
	bet := domain.SealedBet{Direction: domain.DirectionUp, Amount: "40", Status: domain.BetRevealed}

	claim, err := domain.Entitlement(m, bet)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimPayout, claim.Kind)
	assert.Equal(t, uint64(99), claim.Amount.Uint64())
}

func TestEntitlement_LoserGetsNothing(t *testing.T) {
	m := finalizedMarket(40, 60, 0, domain.SideUp)
	bet := domain.SealedBet{Direction: domain.DirectionDown, Amount: "60", Status: domain.BetRevealed}

	claim, err := domain.Entitlement(m, bet)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimNone, claim.Kind)
	assert.True(t, claim.Amount.IsZero())
}

func TestEntitlement_NonRevealerForfeits(t *testing.T) {
	// apostó 10 en el lado ganador pero nunca reveló: su escrow está en totalForfeited
	m := finalizedMarket(40, 60, 10, domain.SideUp)
	bet := domain.SealedBet{Direction: domain.DirectionUp, Amount: "10", Status: domain.BetCommitted}

	claim, err := domain.Entitlement(m, bet)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimNone, claim.Kind)
	assert.True(t, claim.Amount.IsZero())
	assert.Equal(t, domain.BetForfeited, bet.EffectiveStatus(m, time.Now()))
}

func TestEntitlement_CancelledRefundsEscrow(t *testing.T) {
	m := domain.Market{
		Phase:       domain.PhaseCancelled,
		UpPool:      big.NewInt(123_456),
		DownPool:    big.NewInt(7),
		FixedEscrow: big.NewInt(10),
	}
	for _, status := range []domain.BetStatus{domain.BetCommitted, domain.BetRevealed} {
		bet := domain.SealedBet{Direction: domain.DirectionDown, Amount: "999", Status: status}
		claim, err := domain.Entitlement(m, bet)
		require.NoError(t, err)
		assert.Equal(t, domain.ClaimRefund, claim.Kind)
		assert.Equal(t, uint64(10), claim.Amount.Uint64())
	}
}

func TestEntitlement_AlreadyClaimed(t *testing.T) {
	m := finalizedMarket(40, 60, 0, domain.SideUp)
	bet := domain.SealedBet{Direction: domain.DirectionUp, Amount: "40", Status: domain.BetClaimed}

	claim, err := domain.Entitlement(m, bet)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimNone, claim.Kind)
}

func TestEntitlement_NotFinalizedYet(t *testing.T) {
	m := finalizedMarket(40, 60, 0, domain.SideUp)
	m.Phase = domain.PhaseRevealing
	bet := domain.SealedBet{Direction: domain.DirectionUp, Amount: "40", Status: domain.BetRevealed}

	claim, err := domain.Entitlement(m, bet)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimNone, claim.Kind)
}

func TestEntitlement_InvalidAmount(t *testing.T) {
	m := finalizedMarket(40, 60, 0, domain.SideUp)
	bet := domain.SealedBet{Direction: domain.DirectionUp, Amount: "4o", Status: domain.BetRevealed}

	_, err := domain.Entitlement(m, bet)
	assert.Error(t, err)
}
