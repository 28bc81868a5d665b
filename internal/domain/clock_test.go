package domain_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/darkpool/internal/domain"
	"github.com/stretchr/testify/assert"
)

func timedMarket(phase domain.Phase) domain.Market {
	base := time.Unix(1_700_000_000, 0).UTC()
	return domain.Market{
		Phase:          phase,
		StartTime:      base,
		CommitDeadline: base.Add(150 * time.Second),
		ExpiryTime:     base.Add(300 * time.Second),
		RevealDeadline: base.Add(600 * time.Second),
	}
}

func TestTimeRemaining_PerPhase(t *testing.T) {
	m := timedMarket(domain.PhaseCommitting)
	now := m.StartTime.Add(100 * time.Second)

	assert.Equal(t, 50*time.Second, domain.TimeRemaining(m, now))

	m.Phase = domain.PhaseClosed
	assert.Equal(t, 200*time.Second, domain.TimeRemaining(m, now))

	m.Phase = domain.PhaseRevealing
	assert.Equal(t, 500*time.Second, domain.TimeRemaining(m, now))
}

func TestTimeRemaining_NoTimerPhases(t *testing.T) {
	for _, p := range []domain.Phase{domain.PhaseResolved, domain.PhaseFinalized, domain.PhaseCancelled, domain.PhaseUnknown} {
		m := timedMarket(p)
		assert.Zero(t, domain.TimeRemaining(m, m.StartTime), "phase %s", p)
	}
}

func TestTimeRemaining_Boundary(t *testing.T) {
	m := timedMarket(domain.PhaseCommitting)

	assert.Zero(t, domain.TimeRemaining(m, m.CommitDeadline))
	assert.Zero(t, domain.TimeRemaining(m, m.CommitDeadline.Add(time.Second)))
	assert.Zero(t, domain.TimeRemaining(m, m.CommitDeadline.Add(time.Hour)))
	assert.Equal(t, time.Second, domain.TimeRemaining(m, m.CommitDeadline.Add(-time.Second)))
}

func TestTimeRemaining_SubSecondNow(t *testing.T) {
	m := timedMarket(domain.PhaseCommitting)
	// now se trunca al segundo: a 0.5s del deadline todavía queda 1s
	now := m.CommitDeadline.Add(-500 * time.Millisecond)
	assert.Equal(t, time.Second, domain.TimeRemaining(m, now))
}

func TestFormatCountdown(t *testing.T) {
	assert.Equal(t, "0:00", domain.FormatCountdown(0))
	assert.Equal(t, "0:09", domain.FormatCountdown(9*time.Second))
	assert.Equal(t, "2:30", domain.FormatCountdown(150*time.Second))
	assert.Equal(t, "0:00", domain.FormatCountdown(-time.Second))
}
