package keeper_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/darkpool/internal/application/keeper"
	"github.com/alejandrodnm/darkpool/internal/domain"
	"github.com/alejandrodnm/darkpool/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

// mockAuthority devuelve los snapshots en orden; el último se repite.
type mockAuthority struct {
	snapshots  []domain.Market
	getErr     error
	resolveErr error
	waitErr    error

	onWait func()

	gets      int
	resolves  []domain.OraclePrice
	finalizes int
	waited    []string
	calls     []string
}

func (m *mockAuthority) GetMarket(_ context.Context) (domain.Market, error) {
	m.calls = append(m.calls, "get")
	if m.getErr != nil {
		return domain.Market{}, m.getErr
	}
	i := m.gets
	if i >= len(m.snapshots) {
		i = len(m.snapshots) - 1
	}
	m.gets++
	return m.snapshots[i], nil
}

func (m *mockAuthority) WaitForTx(_ context.Context, hash string) error {
	m.calls = append(m.calls, "wait")
	m.waited = append(m.waited, hash)
	if m.onWait != nil {
		m.onWait()
	}
	return m.waitErr
}

func (m *mockAuthority) Resolve(_ context.Context, price int64, expo int32) (string, error) {
	m.calls = append(m.calls, "resolve")
	if m.resolveErr != nil {
		return "", m.resolveErr
	}
	m.resolves = append(m.resolves, domain.OraclePrice{Price: price, Expo: expo})
	return "0xresolve", nil
}

func (m *mockAuthority) Finalize(_ context.Context) (string, error) {
	m.calls = append(m.calls, "finalize")
	m.finalizes++
	return "0xfinalize", nil
}

type mockOracle struct {
	price domain.OraclePrice
	err   error
	calls int
}

func (m *mockOracle) LatestPrice(_ context.Context, _ string) (domain.OraclePrice, error) {
	m.calls++
	return m.price, m.err
}

type mockActionLog struct {
	mu      sync.Mutex
	actions []domain.KeeperAction
}

func (m *mockActionLog) SaveAction(_ context.Context, a domain.KeeperAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, a)
	return nil
}

func (m *mockActionLog) RecentActions(_ context.Context, _ int) ([]domain.KeeperAction, error) {
	return m.actions, nil
}

// mockLock respeta el TTL contra clock: un lease vencido no se puede extender.
type mockLock struct {
	held     bool
	err      error
	keys     []string
	released int
	extends  int

	clock   *fakeClock
	ttl     time.Duration
	expires time.Time
}

func (m *mockLock) Acquire(_ context.Context, key string, ttl time.Duration) (ports.Lease, error) {
	m.keys = append(m.keys, key)
	if m.err != nil {
		return nil, m.err
	}
	if m.held {
		return nil, domain.ErrLockHeld
	}
	m.ttl = ttl
	m.expires = m.clock.Now().Add(ttl)
	return m, nil
}

func (m *mockLock) Extend(_ context.Context) error {
	m.extends++
	now := m.clock.Now()
	if !now.Before(m.expires) {
		return domain.ErrLockLost
	}
	m.expires = now.Add(m.ttl)
	return nil
}

func (m *mockLock) Release() { m.released++ }

// fakeClock es un reloj manual; nil vale como reloj fijo en base.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	if c == nil {
		return base
	}
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// --- helpers ---

var base = time.Unix(1_700_000_000, 0).UTC()

func snapshot(phase domain.Phase, commits uint64) domain.Market {
	return domain.Market{
		Address:        "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		Phase:          phase,
		StartTime:      base,
		CommitDeadline: base.Add(150 * time.Second),
		ExpiryTime:     base.Add(300 * time.Second),
		RevealDeadline: base.Add(600 * time.Second),
		StrikePrice:    big.NewInt(6_400_000_000_000),
		StrikeExpo:     -8,
		CommitCount:    commits,
	}
}

func newTestKeeper(auth *mockAuthority, oracle *mockOracle, log *mockActionLog, lock *mockLock, now time.Time) *keeper.Keeper {
	cfg := keeper.DefaultConfig()
	cfg.MarketAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	cfg.FeedID = "0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43"
	cfg.Once = true

	// un *mock nil dentro de la interfaz no es nil: se pasa nil explícito
	var k *keeper.Keeper
	switch {
	case lock != nil && log != nil:
		k = keeper.New(cfg, auth, oracle, log, lock)
	case log != nil:
		k = keeper.New(cfg, auth, oracle, log, nil)
	case lock != nil:
		k = keeper.New(cfg, auth, oracle, nil, lock)
	default:
		k = keeper.New(cfg, auth, oracle, nil, nil)
	}
	return k.WithClock(func() time.Time { return now })
}

func btcPrice() domain.OraclePrice {
	return domain.OraclePrice{Price: 6_412_345_000_000, Expo: -8}
}

// --- tests ---

func TestRunCycle_CommittingDoesNothing(t *testing.T) {
	auth := &mockAuthority{snapshots: []domain.Market{snapshot(domain.PhaseCommitting, 3)}}
	oracle := &mockOracle{price: btcPrice()}

	k := newTestKeeper(auth, oracle, nil, nil, base.Add(10*time.Second))
	require.NoError(t, k.RunCycle(context.Background()))

	assert.Equal(t, []string{"get"}, auth.calls)
	assert.Zero(t, oracle.calls)
}

func TestRunCycle_ClosedBeforeExpiryDoesNothing(t *testing.T) {
	auth := &mockAuthority{snapshots: []domain.Market{snapshot(domain.PhaseClosed, 3)}}
	oracle := &mockOracle{price: btcPrice()}

	k := newTestKeeper(auth, oracle, nil, nil, base.Add(299*time.Second))
	require.NoError(t, k.RunCycle(context.Background()))

	assert.Empty(t, auth.resolves)
	assert.Zero(t, oracle.calls)
}

func TestRunCycle_ResolvesAtExpiry(t *testing.T) {
	auth := &mockAuthority{snapshots: []domain.Market{
		snapshot(domain.PhaseClosed, 2),
		snapshot(domain.PhaseResolved, 2),
	}}
	oracle := &mockOracle{price: btcPrice()}
	log := &mockActionLog{}

	k := newTestKeeper(auth, oracle, log, nil, base.Add(300*time.Second))
	require.NoError(t, k.RunCycle(context.Background()))

	require.Len(t, auth.resolves, 1)
	assert.Equal(t, int64(6_412_345_000_000), auth.resolves[0].Price)
	assert.Equal(t, int32(-8), auth.resolves[0].Expo)
	// receipt antes del re-fetch; el reveal deadline aún no llegó
	assert.Equal(t, []string{"get", "resolve", "wait", "get"}, auth.calls)
	assert.Zero(t, auth.finalizes)

	require.Len(t, log.actions, 1)
	a := log.actions[0]
	assert.Equal(t, domain.ActionResolve, a.Kind)
	assert.True(t, a.Success)
	assert.Equal(t, "0xresolve", a.TxHash)
	assert.Equal(t, int64(6_412_345_000_000), a.Price)
	assert.NotEmpty(t, a.CycleID)
	assert.NotEmpty(t, a.ID)
}

func TestRunCycle_SkipsResolveWithoutCommits(t *testing.T) {
	auth := &mockAuthority{snapshots: []domain.Market{snapshot(domain.PhaseClosed, 0)}}
	oracle := &mockOracle{price: btcPrice()}
	log := &mockActionLog{}

	k := newTestKeeper(auth, oracle, log, nil, base.Add(time.Hour))
	require.NoError(t, k.RunCycle(context.Background()))

	assert.Empty(t, auth.resolves)
	assert.Zero(t, oracle.calls)
	assert.Empty(t, log.actions)
}

func TestRunCycle_FinalizesAfterRevealDeadline(t *testing.T) {
	for _, phase := range []domain.Phase{domain.PhaseResolved, domain.PhaseRevealing} {
		t.Run(phase.String(), func(t *testing.T) {
			auth := &mockAuthority{snapshots: []domain.Market{snapshot(phase, 2)}}
			log := &mockActionLog{}

			k := newTestKeeper(auth, &mockOracle{}, log, nil, base.Add(600*time.Second))
			require.NoError(t, k.RunCycle(context.Background()))

			assert.Equal(t, 1, auth.finalizes)
			assert.Equal(t, []string{"0xfinalize"}, auth.waited)
			require.Len(t, log.actions, 1)
			assert.Equal(t, domain.ActionFinalize, log.actions[0].Kind)
			assert.True(t, log.actions[0].Success)
		})
	}
}

func TestRunCycle_ResolveThenFinalizeSameCycle(t *testing.T) {
	// el keeper estuvo caído: al volver ya pasó también el reveal deadline
	auth := &mockAuthority{snapshots: []domain.Market{
		snapshot(domain.PhaseClosed, 1),
		snapshot(domain.PhaseResolved, 1),
	}}
	log := &mockActionLog{}

	k := newTestKeeper(auth, &mockOracle{price: btcPrice()}, log, nil, base.Add(time.Hour))
	require.NoError(t, k.RunCycle(context.Background()))

	assert.Equal(t, []string{"get", "resolve", "wait", "get", "finalize", "wait"}, auth.calls)
	require.Len(t, log.actions, 2)
	assert.Equal(t, log.actions[0].CycleID, log.actions[1].CycleID)
}

func TestRunCycle_TerminalPhasesAreIgnored(t *testing.T) {
	for _, phase := range []domain.Phase{domain.PhaseFinalized, domain.PhaseCancelled, domain.PhaseUnknown} {
		auth := &mockAuthority{snapshots: []domain.Market{snapshot(phase, 5)}}
		k := newTestKeeper(auth, &mockOracle{price: btcPrice()}, nil, nil, base.Add(24*time.Hour))
		require.NoError(t, k.RunCycle(context.Background()))
		assert.Equal(t, []string{"get"}, auth.calls, "phase %s", phase)
	}
}

func TestRunCycle_OracleFailureIsRecorded(t *testing.T) {
	auth := &mockAuthority{snapshots: []domain.Market{snapshot(domain.PhaseClosed, 1)}}
	oracle := &mockOracle{err: errors.New("hermes down")}
	log := &mockActionLog{}

	k := newTestKeeper(auth, oracle, log, nil, base.Add(301*time.Second))
	err := k.RunCycle(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "hermes down")
	assert.Empty(t, auth.resolves)
	require.Len(t, log.actions, 1)
	assert.False(t, log.actions[0].Success)
	assert.Contains(t, log.actions[0].Error, "hermes down")
}

func TestRunCycle_RevertedResolveIsRecorded(t *testing.T) {
	auth := &mockAuthority{
		snapshots: []domain.Market{snapshot(domain.PhaseClosed, 1)},
		waitErr:   domain.ErrTxReverted,
	}
	log := &mockActionLog{}

	k := newTestKeeper(auth, &mockOracle{price: btcPrice()}, log, nil, base.Add(301*time.Second))
	err := k.RunCycle(context.Background())

	assert.ErrorIs(t, err, domain.ErrTxReverted)
	require.Len(t, log.actions, 1)
	assert.Equal(t, "0xresolve", log.actions[0].TxHash)
	assert.False(t, log.actions[0].Success)
	// sin receipt no hay re-fetch ni segunda mutación
	assert.Equal(t, []string{"get", "resolve", "wait"}, auth.calls)
}

func TestRunCycle_GetMarketError(t *testing.T) {
	auth := &mockAuthority{getErr: errors.New("rpc timeout")}
	k := newTestKeeper(auth, &mockOracle{}, nil, nil, base)

	err := k.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc timeout")
}

func TestRunCycle_LockHeldSkipsCycle(t *testing.T) {
	auth := &mockAuthority{snapshots: []domain.Market{snapshot(domain.PhaseClosed, 1)}}
	lock := &mockLock{held: true}

	k := newTestKeeper(auth, &mockOracle{price: btcPrice()}, nil, lock, base.Add(time.Hour))
	require.NoError(t, k.RunCycle(context.Background()))

	assert.Empty(t, auth.calls)
	assert.Equal(t, []string{"keeper:0x5fbdb2315678afecb367f032d93f642f64180aa3"}, lock.keys)
}

func TestRunCycle_LockReleasedAfterCycle(t *testing.T) {
	auth := &mockAuthority{snapshots: []domain.Market{snapshot(domain.PhaseCommitting, 1)}}
	lock := &mockLock{}

	k := newTestKeeper(auth, &mockOracle{}, nil, lock, base)
	require.NoError(t, k.RunCycle(context.Background()))

	assert.Equal(t, 1, lock.released)
}

func TestRunCycle_ExtendsLockBeforeEachMutation(t *testing.T) {
	auth := &mockAuthority{snapshots: []domain.Market{
		snapshot(domain.PhaseClosed, 1),
		snapshot(domain.PhaseResolved, 1),
	}}
	clock := &fakeClock{now: base}
	lock := &mockLock{clock: clock}
	// dos receipts de 150s no entran en un TTL de 180s sin renovar
	auth.onWait = func() { clock.Advance(150 * time.Second) }

	k := newTestKeeper(auth, &mockOracle{price: btcPrice()}, nil, lock, base.Add(time.Hour))
	require.NoError(t, k.RunCycle(context.Background()))

	assert.Equal(t, 2, lock.extends)
	assert.Equal(t, 1, auth.finalizes)
	assert.Equal(t, 1, lock.released)
}

func TestRunCycle_ExpiredLockStopsBeforeMutation(t *testing.T) {
	auth := &mockAuthority{snapshots: []domain.Market{
		snapshot(domain.PhaseClosed, 1),
		snapshot(domain.PhaseResolved, 1),
	}}
	clock := &fakeClock{now: base}
	lock := &mockLock{clock: clock}
	// el receipt del resolve llega después de que venció el lock
	auth.onWait = func() { clock.Advance(3 * time.Minute) }
	log := &mockActionLog{}

	k := newTestKeeper(auth, &mockOracle{price: btcPrice()}, log, lock, base.Add(time.Hour))
	err := k.RunCycle(context.Background())

	require.ErrorIs(t, err, domain.ErrLockLost)
	assert.Equal(t, []string{"get", "resolve", "wait", "get"}, auth.calls, "no finalize after losing the lock")
	require.Len(t, log.actions, 2)
	assert.False(t, log.actions[1].Success)
	assert.Equal(t, domain.ActionFinalize, log.actions[1].Kind)
}

func TestRunCycle_LockErrorFailsCycle(t *testing.T) {
	auth := &mockAuthority{snapshots: []domain.Market{snapshot(domain.PhaseCommitting, 1)}}
	lock := &mockLock{err: errors.New("redis unreachable")}

	k := newTestKeeper(auth, &mockOracle{}, nil, lock, base)
	err := k.RunCycle(context.Background())

	require.Error(t, err)
	assert.Empty(t, auth.calls)
}

func TestRun_OnceReturnsCycleError(t *testing.T) {
	auth := &mockAuthority{getErr: errors.New("boom")}
	k := newTestKeeper(auth, &mockOracle{}, nil, nil, base)

	assert.Error(t, k.Run(context.Background()))
}

func TestRun_StopsOnCancel(t *testing.T) {
	auth := &mockAuthority{getErr: errors.New("boom")}
	cfg := keeper.DefaultConfig()
	cfg.PollInterval = time.Hour
	k := keeper.New(cfg, auth, &mockOracle{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		// los errores de ciclo no cortan el loop; solo la cancelación
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("keeper did not stop")
	}
}
