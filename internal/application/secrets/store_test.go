package secrets_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/darkpool/internal/application/secrets"
	"github.com/alejandrodnm/darkpool/internal/domain"
)

// --- mocks ---

type memBackend struct {
	data    map[string]string
	loadErr error
	writes  int
}

func newMemBackend() *memBackend { return &memBackend{data: make(map[string]string)} }

func (m *memBackend) Load(_ context.Context, key string) (string, bool, error) {
	if m.loadErr != nil {
		return "", false, m.loadErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memBackend) Store(_ context.Context, key, value string) error {
	m.writes++
	m.data[key] = value
	return nil
}

type memBlobs struct {
	objects map[string][]byte
}

func (b *memBlobs) Put(_ context.Context, key string, data io.Reader, _ string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.objects[key] = raw
	return nil
}

func (b *memBlobs) Get(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := b.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *memBlobs) List(_ context.Context, prefix string) ([]domain.BackupObject, error) {
	var out []domain.BackupObject
	for k, v := range b.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BackupObject{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

// --- helpers ---

const (
	wallet  = "0x5B38Da6a701c568545dCfcB03FcB875f56beddC4"
	market1 = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	market2 = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
	market3 = "0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0"
)

func makeBet(market, salt string, status domain.BetStatus, ts int64) domain.SealedBet {
	return domain.SealedBet{
		MarketAddress:  market,
		Direction:      domain.DirectionUp,
		Amount:         "1000000000000000000",
		Salt:           salt,
		CommitmentHash: "0x0f1e2d3c4b5a69788796a5b4c3d2e1f00f1e2d3c4b5a69788796a5b4c3d2e1f0",
		CommitTx:       "0x01",
		Status:         status,
		Timestamp:      ts,
	}
}

// --- tests ---

func TestStore_GetBets_Empty(t *testing.T) {
	s := secrets.NewStore(newMemBackend())
	bets := s.GetBets(context.Background(), wallet)
	assert.NotNil(t, bets)
	assert.Empty(t, bets)
}

func TestStore_GetBets_CorruptedDegradesToEmpty(t *testing.T) {
	backend := newMemBackend()
	backend.data[secrets.Key(wallet)] = "{not json"
	s := secrets.NewStore(backend)

	assert.Empty(t, s.GetBets(context.Background(), wallet))
}

func TestStore_GetBets_BackendErrorDegradesToEmpty(t *testing.T) {
	backend := newMemBackend()
	backend.loadErr = errors.New("disk on fire")
	s := secrets.NewStore(backend)

	assert.Empty(t, s.GetBets(context.Background(), wallet))
}

func TestStore_KeyIsLowercasedWallet(t *testing.T) {
	backend := newMemBackend()
	s := secrets.NewStore(backend)
	ctx := context.Background()

	require.NoError(t, s.SaveBet(ctx, wallet, makeBet(market1, "0x1", domain.BetCommitted, 1)))
	_, ok := backend.data["darkpool:bets:"+strings.ToLower(wallet)]
	assert.True(t, ok)

	// misma wallet con otra capitalización ve las mismas apuestas
	assert.Len(t, s.GetBets(ctx, "0x"+strings.ToUpper(wallet[2:])), 1)
	assert.Len(t, s.GetBets(ctx, strings.ToLower(wallet)), 1)
}

func TestStore_SaveBet_Upsert(t *testing.T) {
	s := secrets.NewStore(newMemBackend())
	ctx := context.Background()

	require.NoError(t, s.SaveBet(ctx, wallet, makeBet(market1, "0x1", domain.BetCommitted, 1)))
	require.NoError(t, s.SaveBet(ctx, wallet, makeBet(market1, "0x2", domain.BetCommitted, 2)))

	replaced := makeBet("0xM1", "0x1", domain.BetRevealed, 1)
	require.NoError(t, s.SaveBet(ctx, wallet, replaced))

	bets := s.GetBets(ctx, wallet)
	require.Len(t, bets, 2)
	assert.Equal(t, domain.BetRevealed, bets[0].Status)
}

func TestStore_UpdateBetStatus(t *testing.T) {
	backend := newMemBackend()
	s := secrets.NewStore(backend)
	ctx := context.Background()

	require.NoError(t, s.SaveBet(ctx, wallet, makeBet(market1, "0x1", domain.BetCommitted, 1)))

	require.NoError(t, s.UpdateBetStatus(ctx, wallet, market1, "0x1", domain.StatusUpdate(domain.BetRevealed, "0xr")))
	bet, ok := s.GetBetForMarket(ctx, wallet, market1)
	require.True(t, ok)
	assert.Equal(t, domain.BetRevealed, bet.Status)
	assert.Equal(t, "0xr", bet.RevealTx)
	assert.Equal(t, "0x01", bet.CommitTx)

	// sin match: no-op, sin escritura
	writes := backend.writes
	require.NoError(t, s.UpdateBetStatus(ctx, wallet, market1, "0x999", domain.StatusUpdate(domain.BetClaimed, "0xc")))
	assert.Equal(t, writes, backend.writes)
}

func TestStore_GetBetForMarket_PrefersActive(t *testing.T) {
	s := secrets.NewStore(newMemBackend())
	ctx := context.Background()

	require.NoError(t, s.SaveBet(ctx, wallet, makeBet(market1, "0x1", domain.BetCommitted, 100)))
	require.NoError(t, s.SaveBet(ctx, wallet, makeBet(market1, "0x2", domain.BetClaimed, 300)))
	require.NoError(t, s.SaveBet(ctx, wallet, makeBet(market1, "0x3", domain.BetRevealed, 200)))
	require.NoError(t, s.SaveBet(ctx, wallet, makeBet(market2, "0x4", domain.BetCommitted, 999)))

	bet, ok := s.GetBetForMarket(ctx, wallet, "0xM1")
	require.True(t, ok)
	assert.Equal(t, "0x3", bet.Salt)

	_, ok = s.GetBetForMarket(ctx, wallet, market3)
	assert.False(t, ok)
}

func TestStore_GetBetForMarket_FallsBackToMostRecent(t *testing.T) {
	s := secrets.NewStore(newMemBackend())
	ctx := context.Background()

	require.NoError(t, s.SaveBet(ctx, wallet, makeBet(market1, "0x1", domain.BetClaimed, 100)))
	require.NoError(t, s.SaveBet(ctx, wallet, makeBet(market1, "0x2", domain.BetForfeited, 200)))

	bet, ok := s.GetBetForMarket(ctx, wallet, market1)
	require.True(t, ok)
	assert.Equal(t, "0x2", bet.Salt)
}

func TestStore_ExportImportRoundTrip(t *testing.T) {
	src := secrets.NewStore(newMemBackend())
	ctx := context.Background()

	original := []domain.SealedBet{
		makeBet(market1, "0x1", domain.BetCommitted, 1),
		makeBet(market2, "0x2", domain.BetRevealed, 2),
	}
	original[1].RevealTx = "0xr"
	for _, b := range original {
		require.NoError(t, src.SaveBet(ctx, wallet, b))
	}

	exported, err := src.ExportBets(ctx, wallet)
	require.NoError(t, err)

	dst := secrets.NewStore(newMemBackend())
	n, err := dst.ImportBets(ctx, wallet, exported)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, original, dst.GetBets(ctx, wallet))
}

func TestStore_Import_Idempotent(t *testing.T) {
	s := secrets.NewStore(newMemBackend())
	ctx := context.Background()

	raw, err := json.Marshal([]domain.SealedBet{
		makeBet(market1, "0x1", domain.BetCommitted, 1),
		makeBet(market1, "0x2", domain.BetCommitted, 2),
	})
	require.NoError(t, err)

	n, err := s.ImportBets(ctx, wallet, string(raw))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.ImportBets(ctx, wallet, string(raw))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, s.GetBets(ctx, wallet), 2)
}

func TestStore_Import_NeverOverwrites(t *testing.T) {
	s := secrets.NewStore(newMemBackend())
	ctx := context.Background()

	require.NoError(t, s.SaveBet(ctx, wallet, makeBet(market1, "0x1", domain.BetRevealed, 1)))

	stale, err := json.Marshal([]domain.SealedBet{makeBet(market1, "0x1", domain.BetCommitted, 1)})
	require.NoError(t, err)

	n, err := s.ImportBets(ctx, wallet, string(stale))
	require.NoError(t, err)
	assert.Zero(t, n)

	bet, ok := s.GetBetForMarket(ctx, wallet, market1)
	require.True(t, ok)
	assert.Equal(t, domain.BetRevealed, bet.Status)
}

func TestStore_Import_Malformed(t *testing.T) {
	backend := newMemBackend()
	s := secrets.NewStore(backend)
	ctx := context.Background()

	for _, text := range []string{"{oops", "null", `{"marketAddress":"0x1"}`} {
		n, err := s.ImportBets(ctx, wallet, text)
		require.Error(t, err, text)
		assert.Zero(t, n)
		assert.ErrorIs(t, err, secrets.ErrMalformedBackup)

		var importErr *secrets.ImportError
		assert.ErrorAs(t, err, &importErr)
	}
	assert.Zero(t, backend.writes)
}

func TestStore_Import_RejectsEntriesThatAreNotBets(t *testing.T) {
	backend := newMemBackend()
	s := secrets.NewStore(backend)
	ctx := context.Background()

	for _, text := range []string{
		`[{"foo":1}]`,
		`[{"foo":1},{"direction":7,"amount":"-5"}]`,
	} {
		n, err := s.ImportBets(ctx, wallet, text)
		require.Error(t, err, text)
		assert.Zero(t, n)
		assert.ErrorIs(t, err, secrets.ErrMalformedBackup)
	}
	assert.Zero(t, backend.writes)
	assert.Empty(t, s.GetBets(ctx, wallet))
}

func TestStore_Import_ReportsEveryBadEntry(t *testing.T) {
	backend := newMemBackend()
	s := secrets.NewStore(backend)
	ctx := context.Background()

	good := makeBet(market1, "0x1", domain.BetCommitted, 1)
	badMarket := makeBet("0xnotanaddress", "0x2", domain.BetCommitted, 2)
	badSalt := makeBet(market1, "salt", domain.BetCommitted, 3)
	badHash := makeBet(market1, "0x4", domain.BetCommitted, 4)
	badHash.CommitmentHash = "0x0f"
	badStatus := makeBet(market1, "0x5", domain.BetStatus("lost"), 5)
	badAmount := makeBet(market1, "0x6", domain.BetCommitted, 6)
	badAmount.Amount = "1.5"

	raw, err := json.Marshal([]domain.SealedBet{good, badMarket, badSalt, badHash, badStatus, badAmount})
	require.NoError(t, err)

	n, err := s.ImportBets(ctx, wallet, string(raw))
	require.Error(t, err)
	assert.Zero(t, n)

	var importErr *secrets.ImportError
	require.ErrorAs(t, err, &importErr)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, importErr.Indexes())
	assert.Contains(t, err.Error(), "entry 2")
	assert.Zero(t, backend.writes, "a bad backup writes nothing")
}

func TestStore_BackupRestore(t *testing.T) {
	blobs := &memBlobs{objects: make(map[string][]byte)}
	ctx := context.Background()

	src := secrets.NewStore(newMemBackend())
	require.NoError(t, src.SaveBet(ctx, wallet, makeBet(market1, "0x1", domain.BetCommitted, 1)))

	key, err := src.Backup(ctx, wallet, blobs)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, secrets.BackupPrefix(wallet)))
	assert.True(t, strings.HasSuffix(key, ".json"))

	latest, err := secrets.LatestBackup(ctx, wallet, blobs)
	require.NoError(t, err)
	assert.Equal(t, key, latest)

	dst := secrets.NewStore(newMemBackend())
	n, err := dst.Restore(ctx, wallet, blobs, latest)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, src.GetBets(ctx, wallet), dst.GetBets(ctx, wallet))
}

func TestLatestBackup_None(t *testing.T) {
	blobs := &memBlobs{objects: make(map[string][]byte)}
	_, err := secrets.LatestBackup(context.Background(), wallet, blobs)
	assert.Error(t, err)
}
