// Package secrets guarda los datos privados de cada apuesta sellada
// (dirección, monto y salt). Sin ellos la apuesta no se puede revelar y el
// escrow se pierde, así que el store nunca borra registros.
package secrets

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/darkpool/internal/commitment"
	"github.com/alejandrodnm/darkpool/internal/domain"
	"github.com/alejandrodnm/darkpool/internal/ports"
)

// KeyPrefix es el prefijo de la key por wallet en el backend.
const KeyPrefix = "darkpool:bets:"

// ErrMalformedBackup indica que el texto a importar no es una lista de apuestas válida.
var ErrMalformedBackup = errors.New("malformed bets backup")

// ImportError describe un import rechazado: el JSON no parsea (Err) o hay
// entradas que no son apuestas válidas (Entries).
type ImportError struct {
	Err     error
	Entries []EntryError
}

// EntryError es el problema de una entrada del backup, por posición.
type EntryError struct {
	Index int
	Err   error
}

func (e *ImportError) Error() string {
	if len(e.Entries) == 0 {
		return fmt.Sprintf("secrets: import: %v", e.Err)
	}
	msgs := make([]string, len(e.Entries))
	for i, ee := range e.Entries {
		msgs[i] = fmt.Sprintf("entry %d: %v", ee.Index, ee.Err)
	}
	return fmt.Sprintf("secrets: import: %d invalid bet(s): %s", len(e.Entries), strings.Join(msgs, "; "))
}

func (e *ImportError) Unwrap() []error {
	errs := []error{ErrMalformedBackup}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	for _, ee := range e.Entries {
		errs = append(errs, ee.Err)
	}
	return errs
}

// Indexes devuelve las posiciones de las entradas inválidas.
func (e *ImportError) Indexes() []int {
	idx := make([]int, len(e.Entries))
	for i, ee := range e.Entries {
		idx[i] = ee.Index
	}
	return idx
}

// Store es el Secret Store. Un solo escritor por proceso; el mutex serializa
// los read-modify-write porque el monitor corre goroutines.
type Store struct {
	backend ports.SecretBackend
	mu      sync.Mutex
}

// NewStore crea un Store sobre el backend dado.
func NewStore(backend ports.SecretBackend) *Store {
	return &Store{backend: backend}
}

// Key devuelve la key del backend para una wallet.
func Key(wallet string) string {
	return KeyPrefix + strings.ToLower(wallet)
}

// GetBets devuelve las apuestas de la wallet. Con key ausente, error del
// backend o JSON corrupto devuelve lista vacía y loguea un warning.
func (s *Store) GetBets(ctx context.Context, wallet string) []domain.SealedBet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, wallet)
}

// SaveBet inserta la apuesta o reemplaza la que tenga el mismo (market, salt).
func (s *Store) SaveBet(ctx context.Context, wallet string, bet domain.SealedBet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bets := s.load(ctx, wallet)
	if i := indexOf(bets, bet.MarketAddress, bet.Salt); i >= 0 {
		bets[i] = bet
	} else {
		bets = append(bets, bet)
	}
	return s.save(ctx, wallet, bets)
}

// UpdateBetStatus aplica update a la apuesta (market, salt). Si no existe no hace nada.
func (s *Store) UpdateBetStatus(ctx context.Context, wallet, marketAddress, salt string, update domain.BetUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bets := s.load(ctx, wallet)
	i := indexOf(bets, marketAddress, salt)
	if i < 0 {
		return nil
	}
	bets[i] = update.Apply(bets[i])
	return s.save(ctx, wallet, bets)
}

// GetBetForMarket devuelve la apuesta más reciente todavía activa
// (committed/revealed) del mercado. Si ninguna está activa, la más reciente.
func (s *Store) GetBetForMarket(ctx context.Context, wallet, marketAddress string) (domain.SealedBet, bool) {
	var (
		best     domain.SealedBet
		found    bool
		bestLive bool
	)
	for _, b := range s.GetBets(ctx, wallet) {
		if !strings.EqualFold(b.MarketAddress, marketAddress) {
			continue
		}
		live := b.Status.Active()
		switch {
		case !found:
		case live && !bestLive:
		case live == bestLive && b.Timestamp > best.Timestamp:
		default:
			continue
		}
		best, found, bestLive = b, true, live
	}
	return best, found
}

// ExportBets devuelve la lista como JSON indentado, el formato de backup.
func (s *Store) ExportBets(ctx context.Context, wallet string) (string, error) {
	bets := s.GetBets(ctx, wallet)
	data, err := json.MarshalIndent(bets, "", "  ")
	if err != nil {
		return "", fmt.Errorf("secrets.ExportBets: %w", err)
	}
	return string(data), nil
}

// ImportBets mergea un backup: agrega las apuestas cuyo (market, salt) no
// existe y NUNCA pisa las existentes. Devuelve cuántas agregó. Si el texto no
// parsea o alguna entrada no es una apuesta válida devuelve *ImportError y no
// escribe nada.
func (s *Store) ImportBets(ctx context.Context, wallet, text string) (int, error) {
	imported, err := parseBets(text)
	if err != nil {
		return 0, &ImportError{Err: err}
	}
	var invalid []EntryError
	for i, b := range imported {
		if err := validateBet(b); err != nil {
			invalid = append(invalid, EntryError{Index: i, Err: err})
		}
	}
	if len(invalid) > 0 {
		return 0, &ImportError{Entries: invalid}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.load(ctx, wallet)
	added := 0
	for _, b := range imported {
		if indexOf(existing, b.MarketAddress, b.Salt) >= 0 {
			continue
		}
		existing = append(existing, b)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := s.save(ctx, wallet, existing); err != nil {
		return 0, err
	}
	return added, nil
}

// Backup sube el export a almacenamiento externo y devuelve la key del objeto.
func (s *Store) Backup(ctx context.Context, wallet string, w ports.BackupWriter) (string, error) {
	data, err := s.ExportBets(ctx, wallet)
	if err != nil {
		return "", err
	}
	key := BackupPrefix(wallet) + time.Now().UTC().Format("20060102T150405Z") + ".json"
	if err := w.Put(ctx, key, bytes.NewReader([]byte(data)), "application/json"); err != nil {
		return "", fmt.Errorf("secrets.Backup: %w", err)
	}
	return key, nil
}

// Restore descarga un backup y lo importa con la misma semántica que ImportBets.
func (s *Store) Restore(ctx context.Context, wallet string, r ports.BackupReader, key string) (int, error) {
	body, err := r.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("secrets.Restore: %w", err)
	}
	defer body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return 0, fmt.Errorf("secrets.Restore: read %s: %w", key, err)
	}
	return s.ImportBets(ctx, wallet, buf.String())
}

// LatestBackup devuelve la key del backup más reciente de la wallet.
func LatestBackup(ctx context.Context, wallet string, r ports.BackupReader) (string, error) {
	objs, err := r.List(ctx, BackupPrefix(wallet))
	if err != nil {
		return "", fmt.Errorf("secrets.LatestBackup: %w", err)
	}
	if len(objs) == 0 {
		return "", fmt.Errorf("secrets.LatestBackup: no backups for %s", wallet)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Key > objs[j].Key })
	return objs[0].Key, nil
}

// BackupPrefix es el prefijo de los objetos de backup de una wallet.
func BackupPrefix(wallet string) string {
	return "bets/" + strings.ToLower(wallet) + "/"
}

// load lee y parsea la lista. Llamar con mu tomado.
func (s *Store) load(ctx context.Context, wallet string) []domain.SealedBet {
	raw, ok, err := s.backend.Load(ctx, Key(wallet))
	if err != nil {
		slog.Warn("secrets: backend read failed, treating as empty", "wallet", wallet, "err", err)
		return []domain.SealedBet{}
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return []domain.SealedBet{}
	}
	bets, err := parseBets(raw)
	if err != nil {
		slog.Warn("secrets: stored bets are corrupted, treating as empty", "wallet", wallet, "err", err)
		return []domain.SealedBet{}
	}
	return bets
}

// save serializa y guarda la lista. Llamar con mu tomado.
func (s *Store) save(ctx context.Context, wallet string, bets []domain.SealedBet) error {
	data, err := json.Marshal(bets)
	if err != nil {
		return fmt.Errorf("secrets.save: %w", err)
	}
	if err := s.backend.Store(ctx, Key(wallet), string(data)); err != nil {
		return fmt.Errorf("secrets.save: %w", err)
	}
	return nil
}

func parseBets(text string) ([]domain.SealedBet, error) {
	var bets []domain.SealedBet
	if err := json.Unmarshal([]byte(text), &bets); err != nil {
		return nil, err
	}
	if bets == nil {
		return nil, errors.New("expected a JSON array of bets")
	}
	return bets, nil
}

// validateBet exige lo necesario para poder revelar la apuesta más tarde.
func validateBet(b domain.SealedBet) error {
	if !common.IsHexAddress(b.MarketAddress) {
		return fmt.Errorf("market address %q is not a hex address", b.MarketAddress)
	}
	if !b.Direction.Valid() {
		return fmt.Errorf("unknown direction %d", b.Direction)
	}
	if _, err := b.AmountInt(); err != nil {
		return err
	}
	if _, err := commitment.ParseSalt(b.Salt); err != nil {
		return err
	}
	if h := b.CommitmentHash; !has0x(h) || len(h) != 66 || !isHex(h[2:]) {
		return fmt.Errorf("commitment hash %q is not 32 bytes of hex", h)
	}
	switch b.Status {
	case domain.BetCommitted, domain.BetRevealed, domain.BetClaimed, domain.BetForfeited:
	default:
		return fmt.Errorf("unknown status %q", b.Status)
	}
	return nil
}

func has0x(s string) bool {
	return strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}

func indexOf(bets []domain.SealedBet, marketAddress, salt string) int {
	for i, b := range bets {
		if b.SameIdentity(marketAddress, salt) {
			return i
		}
	}
	return -1
}
