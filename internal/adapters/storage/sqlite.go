package storage

// sqlite.go — almacenamiento local del proceso.
//
// Tablas:
//   - `secrets`: key/value. Una fila por wallet con el JSON de sus apuestas
//     selladas. El formato del valor lo decide el Secret Store, acá es opaco.
//   - `keeper_actions`: historial de resolve/finalize/create del keeper.
//     Solo auditoría: el keeper nunca lo lee para decidir.
//   - Prune automático al arrancar: acciones > 30d. Los secretos NUNCA se
//     borran; perder un salt es perder el escrow.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/darkpool/internal/domain"
	"github.com/alejandrodnm/darkpool/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS secrets (
    key        TEXT PRIMARY KEY,
    value      TEXT     NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS keeper_actions (
    id             TEXT PRIMARY KEY,
    cycle_id       TEXT     NOT NULL DEFAULT '',
    market_address TEXT     NOT NULL DEFAULT '',
    kind           TEXT     NOT NULL,
    tx_hash        TEXT     NOT NULL DEFAULT '',
    price          INTEGER  NOT NULL DEFAULT 0,
    expo           INTEGER  NOT NULL DEFAULT 0,
    success        INTEGER  NOT NULL DEFAULT 0,
    error          TEXT     NOT NULL DEFAULT '',
    executed_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_actions_at ON keeper_actions(executed_at DESC);
`

const retentionActions = 30 * 24 * time.Hour

// SQLiteStorage implementa ports.Storage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

var _ ports.Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada,
// aplica el schema y limpia el historial viejo.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// Load devuelve el valor guardado en key. ok es false si no existe.
func (s *SQLiteStorage) Load(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage.Load: %w", err)
	}
	return value, true, nil
}

// Store reemplaza el valor de key.
func (s *SQLiteStorage) Store(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO secrets (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.Store: %w", err)
	}
	return nil
}

// SaveAction registra una acción del keeper.
func (s *SQLiteStorage) SaveAction(ctx context.Context, a domain.KeeperAction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO keeper_actions
			(id, cycle_id, market_address, kind, tx_hash, price, expo, success, error, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CycleID, a.MarketAddress, string(a.Kind), a.TxHash,
		a.Price, a.Expo, boolToInt(a.Success), a.Error, a.ExecutedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveAction: %w", err)
	}
	return nil
}

// RecentActions devuelve las últimas limit acciones, la más nueva primero.
func (s *SQLiteStorage) RecentActions(ctx context.Context, limit int) ([]domain.KeeperAction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cycle_id, market_address, kind, tx_hash, price, expo, success, error, executed_at
		FROM keeper_actions
		ORDER BY executed_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentActions: %w", err)
	}
	defer rows.Close()

	var actions []domain.KeeperAction
	for rows.Next() {
		var (
			a       domain.KeeperAction
			kind    string
			success int
		)
		if err := rows.Scan(
			&a.ID, &a.CycleID, &a.MarketAddress, &kind, &a.TxHash,
			&a.Price, &a.Expo, &success, &a.Error, &a.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("storage.RecentActions: scan: %w", err)
		}
		a.Kind = domain.KeeperActionKind(kind)
		a.Success = success != 0
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionActions)
	_, _ = s.db.ExecContext(ctx, `DELETE FROM keeper_actions WHERE executed_at < ?`, cutoff)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
