package ports

import (
	"context"

	"github.com/alejandrodnm/darkpool/internal/domain"
)

// SecretBackend es el almacenamiento key/value donde viven los secretos de las apuestas.
type SecretBackend interface {
	// Load devuelve el valor guardado en key. ok es false si la key no existe.
	Load(ctx context.Context, key string) (value string, ok bool, err error)

	// Store reemplaza el valor de key.
	Store(ctx context.Context, key, value string) error
}

// ActionLog persiste el historial de acciones del keeper.
type ActionLog interface {
	SaveAction(ctx context.Context, action domain.KeeperAction) error

	// RecentActions devuelve las últimas acciones, de la más nueva a la más vieja.
	RecentActions(ctx context.Context, limit int) ([]domain.KeeperAction, error)
}

// Storage agrupa todo lo que persiste el proceso local.
type Storage interface {
	SecretBackend
	ActionLog

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
