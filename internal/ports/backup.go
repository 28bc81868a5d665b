package ports

import (
	"context"
	"io"

	"github.com/alejandrodnm/darkpool/internal/domain"
)

// BackupWriter sube un backup a almacenamiento externo.
type BackupWriter interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
}

// BackupReader lee backups desde almacenamiento externo.
type BackupReader interface {
	// Get devuelve el cuerpo del objeto. El caller lo cierra.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// List devuelve los objetos cuyo key empieza con prefix.
	List(ctx context.Context, prefix string) ([]domain.BackupObject, error)
}
