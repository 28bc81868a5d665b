package ports

import (
	"context"

	"github.com/alejandrodnm/darkpool/internal/domain"
)

// ViewRenderer presenta el estado del mercado que arma el monitor.
// En la implementación de consola, imprime una tabla por tick.
type ViewRenderer interface {
	Render(ctx context.Context, view domain.MonitorView) error
}
