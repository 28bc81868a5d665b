package ports

import (
	"context"

	"github.com/alejandrodnm/darkpool/internal/domain"
)

// PriceOracle obtiene el último precio publicado de un feed.
type PriceOracle interface {
	LatestPrice(ctx context.Context, feedID string) (domain.OraclePrice, error)
}
