package pyth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/darkpool/internal/domain"
)

// DefaultBTCUSDFeed es el feed BTC/USD de Pyth.
const DefaultBTCUSDFeed = "0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43"

// ErrNoPrice indica que Hermes respondió sin datos de precio.
var ErrNoPrice = errors.New("pyth: no price data")

type hermesPrice struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

type hermesResponse struct {
	Parsed []struct {
		ID    string       `json:"id"`
		Price *hermesPrice `json:"price"`
	} `json:"parsed"`
}

// LatestPrice devuelve el último precio publicado del feed.
// feedID acepta el id con o sin prefijo 0x.
func (c *Client) LatestPrice(ctx context.Context, feedID string) (domain.OraclePrice, error) {
	id := strings.TrimPrefix(strings.ToLower(feedID), "0x")
	q := url.Values{"ids[]": {id}}

	var resp hermesResponse
	if err := c.get(ctx, c.base+"/v2/updates/price/latest?"+q.Encode(), &resp); err != nil {
		return domain.OraclePrice{}, fmt.Errorf("pyth.LatestPrice: %w", err)
	}
	if len(resp.Parsed) == 0 || resp.Parsed[0].Price == nil {
		return domain.OraclePrice{}, fmt.Errorf("pyth.LatestPrice: %s: %w", feedID, ErrNoPrice)
	}

	p := resp.Parsed[0].Price
	price, err := strconv.ParseInt(p.Price, 10, 64)
	if err != nil {
		return domain.OraclePrice{}, fmt.Errorf("pyth.LatestPrice: parse price %q: %w", p.Price, err)
	}
	var conf uint64
	if p.Conf != "" {
		conf, err = strconv.ParseUint(p.Conf, 10, 64)
		if err != nil {
			return domain.OraclePrice{}, fmt.Errorf("pyth.LatestPrice: parse conf %q: %w", p.Conf, err)
		}
	}

	return domain.OraclePrice{
		FeedID:      "0x" + id,
		Price:       price,
		Expo:        p.Expo,
		Conf:        conf,
		PublishTime: time.Unix(p.PublishTime, 0).UTC(),
	}, nil
}
