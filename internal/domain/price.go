package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OraclePrice es un precio del oráculo con su exponente decimal:
// valor humano = Price × 10^Expo.
type OraclePrice struct {
	FeedID      string
	Price       int64
	Expo        int32
	Conf        uint64
	PublishTime time.Time
}

// Value devuelve el precio humano (Price × 10^Expo) sin pérdida de precisión.
func (p OraclePrice) Value() decimal.Decimal {
	return decimal.New(p.Price, p.Expo)
}

// FormatPrice formatea un precio entero con exponente como "$64,123.45".
func FormatPrice(price int64, expo int32) string {
	v := decimal.New(price, expo).StringFixed(2)
	neg := false
	if len(v) > 0 && v[0] == '-' {
		neg, v = true, v[1:]
	}
	whole, frac := v, ""
	for i := 0; i < len(v); i++ {
		if v[i] == '.' {
			whole, frac = v[:i], v[i:]
			break
		}
	}
	var out []byte
	for i := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, whole[i])
	}
	s := "$" + string(out) + frac
	if neg {
		s = "-" + s
	}
	return s
}
