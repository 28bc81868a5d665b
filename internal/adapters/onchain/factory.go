package onchain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/darkpool/internal/domain"
	"github.com/alejandrodnm/darkpool/internal/ports"
)

// Factory implementa ports.MarketFactory.
type Factory struct {
	*Client
	address common.Address
}

var _ ports.MarketFactory = (*Factory)(nil)

// NewFactory liga el Client a la factory en address.
func NewFactory(c *Client, address string) (*Factory, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("onchain.NewFactory: invalid address %q", address)
	}
	return &Factory{Client: c, address: common.HexToAddress(address)}, nil
}

// CreateMarket envía createMarket con los parámetros dados.
func (f *Factory) CreateMarket(ctx context.Context, p domain.MarketParams) (string, error) {
	if !common.IsHexAddress(p.BetToken) {
		return "", fmt.Errorf("onchain.CreateMarket: invalid bet token %q", p.BetToken)
	}
	if !common.IsHexAddress(p.FeeCollector) {
		return "", fmt.Errorf("onchain.CreateMarket: invalid fee collector %q", p.FeeCollector)
	}
	escrow := p.FixedEscrow
	if escrow == nil {
		escrow = new(big.Int)
	}

	hash, err := f.send(ctx, f.address, factoryABI, "createMarket",
		common.HexToAddress(p.BetToken),
		escrow,
		p.StrikePrice,
		p.StrikeExpo,
		seconds(p.CommitDuration),
		seconds(p.ClosedDuration),
		seconds(p.RevealDuration),
		common.HexToAddress(p.FeeCollector),
	)
	if err != nil {
		return "", fmt.Errorf("onchain.CreateMarket: %w", err)
	}
	return hash, nil
}

// MarketCount devuelve getMarketCount().
func (f *Factory) MarketCount(ctx context.Context) (uint64, error) {
	vals, err := f.call(ctx, f.address, factoryABI, "getMarketCount")
	if err != nil {
		return 0, fmt.Errorf("onchain.MarketCount: %w", err)
	}
	n, err := asBig(vals, 0, "count")
	if err != nil {
		return 0, fmt.Errorf("onchain.MarketCount: %w", err)
	}
	return n.Uint64(), nil
}

// MarketAt devuelve la dirección del mercado con el id dado.
func (f *Factory) MarketAt(ctx context.Context, id uint64) (string, error) {
	vals, err := f.call(ctx, f.address, factoryABI, "getMarket", new(big.Int).SetUint64(id))
	if err != nil {
		return "", fmt.Errorf("onchain.MarketAt: %w", err)
	}
	addr, ok := vals[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("onchain.MarketAt: unexpected type %T", vals[0])
	}
	return addr.Hex(), nil
}

func seconds(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Second)
}
