package onchain

// market.go — binding del contrato de un mercado.
//
// El contrato es la autoridad: cada GetMarket es una lectura fresca y las
// mutaciones solo envían la tx. La decodificación de la respuesta de
// getMarketInfo es el único lugar que conoce su forma.

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/darkpool/internal/domain"
	"github.com/alejandrodnm/darkpool/internal/ports"
)

// Market implementa ports.MarketAuthority y ports.BettorAuthority sobre un contrato.
type Market struct {
	*Client
	address common.Address
}

var (
	_ ports.MarketAuthority = (*Market)(nil)
	_ ports.BettorAuthority = (*Market)(nil)
)

// NewMarket liga el Client al contrato en address.
func NewMarket(c *Client, address string) (*Market, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("onchain.NewMarket: invalid address %q", address)
	}
	return &Market{Client: c, address: common.HexToAddress(address)}, nil
}

// MarketAddress devuelve la dirección del contrato.
func (m *Market) MarketAddress() string {
	return m.address.Hex()
}

// GetMarket lee getMarketInfo y lo convierte al snapshot de dominio.
func (m *Market) GetMarket(ctx context.Context) (domain.Market, error) {
	vals, err := m.call(ctx, m.address, marketABI, "getMarketInfo")
	if err != nil {
		return domain.Market{}, fmt.Errorf("onchain.GetMarket: %w", err)
	}
	market, err := decodeMarketInfo(vals)
	if err != nil {
		return domain.Market{}, fmt.Errorf("onchain.GetMarket: %w", err)
	}
	market.Address = m.address.Hex()
	return market, nil
}

// Resolve envía resolve(price, expo).
func (m *Market) Resolve(ctx context.Context, price int64, expo int32) (string, error) {
	hash, err := m.send(ctx, m.address, marketABI, "resolve", price, expo)
	if err != nil {
		return "", fmt.Errorf("onchain.Resolve: %w", err)
	}
	return hash, nil
}

// Finalize envía finalize().
func (m *Market) Finalize(ctx context.Context) (string, error) {
	hash, err := m.send(ctx, m.address, marketABI, "finalize")
	if err != nil {
		return "", fmt.Errorf("onchain.Finalize: %w", err)
	}
	return hash, nil
}

// Commit aprueba el escrow fijo al mercado si hace falta y envía commit(hash).
// El approve se espera hasta el receipt; el commit no.
func (m *Market) Commit(ctx context.Context, commitmentHash string) (string, error) {
	h, err := hexToBytes32(commitmentHash)
	if err != nil {
		return "", fmt.Errorf("onchain.Commit: commitment hash: %w", err)
	}

	info, err := m.GetMarket(ctx)
	if err != nil {
		return "", fmt.Errorf("onchain.Commit: %w", err)
	}
	if err := m.ensureAllowance(ctx, common.HexToAddress(info.BetToken), info.FixedEscrow); err != nil {
		return "", fmt.Errorf("onchain.Commit: %w", err)
	}

	hash, err := m.send(ctx, m.address, marketABI, "commit", h)
	if err != nil {
		return "", fmt.Errorf("onchain.Commit: %w", err)
	}
	return hash, nil
}

// Reveal envía reveal(direction, amount, salt).
func (m *Market) Reveal(ctx context.Context, direction domain.Direction, amount, salt *big.Int) (string, error) {
	hash, err := m.send(ctx, m.address, marketABI, "reveal", uint8(direction), amount, salt)
	if err != nil {
		return "", fmt.Errorf("onchain.Reveal: %w", err)
	}
	return hash, nil
}

// Claim envía claim().
func (m *Market) Claim(ctx context.Context) (string, error) {
	hash, err := m.send(ctx, m.address, marketABI, "claim")
	if err != nil {
		return "", fmt.Errorf("onchain.Claim: %w", err)
	}
	return hash, nil
}

// Refund envía refund().
func (m *Market) Refund(ctx context.Context) (string, error) {
	hash, err := m.send(ctx, m.address, marketABI, "refund")
	if err != nil {
		return "", fmt.Errorf("onchain.Refund: %w", err)
	}
	return hash, nil
}

// ensureAllowance aprueba amount del token al mercado si el allowance no alcanza.
func (m *Market) ensureAllowance(ctx context.Context, token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	vals, err := m.call(ctx, token, erc20ABI, "allowance", m.Client.address, m.address)
	if err != nil {
		return fmt.Errorf("allowance: %w", err)
	}
	current, err := asBig(vals, 0, "allowance")
	if err != nil {
		return err
	}
	if current.Cmp(amount) >= 0 {
		slog.Debug("onchain: allowance sufficient", "token", token.Hex(), "market", m.address.Hex())
		return nil
	}

	slog.Info("onchain: approving escrow", "token", token.Hex(), "market", m.address.Hex(), "amount", amount.String())
	hash, err := m.send(ctx, token, erc20ABI, "approve", m.address, amount)
	if err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	if err := m.WaitForTx(ctx, hash); err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	return nil
}

// decodeMarketInfo convierte la salida de getMarketInfo. phase y outcome pasan
// por el decoder tolerante de dominio; el resto debe tener el tipo exacto del ABI.
func decodeMarketInfo(vals []any) (domain.Market, error) {
	if len(vals) != 18 {
		return domain.Market{}, fmt.Errorf("getMarketInfo: expected 18 values, got %d", len(vals))
	}

	var (
		m   domain.Market
		err error
	)
	if m.ID, err = asBig(vals, 0, "marketId"); err != nil {
		return m, err
	}
	token, ok := vals[1].(common.Address)
	if !ok {
		return m, fmt.Errorf("getMarketInfo: betToken has type %T", vals[1])
	}
	m.BetToken = token.Hex()
	m.Phase = domain.DecodePhase(vals[2])

	if m.StrikePrice, err = asBig(vals, 3, "strikePrice"); err != nil {
		return m, err
	}
	if m.StrikeExpo, err = asInt32(vals, 4, "strikePriceExpo"); err != nil {
		return m, err
	}
	if m.ResolutionPrice, err = asBig(vals, 5, "resolutionPrice"); err != nil {
		return m, err
	}
	if m.ResolutionExpo, err = asInt32(vals, 6, "resolutionPriceExpo"); err != nil {
		return m, err
	}
	m.Outcome = domain.DecodeSide(vals[7])

	times := make([]time.Time, 4)
	for i := range times {
		ts, ok := vals[8+i].(uint64)
		if !ok {
			return m, fmt.Errorf("getMarketInfo: timestamp %d has type %T", i, vals[8+i])
		}
		times[i] = time.Unix(int64(ts), 0).UTC()
	}
	m.StartTime, m.CommitDeadline, m.ExpiryTime, m.RevealDeadline = times[0], times[1], times[2], times[3]

	if m.FixedEscrow, err = asBig(vals, 12, "fixedEscrow"); err != nil {
		return m, err
	}
	commits, ok := vals[13].(uint32)
	if !ok {
		return m, fmt.Errorf("getMarketInfo: commitCount has type %T", vals[13])
	}
	reveals, ok := vals[14].(uint32)
	if !ok {
		return m, fmt.Errorf("getMarketInfo: revealCount has type %T", vals[14])
	}
	m.CommitCount, m.RevealCount = uint64(commits), uint64(reveals)

	if m.UpPool, err = asBig(vals, 15, "upPool"); err != nil {
		return m, err
	}
	if m.DownPool, err = asBig(vals, 16, "downPool"); err != nil {
		return m, err
	}
	if m.TotalForfeited, err = asBig(vals, 17, "totalForfeited"); err != nil {
		return m, err
	}
	return m, nil
}

func asBig(vals []any, i int, name string) (*big.Int, error) {
	v, ok := vals[i].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("%s has type %T", name, vals[i])
	}
	return v, nil
}

func asInt32(vals []any, i int, name string) (int32, error) {
	v, ok := vals[i].(int32)
	if !ok {
		return 0, fmt.Errorf("%s has type %T", name, vals[i])
	}
	return v, nil
}

// hexToBytes32 convierte un hex 0x de 32 bytes a [32]byte.
func hexToBytes32(s string) ([32]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return [32]byte{}, fmt.Errorf("expected 64 hex chars, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return [32]byte{}, err
	}
	var arr [32]byte
	copy(arr[:], b)
	return arr, nil
}
