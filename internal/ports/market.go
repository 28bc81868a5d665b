package ports

import (
	"context"
	"math/big"

	"github.com/alejandrodnm/darkpool/internal/domain"
)

// MarketReader lee el estado actual de un mercado desde el contrato.
type MarketReader interface {
	// GetMarket devuelve un snapshot fresco. Nunca se cachea entre ciclos.
	GetMarket(ctx context.Context) (domain.Market, error)
}

// TxWaiter espera a que una transacción enviada quede incluida.
type TxWaiter interface {
	// WaitForTx bloquea hasta el receipt. Devuelve domain.ErrTxReverted si la tx falló on-chain.
	WaitForTx(ctx context.Context, txHash string) error
}

// MarketAuthority son las mutaciones que el keeper pide al contrato.
// Cada método envía la tx y devuelve el hash sin esperar el receipt.
type MarketAuthority interface {
	MarketReader
	TxWaiter

	// Resolve fija el precio de resolución y el outcome (Closed → Resolved).
	Resolve(ctx context.Context, price int64, expo int32) (string, error)

	// Finalize cierra la ventana de reveal (Resolved/Revealing → Finalized).
	Finalize(ctx context.Context) (string, error)
}

// BettorAuthority son las llamadas del apostador sobre un mercado.
type BettorAuthority interface {
	MarketReader
	TxWaiter

	// Address es la cuenta que firma. Forma parte del preimage del commitment.
	Address() string

	Commit(ctx context.Context, commitmentHash string) (string, error)
	Reveal(ctx context.Context, direction domain.Direction, amount, salt *big.Int) (string, error)
	Claim(ctx context.Context) (string, error)
	Refund(ctx context.Context) (string, error)
}

// MarketFactory crea mercados nuevos.
type MarketFactory interface {
	TxWaiter

	CreateMarket(ctx context.Context, params domain.MarketParams) (string, error)

	// MarketCount devuelve cuántos mercados creó la factory.
	MarketCount(ctx context.Context) (uint64, error)
}
