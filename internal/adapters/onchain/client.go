package onchain

// client.go — firma y envío de transacciones.
//
// Flujo de cada tx (igual para keeper y apostador):
//   nonce → gas price (cache 5 min, +10%) → EstimateGas (+20%, fallback fijo)
//   → SignTx → SendTransaction → hash.
// El receipt se espera aparte con WaitForTx: el caller decide cuándo bloquear.
// Un mutex serializa nonce+envío para que keeper y creator no pisen nonces.

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alejandrodnm/darkpool/internal/domain"
)

const (
	defaultGasLimit        = uint64(300_000)
	gasPriceUpdateInterval = 5 * time.Minute
	receiptPollInterval    = 3 * time.Second
	defaultReceiptTimeout  = 120 * time.Second
)

// Backend es el subconjunto de *ethclient.Client que usa el adapter.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Client firma y envía transacciones con una única cuenta.
type Client struct {
	backend Backend
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int

	receiptTimeout time.Duration
	pollInterval   time.Duration

	sendMu sync.Mutex

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// Dial conecta al RPC y devuelve un Client que firma con privateKeyHex.
// Si chainID es 0 se consulta al nodo.
func Dial(ctx context.Context, rpcURL, privateKeyHex string, chainID int64) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain.Dial: dial rpc %s: %w", rpcURL, err)
	}
	return NewClient(ctx, ec, privateKeyHex, chainID)
}

// NewClient crea un Client sobre un backend ya conectado.
func NewClient(ctx context.Context, backend Backend, privateKeyHex string, chainID int64) (*Client, error) {
	key, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewClient: %w", err)
	}

	id := big.NewInt(chainID)
	if chainID == 0 {
		id, err = backend.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("onchain.NewClient: chain id: %w", err)
		}
	}

	return &Client{
		backend:        backend,
		key:            key,
		address:        crypto.PubkeyToAddress(key.PublicKey),
		chainID:        id,
		receiptTimeout: defaultReceiptTimeout,
		pollInterval:   receiptPollInterval,
	}, nil
}

// SetReceiptTimeout cambia cuánto espera WaitForTx como máximo.
func (c *Client) SetReceiptTimeout(d time.Duration) {
	if d > 0 {
		c.receiptTimeout = d
	}
}

// Address es la cuenta que firma.
func (c *Client) Address() string {
	return c.address.Hex()
}

// WaitForTx espera el receipt de txHash. Devuelve domain.ErrTxReverted si la
// tx falló on-chain y el error del contexto si se cumple el timeout.
func (c *Client) WaitForTx(ctx context.Context, txHash string) error {
	receiptCtx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	receipt, err := c.waitForReceipt(receiptCtx, common.HexToHash(txHash))
	if err != nil {
		return fmt.Errorf("onchain.WaitForTx: %s: %w", txHash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("onchain.WaitForTx: %s: %w", txHash, domain.ErrTxReverted)
	}
	return nil
}

// call ejecuta una llamada view y desempaqueta la respuesta.
func (c *Client) call(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.address, To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, classify(err))
	}
	vals, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return vals, nil
}

// send firma y envía una tx a to y devuelve su hash sin esperar el receipt.
func (c *Client) send(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) (string, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("pack %s: %w", method, err)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", fmt.Errorf("%s: nonce: %w", method, err)
	}

	gasPrice, err := c.getGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: gas price: %w", method, err)
	}

	gasLimit, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.address,
		To:       &to,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		// Un revert en la estimación es un error del contrato, no de gas.
		if isContractError(err) {
			return "", fmt.Errorf("%s: estimate gas: %w", method, classify(err))
		}
		gasLimit = defaultGasLimit
		slog.Warn("onchain: gas estimate failed, using default", "method", method, "err", err, "limit", defaultGasLimit)
	}
	gasLimit = gasLimit * 12 / 10

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.key)
	if err != nil {
		return "", fmt.Errorf("%s: sign tx: %w", method, err)
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("%s: send tx: %w", method, classify(err))
	}

	hash := signed.Hash().Hex()
	slog.Info("onchain: transaction sent", "method", method, "to", to.Hex(), "tx", hash)
	return hash, nil
}

// getGasPrice devuelve el gas price actual, cacheado para no saturar el RPC.
func (c *Client) getGasPrice(ctx context.Context) (*big.Int, error) {
	c.mu.RLock()
	cached := c.cachedGasWei
	updatedAt := c.gasUpdatedAt
	c.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached, nil
	}

	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return nil, err
	}

	// +10% para entrar más rápido (copia: no mutar lo que devuelve SuggestGasPrice)
	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	c.mu.Lock()
	c.cachedGasWei = buffered
	c.gasUpdatedAt = time.Now()
	c.mu.Unlock()

	return buffered, nil
}

// waitForReceipt hace polling del receipt hasta que aparezca o venza el contexto.
func (c *Client) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := c.backend.TransactionReceipt(ctx, txHash)
			if errors.Is(err, ethereum.NotFound) {
				continue // todavía no minada
			}
			if err != nil {
				slog.Debug("onchain: receipt poll failed", "tx", txHash.Hex(), "err", err)
				continue
			}
			return receipt, nil
		}
	}
}
