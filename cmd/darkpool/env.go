package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/alejandrodnm/darkpool/internal/adapters/onchain"
	"github.com/alejandrodnm/darkpool/internal/adapters/s3backup"
	"github.com/alejandrodnm/darkpool/internal/adapters/storage"
	"github.com/alejandrodnm/darkpool/internal/application/bettor"
	"github.com/alejandrodnm/darkpool/internal/application/secrets"
)

// tokenDecimals es la precisión del token de apuesta.
const tokenDecimals = 18

var marketFlag = &cli.StringFlag{
	Name:  "market",
	Usage: "market contract address (default: chain.market_address)",
}

// bettorKey resuelve la clave del apostador desde la config.
func bettorKey(c *cli.Context) (string, error) {
	cfg := getConfig(c)
	return onchain.LoadKey(onchain.KeySource{
		PrivateKey: cfg.Bettor.PrivateKey,
		KeyFile:    cfg.Bettor.KeyFile,
		Password:   cfg.Bettor.KeyPassword,
	})
}

// openSecrets abre el Secret Store local. El caller cierra la base.
func openSecrets(c *cli.Context) (*secrets.Store, func(), error) {
	cfg := getConfig(c)
	db, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return nil, nil, err
	}
	return secrets.NewStore(db), func() { _ = db.Close() }, nil
}

// walletAddress devuelve la wallet: --wallet si se pasó, si no la de la clave.
func walletAddress(c *cli.Context) (string, error) {
	if w := c.String("wallet"); w != "" {
		return w, nil
	}
	key, err := bettorKey(c)
	if err != nil {
		return "", fmt.Errorf("no --wallet and no bettor key: %w", err)
	}
	return onchain.AddressOf(key)
}

// openBettor conecta al nodo y arma el servicio del apostador sobre el mercado.
func openBettor(c *cli.Context) (*bettor.Service, *onchain.Market, func(), error) {
	cfg := getConfig(c)

	key, err := bettorKey(c)
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := onchain.Dial(c.Context, cfg.Chain.RPCURL, key, cfg.Chain.ChainID)
	if err != nil {
		return nil, nil, nil, err
	}
	client.SetReceiptTimeout(cfg.ReceiptTimeout())

	address := c.String("market")
	if address == "" {
		address = cfg.Chain.MarketAddress
	}
	if address == "" && cfg.Chain.FactoryAddress != "" {
		if address, err = latestMarket(c, client, cfg.Chain.FactoryAddress); err != nil {
			return nil, nil, nil, err
		}
	}
	if address == "" {
		return nil, nil, nil, errors.New("no market address: pass --market or set DARKPOOL_ADDRESS or FACTORY_ADDRESS")
	}

	market, err := onchain.NewMarket(client, address)
	if err != nil {
		return nil, nil, nil, err
	}

	store, closeStore, err := openSecrets(c)
	if err != nil {
		return nil, nil, nil, err
	}
	minBet, err := cfg.MinBet()
	if err != nil {
		closeStore()
		return nil, nil, nil, err
	}

	svc := bettor.New(bettor.Config{MinBet: minBet}, market, store)
	return svc, market, closeStore, nil
}

// latestMarket devuelve el último mercado creado por la factory (ids desde 1).
func latestMarket(c *cli.Context, client *onchain.Client, factoryAddress string) (string, error) {
	factory, err := onchain.NewFactory(client, factoryAddress)
	if err != nil {
		return "", err
	}
	count, err := factory.MarketCount(c.Context)
	if err != nil {
		return "", err
	}
	if count == 0 {
		return "", errors.New("factory has no markets yet")
	}
	address, err := factory.MarketAt(c.Context, count)
	if err != nil {
		return "", err
	}
	slog.Debug("using latest factory market", "id", count, "market", address)
	return address, nil
}

// openBackup crea el cliente del bucket de backups.
func openBackup(c *cli.Context) (*s3backup.Store, error) {
	cfg := getConfig(c)
	if cfg.Backup.Bucket == "" {
		return nil, errors.New("no backup bucket: set backup.bucket or BACKUP_S3_BUCKET")
	}
	return s3backup.New(c.Context, s3backup.Config{
		Bucket:         cfg.Backup.Bucket,
		Region:         cfg.Backup.Region,
		Endpoint:       cfg.Backup.Endpoint,
		AccessKey:      cfg.Backup.AccessKey,
		SecretKey:      cfg.Backup.SecretKey,
		ForcePathStyle: cfg.Backup.ForcePathStyle,
	})
}

// parseTokenAmount convierte "4.5" (tokens) a la unidad mínima.
// Con sufijo "wei" el valor ya está en la unidad mínima.
func parseTokenAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if raw, ok := strings.CutSuffix(s, "wei"); ok {
		v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
		if !ok || v.Sign() <= 0 {
			return nil, fmt.Errorf("invalid amount %q", s)
		}
		return v, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	units := d.Shift(tokenDecimals)
	if !units.IsInteger() || !units.IsPositive() {
		return nil, fmt.Errorf("invalid amount %q: must be positive with at most %d decimals", s, tokenDecimals)
	}
	return units.BigInt(), nil
}
