package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/darkpool/internal/domain"
)

var (
	// ErrMissingKey indica que el keeper no tiene clave para firmar.
	ErrMissingKey = errors.New("keeper signing key not configured (KEEPER_PRIVATE_KEY or KEEPER_KEY_FILE)")
	// ErrNoTarget indica que no hay ni mercado ni factory que atender.
	ErrNoTarget = errors.New("neither market address nor factory address configured")
	// ErrLockTTLTooShort indica que el lock puede vencer mientras se espera un receipt.
	ErrLockTTLTooShort = errors.New("keeper.lock_ttl_seconds must exceed receipt_timeout_seconds by at least 30s")
)

// lockMargin es lo que el TTL del lock tiene que sobrar sobre la espera de un
// receipt: cubre el envío de la tx y la lectura previa.
const lockMargin = 30 * time.Second

// Config es la configuración completa de darkpool (keeper y CLI del apostador).
type Config struct {
	Chain   ChainConfig   `yaml:"chain"`
	Keeper  KeeperConfig  `yaml:"keeper"`
	Market  MarketConfig  `yaml:"market"`
	Oracle  OracleConfig  `yaml:"oracle"`
	Monitor MonitorConfig `yaml:"monitor"`
	Bettor  BettorConfig  `yaml:"bettor"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	Backup  BackupConfig  `yaml:"backup"`
	Log     LogConfig     `yaml:"log"`
}

// ChainConfig contiene el endpoint RPC y las direcciones de los contratos.
type ChainConfig struct {
	RPCURL         string `yaml:"rpc_url"`
	ChainID        int64  `yaml:"chain_id"` // 0 = preguntar al nodo
	MarketAddress  string `yaml:"market_address"`
	FactoryAddress string `yaml:"factory_address"`
	BetToken       string `yaml:"bet_token"`
}

// KeeperConfig controla la cuenta y los loops del keeper.
type KeeperConfig struct {
	PrivateKey            string `yaml:"private_key"`
	KeyFile               string `yaml:"key_file"`
	KeyPassword           string `yaml:"key_password"`
	PollIntervalMs        int    `yaml:"poll_interval_ms"`
	CreateIntervalMs      int    `yaml:"create_interval_ms"`
	ReceiptTimeoutSeconds int    `yaml:"receipt_timeout_seconds"`
	LockTTLSeconds        int    `yaml:"lock_ttl_seconds"`
}

// MarketConfig son los parámetros de los mercados que crea la factory.
// Los montos van en la unidad mínima del token, como string decimal.
type MarketConfig struct {
	FixedEscrow    string `yaml:"fixed_escrow"`
	MinBet         string `yaml:"min_bet"`
	CommitDuration int    `yaml:"commit_duration"` // segundos
	ClosedDuration int    `yaml:"closed_duration"`
	RevealDuration int    `yaml:"reveal_duration"`
}

// OracleConfig apunta al servicio Hermes de Pyth.
type OracleConfig struct {
	HermesURL            string `yaml:"hermes_url"`
	FeedID               string `yaml:"feed_id"`
	PriceIntervalSeconds int    `yaml:"price_interval_seconds"`
}

// MonitorConfig controla `darkpool watch`.
type MonitorConfig struct {
	MarketIntervalSeconds int `yaml:"market_interval_seconds"`
}

// BettorConfig es la cuenta del apostador.
type BettorConfig struct {
	PrivateKey  string `yaml:"private_key"`
	KeyFile     string `yaml:"key_file"`
	KeyPassword string `yaml:"key_password"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// RedisConfig habilita el lock de líder del keeper. Addr vacío = sin lock.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
}

// BackupConfig apunta al bucket S3 (o compatible) de backups de apuestas.
type BackupConfig struct {
	Bucket         string `yaml:"bucket"`
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del entorno sobreescriben los del YAML. Con path vacío solo se
// usan el entorno y los defaults.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)

	return &cfg, nil
}

// PollInterval devuelve el intervalo del keeper.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Keeper.PollIntervalMs) * time.Millisecond
}

// CreateInterval devuelve el intervalo de creación de mercados.
func (c *Config) CreateInterval() time.Duration {
	return time.Duration(c.Keeper.CreateIntervalMs) * time.Millisecond
}

// ReceiptTimeout devuelve cuánto se espera un receipt.
func (c *Config) ReceiptTimeout() time.Duration {
	return time.Duration(c.Keeper.ReceiptTimeoutSeconds) * time.Second
}

// LockTTL devuelve el TTL del lock de líder.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Keeper.LockTTLSeconds) * time.Second
}

// PriceInterval devuelve el intervalo del ticker de precio del monitor.
func (c *Config) PriceInterval() time.Duration {
	return time.Duration(c.Oracle.PriceIntervalSeconds) * time.Second
}

// MarketInterval devuelve el intervalo del poll de mercado del monitor.
func (c *Config) MarketInterval() time.Duration {
	return time.Duration(c.Monitor.MarketIntervalSeconds) * time.Second
}

// FixedEscrow parsea market.fixed_escrow.
func (c *Config) FixedEscrow() (*big.Int, error) {
	return parseAmount("fixed_escrow", c.Market.FixedEscrow)
}

// MinBet parsea market.min_bet.
func (c *Config) MinBet() (*big.Int, error) {
	return parseAmount("min_bet", c.Market.MinBet)
}

// MarketParams arma los parámetros de creación. El strike lo pone el creator.
func (c *Config) MarketParams(feeCollector string) (domain.MarketParams, error) {
	escrow, err := c.FixedEscrow()
	if err != nil {
		return domain.MarketParams{}, err
	}
	return domain.MarketParams{
		BetToken:       c.Chain.BetToken,
		FixedEscrow:    escrow,
		CommitDuration: time.Duration(c.Market.CommitDuration) * time.Second,
		ClosedDuration: time.Duration(c.Market.ClosedDuration) * time.Second,
		RevealDuration: time.Duration(c.Market.RevealDuration) * time.Second,
		FeeCollector:   feeCollector,
	}, nil
}

// ValidateKeeper verifica lo mínimo para arrancar el keeper. Se llama antes
// de abrir ninguna conexión.
func (c *Config) ValidateKeeper() error {
	var errs []error
	if c.Keeper.PrivateKey == "" && c.Keeper.KeyFile == "" {
		errs = append(errs, ErrMissingKey)
	}
	if c.Chain.MarketAddress == "" && c.Chain.FactoryAddress == "" {
		errs = append(errs, ErrNoTarget)
	}
	if c.Redis.Addr != "" && c.LockTTL() < c.ReceiptTimeout()+lockMargin {
		errs = append(errs, ErrLockTTLTooShort)
	}
	if c.Chain.FactoryAddress != "" {
		if c.Chain.BetToken == "" {
			errs = append(errs, errors.New("chain.bet_token is required to create markets"))
		}
		if _, err := c.FixedEscrow(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Redacted devuelve una copia con los secretos enmascarados, para loguear.
func (c Config) Redacted() Config {
	c.Keeper.PrivateKey = mask(c.Keeper.PrivateKey)
	c.Keeper.KeyPassword = mask(c.Keeper.KeyPassword)
	c.Bettor.PrivateKey = mask(c.Bettor.PrivateKey)
	c.Bettor.KeyPassword = mask(c.Bettor.KeyPassword)
	c.Redis.Password = mask(c.Redis.Password)
	c.Backup.AccessKey = mask(c.Backup.AccessKey)
	c.Backup.SecretKey = mask(c.Backup.SecretKey)
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

func parseAmount(name, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("config: market.%s must be a positive integer, got %q", name, s)
	}
	return v, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("env %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("env %s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("DARKPOOL_RPC_URL", &cfg.Chain.RPCURL)
	if v := os.Getenv("DARKPOOL_CHAIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("env DARKPOOL_CHAIN_ID: %w", err))
		} else {
			cfg.Chain.ChainID = id
		}
	}
	str("DARKPOOL_ADDRESS", &cfg.Chain.MarketAddress)
	str("FACTORY_ADDRESS", &cfg.Chain.FactoryAddress)
	str("BET_TOKEN_ADDRESS", &cfg.Chain.BetToken)

	str("KEEPER_PRIVATE_KEY", &cfg.Keeper.PrivateKey)
	str("KEEPER_KEY_FILE", &cfg.Keeper.KeyFile)
	str("KEEPER_KEY_PASSWORD", &cfg.Keeper.KeyPassword)
	num("POLL_INTERVAL_MS", &cfg.Keeper.PollIntervalMs)
	num("CREATE_INTERVAL_MS", &cfg.Keeper.CreateIntervalMs)

	str("FIXED_ESCROW", &cfg.Market.FixedEscrow)
	num("COMMIT_DURATION", &cfg.Market.CommitDuration)
	num("CLOSED_DURATION", &cfg.Market.ClosedDuration)
	num("REVEAL_DURATION", &cfg.Market.RevealDuration)

	str("PYTH_HERMES_URL", &cfg.Oracle.HermesURL)
	str("PYTH_FEED_ID", &cfg.Oracle.FeedID)

	str("BETTOR_PRIVATE_KEY", &cfg.Bettor.PrivateKey)
	str("BETTOR_KEY_FILE", &cfg.Bettor.KeyFile)
	str("BETTOR_KEY_PASSWORD", &cfg.Bettor.KeyPassword)

	str("DARKPOOL_DB", &cfg.Storage.DSN)

	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	num("REDIS_DB", &cfg.Redis.DB)
	flag("REDIS_TLS", &cfg.Redis.TLS)

	str("BACKUP_S3_BUCKET", &cfg.Backup.Bucket)
	str("BACKUP_S3_REGION", &cfg.Backup.Region)
	str("BACKUP_S3_ENDPOINT", &cfg.Backup.Endpoint)
	str("BACKUP_S3_ACCESS_KEY", &cfg.Backup.AccessKey)
	str("BACKUP_S3_SECRET_KEY", &cfg.Backup.SecretKey)
	flag("BACKUP_S3_FORCE_PATH_STYLE", &cfg.Backup.ForcePathStyle)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	return errors.Join(errs...)
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Chain.RPCURL == "" {
		cfg.Chain.RPCURL = "http://127.0.0.1:8545"
	}
	if cfg.Keeper.PollIntervalMs <= 0 {
		cfg.Keeper.PollIntervalMs = 30_000
	}
	if cfg.Keeper.CreateIntervalMs <= 0 {
		cfg.Keeper.CreateIntervalMs = 300_000 // 5 min
	}
	if cfg.Keeper.ReceiptTimeoutSeconds <= 0 {
		cfg.Keeper.ReceiptTimeoutSeconds = 120
	}
	if cfg.Keeper.LockTTLSeconds <= 0 {
		cfg.Keeper.LockTTLSeconds = 180
	}
	if cfg.Market.FixedEscrow == "" {
		cfg.Market.FixedEscrow = "10000000000000000000" // 10 tokens de 18 decimales
	}
	if cfg.Market.MinBet == "" {
		cfg.Market.MinBet = "1"
	}
	if cfg.Market.CommitDuration <= 0 {
		cfg.Market.CommitDuration = 150
	}
	if cfg.Market.ClosedDuration <= 0 {
		cfg.Market.ClosedDuration = 150
	}
	if cfg.Market.RevealDuration <= 0 {
		cfg.Market.RevealDuration = 300
	}
	if cfg.Oracle.HermesURL == "" {
		cfg.Oracle.HermesURL = "https://hermes.pyth.network"
	}
	if cfg.Oracle.FeedID == "" {
		cfg.Oracle.FeedID = "0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43" // BTC/USD
	}
	if cfg.Oracle.PriceIntervalSeconds <= 0 {
		cfg.Oracle.PriceIntervalSeconds = 10
	}
	if cfg.Monitor.MarketIntervalSeconds <= 0 {
		cfg.Monitor.MarketIntervalSeconds = 5
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "darkpool.db"
	}
	if cfg.Backup.Region == "" {
		cfg.Backup.Region = "us-east-1"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
