// Package redislock es el lock de líder del keeper sobre Redis: SET NX con
// TTL y liberación condicionada al token del dueño.
package redislock

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alejandrodnm/darkpool/internal/domain"
	"github.com/alejandrodnm/darkpool/internal/ports"
)

// unlockLua borra la key solo si el valor sigue siendo nuestro token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// extendLua renueva el TTL solo si el valor sigue siendo nuestro token.
const extendLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// Config son los parámetros de conexión.
type Config struct {
	Addr       string
	Password   string
	DB         int
	TLSEnabled bool
}

// Lock implementa ports.LeaderLock.
type Lock struct {
	rdb    redis.UniversalClient
	unlock *redis.Script
	extend *redis.Script
}

var _ ports.LeaderLock = (*Lock)(nil)

// Dial conecta a Redis y verifica la conexión con un PING.
func Dial(ctx context.Context, cfg Config) (*Lock, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redislock.Dial: ping %s: %w", cfg.Addr, err)
	}
	return New(rdb), nil
}

// New crea un Lock sobre un cliente existente.
func New(rdb redis.UniversalClient) *Lock {
	return &Lock{rdb: rdb, unlock: redis.NewScript(unlockLua), extend: redis.NewScript(extendLua)}
}

func lockKey(key string) string {
	return "lock:" + key
}

// Acquire toma el lock por ttl. Devuelve domain.ErrLockHeld si otro lo tiene.
func (l *Lock) Acquire(ctx context.Context, key string, ttl time.Duration) (ports.Lease, error) {
	token := uuid.NewString()
	lk := lockKey(key)

	ok, err := l.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redislock.Acquire: %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}
	return &lease{lock: l, key: lk, token: token, ttl: ttl}, nil
}

// lease es un lock tomado, identificado por su token.
type lease struct {
	lock  *Lock
	key   string
	token string
	ttl   time.Duration
	once  sync.Once
}

// Extend renueva el TTL si el token sigue siendo el nuestro.
func (s *lease) Extend(ctx context.Context) error {
	n, err := s.lock.extend.Run(ctx, s.lock.rdb, []string{s.key}, s.token, s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redislock.Extend: %s: %w", s.key, err)
	}
	if n == 0 {
		return domain.ErrLockLost
	}
	return nil
}

// Release borra la key si el token sigue siendo el nuestro.
func (s *lease) Release() {
	s.once.Do(func() {
		// contexto propio: el del caller puede estar cancelado
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.lock.unlock.Run(ctx, s.lock.rdb, []string{s.key}, s.token).Err()
	})
}

// Close cierra la conexión.
func (l *Lock) Close() error {
	return l.rdb.Close()
}
