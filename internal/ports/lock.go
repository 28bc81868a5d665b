package ports

import (
	"context"
	"time"
)

// LeaderLock evita que dos réplicas del keeper actúen sobre el mismo mercado a la vez.
type LeaderLock interface {
	// Acquire intenta tomar el lock por ttl. Si otro lo tiene devuelve domain.ErrLockHeld.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease es un lock tomado.
type Lease interface {
	// Extend renueva el TTL completo. Si el lock ya no es nuestro devuelve
	// domain.ErrLockLost y el caller no debe mutar nada.
	Extend(ctx context.Context) error
	// Release libera el lock. Se puede llamar más de una vez.
	Release()
}
