package domain

import "time"

// KeeperActionKind identifica la acción que el keeper pidió a la autoridad.
type KeeperActionKind string

const (
	ActionResolve  KeeperActionKind = "resolve"
	ActionFinalize KeeperActionKind = "finalize"
	ActionCreate   KeeperActionKind = "create"
)

// KeeperAction es el registro de auditoría de una acción del keeper.
// Solo es historial: el keeper no lo consulta para decidir (no hay contador de reintentos).
type KeeperAction struct {
	ID            string // UUID
	CycleID       string
	MarketAddress string
	Kind          KeeperActionKind
	TxHash        string
	Price         int64 // precio del oráculo usado (resolve/create)
	Expo          int32
	Success       bool
	Error         string
	ExecutedAt    time.Time
}
