package domain

import "time"

// MonitorView es lo que el monitor entrega al renderer en cada tick.
// Market y Price son nil hasta el primer poll exitoso.
type MonitorView struct {
	Now       time.Time
	Market    *Market
	Price     *OraclePrice
	Remaining time.Duration

	// Bet es la apuesta local para el mercado, si existe.
	Bet    *SealedBet
	Status BetStatus
	Claim  Claim

	// MarketErr es el último error del poll de mercado (nil si el último fue bien).
	MarketErr error
}

// BackupObject describe un backup guardado en almacenamiento externo.
type BackupObject struct {
	Key          string
	Size         int64
	LastModified time.Time
}
