package domain

import (
	"fmt"
	"time"
)

// TimeRemaining devuelve el tiempo que queda en la fase actual del mercado,
// truncado a segundos. Nunca es negativo: en el deadline exacto y después
// devuelve 0. Resolved, Finalized, Cancelled y Unknown no tienen temporizador.
//
// Función pura: no guarda estado y se puede recalcular en cada tick.
func TimeRemaining(m Market, now time.Time) time.Duration {
	deadline, ok := m.DeadlineFor(m.Phase)
	if !ok {
		return 0
	}
	// now se trunca al segundo, igual que los timestamps del contrato.
	left := deadline.Sub(now.Truncate(time.Second)).Truncate(time.Second)
	if left < 0 {
		return 0
	}
	return left
}

// FormatCountdown formatea una duración como m:ss.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
