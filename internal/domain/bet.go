package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Direction is the hidden side of a sealed bet. The numeric values are part
// of the commitment preimage and of the persisted record.
type Direction uint8

const (
	DirectionDown Direction = 0
	DirectionUp   Direction = 1
)

func (d Direction) String() string {
	if d == DirectionUp {
		return "UP"
	}
	return "DOWN"
}

// Valid reports whether d is one of the two defined directions.
func (d Direction) Valid() bool {
	return d == DirectionDown || d == DirectionUp
}

// Wins reports whether a bet in direction d wins a market resolved to outcome.
func (d Direction) Wins(outcome Side) bool {
	return (outcome == SideUp && d == DirectionUp) || (outcome == SideDown && d == DirectionDown)
}

// BetStatus is the local lifecycle of a sealed bet.
type BetStatus string

const (
	BetCommitted BetStatus = "committed"
	BetRevealed  BetStatus = "revealed"
	BetClaimed   BetStatus = "claimed"
	BetForfeited BetStatus = "forfeited"
)

// Active reports whether the bet still needs an action from the bettor.
func (s BetStatus) Active() bool {
	return s == BetCommitted || s == BetRevealed
}

// SealedBet is the bettor's private record of one commitment. The JSON shape
// is both the local record and the backup file format, so field names and
// encodings must not change.
type SealedBet struct {
	MarketAddress  string    `json:"marketAddress"`
	Direction      Direction `json:"direction"`
	Amount         string    `json:"amount"`         // decimal integer, smallest unit
	Salt           string    `json:"salt"`           // 0x hex field element
	CommitmentHash string    `json:"commitmentHash"` // 0x hex, 32 bytes
	CommitTx       string    `json:"commitTx,omitempty"`
	RevealTx       string    `json:"revealTx,omitempty"`
	ClaimTx        string    `json:"claimTx,omitempty"`
	Status         BetStatus `json:"status"`
	Timestamp      int64     `json:"timestamp"` // epoch ms
}

// SameIdentity reports whether two records describe the same bet:
// same market (case-insensitive address) and same salt.
func (b SealedBet) SameIdentity(market, salt string) bool {
	return strings.EqualFold(b.MarketAddress, market) && strings.EqualFold(b.Salt, salt)
}

// AmountInt parses Amount as a non-negative integer.
func (b SealedBet) AmountInt() (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(b.Amount), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("domain: invalid bet amount %q", b.Amount)
	}
	return v, nil
}

// CreatedAt returns the creation time encoded in Timestamp.
func (b SealedBet) CreatedAt() time.Time {
	return time.UnixMilli(b.Timestamp).UTC()
}

// EffectiveStatus infers forfeiture: a bet still "committed" after the reveal
// deadline (or once the market is finalized) can no longer be revealed. The
// contract remains the source of truth; the inferred status is never persisted.
func (b SealedBet) EffectiveStatus(m Market, now time.Time) BetStatus {
	if b.Status != BetCommitted {
		return b.Status
	}
	if m.Phase == PhaseFinalized {
		return BetForfeited
	}
	if m.Phase != PhaseCancelled && !m.RevealDeadline.IsZero() && !now.Before(m.RevealDeadline) {
		return BetForfeited
	}
	return BetCommitted
}

// BetUpdate is a partial update merged into a stored bet; nil fields are kept.
type BetUpdate struct {
	Status   *BetStatus
	CommitTx *string
	RevealTx *string
	ClaimTx  *string
}

// Apply merges u into b and returns the result.
func (u BetUpdate) Apply(b SealedBet) SealedBet {
	if u.Status != nil {
		b.Status = *u.Status
	}
	if u.CommitTx != nil {
		b.CommitTx = *u.CommitTx
	}
	if u.RevealTx != nil {
		b.RevealTx = *u.RevealTx
	}
	if u.ClaimTx != nil {
		b.ClaimTx = *u.ClaimTx
	}
	return b
}

// StatusUpdate builds the common "new status + tx hash" update.
func StatusUpdate(status BetStatus, tx string) BetUpdate {
	u := BetUpdate{Status: &status}
	switch status {
	case BetCommitted:
		u.CommitTx = &tx
	case BetRevealed:
		u.RevealTx = &tx
	case BetClaimed:
		u.ClaimTx = &tx
	}
	return u
}
