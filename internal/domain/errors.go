package domain

import "errors"

var (
	// Payout
	ErrNoWinners = errors.New("no winning bets: winning pool is empty")
	ErrOverflow  = errors.New("amount exceeds uint256 range")

	// Bettor flows
	ErrWrongPhase     = errors.New("market is not in the required phase")
	ErrSecretMissing  = errors.New("no local secret for this market: import a backup to reveal")
	ErrNothingToClaim = errors.New("nothing to claim for this bet")
	ErrBetTooSmall    = errors.New("bet amount below minimum")
	ErrBetTooLarge    = errors.New("bet amount above the fixed escrow")

	// Wallet-level errors reported by the chain adapter. Never retried automatically.
	ErrUserRejected      = errors.New("transaction rejected by signer")
	ErrInsufficientFunds = errors.New("insufficient funds for transaction")
	ErrAlreadyClaimed    = errors.New("already claimed")
	ErrTxReverted        = errors.New("transaction reverted on-chain")

	// Infra
	ErrLockHeld = errors.New("lock already held")
	ErrLockLost = errors.New("lock expired or taken by another holder")
)

// IsWalletError reports whether err belongs to the wallet-level category:
// it needs a new user action and is never retried.
func IsWalletError(err error) bool {
	return errors.Is(err, ErrUserRejected) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrAlreadyClaimed)
}
