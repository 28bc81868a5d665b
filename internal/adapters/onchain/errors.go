package onchain

import (
	"fmt"
	"strings"

	"github.com/alejandrodnm/darkpool/internal/domain"
)

// Los nodos y los contratos devuelven los errores como texto. Acá se mapean
// a los errores de dominio; lo que no se reconoce pasa tal cual (transitorio).
var walletErrors = []struct {
	needles []string
	target  error
}{
	{[]string{"already claimed", "alreadyclaimed", "has_claimed"}, domain.ErrAlreadyClaimed},
	{[]string{"insufficient funds", "insufficient balance", "transfer amount exceeds balance"}, domain.ErrInsufficientFunds},
	{[]string{"user rejected", "user denied", "rejected by user"}, domain.ErrUserRejected},
}

// classify envuelve err con el error de dominio que corresponda.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, w := range walletErrors {
		for _, n := range w.needles {
			if strings.Contains(msg, n) {
				return fmt.Errorf("%w: %v", w.target, err)
			}
		}
	}
	if strings.Contains(msg, "execution reverted") {
		return fmt.Errorf("%w: %v", domain.ErrTxReverted, err)
	}
	return err
}

// isContractError indica si err viene del contrato (revert) o de la wallet,
// y no de la red.
func isContractError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "execution reverted") {
		return true
	}
	for _, w := range walletErrors {
		for _, n := range w.needles {
			if strings.Contains(msg, n) {
				return true
			}
		}
	}
	return false
}
