// Package commitment calcula el hash que sella una apuesta:
//
//	commitment = poseidon(direction, amount, salt, bettor)
//
// Poseidon es el de circom sobre el campo escalar de BN254, el mismo que usan
// los verificadores Poseidon en contratos EVM. Ningún input se reduce en
// silencio: si no entra en el campo, se devuelve error.
package commitment

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/iden3/go-iden3-crypto/poseidon"

	"github.com/alejandrodnm/darkpool/internal/domain"
)

var (
	ErrFieldOverflow      = errors.New("commitment: input outside the hash field")
	ErrAmountTooLarge     = errors.New("commitment: amount exceeds uint256")
	ErrInvalidDirection   = errors.New("commitment: direction must be 0 (down) or 1 (up)")
	ErrInvalidAddress     = errors.New("commitment: invalid bettor address")
	ErrInvalidSalt        = errors.New("commitment: invalid salt")
	ErrCommitmentMismatch = errors.New("commitment: stored hash does not match bet data")
)

var (
	modulus    = fr.Modulus()
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// Modulus devuelve el módulo del campo (copia).
func Modulus() *big.Int {
	return new(big.Int).Set(modulus)
}

// Commit calcula el commitment de una apuesta. Determinista: los mismos inputs
// dan siempre el mismo hash, y cambiar cualquiera lo cambia.
func Commit(direction domain.Direction, amount, salt *big.Int, bettor string) (*big.Int, error) {
	if !direction.Valid() {
		return nil, ErrInvalidDirection
	}
	if amount == nil || salt == nil {
		return nil, fmt.Errorf("commitment.Commit: nil input: %w", ErrFieldOverflow)
	}
	if amount.Cmp(maxUint256) > 0 {
		return nil, ErrAmountTooLarge
	}
	if !inField(amount) {
		return nil, fmt.Errorf("commitment.Commit: amount: %w", ErrFieldOverflow)
	}
	if !inField(salt) {
		return nil, fmt.Errorf("commitment.Commit: salt: %w", ErrFieldOverflow)
	}
	if !common.IsHexAddress(bettor) {
		return nil, fmt.Errorf("commitment.Commit: %q: %w", bettor, ErrInvalidAddress)
	}

	h, err := poseidon.Hash([]*big.Int{
		big.NewInt(int64(direction)),
		amount,
		salt,
		common.HexToAddress(bettor).Big(),
	})
	if err != nil {
		return nil, fmt.Errorf("commitment.Commit: poseidon: %w", err)
	}
	return h, nil
}

// CommitHex es Commit con el resultado como hex 0x de 32 bytes, la forma que
// recibe el contrato (bytes32) y la que se guarda en el SealedBet.
func CommitHex(direction domain.Direction, amount, salt *big.Int, bettor string) (string, error) {
	h, err := Commit(direction, amount, salt, bettor)
	if err != nil {
		return "", err
	}
	return FormatSalt(h), nil
}

// GenerateSalt devuelve un elemento aleatorio del campo, nunca cero.
func GenerateSalt() (*big.Int, error) {
	var e fr.Element
	for {
		if _, err := e.SetRandom(); err != nil {
			return nil, fmt.Errorf("commitment.GenerateSalt: %w", err)
		}
		if !e.IsZero() {
			break
		}
	}
	return e.BigInt(new(big.Int)), nil
}

// FormatSalt serializa un elemento del campo como hex 0x de 32 bytes.
func FormatSalt(v *big.Int) string {
	return common.BigToHash(v).Hex()
}

// ParseSalt acepta hex con prefijo 0x o decimal.
func ParseSalt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok || s == "" {
		return nil, fmt.Errorf("commitment.ParseSalt: %w", ErrInvalidSalt)
	}
	if !inField(v) {
		return nil, fmt.Errorf("commitment.ParseSalt: %w", ErrFieldOverflow)
	}
	return v, nil
}

// Verify recalcula el commitment de una apuesta guardada y lo compara con el
// hash que se envió al contrato. Se llama antes de cada reveal.
func Verify(bet domain.SealedBet, bettor string) error {
	amount, err := bet.AmountInt()
	if err != nil {
		return fmt.Errorf("commitment.Verify: %w", err)
	}
	salt, err := ParseSalt(bet.Salt)
	if err != nil {
		return fmt.Errorf("commitment.Verify: %w", err)
	}
	got, err := Commit(bet.Direction, amount, salt, bettor)
	if err != nil {
		return fmt.Errorf("commitment.Verify: %w", err)
	}
	want := common.HexToHash(bet.CommitmentHash).Big()
	if got.Cmp(want) != 0 {
		return ErrCommitmentMismatch
	}
	return nil
}

func inField(v *big.Int) bool {
	return v.Sign() >= 0 && v.Cmp(modulus) < 0
}
