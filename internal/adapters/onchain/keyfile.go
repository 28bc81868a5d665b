package onchain

// keyfile.go — claves privadas en disco cifradas con password.
//
// Formato JSON: {version, salt, nonce, ciphertext} en base64.
// KDF: PBKDF2-HMAC-SHA256 (480k iteraciones) → AES-256-GCM.

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	keySaltLen       = 16
	aesKeyLen        = 32
	keyFileVersion   = 1
)

type encryptedKeyJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// ErrNoKey indica que no hay ninguna fuente de clave configurada.
var ErrNoKey = errors.New("onchain: no private key configured")

// KeySource dice de dónde sacar la clave: hex directo o archivo cifrado.
type KeySource struct {
	PrivateKey string
	KeyFile    string
	Password   string
}

// ParsePrivateKey parsea una clave secp256k1 en hex, con o sin 0x.
func ParsePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// EncryptKey cifra una clave hex con password y devuelve el JSON para disco.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("onchain.EncryptKey: password must not be empty")
	}
	key, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("onchain.EncryptKey: %w", err)
	}

	salt := make([]byte, keySaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("onchain.EncryptKey: salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, fmt.Errorf("onchain.EncryptKey: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("onchain.EncryptKey: nonce: %w", err)
	}

	out := encryptedKeyJSON{
		Version:    keyFileVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, crypto.FromECDSA(key), nil)),
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecryptKey descifra un JSON de EncryptKey y devuelve la clave en hex (sin 0x).
func DecryptKey(data []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("onchain.DecryptKey: password must not be empty")
	}
	var stored encryptedKeyJSON
	if err := json.Unmarshal(data, &stored); err != nil {
		return "", fmt.Errorf("onchain.DecryptKey: parse: %w", err)
	}
	if stored.Version != keyFileVersion {
		return "", fmt.Errorf("onchain.DecryptKey: unsupported version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return "", fmt.Errorf("onchain.DecryptKey: salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return "", fmt.Errorf("onchain.DecryptKey: nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("onchain.DecryptKey: ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return "", fmt.Errorf("onchain.DecryptKey: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("onchain.DecryptKey: bad nonce size %d", len(nonce))
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("onchain.DecryptKey: wrong password or corrupted file: %w", err)
	}
	return hex.EncodeToString(plain), nil
}

// LoadKey resuelve la clave: PrivateKey tiene prioridad sobre KeyFile.
func LoadKey(src KeySource) (string, error) {
	if src.PrivateKey != "" {
		if _, err := ParsePrivateKey(src.PrivateKey); err != nil {
			return "", fmt.Errorf("onchain.LoadKey: %w", err)
		}
		return strings.TrimPrefix(strings.TrimSpace(src.PrivateKey), "0x"), nil
	}
	if src.KeyFile != "" {
		data, err := os.ReadFile(src.KeyFile)
		if err != nil {
			return "", fmt.Errorf("onchain.LoadKey: read %s: %w", src.KeyFile, err)
		}
		return DecryptKey(data, src.Password)
	}
	return "", ErrNoKey
}

// AddressOf devuelve la dirección de la cuenta de una clave hex.
func AddressOf(privateKeyHex string) (string, error) {
	key, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return gcm, nil
}
