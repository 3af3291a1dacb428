package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// pbkdf2Iterations follows OWASP's 2023 minimum for PBKDF2-HMAC-SHA256.
const pbkdf2Iterations = 600000

// ErrCipherDisabled is returned by Decrypt/Encrypt when called on the
// zero Cipher.
var ErrCipherDisabled = errors.New("auth: cipher has no key")

// Cipher encrypts node field values with AES-256-GCM, for callers that
// want values encrypted before they ever reach HAM or storage.
type Cipher struct {
	key []byte // 32 bytes
}

// DeriveCipher derives a Cipher's key from passphrase and salt via
// PBKDF2-HMAC-SHA256. salt must be unique per installation.
func DeriveCipher(passphrase string, salt []byte) *Cipher {
	return &Cipher{key: pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 32, sha256.New)}
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	if c == nil || len(c.key) == 0 {
		return "", ErrCipherDisabled
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(encoded string) ([]byte, error) {
	if c == nil || len(c.key) == 0 {
		return nil, ErrCipherDisabled
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, errors.New("auth: ciphertext too short")
	}
	nonce, ct := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ct, nil)
}

// GenerateSalt returns a fresh 32-byte salt for DeriveCipher.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}
