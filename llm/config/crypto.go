package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"
)

// errBadCiphertext is returned internally when a stored credential cannot
// be decoded; callers never see it — Decrypt logs and returns "".
var errBadCiphertext = errors.New("config: malformed ciphertext")

// Cipher encrypts and decrypts API-key credentials for storage in
// Config.value, using AES-256-CBC with a random 16-byte IV per write. The
// key is SHA-256 of a process secret, so the same secret always derives the
// same key without persisting it anywhere.
type Cipher struct {
	key    [32]byte
	logger *zap.Logger
}

// NewCipher derives the AES-256 key from secret via SHA-256.
func NewCipher(secret string, logger *zap.Logger) *Cipher {
	return &Cipher{key: sha256.Sum256([]byte(secret)), logger: logger.With(zap.String("component", "credential-cipher"))}
}

// Encrypt returns the stored form hex(iv) + ":" + hex(ciphertext).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(plaintext), block.BlockSize())

	iv := make([]byte, block.BlockSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. On any failure it logs and returns "" per spec's
// "on decrypt failure, return empty string and log" contract — credential
// decode errors must never propagate as request-path failures.
func (c *Cipher) Decrypt(stored string) string {
	plain, err := c.decrypt(stored)
	if err != nil {
		c.logger.Warn("credential decrypt failed", zap.Error(err))
		return ""
	}
	return plain
}

func (c *Cipher) decrypt(stored string) (string, error) {
	parts := strings.SplitN(stored, ":", 2)
	if len(parts) != 2 {
		return "", errBadCiphertext
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", errBadCiphertext
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", errBadCiphertext
	}

	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return "", err
	}
	if len(iv) != block.BlockSize() || len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return "", errBadCiphertext
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	return pkcs7Unpad(plain)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(data, padding...)
}

func pkcs7Unpad(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errBadCiphertext
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return "", errBadCiphertext
	}
	return string(data[:len(data)-padLen]), nil
}
