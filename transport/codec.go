package transport

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the symmetric key length accepted by every AEAD codec.
const KeySize = 32

// formatV1 prefixes every sealed payload and is bound as additional data.
const formatV1 byte = 1

var (
	// ErrDecode is returned when a wire value cannot be turned back into a token.
	ErrDecode = errors.New("transport decode failed")
	// ErrInvalidKey is returned for keys of the wrong length or encoding.
	ErrInvalidKey = errors.New("invalid transport key")
	// ErrUnsupportedAlgorithm is returned by [New] for unknown algorithm names.
	ErrUnsupportedAlgorithm = errors.New("unsupported transport algorithm")
)

// Algorithm names accepted by [New].
const (
	AlgorithmAESGCM            = "aes-gcm"
	AlgorithmXChaCha20Poly1305 = "xchacha20poly1305"
)

// Codec is a reversible mapping between a token and its wire value.
type Codec interface {
	Encode(token string) (string, error)
	Decode(wire string) (string, error)
}

// Plain passes tokens through unchanged.
type Plain struct{}

// Encode returns token.
func (Plain) Encode(token string) (string, error) { return token, nil }

// Decode returns wire, rejecting only empty input.
func (Plain) Decode(wire string) (string, error) {
	if wire == "" {
		return "", ErrDecode
	}
	return wire, nil
}

// AEAD seals tokens with an authenticated cipher. Wire values are
// base64url(version || nonce || ciphertext).
type AEAD struct {
	aead cipher.AEAD
	enc  *base64.Encoding
}

// New returns an AEAD codec for algorithm keyed with key.
func New(algorithm string, key []byte) (*AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}

	var (
		aead cipher.AEAD
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case AlgorithmAESGCM, "":
		var block cipher.Block
		block, err = aes.NewCipher(key)
		if err == nil {
			aead, err = cipher.NewGCM(block)
		}
	case AlgorithmXChaCha20Poly1305:
		aead, err = chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	return &AEAD{aead: aead, enc: base64.RawURLEncoding.Strict()}, nil
}

// Encode seals token under a fresh random nonce.
func (c *AEAD) Encode(token string) (string, error) {
	nonceSize := c.aead.NonceSize()
	buf := make([]byte, 1+nonceSize, 1+nonceSize+len(token)+c.aead.Overhead())
	buf[0] = formatV1
	if _, err := io.ReadFull(rand.Reader, buf[1:]); err != nil {
		return "", fmt.Errorf("nonce generation: %w", err)
	}
	sealed := c.aead.Seal(buf, buf[1:], []byte(token), buf[:1])
	return c.enc.EncodeToString(sealed), nil
}

// Decode opens a wire value produced by Encode with the same key.
func (c *AEAD) Decode(wire string) (string, error) {
	data, err := c.enc.DecodeString(wire)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	nonceSize := c.aead.NonceSize()
	if len(data) < 1+nonceSize+c.aead.Overhead() {
		return "", fmt.Errorf("%w: payload too short", ErrDecode)
	}
	if data[0] != formatV1 {
		return "", fmt.Errorf("%w: unknown format %d", ErrDecode, data[0])
	}

	plain, err := c.aead.Open(nil, data[1:1+nonceSize], data[1+nonceSize:], data[:1])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(plain) == 0 {
		return "", fmt.Errorf("%w: empty token", ErrDecode)
	}
	return string(plain), nil
}

// ParseHexKey decodes a 64-character hex string into a transport key.
func ParseHexKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	return key, nil
}

// DeriveKey stretches a passphrase into a transport key with HKDF-SHA256.
// salt may be empty; info scopes the key to one purpose.
func DeriveKey(passphrase string, salt []byte, info string) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: empty passphrase", ErrInvalidKey)
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(passphrase), salt, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}
