// Package encoding seals values into opaque strings that survive a round trip
// through an untrusted holder, such as a browser's session storage.
package encoding

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrTampered is returned when a sealed string fails verification or
// decryption.
var ErrTampered = errors.New("encoding: sealed data failed verification")

// Mode selects how a payload is protected.
type Mode int

const (
	// Signed payloads are readable base64 with an HMAC suffix.
	Signed Mode = iota
	// Encrypted payloads are AES-256-GCM ciphertext.
	Encrypted
)

// Encoder seals and opens msgpack-encoded values.
type Encoder struct {
	key []byte
	gcm cipher.AEAD
}

// NewEncoder creates an encoder for the given key. Keys shorter than 32
// bytes are stretched with SHA-256.
func NewEncoder(key []byte) (*Encoder, error) {
	if len(key) == 0 {
		return nil, errors.New("encoding: empty key")
	}
	if len(key) < 32 {
		h := sha256.Sum256(key)
		key = h[:]
	}

	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Encoder{key: key, gcm: gcm}, nil
}

// Seal marshals v and protects it according to mode.
func (e *Encoder) Seal(v any, mode Mode) (string, error) {
	packed, err := msgpack.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding: marshal: %w", err)
	}
	if mode == Encrypted {
		return e.encrypt(packed)
	}
	return e.sign(packed), nil
}

// Open reverses Seal into v, which must be a pointer.
func (e *Encoder) Open(sealed string, mode Mode, v any) error {
	var packed []byte
	var err error
	if mode == Encrypted {
		packed, err = e.decrypt(sealed)
	} else {
		packed, err = e.verify(sealed)
	}
	if err != nil {
		return err
	}

	if err := msgpack.Unmarshal(packed, v); err != nil {
		return fmt.Errorf("encoding: unmarshal: %w", err)
	}
	return nil
}

// sign produces base64(data) + "." + base64(mac[:16]).
func (e *Encoder) sign(data []byte) string {
	mac := hmac.New(sha256.New, e.key)
	mac.Write(data)
	return base64.RawURLEncoding.EncodeToString(data) + "." +
		base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:16])
}

func (e *Encoder) verify(sealed string) ([]byte, error) {
	payload, signature, ok := strings.Cut(sealed, ".")
	if !ok {
		return nil, fmt.Errorf("%w: missing signature", ErrTampered)
	}

	data, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTampered, err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTampered, err)
	}

	mac := hmac.New(sha256.New, e.key)
	mac.Write(data)
	if !hmac.Equal(sig, mac.Sum(nil)[:16]) {
		return nil, ErrTampered
	}
	return data, nil
}

func (e *Encoder) encrypt(data []byte) (string, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(e.gcm.Seal(nonce, nonce, data, nil)), nil
}

func (e *Encoder) decrypt(sealed string) ([]byte, error) {
	ciphertext, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTampered, err)
	}
	if len(ciphertext) < e.gcm.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrTampered)
	}

	nonce, ciphertext := ciphertext[:e.gcm.NonceSize()], ciphertext[e.gcm.NonceSize():]
	data, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrTampered
	}
	return data, nil
}
