package securitymanager

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// XChaCha20-Poly1305 AEAD. Wire format: base64(nonce || sealed box).
// Unlike AES-CBC, tampering and wrong keys are always detected.
type XChaChaCipher struct {
	aead cipher.AEAD
}

func NewXChaChaCipher(key []byte) (*XChaChaCipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: XChaCha20-Poly1305 needs %d bytes, got %d", ErrKeySize, chacha20poly1305.KeySize, len(key))
	}

	aead, err := chacha20poly1305.NewX(key)

	if err != nil {
		return nil, err
	}
	return &XChaChaCipher{aead: aead}, nil
}

func (c *XChaChaCipher) Name() string {
	return CIPHER_XCHACHA20POLY1305
}

func (c *XChaChaCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())

	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	raw := c.aead.Seal(nonce, nonce, plaintext, nil)

	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

func (c *XChaChaCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(ciphertext)))
	n, err := base64.StdEncoding.Decode(raw, bytes.TrimSpace(ciphertext))

	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUndecryptable, err.Error())
	}
	raw = raw[:n]

	if len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: bad length %d", ErrUndecryptable, len(raw))
	}

	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)

	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUndecryptable, err.Error())
	}
	return plain, nil
}
