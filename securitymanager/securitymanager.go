package securitymanager

import (
	"errors"
	"fmt"
)

// This module manages the shared symmetric key and the cipher used to seal every
// request and reply payload. The broker never uses it: only clients and workers
// see plaintext.

const (
	CIPHER_AES_CBC           = "aes-cbc"
	CIPHER_XCHACHA20POLY1305 = "xchacha20poly1305"
)

// Returned (wrapped) by Decrypt when a payload was produced with another key or
// cipher, or was corrupted on the way. Callers answer with a structured error.
var ErrUndecryptable = errors.New("undecryptable payload")

var ErrKeySize = errors.New("invalid key size")

/*
A Cipher seals message bytes with the pre-shared key. Implementations are safe
for concurrent use by several workers; the key is never modified after
construction.

Encrypt output is printable (base64), so it can be logged and carried by any
message transport.
*/
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	// Never panics on bad input; returns an error wrapping ErrUndecryptable instead.
	Decrypt(ciphertext []byte) ([]byte, error)
	Name() string
}

// Construct the cipher selected in the configuration.
func NewCipher(name string, key []byte) (Cipher, error) {
	switch name {
	case CIPHER_AES_CBC, "":
		return NewAESCipher(key)
	case CIPHER_XCHACHA20POLY1305:
		return NewXChaChaCipher(key)
	default:
		return nil, fmt.Errorf("unknown cipher %q", name)
	}
}

// Load the key from keyFile and construct the named cipher.
func LoadCipher(name, keyFile string) (Cipher, error) {
	key, err := LoadKey(keyFile)

	if err != nil {
		return nil, err
	}
	return NewCipher(name, key)
}
