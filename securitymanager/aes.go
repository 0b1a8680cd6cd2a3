package securitymanager

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

/*
AES in CBC mode with a random IV and PKCS#7 padding. The wire format is
base64(iv || ciphertext), which is what the pre-existing clients of this
protocol produce and expect.

CBC carries no authentication tag; a wrong key is detected through the padding
check only. The XChaCha cipher should be preferred when every peer supports it.
*/
type AESCipher struct {
	block cipher.Block
}

func NewAESCipher(key []byte) (*AESCipher, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: AES needs 16, 24 or 32 bytes, got %d", ErrKeySize, len(key))
	}

	block, err := aes.NewCipher(key)

	if err != nil {
		return nil, err
	}
	return &AESCipher{block: block}, nil
}

func (c *AESCipher) Name() string {
	return CIPHER_AES_CBC
}

func (c *AESCipher) Encrypt(plaintext []byte) ([]byte, error) {
	padded := pad(plaintext, aes.BlockSize)
	raw := make([]byte, aes.BlockSize+len(padded))
	iv := raw[:aes.BlockSize]

	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(raw[aes.BlockSize:], padded)

	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

func (c *AESCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(ciphertext)))
	n, err := base64.StdEncoding.Decode(raw, bytes.TrimSpace(ciphertext))

	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUndecryptable, err.Error())
	}
	raw = raw[:n]

	if len(raw) < 2*aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: bad length %d", ErrUndecryptable, len(raw))
	}

	iv, body := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, body)

	return unpad(plain, aes.BlockSize)
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append(make([]byte, 0, len(b)+n), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty block", ErrUndecryptable)
	}
	n := int(b[len(b)-1])

	if n == 0 || n > size || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrUndecryptable)
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrUndecryptable)
		}
	}
	return b[:len(b)-n], nil
}
