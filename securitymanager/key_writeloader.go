package securitymanager

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
)

const DEFAULT_KEY_SIZE = 32

// Loads the symmetric key from keyFile. The file contains the base64-encoded
// key, optionally followed by a newline.
func LoadKey(keyFile string) ([]byte, error) {
	content, err := readFile(keyFile)

	if err != nil {
		return nil, err
	}

	key, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(content)))

	if err != nil {
		return nil, fmt.Errorf("decode key file %s: %w", keyFile, err)
	}
	return key, nil
}

func readFile(filename string) ([]byte, error) {
	content, err := os.ReadFile(filename)

	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, errors.New("Could not read key: file " + filename + " is empty")
	}

	return content, nil
}

// Returns size random bytes, suitable for NewCipher().
func GenerateKey(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrKeySize, size)
	}
	key := make([]byte, size)

	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Writes key base64-encoded to keyFile, readable only by the owner.
func WriteKey(keyFile string, key []byte) error {
	return writeFile(keyFile, base64.StdEncoding.EncodeToString(key)+"\n")
}

func writeFile(filename, content string) error {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)

	if err != nil {
		return err
	}
	defer file.Close()

	n, err := file.Write([]byte(content))

	if err != nil {
		return err
	}
	if n != len(content) {
		return errors.New("Could not write correct number of bytes to key file")
	}

	return file.Close()
}
