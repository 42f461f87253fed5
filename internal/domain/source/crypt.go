package source

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// ErrDecrypt is returned when encrypted content cannot be decrypted.
var ErrDecrypt = errors.New("decrypt failed")

// Cryptor decrypts script content stored encrypted by the unit.
type Cryptor struct {
	key []byte
}

// NewCryptor creates a cryptor over an AES key of 16, 24 or 32 bytes.
func NewCryptor(key string) (*Cryptor, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("invalid encryption key length %d", len(key))
	}
	return &Cryptor{key: []byte(key)}, nil
}

// IV derives the initialization vector from a routing id: the id reversed,
// cut or zero-padded to one block.
func IV(routingID string) []byte {
	r := []rune(routingID)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	iv := []byte(string(r))
	if len(iv) >= aes.BlockSize {
		return iv[:aes.BlockSize]
	}
	return append(iv, bytes.Repeat([]byte{'0'}, aes.BlockSize-len(iv))...)
}

// Decrypt decrypts CBC ciphertext and strips its padding.
func (c *Cryptor) Decrypt(data []byte, routingID string) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a whole number of blocks", ErrDecrypt)
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, IV(routingID)).CryptBlocks(out, data)
	return unpad(out)
}

// Encrypt is the inverse of Decrypt.
func (c *Cryptor) Encrypt(data []byte, routingID string) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	n := aes.BlockSize - len(data)%aes.BlockSize
	padded := append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(n)}, n)...)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, IV(routingID)).CryptBlocks(out, padded)
	return out, nil
}

func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
		}
	}
	return b[:len(b)-n], nil
}
