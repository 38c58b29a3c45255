package secure

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
)

// ErrInvalidPadding is returned when a decrypted block does not carry valid PKCS#7 padding.
var ErrInvalidPadding = errors.New("secure: invalid padding")

// InternalCipher encrypts arbitrary-server fields at rest with the service key.
// Key = SHA-256(service key), IV = first 16 bytes of the key, AES-CBC with PKCS#7, base64 output.
type InternalCipher struct {
	key *memguard.Enclave
}

// NewInternalCipher derives the cipher key from the service secret and seals it in an enclave.
func NewInternalCipher(serviceKey string) (*InternalCipher, error) {
	if serviceKey == "" {
		return nil, errors.New("secure: service key is required")
	}
	sum := sha256.Sum256([]byte(serviceKey))
	buf := make([]byte, len(sum))
	copy(buf, sum[:])
	return &InternalCipher{key: memguard.NewEnclave(buf)}, nil
}

// Encrypt returns the base64 ciphertext of plaintext.
func (c *InternalCipher) Encrypt(plaintext string) (string, error) {
	var out []byte
	err := c.withKey(func(key []byte) error {
		block, err := aes.NewCipher(key)
		if err != nil {
			return err
		}
		padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
		out = make([]byte, len(padded))
		cipher.NewCBCEncrypter(block, key[:aes.BlockSize]).CryptBlocks(out, padded)
		return nil
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt.
func (c *InternalCipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("secure: decode: %w", err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("secure: ciphertext length %d is not a multiple of the block size", len(raw))
	}

	var plain []byte
	err = c.withKey(func(key []byte) error {
		block, err := aes.NewCipher(key)
		if err != nil {
			return err
		}
		buf := make([]byte, len(raw))
		cipher.NewCBCDecrypter(block, key[:aes.BlockSize]).CryptBlocks(buf, raw)
		plain, err = pkcs7Unpad(buf, aes.BlockSize)
		return err
	})
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// EncryptPtr encrypts an optional value; nil and empty stay nil.
func (c *InternalCipher) EncryptPtr(v string) (*string, error) {
	if v == "" {
		return nil, nil
	}
	enc, err := c.Encrypt(v)
	if err != nil {
		return nil, err
	}
	return &enc, nil
}

// DecryptPtr decrypts an optional value; nil yields "".
func (c *InternalCipher) DecryptPtr(v *string) (string, error) {
	if v == nil || *v == "" {
		return "", nil
	}
	return c.Decrypt(*v)
}

func (c *InternalCipher) withKey(fn func(key []byte) error) error {
	locked, err := c.key.Open()
	if err != nil {
		return fmt.Errorf("secure: open key: %w", err)
	}
	defer locked.Destroy()
	return fn(locked.Bytes())
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-n], nil
}
