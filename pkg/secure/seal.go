package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

// ErrMalformedCiphertext is returned when a sealed answer is not "hex(iv):hex(ciphertext)".
var ErrMalformedCiphertext = errors.New("secure: malformed ciphertext")

// DHParams are an applet's public Diffie-Hellman parameters as big-endian unsigned integers.
type DHParams struct {
	Prime     []byte
	Base      []byte
	PublicKey []byte
}

// PrivateKey derives a user's private scalar from identity and password:
// SHA-512(password || email) followed by SHA-512(userID || email), read big-endian.
func PrivateKey(userID, email, password string) *big.Int {
	first := sha512.Sum512([]byte(password + email))
	second := sha512.Sum512([]byte(userID + email))
	buf := make([]byte, 0, len(first)+len(second))
	buf = append(buf, first[:]...)
	buf = append(buf, second[:]...)
	return new(big.Int).SetBytes(buf)
}

// PublicKey returns base^priv mod prime.
func PublicKey(priv *big.Int, params DHParams) []byte {
	prime := new(big.Int).SetBytes(params.Prime)
	base := new(big.Int).SetBytes(params.Base)
	return new(big.Int).Exp(base, priv, prime).Bytes()
}

// PublicKeyBase64 is PublicKey in its persisted form.
func PublicKeyBase64(priv *big.Int, params DHParams) string {
	return base64.StdEncoding.EncodeToString(PublicKey(priv, params))
}

// SharedKey returns SHA-256 of (appletPublicKey^priv mod prime).
func SharedKey(priv *big.Int, params DHParams) ([]byte, error) {
	if len(params.Prime) == 0 || len(params.PublicKey) == 0 {
		return nil, errors.New("secure: applet has no encryption parameters")
	}
	prime := new(big.Int).SetBytes(params.Prime)
	pub := new(big.Int).SetBytes(params.PublicKey)
	shared := new(big.Int).Exp(pub, priv, prime)
	sum := sha256.Sum256(shared.Bytes())
	return sum[:], nil
}

// Seal encrypts plaintext under key with a fresh IV.
func Seal(key, plaintext []byte) (string, error) {
	return sealWithReader(rand.Reader, key, plaintext)
}

func sealWithReader(r io.Reader, key, plaintext []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(r, iv); err != nil {
		return "", fmt.Errorf("secure: iv: %w", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal.
func Open(key []byte, sealed string) ([]byte, error) {
	ivHex, ctHex, ok := strings.Cut(sealed, ":")
	if !ok {
		return nil, ErrMalformedCiphertext
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return nil, ErrMalformedCiphertext
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, ErrMalformedCiphertext
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(buf, ct)
	return pkcs7Unpad(buf, aes.BlockSize)
}

// Reseal opens sealed under oldKey and seals the plaintext again under newKey.
func Reseal(oldKey, newKey []byte, sealed string) (string, error) {
	plain, err := Open(oldKey, sealed)
	if err != nil {
		return "", err
	}
	return Seal(newKey, plain)
}
