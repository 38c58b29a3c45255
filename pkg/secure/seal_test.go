package secure

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 3526 group 14 prime.
const modp2048 = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF6955817183995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFFFFFFFFFFFFFF"

func testParams(t *testing.T) DHParams {
	t.Helper()
	prime, err := hex.DecodeString(modp2048)
	require.NoError(t, err)
	applet := new(big.Int).SetBytes(bytes.Repeat([]byte{0x5a}, 64))
	params := DHParams{Prime: prime, Base: []byte{2}}
	params.PublicKey = PublicKey(applet, params)
	return params
}

func TestSealKnownAnswer(t *testing.T) {
	key := sha256.Sum256([]byte("answer-key"))
	iv, err := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)

	sealed, err := sealWithReader(bytes.NewReader(iv), key[:], []byte(`{"mood":"good"}`))
	require.NoError(t, err)
	assert.Equal(t, "000102030405060708090a0b0c0d0e0f:d97a3edf1d199933b4bbc5e662c52fcb", sealed)

	plain, err := Open(key[:], sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"mood":"good"}`, string(plain))
}

func TestOpenRejectsMalformed(t *testing.T) {
	key := sha256.Sum256([]byte("answer-key"))
	for _, sealed := range []string{"", "abc", "zz:00", "0001:d97a3edf1d199933b4bbc5e662c52fcb", "000102030405060708090a0b0c0d0e0f:abcd"} {
		_, err := Open(key[:], sealed)
		assert.ErrorIs(t, err, ErrMalformedCiphertext, sealed)
	}
}

func TestPrivateKeyIsDeterministicAndPasswordBound(t *testing.T) {
	a := PrivateKey("u1", "a@example.com", "old-password")
	b := PrivateKey("u1", "a@example.com", "old-password")
	c := PrivateKey("u1", "a@example.com", "new-password")

	assert.Equal(t, 0, a.Cmp(b))
	assert.NotEqual(t, 0, a.Cmp(c))
	assert.LessOrEqual(t, len(a.Bytes()), 128)
}

func TestResealUnderNewPassword(t *testing.T) {
	params := testParams(t)
	oldKey, err := SharedKey(PrivateKey("u1", "a@example.com", "old"), params)
	require.NoError(t, err)
	newKey, err := SharedKey(PrivateKey("u1", "a@example.com", "new"), params)
	require.NoError(t, err)
	require.NotEqual(t, oldKey, newKey)

	sealed, err := Seal(oldKey, []byte("C1"))
	require.NoError(t, err)

	resealed, err := Reseal(oldKey, newKey, sealed)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, resealed)

	plain, err := Open(newKey, resealed)
	require.NoError(t, err)
	assert.Equal(t, "C1", string(plain))

	if stale, err := Open(oldKey, resealed); err == nil {
		assert.NotEqual(t, "C1", string(stale))
	}
}

func TestSharedKeyMatchesAppletSide(t *testing.T) {
	prime, err := hex.DecodeString(modp2048)
	require.NoError(t, err)
	appletPriv := big.NewInt(987654321)
	params := DHParams{Prime: prime, Base: []byte{2}}
	params.PublicKey = PublicKey(appletPriv, params)

	userPriv := PrivateKey("u1", "a@example.com", "pw")
	userKey, err := SharedKey(userPriv, params)
	require.NoError(t, err)

	userPub := PublicKey(userPriv, params)
	appletKey, err := SharedKey(appletPriv, DHParams{Prime: prime, Base: []byte{2}, PublicKey: userPub})
	require.NoError(t, err)
	assert.Equal(t, userKey, appletKey)
}

func TestSharedKeyRequiresParams(t *testing.T) {
	_, err := SharedKey(big.NewInt(3), DHParams{})
	require.Error(t, err)
}
