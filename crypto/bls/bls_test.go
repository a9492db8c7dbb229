package bls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

func TestZeroValuesAreUnset(t *testing.T) {
	var pk PublicKey
	var sig Signature
	assert.False(t, pk.IsSet())
	assert.False(t, pk.IsValid())
	assert.False(t, sig.IsSet())
	assert.False(t, sig.IsValid())
}

func TestSignVerifyInsecure(t *testing.T) {
	sk := GenPrivKeyWithSeed(1)
	pk := sk.PubKey()
	require.True(t, pk.IsValid())

	msg := []byte("commitment hash")
	sig, err := sk.Sign(msg)
	require.NoError(t, err)
	assert.True(t, sig.IsValid())
	assert.True(t, sig.VerifyInsecure(pk, msg))
	assert.False(t, sig.VerifyInsecure(pk, []byte("other")))
	assert.False(t, sig.VerifyInsecure(GenPrivKeyWithSeed(2).PubKey(), msg))
}

func TestSeededKeysAreDeterministic(t *testing.T) {
	assert.Equal(t, GenPrivKeyWithSeed(7).Bytes(), GenPrivKeyWithSeed(7).Bytes())
	assert.NotEqual(t, GenPrivKeyWithSeed(7).Bytes(), GenPrivKeyWithSeed(8).Bytes())

	sk, err := SecretKeyFromBytes(GenPrivKeyWithSeed(7).Bytes())
	require.NoError(t, err)
	assert.True(t, sk.PubKey().Equal(GenPrivKeyWithSeed(7).PubKey()))
}

func TestSecureAggregation(t *testing.T) {
	msg := []byte("commitment hash")
	var (
		pks  []PublicKey
		sigs []Signature
	)
	for i := int64(0); i < 4; i++ {
		sk := GenPrivKeyWithSeed(i + 10)
		sig, err := sk.Sign(msg)
		require.NoError(t, err)
		pks = append(pks, sk.PubKey())
		sigs = append(sigs, sig)
	}

	agg, err := AggregateSecure(pks, sigs)
	require.NoError(t, err)
	assert.True(t, agg.VerifySecureAggregated(pks, msg))

	// dropping a signer or changing the message breaks it
	assert.False(t, agg.VerifySecureAggregated(pks[:3], msg))
	assert.False(t, agg.VerifySecureAggregated(pks, []byte("other")))

	_, err = AggregateSecure(pks, sigs[:2])
	assert.Error(t, err)
}

func TestFromBytesSizes(t *testing.T) {
	_, err := PublicKeyFromBytes(make([]byte, PublicKeySize-1))
	assert.Equal(t, ErrInvalidSize, err)
	_, err = SignatureFromBytes(make([]byte, SignatureSize+1))
	assert.Equal(t, ErrInvalidSize, err)

	pk, err := PublicKeyFromBytes(make([]byte, PublicKeySize))
	require.NoError(t, err)
	assert.False(t, pk.IsSet())
}

func TestKeysJSON(t *testing.T) {
	type keyFile struct {
		PubKey  PublicKey `json:"pub_key"`
		PrivKey SecretKey `json:"priv_key"`
	}
	sk := GenPrivKeyWithSeed(9)
	bz, err := tmjson.Marshal(keyFile{PubKey: sk.PubKey(), PrivKey: sk})
	require.NoError(t, err)

	var loaded keyFile
	require.NoError(t, tmjson.Unmarshal(bz, &loaded))
	assert.True(t, sk.PubKey().Equal(loaded.PubKey))
	assert.Equal(t, sk.Bytes(), loaded.PrivKey.Bytes())

	assert.Error(t, tmjson.Unmarshal([]byte(`{"pub_key":"00"}`), &loaded))
}
