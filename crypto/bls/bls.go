// Package bls wraps kyber's BN256 BLS signatures with the fixed-size,
// possibly-unset key and signature values that commitments carry.
package bls

import (
	"bytes"
	"crypto/cipher"
	"encoding/binary"
	"encoding/hex"

	"github.com/pkg/errors"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/sign"
	"go.dedis.ch/kyber/v3/sign/bdn"
	kbls "go.dedis.ch/kyber/v3/sign/bls"
	"go.dedis.ch/kyber/v3/util/random"
	"go.dedis.ch/kyber/v3/xof/blake2xb"
)

const (
	// public keys live on G2, signatures on G1
	PublicKeySize = 128
	SignatureSize = 64
	SecretKeySize = 32
)

var (
	ErrInvalidSize  = errors.New("bls: invalid encoding size")
	ErrInvalidPoint = errors.New("bls: invalid curve point")
	ErrUnset        = errors.New("bls: value not set")
)

var suite = bn256.NewSuite()

// Suite is the pairing suite every key and signature in this node uses.
func Suite() pairing.Suite {
	return suite
}

//-------------------------------------------------------------------------------

// PublicKey is an operator or quorum public key. The zero value is "unset".
type PublicKey struct {
	raw [PublicKeySize]byte
}

func PublicKeyFromBytes(bz []byte) (PublicKey, error) {
	var pk PublicKey
	if len(bz) != PublicKeySize {
		return pk, ErrInvalidSize
	}
	copy(pk.raw[:], bz)
	return pk, nil
}

func PublicKeyFromPoint(p kyber.Point) (PublicKey, error) {
	bz, err := p.MarshalBinary()
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKeyFromBytes(bz)
}

func (pk PublicKey) IsSet() bool {
	return !isZero(pk.raw[:])
}

// IsValid reports whether the key is set, on the curve and not the identity.
func (pk PublicKey) IsValid() bool {
	_, err := pk.Point()
	return err == nil
}

func (pk PublicKey) Point() (kyber.Point, error) {
	if !pk.IsSet() {
		return nil, ErrUnset
	}
	p := suite.G2().Point()
	if err := p.UnmarshalBinary(pk.raw[:]); err != nil {
		return nil, errors.Wrap(ErrInvalidPoint, err.Error())
	}
	if p.Equal(suite.G2().Point().Null()) {
		return nil, ErrInvalidPoint
	}
	return p, nil
}

func (pk PublicKey) Bytes() []byte {
	out := make([]byte, PublicKeySize)
	copy(out, pk.raw[:])
	return out
}

func (pk PublicKey) Equal(other PublicKey) bool {
	return pk.raw == other.raw
}

func (pk PublicKey) String() string {
	return hex.EncodeToString(pk.raw[:])
}

// MarshalJSON prints the key as hex. Genesis and key files carry it.
func (pk PublicKey) MarshalJSON() ([]byte, error) {
	return tmbytes.HexBytes(pk.raw[:]).MarshalJSON()
}

func (pk *PublicKey) UnmarshalJSON(data []byte) error {
	var hb tmbytes.HexBytes
	if err := hb.UnmarshalJSON(data); err != nil {
		return err
	}
	parsed, err := PublicKeyFromBytes(hb)
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

//-------------------------------------------------------------------------------

// Signature is a G1 point. The zero value is "unset".
type Signature struct {
	raw [SignatureSize]byte
}

func SignatureFromBytes(bz []byte) (Signature, error) {
	var sig Signature
	if len(bz) != SignatureSize {
		return sig, ErrInvalidSize
	}
	copy(sig.raw[:], bz)
	return sig, nil
}

func (sig Signature) IsSet() bool {
	return !isZero(sig.raw[:])
}

// IsValid only checks the encoding, not what was signed.
func (sig Signature) IsValid() bool {
	if !sig.IsSet() {
		return false
	}
	p := suite.G1().Point()
	if err := p.UnmarshalBinary(sig.raw[:]); err != nil {
		return false
	}
	return !p.Equal(suite.G1().Point().Null())
}

func (sig Signature) Bytes() []byte {
	out := make([]byte, SignatureSize)
	copy(out, sig.raw[:])
	return out
}

func (sig Signature) String() string {
	return hex.EncodeToString(sig.raw[:])
}

// VerifyInsecure checks a plain (non-aggregated) signature of msg by pk.
func (sig Signature) VerifyInsecure(pk PublicKey, msg []byte) bool {
	if !sig.IsValid() {
		return false
	}
	point, err := pk.Point()
	if err != nil {
		return false
	}
	return kbls.Verify(suite, point, msg, sig.raw[:]) == nil
}

// VerifySecureAggregated checks an aggregate of signatures over the same
// msg, one per key in pks, aggregated with rogue-key resistant (BDN)
// coefficients. The order of pks matters.
func (sig Signature) VerifySecureAggregated(pks []PublicKey, msg []byte) bool {
	if !sig.IsValid() || len(pks) == 0 {
		return false
	}
	mask, err := fullMask(pks)
	if err != nil {
		return false
	}
	aggPub, err := bdn.AggregatePublicKeys(suite, mask)
	if err != nil {
		return false
	}
	return bdn.Verify(suite, aggPub, msg, sig.raw[:]) == nil
}

// AggregateSecure combines sigs (sigs[i] by pks[i]) the way
// VerifySecureAggregated expects.
func AggregateSecure(pks []PublicKey, sigs []Signature) (Signature, error) {
	if len(pks) != len(sigs) || len(pks) == 0 {
		return Signature{}, errors.Errorf("bls: %d keys for %d signatures", len(pks), len(sigs))
	}
	mask, err := fullMask(pks)
	if err != nil {
		return Signature{}, err
	}
	raw := make([][]byte, len(sigs))
	for i := range sigs {
		raw[i] = sigs[i].raw[:]
	}
	agg, err := bdn.AggregateSignatures(suite, raw, mask)
	if err != nil {
		return Signature{}, err
	}
	bz, err := agg.MarshalBinary()
	if err != nil {
		return Signature{}, err
	}
	return SignatureFromBytes(bz)
}

func fullMask(pks []PublicKey) (*sign.Mask, error) {
	points := make([]kyber.Point, len(pks))
	for i, pk := range pks {
		p, err := pk.Point()
		if err != nil {
			return nil, errors.Wrapf(err, "public key #%d", i)
		}
		points[i] = p
	}
	mask, err := sign.NewMask(suite, points, nil)
	if err != nil {
		return nil, err
	}
	for i := range points {
		if err := mask.SetBit(i, true); err != nil {
			return nil, err
		}
	}
	return mask, nil
}

//-------------------------------------------------------------------------------

// SecretKey is an operator secret key.
type SecretKey struct {
	s kyber.Scalar
}

// GenPrivKey 随机生成私钥
func GenPrivKey() SecretKey {
	return genPrivKey(random.New())
}

// GenPrivKeyWithSeed 根据种子确定性地生成私钥，用于测试和本地集群
func GenPrivKeyWithSeed(seed int64) SecretKey {
	var bz [8]byte
	binary.BigEndian.PutUint64(bz[:], uint64(seed))
	return genPrivKey(blake2xb.New(bz[:]))
}

func genPrivKey(stream cipher.Stream) SecretKey {
	s, _ := bdn.NewKeyPair(suite, stream)
	return SecretKey{s: s}
}

func SecretKeyFromBytes(bz []byte) (SecretKey, error) {
	if len(bz) != SecretKeySize {
		return SecretKey{}, ErrInvalidSize
	}
	s := suite.G2().Scalar()
	if err := s.UnmarshalBinary(bz); err != nil {
		return SecretKey{}, err
	}
	return SecretKey{s: s}, nil
}

// SecretKeyFromScalar is used by the threshold dealer.
func SecretKeyFromScalar(s kyber.Scalar) SecretKey {
	return SecretKey{s: s.Clone()}
}

func (sk SecretKey) Bytes() []byte {
	bz, err := sk.s.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return bz
}

func (sk SecretKey) IsSet() bool {
	return sk.s != nil
}

func (sk SecretKey) MarshalJSON() ([]byte, error) {
	return tmbytes.HexBytes(sk.Bytes()).MarshalJSON()
}

func (sk *SecretKey) UnmarshalJSON(data []byte) error {
	var hb tmbytes.HexBytes
	if err := hb.UnmarshalJSON(data); err != nil {
		return err
	}
	parsed, err := SecretKeyFromBytes(hb)
	if err != nil {
		return err
	}
	*sk = parsed
	return nil
}

func (sk SecretKey) PubKey() PublicKey {
	pk, err := PublicKeyFromPoint(suite.G2().Point().Mul(sk.s, nil))
	if err != nil {
		panic(err)
	}
	return pk
}

func (sk SecretKey) Sign(msg []byte) (Signature, error) {
	bz, err := bdn.Sign(suite, sk.s, msg)
	if err != nil {
		return Signature{}, err
	}
	return SignatureFromBytes(bz)
}

func isZero(bz []byte) bool {
	return bytes.Count(bz, []byte{0}) == len(bz)
}
