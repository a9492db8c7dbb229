// Package threshold deals BLS secret shares and recovers threshold
// signatures. The node itself only verifies recovered signatures; dealing is
// used by tests and by local cluster tooling in place of a real DKG.
package threshold

import (
	"crypto/cipher"
	"encoding/binary"

	"github.com/pkg/errors"
	"go.dedis.ch/kyber/v3/share"
	"go.dedis.ch/kyber/v3/sign/tbls"
	"go.dedis.ch/kyber/v3/util/random"
	"go.dedis.ch/kyber/v3/xof/blake2xb"

	"llmq_node/crypto/bls"
)

// Quorum is the outcome of a (dealer based) key generation for n members
// with threshold t.
type Quorum struct {
	T, N int

	pubPoly *share.PubPoly
	shares  []*share.PriShare
}

// Master 随机生成t-of-n的门限密钥
func Master(t, n int) (*Quorum, error) {
	return deal(t, n, random.New())
}

// MasterWithSeed 根据种子确定性地生成门限密钥
func MasterWithSeed(t, n int, seed int64) (*Quorum, error) {
	var bz [8]byte
	binary.BigEndian.PutUint64(bz[:], uint64(seed))
	return deal(t, n, blake2xb.New(bz[:]))
}

func deal(t, n int, stream cipher.Stream) (*Quorum, error) {
	if t <= 0 || t > n {
		return nil, errors.Errorf("threshold: invalid threshold %d of %d", t, n)
	}
	suite := bls.Suite()
	priPoly := share.NewPriPoly(suite.G2(), t, nil, stream)
	return &Quorum{
		T:       t,
		N:       n,
		pubPoly: priPoly.Commit(suite.G2().Point().Base()),
		shares:  priPoly.Shares(n),
	}, nil
}

// PublicKey is the quorum public key.
func (q *Quorum) PublicKey() bls.PublicKey {
	pk, err := bls.PublicKeyFromPoint(q.pubPoly.Commit())
	if err != nil {
		panic(err)
	}
	return pk
}

// VerificationVector returns the serialized public polynomial commitments.
func (q *Quorum) VerificationVector() [][]byte {
	_, commits := q.pubPoly.Info()
	vvec := make([][]byte, len(commits))
	for i, c := range commits {
		bz, err := c.MarshalBinary()
		if err != nil {
			panic(err)
		}
		vvec[i] = bz
	}
	return vvec
}

// SignShare signs msg with the share of member i.
func (q *Quorum) SignShare(i int, msg []byte) ([]byte, error) {
	if i < 0 || i >= len(q.shares) {
		return nil, errors.Errorf("threshold: no share #%d", i)
	}
	return tbls.Sign(bls.Suite(), q.shares[i], msg)
}

// Recover combines at least T signature shares into the quorum signature.
func (q *Quorum) Recover(msg []byte, sigShares [][]byte) (bls.Signature, error) {
	if len(sigShares) < q.T {
		return bls.Signature{}, errors.Errorf("threshold: %d shares, need %d", len(sigShares), q.T)
	}
	sig, err := tbls.Recover(bls.Suite(), q.pubPoly, msg, sigShares, q.T, q.N)
	if err != nil {
		return bls.Signature{}, errors.Wrap(err, "threshold: recover")
	}
	return bls.SignatureFromBytes(sig)
}
