package llmq

import (
	"github.com/pkg/errors"

	"llmq_node/crypto/bls"
	"llmq_node/types"
)

const CurrentCommitmentVersion = uint16(1)

// FinalCommitment is the on-chain proof that a quorum's DKG succeeded: at
// least threshold members hold shares of QuorumPublicKey. It is mined as
// part of an LLMQCOMM payload.
//
// QuorumSig is the recovered threshold signature and MembersSig the
// aggregated member signature, both over BuildCommitmentHash.
type FinalCommitment struct {
	Version      uint16
	LLMQType     types.LLMQType
	QuorumHash   types.Hash
	Signers      *types.BitVector
	ValidMembers *types.BitVector

	QuorumPublicKey bls.PublicKey
	QuorumVvecHash  types.Hash

	QuorumSig  bls.Signature
	MembersSig bls.Signature
}

// NewFinalCommitment returns the null commitment for a quorum.
func NewFinalCommitment(params types.LLMQParams, quorumHash types.Hash) *FinalCommitment {
	return &FinalCommitment{
		Version:      CurrentCommitmentVersion,
		LLMQType:     params.Type,
		QuorumHash:   quorumHash,
		Signers:      types.NewBitVector(params.Size),
		ValidMembers: types.NewBitVector(params.Size),
	}
}

func (qc *FinalCommitment) CountSigners() int {
	return qc.Signers.Count()
}

func (qc *FinalCommitment) CountValidMembers() int {
	return qc.ValidMembers.Count()
}

// IsNull reports whether this commitment says "no quorum was formed".
func (qc *FinalCommitment) IsNull() bool {
	if qc.CountSigners() > 0 || qc.CountValidMembers() > 0 {
		return false
	}
	return !qc.QuorumPublicKey.IsSet() &&
		qc.QuorumVvecHash.IsZero() &&
		!qc.MembersSig.IsSet() &&
		!qc.QuorumSig.IsSet()
}

func (qc *FinalCommitment) Copy() *FinalCommitment {
	cp := *qc
	cp.Signers = qc.Signers.Copy()
	cp.ValidMembers = qc.ValidMembers.Copy()
	return &cp
}

// VerifySizes checks both bit vectors against the committee size.
func (qc *FinalCommitment) VerifySizes(params types.LLMQParams) error {
	if qc.Signers.Len() != params.Size {
		return verifyErrorf(StructuralError, "signers size (%d != %d)", qc.Signers.Len(), params.Size)
	}
	if qc.ValidMembers.Len() != params.Size {
		return verifyErrorf(StructuralError, "validMembers size (%d != %d)", qc.ValidMembers.Len(), params.Size)
	}
	return nil
}

// Verify checks the commitment against members, the committee its quorum
// hash selects. Signatures are only checked when checkSigs is set, i.e. when
// the commitment is about to be persisted or is received from the network.
func (qc *FinalCommitment) Verify(paramsSet types.LLMQParamsSet, members []*types.Masternode, checkSigs bool) error {
	if qc.Version == 0 || qc.Version > CurrentCommitmentVersion {
		return verifyErrorf(StructuralError, "version (%d)", qc.Version)
	}
	params, ok := paramsSet.Get(qc.LLMQType)
	if !ok {
		return verifyErrorf(StructuralError, "type (%d)", qc.LLMQType)
	}
	if err := qc.VerifySizes(params); err != nil {
		return err
	}

	if qc.IsNull() {
		return nil
	}

	if n := qc.CountValidMembers(); n < params.MinSize {
		return verifyErrorf(ThresholdError, "valid members count (%d < %d)", n, params.MinSize)
	}
	if n := qc.CountSigners(); n < params.MinSize {
		return verifyErrorf(ThresholdError, "signers count (%d < %d)", n, params.MinSize)
	}

	if !qc.QuorumPublicKey.IsValid() {
		return verifyErrorf(CryptoError, "public key")
	}
	if qc.QuorumVvecHash.IsZero() {
		return verifyErrorf(StructuralError, "quorumVvecHash")
	}
	if !qc.MembersSig.IsValid() {
		return verifyErrorf(CryptoError, "membersSig")
	}
	if !qc.QuorumSig.IsValid() {
		return verifyErrorf(CryptoError, "quorumSig")
	}

	for i := len(members); i < params.Size; i++ {
		if qc.ValidMembers.Get(i) {
			return verifyErrorf(StructuralError, "validMembers bitset (bit %d should not be set)", i)
		}
		if qc.Signers.Get(i) {
			return verifyErrorf(StructuralError, "signers bitset (bit %d should not be set)", i)
		}
	}

	if !checkSigs {
		return nil
	}

	commitmentHash := BuildCommitmentHash(qc.LLMQType, qc.QuorumHash, qc.ValidMembers, qc.QuorumPublicKey, qc.QuorumVvecHash)

	var memberPubKeys []bls.PublicKey
	for i := range members {
		if !qc.Signers.Get(i) {
			continue
		}
		memberPubKeys = append(memberPubKeys, members[i].PubKeyOperator)
	}
	if !qc.MembersSig.VerifySecureAggregated(memberPubKeys, commitmentHash.Bytes()) {
		return verifyErrorf(CryptoError, "aggregated members signature")
	}
	if !qc.QuorumSig.VerifyInsecure(qc.QuorumPublicKey, commitmentHash.Bytes()) {
		return verifyErrorf(CryptoError, "invalid quorum signature")
	}
	return nil
}

// BuildCommitmentHash is the message both commitment signatures sign.
func BuildCommitmentHash(llmqType types.LLMQType, quorumHash types.Hash, validMembers *types.BitVector,
	pubKey bls.PublicKey, vvecHash types.Hash) types.Hash {
	e := types.NewEncoder()
	e.WriteUint8(uint8(llmqType))
	e.WriteHash(quorumHash)
	validMembers.Encode(e)
	e.WriteFixed(pubKey.Bytes())
	e.WriteHash(vvecHash)
	return types.DoubleHash(e.Bytes())
}

// Hash identifies a candidate: it covers the whole serialization, so two
// candidates for the same quorum with different signers differ.
func (qc *FinalCommitment) Hash() types.Hash {
	return types.DoubleHash(qc.Bytes())
}

func (qc *FinalCommitment) Encode(e *types.Encoder) {
	e.WriteUint16(qc.Version)
	e.WriteUint8(uint8(qc.LLMQType))
	e.WriteHash(qc.QuorumHash)
	qc.Signers.Encode(e)
	qc.ValidMembers.Encode(e)
	e.WriteFixed(qc.QuorumPublicKey.Bytes())
	e.WriteHash(qc.QuorumVvecHash)
	e.WriteFixed(qc.QuorumSig.Bytes())
	e.WriteFixed(qc.MembersSig.Bytes())
}

func (qc *FinalCommitment) Bytes() []byte {
	e := types.NewEncoder()
	qc.Encode(e)
	return e.Bytes()
}

func DecodeFinalCommitment(d *types.Decoder) *FinalCommitment {
	qc := &FinalCommitment{}
	qc.Version = d.ReadUint16()
	qc.LLMQType = types.LLMQType(d.ReadUint8())
	qc.QuorumHash = d.ReadHash()
	qc.Signers = types.DecodeBitVector(d)
	qc.ValidMembers = types.DecodeBitVector(d)

	var err error
	if qc.QuorumPublicKey, err = bls.PublicKeyFromBytes(d.ReadFixed(bls.PublicKeySize)); err != nil {
		d.SetErr(err)
	}
	qc.QuorumVvecHash = d.ReadHash()
	if qc.QuorumSig, err = bls.SignatureFromBytes(d.ReadFixed(bls.SignatureSize)); err != nil {
		d.SetErr(err)
	}
	if qc.MembersSig, err = bls.SignatureFromBytes(d.ReadFixed(bls.SignatureSize)); err != nil {
		d.SetErr(err)
	}
	return qc
}

// FinalCommitmentFromBytes rejects trailing bytes.
func FinalCommitmentFromBytes(bz []byte) (*FinalCommitment, error) {
	d := types.NewDecoder(bz)
	qc := DecodeFinalCommitment(d)
	if d.Err() != nil {
		return nil, errors.Wrap(d.Err(), "final commitment")
	}
	if d.Remaining() != 0 {
		return nil, errors.Errorf("final commitment: %d trailing bytes", d.Remaining())
	}
	return qc, nil
}

// CommitmentJSON is the RPC view of a commitment.
type CommitmentJSON struct {
	Version           uint16     `json:"version"`
	LLMQType          int        `json:"llmqType"`
	QuorumHash        types.Hash `json:"quorumHash"`
	SignersCount      int        `json:"signersCount"`
	Signers           string     `json:"signers"`
	ValidMembersCount int        `json:"validMembersCount"`
	ValidMembers      string     `json:"validMembers"`
	QuorumPublicKey   string     `json:"quorumPublicKey"`
	QuorumVvecHash    types.Hash `json:"quorumVvecHash"`
	QuorumSig         string     `json:"quorumSig"`
	MembersSig        string     `json:"membersSig"`
}

func (qc *FinalCommitment) ToJSON() CommitmentJSON {
	return CommitmentJSON{
		Version:           qc.Version,
		LLMQType:          int(qc.LLMQType),
		QuorumHash:        qc.QuorumHash,
		SignersCount:      qc.CountSigners(),
		Signers:           qc.Signers.String(),
		ValidMembersCount: qc.CountValidMembers(),
		ValidMembers:      qc.ValidMembers.String(),
		QuorumPublicKey:   qc.QuorumPublicKey.String(),
		QuorumVvecHash:    qc.QuorumVvecHash,
		QuorumSig:         qc.QuorumSig.String(),
		MembersSig:        qc.MembersSig.String(),
	}
}
