package types

import (
	"errors"
	"fmt"

	"llmq_node/crypto/bls"
)

// Masternode is a registered committee candidate. ProTxHash is its stable
// identity, PubKeyOperator the BLS key it signs commitments with.
type Masternode struct {
	ProTxHash      Hash          `json:"pro_tx_hash"`
	PubKeyOperator bls.PublicKey `json:"-"`
}

func NewMasternode(proTxHash Hash, pubKey bls.PublicKey) *Masternode {
	return &Masternode{
		ProTxHash:      proTxHash,
		PubKeyOperator: pubKey,
	}
}

// ValidateBasic performs basic validation.
func (mn *Masternode) ValidateBasic() error {
	if mn == nil {
		return errors.New("nil masternode")
	}
	if mn.ProTxHash.IsZero() {
		return errors.New("masternode does not have a proTxHash")
	}
	if !mn.PubKeyOperator.IsValid() {
		return fmt.Errorf("masternode %v has an invalid operator key", mn.ProTxHash)
	}
	return nil
}

func (mn *Masternode) Copy() *Masternode {
	mnCopy := *mn
	return &mnCopy
}

func (mn *Masternode) String() string {
	if mn == nil {
		return "nil-Masternode"
	}
	return fmt.Sprintf("Masternode{%v %v}", mn.ProTxHash, mn.PubKeyOperator)
}

// quorumScore orders masternodes for a given quorum: lower is better.
func (mn *Masternode) quorumScore(llmqType LLMQType, quorumHash Hash) Hash {
	e := NewEncoder()
	e.WriteUint8(uint8(llmqType))
	e.WriteHash(mn.ProTxHash)
	e.WriteHash(quorumHash)
	return DoubleHash(e.Bytes())
}

//----------------------------------------
// RandMasternode

// RandMasternode returns a masternode and its operator secret key derived
// from seed. Useful for tests and local clusters.
func RandMasternode(seed int64) (*Masternode, bls.SecretKey) {
	sk := bls.GenPrivKeyWithSeed(seed)
	pk := sk.PubKey()
	return NewMasternode(DoubleHash(pk.Bytes()), pk), sk
}
