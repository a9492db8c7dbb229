package types

import (
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/crypto/merkle"
)

type TxType uint16

const (
	TxTypeNormal   = TxType(0)
	TxTypeLLMQComm = TxType(21)
)

const CurrentTxVersion = uint16(3)

// Tx is a transaction as far as this node cares: special transactions carry
// a typed payload, everything else is opaque.
type Tx struct {
	Version uint16 `json:"version"`
	Type    TxType `json:"type"`
	Payload []byte `json:"payload"`
}

func NewSpecialTx(txType TxType, payload []byte) *Tx {
	return &Tx{
		Version: CurrentTxVersion,
		Type:    txType,
		Payload: payload,
	}
}

func (tx *Tx) IsQuorumCommitmentTx() bool {
	return tx.Type == TxTypeLLMQComm
}

func (tx *Tx) ValidateBasic() error {
	if tx == nil {
		return errors.New("nil tx")
	}
	if tx.Type != TxTypeNormal && len(tx.Payload) == 0 {
		return fmt.Errorf("special tx of type %d without payload", tx.Type)
	}
	return nil
}

func (tx *Tx) Bytes() []byte {
	e := NewEncoder()
	e.WriteUint16(tx.Version)
	e.WriteUint16(uint16(tx.Type))
	e.WriteBytes(tx.Payload)
	return e.Bytes()
}

// DecodeTx reads what Bytes wrote.
func DecodeTx(d *Decoder) *Tx {
	return &Tx{
		Version: d.ReadUint16(),
		Type:    TxType(d.ReadUint16()),
		Payload: d.ReadBytes(),
	}
}

func (tx *Tx) Hash() Hash {
	return DoubleHash(tx.Bytes())
}

func (tx *Tx) ComputeSize() int64 {
	return int64(len(tx.Bytes()))
}

type Txs []*Tx

// 返回交易形成的merkle tree的根value
func (txs Txs) Hash() Hash {
	txBzs := make([][]byte, len(txs))
	for i := 0; i < len(txs); i++ {
		h := txs[i].Hash()
		txBzs[i] = h[:]
	}
	var root Hash
	copy(root[:], merkle.HashFromByteSlices(txBzs))
	return root
}
