package types

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/crypto/merkle"
)

// local blockchain维护的区块的基本单位
type Block struct {
	mtx    sync.Mutex
	Header `json:"header"`
	Data   `json:"data"`
}

// MakeGenesisBlock 返回高度为0的创世区块
func MakeGenesisBlock(chainID string, genesisTime time.Time) *Block {
	return &Block{
		Header: Header{
			ChainID:      chainID,
			Height:       0,
			ProposalTime: genesisTime,
		},
		Data: Data{Txs: Txs{}},
	}
}

// MakeBlock 返回一个接在prev之后的区块
func MakeBlock(chainID string, prev *BlockIndex, txs Txs) *Block {
	return &Block{
		Header: Header{
			ChainID:       chainID,
			Height:        prev.Height + 1,
			LastBlockHash: prev.Hash,
			ProposalTime:  time.Now(),
		},
		Data: Data{Txs: txs},
	}
}

// ValidateBasic 检验一个block是否合法 - 这里的合法指的是没有明确的错误
func (b *Block) ValidateBasic() error {
	if b.Height < 0 {
		return errors.New("negative block height")
	}
	if b.Height > 0 && b.LastBlockHash.IsZero() {
		return errors.New("block had no last block hash")
	}
	for _, tx := range b.Txs {
		if err := tx.ValidateBasic(); err != nil {
			return err
		}
	}
	return nil
}

func (b *Block) Hash() Hash {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.TxsHash.IsZero() {
		b.TxsHash = b.Data.Hash()
	}
	return b.Header.Hash()
}

// Bytes is the storage encoding of the block.
func (b *Block) Bytes() []byte {
	e := NewEncoder()
	e.WriteString(b.ChainID)
	e.WriteUint64(uint64(b.Height))
	ts, err := b.ProposalTime.UTC().MarshalBinary()
	if err != nil {
		panic(err)
	}
	e.WriteBytes(ts)
	e.WriteHash(b.LastBlockHash)
	e.WriteCompactSize(uint64(len(b.Txs)))
	for _, tx := range b.Txs {
		e.WriteFixed(tx.Bytes())
	}
	return e.Bytes()
}

func BlockFromBytes(bz []byte) (*Block, error) {
	d := NewDecoder(bz)
	b := &Block{}
	b.ChainID = d.ReadString()
	b.Height = int64(d.ReadUint64())
	if err := b.ProposalTime.UnmarshalBinary(d.ReadBytes()); err != nil && d.Err() == nil {
		d.SetErr(errors.Wrap(err, "proposal time"))
	}
	b.LastBlockHash = d.ReadHash()
	n := d.ReadCompactSize()
	b.Txs = make(Txs, 0, n)
	for i := uint64(0); i < n && d.Err() == nil; i++ {
		b.Txs = append(b.Txs, DecodeTx(d))
	}
	if d.Err() != nil {
		return nil, d.Err()
	}
	if d.Remaining() != 0 {
		return nil, errors.Errorf("block: %d trailing bytes", d.Remaining())
	}
	return b, nil
}

type Header struct {
	ChainID      string    `json:"chain_id"`
	Height       int64     `json:"height"`
	ProposalTime time.Time `json:"proposal_time"`

	LastBlockHash Hash `json:"last_block_hash"`
	TxsHash       Hash `json:"txs_hash"`

	blockHash Hash
}

func (h *Header) Hash() Hash {
	if h.blockHash.IsZero() {
		var height [8]byte
		binary.BigEndian.PutUint64(height[:], uint64(h.Height))
		ts, _ := h.ProposalTime.UTC().MarshalBinary()
		root := merkle.HashFromByteSlices([][]byte{
			[]byte(h.ChainID),
			height[:],
			ts,
			h.LastBlockHash.Bytes(),
			h.TxsHash.Bytes(),
		})
		copy(h.blockHash[:], root)
	}
	return h.blockHash
}

type Data struct {
	Txs  Txs `json:"txs"`
	hash Hash
}

func (d *Data) Hash() Hash {
	if d.hash.IsZero() {
		d.hash = d.Txs.Hash()
	}
	return d.hash
}
