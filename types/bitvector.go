package types

import (
	"encoding/hex"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"
)

// BitVector is a fixed-length vector of member flags (signers / valid
// members). Its length is part of the encoding and is checked against the
// committee size, so bits are never set past Len().
type BitVector struct {
	size uint
	bits *bitset.BitSet
}

func NewBitVector(size int) *BitVector {
	return &BitVector{size: uint(size), bits: bitset.New(uint(size))}
}

// BitVectorFromBools is mostly for tests: {1,1,0} => 110.
func BitVectorFromBools(flags ...bool) *BitVector {
	bv := NewBitVector(len(flags))
	for i, f := range flags {
		if f {
			bv.Set(i)
		}
	}
	return bv
}

func (bv *BitVector) Len() int {
	if bv == nil {
		return 0
	}
	return int(bv.size)
}

func (bv *BitVector) Get(i int) bool {
	if bv == nil || i < 0 || uint(i) >= bv.size {
		return false
	}
	return bv.bits.Test(uint(i))
}

// Set panics when i is out of range, the vector never grows.
func (bv *BitVector) Set(i int) {
	if i < 0 || uint(i) >= bv.size {
		panic(errors.Errorf("bit %d out of range [0, %d)", i, bv.size))
	}
	bv.bits.Set(uint(i))
}

func (bv *BitVector) Clear(i int) {
	if i < 0 || uint(i) >= bv.size {
		return
	}
	bv.bits.Clear(uint(i))
}

func (bv *BitVector) Count() int {
	if bv == nil {
		return 0
	}
	return int(bv.bits.Count())
}

func (bv *BitVector) Copy() *BitVector {
	if bv == nil {
		return nil
	}
	return &BitVector{size: bv.size, bits: bv.bits.Clone()}
}

func (bv *BitVector) Equal(other *BitVector) bool {
	if bv.Len() != other.Len() {
		return false
	}
	if bv.Len() == 0 {
		return true
	}
	return bv.bits.Equal(other.bits)
}

// Bytes packs bit i into byte i/8 at position i%8.
func (bv *BitVector) Bytes() []byte {
	out := make([]byte, (bv.Len()+7)/8)
	for i := 0; i < bv.Len(); i++ {
		if bv.Get(i) {
			out[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return out
}

func (bv *BitVector) String() string {
	return hex.EncodeToString(bv.Bytes())
}

// Encode writes the dynamic bitset form: compact-size bit count + packed bytes.
func (bv *BitVector) Encode(e *Encoder) {
	e.WriteCompactSize(uint64(bv.Len()))
	e.WriteFixed(bv.Bytes())
}

// MaxBitVectorSize bounds decoded vectors, no committee is larger.
const MaxBitVectorSize = 4096

func DecodeBitVector(d *Decoder) *BitVector {
	size := int(d.ReadCompactSize())
	if size > MaxBitVectorSize {
		d.SetErr(errors.Errorf("bitset size %d exceeds %d", size, MaxBitVectorSize))
		return NewBitVector(0)
	}
	packed := d.ReadFixed((size + 7) / 8)
	bv := NewBitVector(size)
	if d.Err() != nil {
		return bv
	}
	for i := 0; i < size; i++ {
		if packed[i/8]&(1<<(uint(i)%8)) != 0 {
			bv.Set(i)
		}
	}
	// 多余的填充位必须为0，保证编码唯一
	if size%8 != 0 && packed[len(packed)-1]>>(uint(size)%8) != 0 {
		d.SetErr(errors.New("dynamic bitset has padding bits set"))
	}
	return bv
}
