package types

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// 磁盘/网络共用的二进制编码: 小端定长整数 + compact size 变长前缀

var ErrNonCanonicalSize = errors.New("non-canonical compact size")

const maxCompactSize = 0x02000000

// maxFailedRead covers every fixed size field, the largest being a
// MaxBitVectorSize bit vector.
const maxFailedRead = MaxBitVectorSize / 8

// Encoder appends the wire encoding of primitive values.
type Encoder struct {
	buf bytes.Buffer
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

func (e *Encoder) WriteUint8(v uint8) {
	e.buf.WriteByte(v)
}

func (e *Encoder) WriteUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

// WriteUint32BE is used for keys that must sort by numeric value.
func (e *Encoder) WriteUint32BE(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) WriteCompactSize(n uint64) {
	switch {
	case n < 253:
		e.buf.WriteByte(uint8(n))
	case n <= 0xffff:
		e.buf.WriteByte(253)
		e.WriteUint16(uint16(n))
	case n <= 0xffffffff:
		e.buf.WriteByte(254)
		e.WriteUint32(uint32(n))
	default:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], n)
		e.buf.WriteByte(255)
		e.buf.Write(b[:])
	}
}

// WriteFixed writes raw bytes with no length prefix.
func (e *Encoder) WriteFixed(bz []byte) {
	e.buf.Write(bz)
}

// WriteString writes a compact-size prefixed string.
func (e *Encoder) WriteString(s string) {
	e.WriteCompactSize(uint64(len(s)))
	e.buf.WriteString(s)
}

// WriteBytes writes a compact-size prefixed byte slice.
func (e *Encoder) WriteBytes(bz []byte) {
	e.WriteCompactSize(uint64(len(bz)))
	e.buf.Write(bz)
}

func (e *Encoder) WriteHash(h Hash) {
	e.buf.Write(h[:])
}

// Decoder reads what Encoder wrote. The first error sticks.
type Decoder struct {
	r   *bytes.Reader
	err error
}

func NewDecoder(bz []byte) *Decoder {
	return &Decoder{r: bytes.NewReader(bz)}
}

func (d *Decoder) Err() error {
	return d.err
}

// Remaining reports how many bytes were not consumed yet.
func (d *Decoder) Remaining() int {
	return d.r.Len()
}

// read never allocates more than the input still holds. After an error
// fixed size reads get zeroes so callers can index them.
func (d *Decoder) read(n int) []byte {
	if d.err == nil && n > d.r.Len() {
		d.err = errors.Wrapf(io.ErrUnexpectedEOF, "decode %d bytes, %d left", n, d.r.Len())
	}
	if d.err != nil {
		if n > maxFailedRead {
			return nil
		}
		return make([]byte, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.err = errors.Wrap(err, "decode")
	}
	return b
}

func (d *Decoder) ReadUint8() uint8 {
	return d.read(1)[0]
}

func (d *Decoder) ReadUint16() uint16 {
	return binary.LittleEndian.Uint16(d.read(2))
}

func (d *Decoder) ReadUint32() uint32 {
	return binary.LittleEndian.Uint32(d.read(4))
}

func (d *Decoder) ReadUint64() uint64 {
	return binary.LittleEndian.Uint64(d.read(8))
}

func (d *Decoder) ReadUint32BE() uint32 {
	return binary.BigEndian.Uint32(d.read(4))
}

func (d *Decoder) ReadCompactSize() uint64 {
	var n uint64
	switch first := d.ReadUint8(); first {
	case 253:
		n = uint64(d.ReadUint16())
		if n < 253 {
			d.SetErr(ErrNonCanonicalSize)
		}
	case 254:
		n = uint64(d.ReadUint32())
		if n < 0x10000 {
			d.SetErr(ErrNonCanonicalSize)
		}
	case 255:
		n = binary.LittleEndian.Uint64(d.read(8))
		if n < 0x100000000 {
			d.SetErr(ErrNonCanonicalSize)
		}
	default:
		n = uint64(first)
	}
	if n > maxCompactSize {
		d.SetErr(errors.Errorf("compact size %d too large", n))
		return 0
	}
	return n
}

func (d *Decoder) ReadFixed(n int) []byte {
	return d.read(n)
}

func (d *Decoder) ReadString() string {
	n := d.ReadCompactSize()
	return string(d.read(int(n)))
}

func (d *Decoder) ReadBytes() []byte {
	n := d.ReadCompactSize()
	return d.read(int(n))
}

func (d *Decoder) ReadHash() Hash {
	var h Hash
	copy(h[:], d.read(HashSize))
	return h
}

func (d *Decoder) SetErr(err error) {
	if d.err == nil {
		d.err = err
	}
}
