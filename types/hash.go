package types

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

const HashSize = tmhash.Size

// Hash is a 256-bit identifier: block hashes, quorum hashes, commitment
// hashes and masternode ids all use it.
type Hash [HashSize]byte

// ZeroHash is returned when a quorum block is not known yet.
var ZeroHash = Hash{}

// DoubleHash returns tmhash(tmhash(bz)).
func DoubleHash(bz []byte) Hash {
	var h Hash
	copy(h[:], tmhash.Sum(tmhash.Sum(bz)))
	return h
}

// HashFromBytes copies bz into a Hash; bz must be HashSize long.
func HashFromBytes(bz []byte) (Hash, error) {
	var h Hash
	if len(bz) != HashSize {
		return h, fmt.Errorf("invalid hash length %d, expected %d", len(bz), HashSize)
	}
	copy(h[:], bz)
	return h, nil
}

// HashFromHex parses a hex string (the format String returns).
func HashFromHex(s string) (Hash, error) {
	bz, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	return HashFromBytes(bz)
}

func (h Hash) IsZero() bool {
	return h == ZeroHash
}

func (h Hash) Bytes() []byte {
	return h[:]
}

// Less compares byte-lexicographically.
func (h Hash) Less(other Hash) bool {
	return bytes.Compare(h[:], other[:]) < 0
}

func (h Hash) String() string {
	return tmbytes.HexBytes(h[:]).String()
}

// MarshalJSON prints the hash as hex, like tmbytes.HexBytes does.
func (h Hash) MarshalJSON() ([]byte, error) {
	return tmbytes.HexBytes(h[:]).MarshalJSON()
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	var hb tmbytes.HexBytes
	if err := hb.UnmarshalJSON(data); err != nil {
		return err
	}
	parsed, err := HashFromBytes(hb)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
