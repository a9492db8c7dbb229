package privval

import (
	"fmt"
	"io/ioutil"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/libs/tempfile"

	"llmq_node/crypto/bls"
	"llmq_node/types"
)

//-------------------------------------------------------------------------------

// FilePVKey stores the operator identity of a masternode.
type FilePVKey struct {
	ProTxHash types.Hash    `json:"pro_tx_hash"`
	PubKey    bls.PublicKey `json:"pub_key"`
	PrivKey   bls.SecretKey `json:"priv_key"`

	filePath string
}

// Save persists the FilePVKey to its filePath.
func (pvKey FilePVKey) Save() {
	outFile := pvKey.filePath
	if outFile == "" {
		panic("cannot save operator key: filePath not set")
	}

	jsonBytes, err := tmjson.MarshalIndent(pvKey, "", "  ")
	if err != nil {
		panic(err)
	}
	err = tempfile.WriteFileAtomic(outFile, jsonBytes, 0600)
	if err != nil {
		panic(err)
	}

}

//-------------------------------------------------------------------------------

// FilePV is the operator key of this masternode, persisted to disk. The
// ProTxHash binds it to an entry of the masternode list.
type FilePV struct {
	Key FilePVKey
}

// NewFilePV generates a new operator from the given key and path.
func NewFilePV(privKey bls.SecretKey, proTxHash types.Hash, keyFilePath string) *FilePV {
	return &FilePV{
		Key: FilePVKey{
			ProTxHash: proTxHash,
			PubKey:    privKey.PubKey(),
			PrivKey:   privKey,
			filePath:  keyFilePath,
		},
	}
}

// GenFilePVWithSeedAndIdx derives the key of masternode idx of a local
// cluster, matching types.GenesisMasternodesWithSeed(n, seed).
func GenFilePVWithSeedAndIdx(keyFilePath string, seed, idx int64) *FilePV {
	mn, sk := types.RandMasternode(seed + idx)
	return NewFilePV(sk, mn.ProTxHash, keyFilePath)
}

// GenFilePV generates a new operator with randomly generated private key
// and sets the filePath, but does not call Save(). The proTxHash is derived
// from the public key like for local clusters.
func GenFilePV(keyFilePath string) *FilePV {
	sk := bls.GenPrivKey()
	return NewFilePV(sk, types.DoubleHash(sk.PubKey().Bytes()), keyFilePath)
}

// LoadFilePV loads a FilePV from keyFilePath.
func LoadFilePV(keyFilePath string) (*FilePV, error) {
	keyJSONBytes, err := ioutil.ReadFile(keyFilePath)
	if err != nil {
		return nil, err
	}
	pvKey := FilePVKey{}
	err = tmjson.Unmarshal(keyJSONBytes, &pvKey)
	if err != nil {
		return nil, fmt.Errorf("error reading operator key from %v: %w", keyFilePath, err)
	}
	if pvKey.ProTxHash.IsZero() || !pvKey.PrivKey.IsSet() {
		return nil, errors.Errorf("operator key at %v is incomplete", keyFilePath)
	}

	// overwrite pubkey for convenience
	pvKey.PubKey = pvKey.PrivKey.PubKey()
	pvKey.filePath = keyFilePath

	return &FilePV{
		Key: pvKey,
	}, nil
}

// LoadOrGenFilePV loads a FilePV from the given filePath
// or else generates a new one and saves it to the filePath.
func LoadOrGenFilePV(keyFilePath string) (*FilePV, error) {
	if tmos.FileExists(keyFilePath) {
		return LoadFilePV(keyFilePath)
	}
	pv := GenFilePV(keyFilePath)
	pv.Save()
	return pv, nil
}

func (pv *FilePV) GetProTxHash() types.Hash {
	return pv.Key.ProTxHash
}

func (pv *FilePV) GetPubKey() bls.PublicKey {
	return pv.Key.PubKey
}

// Masternode is the masternode list entry this key operates.
func (pv *FilePV) Masternode() *types.Masternode {
	return types.NewMasternode(pv.Key.ProTxHash, pv.Key.PubKey)
}

// Sign signs msg with the operator key, e.g. a commitment hash for the
// members signature.
func (pv *FilePV) Sign(msg []byte) (bls.Signature, error) {
	return pv.Key.PrivKey.Sign(msg)
}

// Save persists the FilePV to disk.
func (pv *FilePV) Save() {
	pv.Key.Save()
}

// String returns a string representation of the FilePV.
func (pv *FilePV) String() string {
	return fmt.Sprintf(
		"Operator{%v %v}",
		pv.Key.ProTxHash,
		pv.Key.PubKey,
	)
}
