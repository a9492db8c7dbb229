package types

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
	tmtime "github.com/tendermint/tendermint/types/time"

	"llmq_node/crypto/bls"
)

const MaxChainIDLen = 50

// GenesisMasternode is a masternode registered at genesis.
type GenesisMasternode struct {
	ProTxHash      Hash          `json:"pro_tx_hash"`
	PubKeyOperator bls.PublicKey `json:"pub_key_operator"`
	Name           string        `json:"name"`
}

// GenesisDoc defines the initial conditions of the chain: the genesis block
// and the deterministic masternode list.
type GenesisDoc struct {
	ChainID     string              `json:"chain_id"`
	GenesisTime time.Time           `json:"genesis_time"`
	Masternodes []GenesisMasternode `json:"masternodes"`
}

// SaveAs is a utility method for saving GenensisDoc as a JSON file.
func (genDoc *GenesisDoc) SaveAs(file string) error {
	genDocBytes, err := tmjson.MarshalIndent(genDoc, "", "  ")
	if err != nil {
		return err
	}
	return tmos.WriteFile(file, genDocBytes, 0644)
}

// ValidateAndComplete checks that all necessary fields are present
// and fills in defaults for optional fields left empty
func (genDoc *GenesisDoc) ValidateAndComplete() error {
	if genDoc.ChainID == "" {
		return errors.New("genesis doc must include non-empty chain_id")
	}
	if len(genDoc.ChainID) > MaxChainIDLen {
		return errors.Errorf("chain_id in genesis doc is too long (max: %d)", MaxChainIDLen)
	}
	if len(genDoc.Masternodes) == 0 {
		return errors.New("genesis doc must register at least one masternode")
	}
	for i, gm := range genDoc.Masternodes {
		mn := NewMasternode(gm.ProTxHash, gm.PubKeyOperator)
		if err := mn.ValidateBasic(); err != nil {
			return errors.Wrapf(err, "genesis masternode %d", i)
		}
	}
	if genDoc.GenesisTime.IsZero() {
		genDoc.GenesisTime = tmtime.Now()
	}
	return nil
}

// GenesisBlock is the block at height 0. Its hash only depends on the chain
// id and genesis time.
func (genDoc *GenesisDoc) GenesisBlock() *Block {
	return MakeGenesisBlock(genDoc.ChainID, genDoc.GenesisTime)
}

func (genDoc *GenesisDoc) MasternodeList() (*MasternodeList, error) {
	mns := make([]*Masternode, len(genDoc.Masternodes))
	for i, gm := range genDoc.Masternodes {
		mns[i] = NewMasternode(gm.ProTxHash, gm.PubKeyOperator)
	}
	return NewMasternodeList(mns)
}

//------------------------------------------------------------
// Make genesis state from file

// GenesisDocFromJSON unmarshalls JSON data into a GenesisDoc.
func GenesisDocFromJSON(jsonBlob []byte) (*GenesisDoc, error) {
	genDoc := GenesisDoc{}
	err := tmjson.Unmarshal(jsonBlob, &genDoc)
	if err != nil {
		return nil, err
	}

	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, err
	}

	return &genDoc, err
}

// GenesisDocFromFile reads JSON data from a file and unmarshalls it into a GenesisDoc.
func GenesisDocFromFile(genDocFile string) (*GenesisDoc, error) {
	jsonBlob, err := ioutil.ReadFile(genDocFile)
	if err != nil {
		return nil, fmt.Errorf("couldn't read GenesisDoc file: %w", err)
	}
	genDoc, err := GenesisDocFromJSON(jsonBlob)
	if err != nil {
		return nil, fmt.Errorf("error reading GenesisDoc at %s: %w", genDocFile, err)
	}
	return genDoc, nil
}

// GenesisMasternodesWithSeed registers n masternodes whose operator keys are
// derived from seed..seed+n-1, the same keys privval derives for a local
// cluster.
func GenesisMasternodesWithSeed(n int, seed int64) []GenesisMasternode {
	mns := make([]GenesisMasternode, n)
	for i := 0; i < n; i++ {
		mn, _ := RandMasternode(seed + int64(i))
		mns[i] = GenesisMasternode{
			ProTxHash:      mn.ProTxHash,
			PubKeyOperator: mn.PubKeyOperator,
			Name:           fmt.Sprintf("masternode-%v", i),
		}
	}
	return mns
}
