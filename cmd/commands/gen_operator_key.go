package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"

	"llmq_node/privval"
)

var (
	seed int64
	idx  int64
)

// GenOperatorKeyCmd 生成masternode的BLS operator公私钥对
var GenOperatorKeyCmd = &cobra.Command{
	Use:     "gen-operator-key",
	Aliases: []string{"gen_operator_key"},
	Args:    cobra.NoArgs,
	Short:   "Generate a new masternode operator key",
	PreRun:  deprecateSnakeCase,
	RunE:    genOperatorKey,
}

func init() {
	GenOperatorKeyCmd.Flags().Int64Var(&seed, "seed", 0, "集群密钥的种子，为0时随机生成")
	GenOperatorKeyCmd.Flags().Int64Var(&idx, "idx", 0, "masternode在本地集群中的编号，与gen-genesis的种子对应")
}

// loadOrGenOperator derives the seeded key of masternode idx when a seed is
// given, a random one otherwise.
func loadOrGenOperator(keyFile string) (pv *privval.FilePV, generated bool, err error) {
	if tmos.FileExists(keyFile) {
		pv, err = privval.LoadFilePV(keyFile)
		return pv, false, err
	}
	if seed != 0 {
		pv = privval.GenFilePVWithSeedAndIdx(keyFile, seed, idx)
	} else {
		pv = privval.GenFilePV(keyFile)
	}
	pv.Save()
	return pv, true, nil
}

func genOperatorKey(cmd *cobra.Command, args []string) error {
	keyFile := config.PrivOperatorKeyFile()
	if tmos.FileExists(keyFile) {
		return fmt.Errorf("operator key at %s already exists", keyFile)
	}
	pv, _, err := loadOrGenOperator(keyFile)
	if err != nil {
		return err
	}
	return printOperator(pv)
}

// ShowOperatorKeyCmd prints the proTxHash and public key of the operator.
var ShowOperatorKeyCmd = &cobra.Command{
	Use:     "show-operator-key",
	Aliases: []string{"show_operator_key"},
	Short:   "Show this node's masternode identity",
	PreRun:  deprecateSnakeCase,
	RunE:    showOperatorKey,
}

func showOperatorKey(cmd *cobra.Command, args []string) error {
	keyFile := config.PrivOperatorKeyFile()
	if !tmos.FileExists(keyFile) {
		return fmt.Errorf("operator key file %q does not exist", keyFile)
	}
	pv, err := privval.LoadFilePV(keyFile)
	if err != nil {
		return err
	}
	return printOperator(pv)
}

type operatorJSON struct {
	ProTxHash string `json:"pro_tx_hash"`
	PubKey    string `json:"pub_key_operator"`
}

func printOperator(pv *privval.FilePV) error {
	bz, err := tmjson.MarshalIndent(operatorJSON{
		ProTxHash: pv.GetProTxHash().String(),
		PubKey:    pv.GetPubKey().String(),
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(bz))
	return nil
}
