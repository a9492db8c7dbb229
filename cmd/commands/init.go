package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	"github.com/tendermint/tendermint/p2p"
	tmtime "github.com/tendermint/tendermint/types/time"

	cfg "llmq_node/config"
	"llmq_node/types"
)

// InitFilesCmd initialises a fresh node home: node key, operator key and a
// single masternode genesis if none is present.
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a llmq node",
	RunE:  initFiles,
}

func init() {
	InitFilesCmd.Flags().Int64Var(&seed, "seed", 0, "集群密钥的种子，为0时随机生成operator key")
	InitFilesCmd.Flags().Int64Var(&idx, "idx", 0, "masternode在本地集群中的编号")
}

func initFiles(cmd *cobra.Command, args []string) error {
	return initFilesWithConfig(config)
}

func initFilesWithConfig(config *cfg.Config) error {
	// operator key
	keyFile := config.PrivOperatorKeyFile()
	pv, generated, err := loadOrGenOperator(keyFile)
	if err != nil {
		return err
	}
	if generated {
		logger.Info("Generated operator key", "keyFile", keyFile, "proTxHash", pv.GetProTxHash())
	} else {
		logger.Info("Found operator key", "keyFile", keyFile)
	}

	nodeKeyFile := config.NodeKeyFile()
	if tmos.FileExists(nodeKeyFile) {
		logger.Info("Found node key", "path", nodeKeyFile)
	} else {
		if _, err := p2p.LoadOrGenNodeKey(nodeKeyFile); err != nil {
			return err
		}
		logger.Info("Generated node key", "path", nodeKeyFile)
	}

	// genesis file
	genFile := config.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("Found genesis file", "path", genFile)
		return nil
	}
	mn := pv.Masternode()
	genDoc := types.GenesisDoc{
		ChainID:     fmt.Sprintf("llmq-chain-%v", tmrand.Str(6)),
		GenesisTime: tmtime.Now(),
		Masternodes: []types.GenesisMasternode{{
			ProTxHash:      mn.ProTxHash,
			PubKeyOperator: mn.PubKeyOperator,
			Name:           config.Moniker,
		}},
	}
	if err := genDoc.SaveAs(genFile); err != nil {
		return err
	}
	logger.Info("Generated genesis file", "path", genFile)
	return nil
}
