package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	tmtime "github.com/tendermint/tendermint/types/time"

	"llmq_node/types"
)

var (
	chainID      string
	clusterCount int
	genesisSeed  int64
)

// GenGenesisCmd 为本地集群生成创世文件，masternode的operator key由种子确定，
// 各节点再用 gen-operator-key --seed --idx 生成对应的私钥
var GenGenesisCmd = &cobra.Command{
	Use:     "gen-genesis",
	Aliases: []string{"gen_genesis"},
	Short:   "Generate a genesis file for a local cluster",
	PreRun:  deprecateSnakeCase,
	RunE:    genGenesisFile,
}

func init() {
	GenGenesisCmd.Flags().StringVar(&chainID, "chain-id", "llmq-chain", "链名")
	GenGenesisCmd.Flags().Int64Var(&genesisSeed, "seed", 1, "用来生成集群密钥的种子")
	GenGenesisCmd.Flags().IntVar(&clusterCount, "cluster-count", 4, "集群中masternode的数量")
}

func genGenesisFile(cmd *cobra.Command, args []string) error {
	genFile := config.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("Found genesis file", "path", genFile)
		return nil
	}
	if genesisSeed == 0 {
		return fmt.Errorf("seed must not be 0")
	}
	if clusterCount <= 0 {
		return fmt.Errorf("cluster-count must be positive, got %d", clusterCount)
	}

	genDoc := types.GenesisDoc{
		ChainID:     chainID,
		GenesisTime: tmtime.Now(),
		Masternodes: types.GenesisMasternodesWithSeed(clusterCount, genesisSeed),
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return err
	}
	if err := genDoc.SaveAs(genFile); err != nil {
		return err
	}
	logger.Info("Generated genesis file", "path", genFile, "masternodes", clusterCount)
	return nil
}
