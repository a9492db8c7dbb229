package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	tmcfg "github.com/tendermint/tendermint/config"
	tmos "github.com/tendermint/tendermint/libs/os"

	"llmq_node/types"
)

const (
	DefaultDirName = ".llmq_node"

	// EnvPrefix prefixes every environment override, e.g. LLMQ_EVODB_BACKEND.
	EnvPrefix = "LLMQ"

	defaultConfigDir = "config"
	defaultDataDir   = "data"

	defaultConfigFileName      = "config.toml"
	defaultGenesisJSONName     = "genesis.json"
	defaultPrivOperatorKeyName = "priv_operator_key.json"
	defaultNodeKeyName         = "node_key.json"

	DefaultLogLevel = "info"
)

var (
	defaultConfigFilePath      = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultGenesisJSONPath     = filepath.Join(defaultConfigDir, defaultGenesisJSONName)
	defaultPrivOperatorKeyPath = filepath.Join(defaultConfigDir, defaultPrivOperatorKeyName)
	defaultNodeKeyPath         = filepath.Join(defaultConfigDir, defaultNodeKeyName)
)

// DefaultHome is $HOME/.llmq_node.
func DefaultHome() string {
	return os.ExpandEnv(filepath.Join("$HOME", DefaultDirName))
}

// Config defines the top level configuration of a node.
type Config struct {
	BaseConfig `mapstructure:",squash"`

	EvoDB *EvoDBConfig     `mapstructure:"evodb"`
	P2P   *tmcfg.P2PConfig `mapstructure:"p2p"`
	RPC   *tmcfg.RPCConfig `mapstructure:"rpc"`
}

func DefaultConfig() *Config {
	return &Config{
		BaseConfig: DefaultBaseConfig(),
		EvoDB:      DefaultEvoDBConfig(),
		P2P:        tmcfg.DefaultP2PConfig(),
		RPC:        tmcfg.DefaultRPCConfig(),
	}
}

// TestConfig keeps everything in memory and listens on local ports.
func TestConfig() *Config {
	conf := DefaultConfig()
	conf.Network = "regtest"
	conf.EvoDB.Backend = "memdb"
	conf.P2P = tmcfg.TestP2PConfig()
	conf.RPC = tmcfg.TestRPCConfig()
	return conf
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	cfg.EvoDB.RootDir = root
	cfg.P2P.RootDir = root
	cfg.RPC.RootDir = root
	return cfg
}

func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.EvoDB.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [evodb] section")
	}
	if err := cfg.P2P.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [p2p] section")
	}
	if err := cfg.RPC.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [rpc] section")
	}
	return nil
}

// LLMQParams is the parameter table of the configured network.
func (cfg *Config) LLMQParams() (types.LLMQParamsSet, error) {
	return types.LLMQParamsForNetwork(cfg.Network)
}

//-----------------------------------------------------------------------------
// BaseConfig

type BaseConfig struct {
	// The root directory for all data.
	RootDir string `mapstructure:"home"`

	// A custom human readable name for this node
	Moniker string `mapstructure:"moniker"`

	// main, test or regtest. Selects the LLMQ parameter table.
	Network string `mapstructure:"network"`

	LogLevel string `mapstructure:"log_level"`

	Genesis         string `mapstructure:"genesis_file"`
	PrivOperatorKey string `mapstructure:"priv_operator_key_file"`
	NodeKey         string `mapstructure:"node_key_file"`
}

func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Moniker:         defaultMoniker(),
		Network:         "main",
		LogLevel:        DefaultLogLevel,
		Genesis:         defaultGenesisJSONPath,
		PrivOperatorKey: defaultPrivOperatorKeyPath,
		NodeKey:         defaultNodeKeyPath,
	}
}

func (cfg BaseConfig) GenesisFile() string {
	return rootify(cfg.Genesis, cfg.RootDir)
}

func (cfg BaseConfig) PrivOperatorKeyFile() string {
	return rootify(cfg.PrivOperatorKey, cfg.RootDir)
}

func (cfg BaseConfig) NodeKeyFile() string {
	return rootify(cfg.NodeKey, cfg.RootDir)
}

func (cfg BaseConfig) ConfigFile() string {
	return rootify(defaultConfigFilePath, cfg.RootDir)
}

func (cfg BaseConfig) ValidateBasic() error {
	if _, err := types.LLMQParamsForNetwork(cfg.Network); err != nil {
		return err
	}
	return nil
}

//-----------------------------------------------------------------------------
// EvoDBConfig

// EvoDBConfig configures the commitment store.
type EvoDBConfig struct {
	RootDir string `mapstructure:"home"`

	// goleveldb or memdb
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`

	// blocks connected or disconnected between two flushes to disk
	FlushInterval int64 `mapstructure:"flush_interval"`
}

func DefaultEvoDBConfig() *EvoDBConfig {
	return &EvoDBConfig{
		Backend:       "goleveldb",
		Dir:           defaultDataDir,
		FlushInterval: 100,
	}
}

func (cfg *EvoDBConfig) DBDir() string {
	return rootify(cfg.Dir, cfg.RootDir)
}

func (cfg *EvoDBConfig) ValidateBasic() error {
	switch cfg.Backend {
	case "goleveldb", "memdb":
	default:
		return errors.Errorf("unsupported backend %q", cfg.Backend)
	}
	if cfg.FlushInterval <= 0 {
		return errors.New("flush_interval must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// loading

// settings are the keys written to config.toml. They double as viper
// defaults so environment overrides resolve for every key.
func (cfg *Config) settings() map[string]interface{} {
	return map[string]interface{}{
		"moniker":                    cfg.Moniker,
		"network":                    cfg.Network,
		"log_level":                  cfg.LogLevel,
		"genesis_file":               cfg.Genesis,
		"priv_operator_key_file":     cfg.PrivOperatorKey,
		"node_key_file":              cfg.NodeKey,
		"evodb.backend":              cfg.EvoDB.Backend,
		"evodb.dir":                  cfg.EvoDB.Dir,
		"evodb.flush_interval":       cfg.EvoDB.FlushInterval,
		"p2p.laddr":                  cfg.P2P.ListenAddress,
		"p2p.external_address":       cfg.P2P.ExternalAddress,
		"p2p.persistent_peers":       cfg.P2P.PersistentPeers,
		"p2p.max_num_inbound_peers":  cfg.P2P.MaxNumInboundPeers,
		"p2p.max_num_outbound_peers": cfg.P2P.MaxNumOutboundPeers,
		"p2p.addr_book_strict":       cfg.P2P.AddrBookStrict,
		"p2p.allow_duplicate_ip":     cfg.P2P.AllowDuplicateIP,
		"rpc.laddr":                  cfg.RPC.ListenAddress,
		"rpc.max_open_connections":   cfg.RPC.MaxOpenConnections,
		"rpc.cors_allowed_origins":   cfg.RPC.CORSAllowedOrigins,
	}
}

// Load decodes v on top of the defaults. v has usually read config.toml
// already; keys it does not know fall back to the default values.
func Load(v *viper.Viper) (*Config, error) {
	conf := DefaultConfig()
	for key, value := range conf.settings() {
		v.SetDefault(key, value)
	}
	if err := v.Unmarshal(conf); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	conf.SetRoot(conf.RootDir)
	if err := conf.ValidateBasic(); err != nil {
		return nil, errors.Wrap(err, "error in config file")
	}
	return conf, nil
}

// LoadFile reads the config.toml under home, environment overrides applied.
func LoadFile(home string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	v.SetConfigFile(filepath.Join(home, defaultConfigFilePath))
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	v.Set("home", home)
	return Load(v)
}

// WriteConfigFile renders conf as config.toml at path.
func WriteConfigFile(path string, conf *Config) error {
	v := viper.New()
	for key, value := range conf.settings() {
		v.Set(key, value)
	}
	return v.WriteConfigAs(path)
}

// EnsureRoot creates the root, config and data directories and writes a
// default config file if none exists.
func EnsureRoot(rootDir string) error {
	for _, dir := range []string{rootDir, filepath.Join(rootDir, defaultConfigDir), filepath.Join(rootDir, defaultDataDir)} {
		if err := tmos.EnsureDir(dir, 0700); err != nil {
			return err
		}
	}
	configFilePath := filepath.Join(rootDir, defaultConfigFilePath)
	if tmos.FileExists(configFilePath) {
		return nil
	}
	return WriteConfigFile(configFilePath, DefaultConfig())
}

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func defaultMoniker() string {
	moniker, err := os.Hostname()
	if err != nil {
		moniker = "anonymous"
	}
	return moniker
}
