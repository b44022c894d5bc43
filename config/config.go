package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/omni/question-oracle/utils"
)

const (
	DefaultConfigPath         = "config.yml"
	DefaultPollInterval       = 30 * time.Second
	DefaultCheckpointFile     = "lastBlock.txt"
	DefaultRPCTimeout         = 30 * time.Second
	DefaultCompletionTimeout  = 60 * time.Second
	DefaultCompletionModel    = "gpt-3.5-turbo"
	DefaultReceiptTimeout     = 2 * time.Minute
	DefaultMetricsHost        = ":2112"
	DefaultGasLimitMultiplier = 1.0
)

var ErrInvalidConfig = errors.New("invalid config")

type CheckpointBackend string

const (
	CheckpointBackendFile     CheckpointBackend = "file"
	CheckpointBackendPebble   CheckpointBackend = "pebble"
	CheckpointBackendPostgres CheckpointBackend = "postgres"
)

type RPCConfig struct {
	Host    string        `yaml:"host" env:"ETHEREUM_NODE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"RPC_TIMEOUT"`
}

type ChainConfig struct {
	RPC                RPCConfig `yaml:"rpc"`
	ChainID            string    `yaml:"chain_id" env:"CHAIN_ID"`
	BlockConfirmations uint64    `yaml:"required_block_confirmations" env:"BLOCK_CONFIRMATIONS"`
	MaxBlockRangeSize  uint64    `yaml:"max_block_range_size" env:"MAX_BLOCK_RANGE_SIZE"`
	SafeLogsRequest    bool      `yaml:"safe_logs_request" env:"SAFE_LOGS_REQUEST"`
}

type OracleConfig struct {
	ContractAddress    common.Address `yaml:"contract_address" env:"CONTRACT_ADDRESS"`
	AccountAddress     common.Address `yaml:"account_address" env:"ORACLE_ACCOUNT_ADDRESS"`
	PrivateKey         string         `yaml:"private_key" env:"PRIVATE_KEY"`
	StartBlock         uint64         `yaml:"start_block" env:"START_BLOCK"`
	PollInterval       time.Duration  `yaml:"poll_interval" env:"POLL_INTERVAL"`
	Subscribe          bool           `yaml:"subscribe" env:"SUBSCRIBE"`
	GasLimitMultiplier float64        `yaml:"gas_limit_multiplier" env:"GAS_LIMIT_MULTIPLIER"`
	WaitReceipt        bool           `yaml:"wait_receipt" env:"WAIT_RECEIPT"`
	ReceiptTimeout     time.Duration  `yaml:"receipt_timeout" env:"RECEIPT_TIMEOUT"`
}

type CompletionConfig struct {
	BaseURL string        `yaml:"base_url" env:"OPENAI_BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"OPENAI_API_KEY"`
	Model   string        `yaml:"model" env:"OPENAI_MODEL"`
	Timeout time.Duration `yaml:"timeout" env:"OPENAI_TIMEOUT"`
}

type CheckpointConfig struct {
	Backend CheckpointBackend `yaml:"backend" env:"CHECKPOINT_BACKEND"`
	File    string            `yaml:"file" env:"CHECKPOINT_FILE"`
	Dir     string            `yaml:"dir" env:"CHECKPOINT_DIR"`
}

type DBConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       string `yaml:"database"`
}

type PresenterConfig struct {
	Host string `yaml:"host"`
}

type Config struct {
	Chain       ChainConfig      `yaml:"chain"`
	Oracle      OracleConfig     `yaml:"oracle"`
	Completion  CompletionConfig `yaml:"completion"`
	Checkpoint  CheckpointConfig `yaml:"checkpoint"`
	DBConfig    *DBConfig        `yaml:"postgres"`
	Journal     bool             `yaml:"journal" env:"JOURNAL"`
	Presenter   *PresenterConfig `yaml:"presenter"`
	MetricsHost string           `yaml:"metrics_host" env:"METRICS_HOST"`
	LogLevel    logrus.Level     `yaml:"log_level" env:"LOG_LEVEL"`
}

func defaultConfig() *Config {
	return &Config{
		Chain: ChainConfig{
			RPC: RPCConfig{Timeout: DefaultRPCTimeout},
		},
		Oracle: OracleConfig{
			PollInterval:       DefaultPollInterval,
			GasLimitMultiplier: DefaultGasLimitMultiplier,
			ReceiptTimeout:     DefaultReceiptTimeout,
		},
		Completion: CompletionConfig{
			Model:   DefaultCompletionModel,
			Timeout: DefaultCompletionTimeout,
		},
		Checkpoint: CheckpointConfig{
			Backend: CheckpointBackendFile,
			File:    DefaultCheckpointFile,
		},
		MetricsHost: DefaultMetricsHost,
		LogLevel:    logrus.InfoLevel,
	}
}

// ReadConfig parses yaml config blob on top of the defaults and applies
// environment overrides. Environment placeholders in the blob are not expanded.
func ReadConfig(blob []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := parseYaml(cfg, blob); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("can't parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ReadConfigWithEnv(blob []byte) (*Config, error) {
	return ReadConfig([]byte(os.ExpandEnv(string(blob))))
}

// ReadConfigFromFile reads the given yaml file. A missing file is not an error,
// in that case the whole config comes from the environment.
func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return ReadConfigWithEnv(blob)
}

// Path returns the config file location, CONFIG_PATH overrides the default.
func Path() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return DefaultConfigPath
}

func (cfg *Config) Validate() error {
	if cfg.Chain.RPC.Host == "" {
		return fmt.Errorf("node endpoint is not set: %w", ErrInvalidConfig)
	}
	if cfg.Chain.RPC.Timeout <= 0 {
		return fmt.Errorf("rpc timeout must be positive: %w", ErrInvalidConfig)
	}
	if cfg.Oracle.ContractAddress == (common.Address{}) {
		return fmt.Errorf("contract address is not set: %w", ErrInvalidConfig)
	}
	if cfg.Oracle.AccountAddress == (common.Address{}) {
		return fmt.Errorf("oracle account address is not set: %w", ErrInvalidConfig)
	}
	if cfg.Oracle.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive: %w", ErrInvalidConfig)
	}
	if cfg.Oracle.GasLimitMultiplier < 1 {
		return fmt.Errorf("gas limit multiplier must be at least 1: %w", ErrInvalidConfig)
	}
	key, err := cfg.OracleKey()
	if err != nil {
		return fmt.Errorf("can't parse oracle private key: %w", ErrInvalidConfig)
	}
	if addr := utils.KeyAddress(key); addr != cfg.Oracle.AccountAddress {
		return fmt.Errorf("private key belongs to %s, not to oracle account %s: %w", addr, cfg.Oracle.AccountAddress, ErrInvalidConfig)
	}
	if cfg.Completion.APIKey == "" && cfg.Completion.BaseURL == "" {
		return fmt.Errorf("completion api key is required for the default endpoint: %w", ErrInvalidConfig)
	}
	if cfg.Completion.Timeout <= 0 {
		return fmt.Errorf("completion timeout must be positive: %w", ErrInvalidConfig)
	}
	switch cfg.Checkpoint.Backend {
	case CheckpointBackendFile:
		if cfg.Checkpoint.File == "" {
			return fmt.Errorf("checkpoint file is not set: %w", ErrInvalidConfig)
		}
	case CheckpointBackendPebble:
		if cfg.Checkpoint.Dir == "" {
			return fmt.Errorf("checkpoint dir is not set: %w", ErrInvalidConfig)
		}
	case CheckpointBackendPostgres:
		if cfg.DBConfig == nil {
			return fmt.Errorf("postgres checkpoint backend requires postgres config: %w", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("unknown checkpoint backend %q: %w", cfg.Checkpoint.Backend, ErrInvalidConfig)
	}
	if cfg.Journal && cfg.DBConfig == nil {
		return fmt.Errorf("answers journal requires postgres config: %w", ErrInvalidConfig)
	}
	if cfg.Presenter != nil && !cfg.Journal {
		return fmt.Errorf("presenter requires answers journal: %w", ErrInvalidConfig)
	}
	return nil
}

// NeedsDB reports whether a postgres connection has to be opened.
func (cfg *Config) NeedsDB() bool {
	return cfg.Journal || cfg.Checkpoint.Backend == CheckpointBackendPostgres
}

func (cfg *Config) OracleKey() (*ecdsa.PrivateKey, error) {
	return utils.ParsePrivateKey(cfg.Oracle.PrivateKey)
}
