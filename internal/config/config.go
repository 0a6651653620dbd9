package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Chain       ChainConfig       `yaml:"chain"`
	Contracts   ContractsConfig   `yaml:"contracts"`
	Curator     CuratorConfig     `yaml:"curator"`
	Store       StoreConfig       `yaml:"store"`
	DFS         DFSConfig         `yaml:"dfs"`
	MMBF        MMBFConfig        `yaml:"mmbf"`
	Evaluator   EvaluatorConfig   `yaml:"evaluator"`
	Detector    DetectorConfig    `yaml:"detector"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ChainConfig holds blockchain connection settings.
type ChainConfig struct {
	Name    string `yaml:"name"` // one of core.ChainId's closed set
	RPCURL  string `yaml:"rpc_url"`
	WSURL   string `yaml:"ws_url"`
	ChainID int64  `yaml:"chain_id"`
}

// ContractsConfig holds smart contract addresses.
type ContractsConfig struct {
	AerodromeFactory string `yaml:"aerodrome_factory"`
}

// CuratorConfig holds pool curation settings.
type CuratorConfig struct {
	TopPoolsCount        int           `yaml:"top_pools_count"`
	ReevaluationInterval time.Duration `yaml:"reevaluation_interval"`
	BootstrapBatchSize   int           `yaml:"bootstrap_batch_size"`
}

// StoreConfig holds price-store settings.
type StoreConfig struct {
	StalenessThresholdMs int64 `yaml:"staleness_threshold_ms"`
	MinSources           int   `yaml:"min_sources"`
}

// DFSConfig mirrors internal/dfscycle.Config.
type DFSConfig struct {
	MaxPathLength int    `yaml:"max_path_length"`
	MinProfitWei  string `yaml:"min_profit_wei"`
	GasPriceGwei  int64  `yaml:"gas_price_gwei"`
}

// MMBFConfig mirrors internal/mmbf.Config.
type MMBFConfig struct {
	MaxPathLength int   `yaml:"max_path_length"`
	MaxIterations int   `yaml:"max_iterations"`
	MinProfitBps  int64 `yaml:"min_profit_bps"`
}

// EvaluatorConfig mirrors internal/evaluator.Config, including the USD price
// table the evaluator needs for its liquidity gate.
type EvaluatorConfig struct {
	GasPriceGwei    int64              `yaml:"gas_price_gwei"`
	MinLiquidityUSD float64            `yaml:"min_liquidity_usd"`
	USDPrices       map[string]float64 `yaml:"usd_prices"`
}

// DetectorConfig holds top-level scan scheduling settings.
type DetectorConfig struct {
	NumWorkers   int           `yaml:"num_workers"`
	ScanInterval time.Duration `yaml:"scan_interval"`
	StartTokens  []string      `yaml:"start_tokens"`
}

// PersistenceConfig holds database settings.
type PersistenceConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file and applies environment variable
// overrides. A missing file is not an error: defaults and environment
// overrides still apply. Load reads no .env file itself; cmd/watcher loads
// one from the working directory via godotenv before calling Load.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	cfg.setDefaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if len(data) > 0 {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for all configuration options, matching
// the detection core's own per-component defaults so config.Load and a bare
// DefaultConfig() agree on every numeric tunable. The USD price table is the
// exception: evaluator.DefaultConfig() starts empty, while config seeds
// WETH, USDC and DAI.
func (c *Config) setDefaults() {
	c.Chain = ChainConfig{
		Name:    "base",
		ChainID: 8453, // Base mainnet
	}
	c.Contracts = ContractsConfig{
		AerodromeFactory: "0x420DD381b31aEf6683db6B902084cB0FFECe40Da",
	}
	c.Curator = CuratorConfig{
		TopPoolsCount:        500,
		ReevaluationInterval: time.Hour,
		BootstrapBatchSize:   100,
	}
	c.Store = StoreConfig{
		StalenessThresholdMs: 5000,
		MinSources:           2,
	}
	c.DFS = DFSConfig{
		MaxPathLength: 4,
		MinProfitWei:  "1000000000000000", // 1e15
		GasPriceGwei:  30,
	}
	c.MMBF = MMBFConfig{
		MaxPathLength: 8,
		MaxIterations: 100,
		MinProfitBps:  10,
	}
	c.Evaluator = EvaluatorConfig{
		GasPriceGwei:    30,
		MinLiquidityUSD: 50000,
		USDPrices: map[string]float64{
			"0x4200000000000000000000000000000000000006": 3000, // WETH
			"0x833589fcd6edb6e08f4c7c32d4f71b54bda02913":      1, // USDC
			"0x50c5725949a6f0c72e6c4a641f24049a917db0cb":      1, // DAI
		},
	}
	c.Detector = DetectorConfig{
		NumWorkers:   4,
		ScanInterval: 10 * time.Second,
		StartTokens: []string{
			"0x4200000000000000000000000000000000000006", // WETH
			"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", // USDC
			"0xd9aAEc86B65D86f6A7B5B1b0c42FFA531710b6CA", // USDbC
		},
	}
	c.Persistence = PersistenceConfig{
		SQLitePath: "./data/dexarb.db",
	}
	c.Metrics = MetricsConfig{
		Enabled: true,
		Port:    8080,
		Path:    "/metrics",
	}
	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "json",
	}
}

// applyEnvOverrides applies environment variable overrides to configuration.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BASE_RPC_URL"); v != "" {
		c.Chain.RPCURL = v
	}
	if v := os.Getenv("BASE_WS_URL"); v != "" {
		c.Chain.WSURL = v
	}

	if v := os.Getenv("CURATOR_TOP_POOLS_COUNT"); v != "" {
		var count int
		if _, err := fmt.Sscanf(v, "%d", &count); err == nil && count > 0 {
			c.Curator.TopPoolsCount = count
		}
	}

	if v := os.Getenv("MMBF_MIN_PROFIT_BPS"); v != "" {
		var bps int64
		if _, err := fmt.Sscanf(v, "%d", &bps); err == nil && bps >= 0 {
			c.MMBF.MinProfitBps = bps
		}
	}
	if v := os.Getenv("DFS_MAX_PATH_LENGTH"); v != "" {
		var length int
		if _, err := fmt.Sscanf(v, "%d", &length); err == nil && length >= 2 {
			c.DFS.MaxPathLength = length
		}
	}
	if v := os.Getenv("DETECTOR_NUM_WORKERS"); v != "" {
		var workers int
		if _, err := fmt.Sscanf(v, "%d", &workers); err == nil && workers > 0 {
			c.Detector.NumWorkers = workers
		}
	}

	if v := os.Getenv("METRICS_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			c.Metrics.Port = port
		}
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Persistence.SQLitePath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// validate checks that all required configuration values are present and valid.
func (c *Config) validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required (set BASE_RPC_URL env var)")
	}
	if c.Chain.WSURL == "" {
		return fmt.Errorf("chain.ws_url is required (set BASE_WS_URL env var)")
	}
	if c.Contracts.AerodromeFactory == "" {
		return fmt.Errorf("contracts.aerodrome_factory is required")
	}
	if c.Curator.TopPoolsCount <= 0 {
		return fmt.Errorf("curator.top_pools_count must be positive")
	}
	if c.DFS.MaxPathLength < 2 {
		return fmt.Errorf("dfs.max_path_length must be at least 2")
	}
	if c.MMBF.MaxPathLength < 2 {
		return fmt.Errorf("mmbf.max_path_length must be at least 2")
	}
	if c.MMBF.MinProfitBps < 0 {
		return fmt.Errorf("mmbf.min_profit_bps must not be negative")
	}
	if c.Evaluator.MinLiquidityUSD < 0 {
		return fmt.Errorf("evaluator.min_liquidity_usd must not be negative")
	}
	if c.Detector.NumWorkers <= 0 {
		return fmt.Errorf("detector.num_workers must be positive")
	}
	if len(c.Detector.StartTokens) == 0 {
		return fmt.Errorf("detector.start_tokens must have at least one token")
	}
	if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be a valid port number")
	}
	return nil
}
