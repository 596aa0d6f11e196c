package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/curvewatch/curvewatch/internal/analyzer"
	"github.com/curvewatch/curvewatch/internal/holders"
	"github.com/curvewatch/curvewatch/internal/orchestrator"
	"github.com/curvewatch/curvewatch/internal/solana"
)

// Config is the root configuration structure for curvewatch.
type Config struct {
	General      GeneralConfig         `yaml:"general"`
	Solana       SolanaConfig          `yaml:"solana"`
	Listener     solana.ListenerConfig `yaml:"listener"`
	Holders      HoldersConfig         `yaml:"holders"`
	Analyzer     AnalyzerConfig        `yaml:"analyzer"`
	Orchestrator orchestrator.Config   `yaml:"orchestrator"`
	Journal      JournalConfig         `yaml:"journal"`
}

type GeneralConfig struct {
	InstanceID string `yaml:"instance_id"`
	DryRun     bool   `yaml:"dry_run"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"` // json|text
}

type SolanaConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	WSEndpoint   string  `yaml:"ws_endpoint"`
	TimeoutS     int     `yaml:"timeout_s"`
	MaxRetries   int     `yaml:"max_retries"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

type HoldersConfig struct {
	PageLimit            int `yaml:"page_limit"`             // holder accounts per page
	TopN                 int `yaml:"top_n"`                  // holders per snapshot
	MaxConcurrentLookups int `yaml:"max_concurrent_lookups"` // owner resolution fan-out
	LookupTimeoutS       int `yaml:"lookup_timeout_s"`
}

type AnalyzerConfig struct {
	HolderThreshold   int     `yaml:"holder_threshold"`
	CreatorExitPct    float64 `yaml:"creator_exit_pct"`
	LiquidityLowerPct float64 `yaml:"liquidity_lower_pct"`
	LiquidityUpperPct float64 `yaml:"liquidity_upper_pct"`
	TimeBudgetS       int     `yaml:"time_budget_s"`
	CadenceS          int     `yaml:"cadence_s"`
	MaxIterations     int     `yaml:"max_iterations"`
}

type JournalConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a fully defaulted configuration without reading a file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "curvewatch-1"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}

	rpcDefaults := solana.DefaultRPCConfig()
	if cfg.Solana.Endpoint == "" {
		cfg.Solana.Endpoint = rpcDefaults.Endpoint
	}
	if cfg.Solana.WSEndpoint == "" {
		cfg.Solana.WSEndpoint = rpcDefaults.WSEndpoint
	}
	if cfg.Solana.TimeoutS == 0 {
		cfg.Solana.TimeoutS = int(rpcDefaults.Timeout / time.Second)
	}
	if cfg.Solana.MaxRetries == 0 {
		cfg.Solana.MaxRetries = rpcDefaults.MaxRetries
	}
	if cfg.Solana.RateLimitRPS == 0 {
		cfg.Solana.RateLimitRPS = rpcDefaults.RateLimitRPS
	}

	listenerDefaults := solana.DefaultListenerConfig()
	if cfg.Listener.WSEndpoint == "" {
		cfg.Listener.WSEndpoint = cfg.Solana.WSEndpoint
	}
	if cfg.Listener.ProgramID == "" {
		cfg.Listener.ProgramID = listenerDefaults.ProgramID
	}
	if cfg.Listener.ReconnectDelayMs == 0 {
		cfg.Listener.ReconnectDelayMs = listenerDefaults.ReconnectDelayMs
	}
	if cfg.Listener.PingIntervalS == 0 {
		cfg.Listener.PingIntervalS = listenerDefaults.PingIntervalS
	}

	rankerDefaults := holders.DefaultRankerConfig()
	if cfg.Holders.PageLimit == 0 {
		cfg.Holders.PageLimit = holders.DefaultPageLimit
	}
	if cfg.Holders.TopN == 0 {
		cfg.Holders.TopN = rankerDefaults.TopN
	}
	if cfg.Holders.MaxConcurrentLookups == 0 {
		cfg.Holders.MaxConcurrentLookups = rankerDefaults.MaxConcurrentLookups
	}
	if cfg.Holders.LookupTimeoutS == 0 {
		cfg.Holders.LookupTimeoutS = int(rankerDefaults.LookupTimeout / time.Second)
	}

	decisionDefaults := analyzer.DefaultConfig()
	if cfg.Analyzer.HolderThreshold == 0 {
		cfg.Analyzer.HolderThreshold = decisionDefaults.HolderThreshold
	}
	if cfg.Analyzer.CreatorExitPct == 0 {
		cfg.Analyzer.CreatorExitPct = decisionDefaults.CreatorExitPct
	}
	if cfg.Analyzer.LiquidityLowerPct == 0 {
		cfg.Analyzer.LiquidityLowerPct = decisionDefaults.LiquidityLowerPct
	}
	if cfg.Analyzer.LiquidityUpperPct == 0 {
		cfg.Analyzer.LiquidityUpperPct = decisionDefaults.LiquidityUpperPct
	}
	if cfg.Analyzer.TimeBudgetS == 0 {
		cfg.Analyzer.TimeBudgetS = int(decisionDefaults.TimeBudget / time.Second)
	}
	loopDefaults := analyzer.DefaultLoopConfig()
	if cfg.Analyzer.CadenceS == 0 {
		cfg.Analyzer.CadenceS = int(loopDefaults.Cadence / time.Second)
	}
	if cfg.Analyzer.MaxIterations == 0 {
		cfg.Analyzer.MaxIterations = loopDefaults.MaxIterations
	}

	orchDefaults := orchestrator.DefaultConfig()
	if cfg.Orchestrator.MaxConcurrent == 0 {
		cfg.Orchestrator.MaxConcurrent = orchDefaults.MaxConcurrent
	}
	if cfg.Orchestrator.BuyAmountSOL == 0 {
		cfg.Orchestrator.BuyAmountSOL = orchDefaults.BuyAmountSOL
	}
	if cfg.Orchestrator.BuySlippagePct == 0 {
		cfg.Orchestrator.BuySlippagePct = orchDefaults.BuySlippagePct
	}
	if cfg.Orchestrator.SellSlippagePct == 0 {
		cfg.Orchestrator.SellSlippagePct = orchDefaults.SellSlippagePct
	}
	if cfg.Orchestrator.HoldSeconds == 0 {
		cfg.Orchestrator.HoldSeconds = orchDefaults.HoldSeconds
	}

	if cfg.Journal.Dir == "" {
		cfg.Journal.Dir = "trades"
	}
}

// Validate rejects configurations that cannot produce sane decisions.
func (c *Config) Validate() error {
	switch c.General.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("config: unknown log format %q", c.General.LogFormat)
	}
	if c.Analyzer.LiquidityLowerPct >= c.Analyzer.LiquidityUpperPct {
		return fmt.Errorf("config: liquidity lower bound %.1f must be below upper bound %.1f",
			c.Analyzer.LiquidityLowerPct, c.Analyzer.LiquidityUpperPct)
	}
	if c.Analyzer.LiquidityUpperPct > 100 {
		return fmt.Errorf("config: liquidity upper bound %.1f exceeds 100%%", c.Analyzer.LiquidityUpperPct)
	}
	if c.Orchestrator.MaxConcurrent < 1 {
		return fmt.Errorf("config: max_concurrent must be positive")
	}
	return nil
}

// RPCConfig builds the Solana RPC client configuration.
func (c *Config) RPCConfig() solana.RPCConfig {
	return solana.RPCConfig{
		Endpoint:     c.Solana.Endpoint,
		WSEndpoint:   c.Solana.WSEndpoint,
		Timeout:      time.Duration(c.Solana.TimeoutS) * time.Second,
		MaxRetries:   c.Solana.MaxRetries,
		RateLimitRPS: c.Solana.RateLimitRPS,
	}
}

// RankerConfig builds the top holder ranker configuration.
func (c *Config) RankerConfig() holders.RankerConfig {
	return holders.RankerConfig{
		TopN:                 c.Holders.TopN,
		MaxConcurrentLookups: c.Holders.MaxConcurrentLookups,
		LookupTimeout:        time.Duration(c.Holders.LookupTimeoutS) * time.Second,
		TotalSupply:          solana.FixedTotalSupply,
	}
}

// DecisionConfig builds the decision engine configuration.
func (c *Config) DecisionConfig() analyzer.Config {
	return analyzer.Config{
		HolderThreshold:   c.Analyzer.HolderThreshold,
		CreatorExitPct:    c.Analyzer.CreatorExitPct,
		LiquidityLowerPct: c.Analyzer.LiquidityLowerPct,
		LiquidityUpperPct: c.Analyzer.LiquidityUpperPct,
		TimeBudget:        time.Duration(c.Analyzer.TimeBudgetS) * time.Second,
	}
}

// LoopConfig builds the evaluation loop configuration.
func (c *Config) LoopConfig() analyzer.LoopConfig {
	return analyzer.LoopConfig{
		Cadence:       time.Duration(c.Analyzer.CadenceS) * time.Second,
		MaxIterations: c.Analyzer.MaxIterations,
	}
}
