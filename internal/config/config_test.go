package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
general:
  instance_id: cw-test
  dry_run: true
  log_level: debug
  log_format: text

solana:
  endpoint: https://rpc.example.com
  ws_endpoint: wss://rpc.example.com
  timeout_s: 15
  max_retries: 5
  rate_limit_rps: 25

holders:
  page_limit: 500
  top_n: 10
  max_concurrent_lookups: 4
  lookup_timeout_s: 3

analyzer:
  holder_threshold: 40
  creator_exit_pct: 2
  liquidity_lower_pct: 65
  liquidity_upper_pct: 85
  time_budget_s: 120
  cadence_s: 10
  max_iterations: 30

orchestrator:
  max_concurrent: 50
  match_string: pepe
  buy_amount_sol: 0.01
  marry_mode: true

journal:
  dir: /tmp/cw-trades
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "cw-test", cfg.General.InstanceID)
	assert.True(t, cfg.General.DryRun)
	assert.Equal(t, "text", cfg.General.LogFormat)

	rpcCfg := cfg.RPCConfig()
	assert.Equal(t, "https://rpc.example.com", rpcCfg.Endpoint)
	assert.Equal(t, 15*time.Second, rpcCfg.Timeout)
	assert.Equal(t, 5, rpcCfg.MaxRetries)
	assert.Equal(t, 25.0, rpcCfg.RateLimitRPS)

	rankerCfg := cfg.RankerConfig()
	assert.Equal(t, 10, rankerCfg.TopN)
	assert.Equal(t, 4, rankerCfg.MaxConcurrentLookups)
	assert.Equal(t, 3*time.Second, rankerCfg.LookupTimeout)

	decisionCfg := cfg.DecisionConfig()
	assert.Equal(t, 40, decisionCfg.HolderThreshold)
	assert.Equal(t, 2.0, decisionCfg.CreatorExitPct)
	assert.Equal(t, 65.0, decisionCfg.LiquidityLowerPct)
	assert.Equal(t, 85.0, decisionCfg.LiquidityUpperPct)
	assert.Equal(t, 120*time.Second, decisionCfg.TimeBudget)

	loopCfg := cfg.LoopConfig()
	assert.Equal(t, 10*time.Second, loopCfg.Cadence)
	assert.Equal(t, 30, loopCfg.MaxIterations)

	assert.Equal(t, 50, cfg.Orchestrator.MaxConcurrent)
	assert.Equal(t, "pepe", cfg.Orchestrator.MatchString)
	assert.True(t, cfg.Orchestrator.MarryMode)
	assert.Equal(t, "/tmp/cw-trades", cfg.Journal.Dir)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `general: {}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "curvewatch-1", cfg.General.InstanceID)
	assert.Equal(t, "info", cfg.General.LogLevel)
	assert.Equal(t, "json", cfg.General.LogFormat)
	assert.Equal(t, 35, cfg.Analyzer.HolderThreshold)
	assert.Equal(t, 1.0, cfg.Analyzer.CreatorExitPct)
	assert.Equal(t, 70.0, cfg.Analyzer.LiquidityLowerPct)
	assert.Equal(t, 80.0, cfg.Analyzer.LiquidityUpperPct)
	assert.Equal(t, 100, cfg.Analyzer.TimeBudgetS)
	assert.Equal(t, 5, cfg.Analyzer.CadenceS)
	assert.Equal(t, 60, cfg.Analyzer.MaxIterations)
	assert.Equal(t, 200, cfg.Orchestrator.MaxConcurrent)
	assert.Equal(t, 1000, cfg.Holders.PageLimit)
	assert.Equal(t, 20, cfg.Holders.TopN)
	assert.Equal(t, "trades", cfg.Journal.Dir)

	// The listener follows the RPC WebSocket endpoint when unset.
	assert.Equal(t, cfg.Solana.WSEndpoint, cfg.Listener.WSEndpoint)
	assert.NotEmpty(t, cfg.Listener.ProgramID)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("CW_TEST_ENDPOINT", "https://env.example.com")

	path := writeConfig(t, `
solana:
  endpoint: ${CW_TEST_ENDPOINT}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Solana.Endpoint)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "general: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_LiquidityBounds(t *testing.T) {
	path := writeConfig(t, `
analyzer:
  liquidity_lower_pct: 85
  liquidity_upper_pct: 80
`)
	_, err := Load(path)
	assert.Error(t, err)

	path = writeConfig(t, `
analyzer:
  liquidity_lower_pct: 90
  liquidity_upper_pct: 105
`)
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate_LogFormat(t *testing.T) {
	path := writeConfig(t, `
general:
  log_format: xml
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 200, cfg.Orchestrator.MaxConcurrent)
}
