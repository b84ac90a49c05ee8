package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadAgent_Defaults(t *testing.T) {
	cfg := LoadAgent()

	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, "basic", cfg.PlannerMode)
	assert.Equal(t, 10, cfg.MaxTickersPerRequest)
	assert.Equal(t, 4, cfg.OrchestratorParallel)
	assert.Equal(t, 20*time.Second, cfg.StepTimeout)
	assert.Equal(t, []string{"http://localhost:8020", "http://localhost:8021"}, cfg.MCPURLs)
}

func TestLoadAgent_EnvOverrides(t *testing.T) {
	t.Setenv("PLANNER_MODE", "advanced")
	t.Setenv("MAX_TICKERS_PER_REQUEST", "5")
	t.Setenv("MCP_URL", "http://risk:8021, http://data:8020")
	t.Setenv("STEP_TIMEOUT_SECONDS", "5")

	cfg := LoadAgent()

	assert.Equal(t, "advanced", cfg.PlannerMode)
	assert.Equal(t, 5, cfg.MaxTickersPerRequest)
	assert.Equal(t, []string{"http://risk:8021", "http://data:8020"}, cfg.MCPURLs)
	assert.Equal(t, 5*time.Second, cfg.StepTimeout)
}

func TestLoadProvider_Defaults(t *testing.T) {
	cfg := LoadProvider()

	assert.Equal(t, "https://iss.moex.com/iss", cfg.BaseURL)
	assert.Equal(t, 3.0, cfg.RateLimitRPS)
	assert.Equal(t, 730, cfg.MaxLookbackDays)
	assert.True(t, cfg.EnableCache)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 256, cfg.CacheMaxSize)
}

func TestLoadRisk_EnvOverrides(t *testing.T) {
	t.Setenv("RISK_MCP_PORT", "9021")
	t.Setenv("RISK_MAX_CORRELATION_TICKERS", "8")
	t.Setenv("RISK_DEFAULT_INDEX_TICKER", "RTSI")

	cfg := LoadRisk()

	assert.Equal(t, 9021, cfg.Port)
	assert.Equal(t, 8, cfg.MaxCorrelationTickers)
	assert.Equal(t, "RTSI", cfg.DefaultIndexTicker)
}

func TestGetEnvHelpers_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("MOEX_ISS_RATE_LIMIT_RPS", "not-a-number")
	t.Setenv("ENABLE_CACHE", "maybe")
	t.Setenv("CACHE_MAX_SIZE", "12.5")

	cfg := LoadProvider()

	assert.Equal(t, 3.0, cfg.RateLimitRPS)
	assert.True(t, cfg.EnableCache)
	assert.Equal(t, 256, cfg.CacheMaxSize)
}
