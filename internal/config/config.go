// Package config provides configuration management for the agent and the
// MCP services. All values come from environment variables with sensible
// defaults; a .env file is honoured when present.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AgentConfig holds the orchestrator agent configuration.
type AgentConfig struct {
	ServiceURL  string
	Port        int
	LogLevel    string
	Environment string

	LLMAPIBase       string
	LLMAPIKey        string
	LLMModelMain     string
	LLMModelFallback string
	LLMModelDev      string

	MCPURLs            []string // one or more MCP server base URLs
	PlannerMode        string   // basic | advanced | external_agent
	ExternalPlannerURL string

	MaxTickersPerRequest int
	MaxPlanSteps         int
	OrchestratorParallel int
	RequestTimeout       time.Duration
	StepTimeout          time.Duration
	LLMTimeout           time.Duration
}

// ProviderConfig holds the MOEX ISS provider configuration.
type ProviderConfig struct {
	BaseURL         string
	RateLimitRPS    float64
	Timeout         time.Duration
	MaxLookbackDays int
	EnableCache     bool
	CacheTTL        time.Duration
	CacheMaxSize    int
}

// RiskConfig holds the risk MCP server configuration.
type RiskConfig struct {
	Host                  string
	Port                  int
	LogLevel              string
	MaxPortfolioTickers   int
	MaxCorrelationTickers int
	MaxPeers              int
	MaxLookbackDays       int
	DefaultIndexTicker    string
}

// LoadAgent reads the agent configuration from the environment.
func LoadAgent() *AgentConfig {
	_ = godotenv.Load()

	return &AgentConfig{
		ServiceURL:  getEnv("AGENT_SERVICE_URL", "http://localhost:8010"),
		Port:        getEnvAsInt("AGENT_PORT", 8010),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Environment: getEnv("ENVIRONMENT", "development"),

		LLMAPIBase:       getEnv("LLM_API_BASE", ""),
		LLMAPIKey:        getEnv("LLM_API_KEY", ""),
		LLMModelMain:     getEnv("LLM_MODEL_MAIN", "gpt-4o"),
		LLMModelFallback: getEnv("LLM_MODEL_FALLBACK", "gpt-4o-mini"),
		LLMModelDev:      getEnv("LLM_MODEL_DEV", ""),

		MCPURLs:            splitCSV(getEnv("MCP_URL", "http://localhost:8020,http://localhost:8021")),
		PlannerMode:        getEnv("PLANNER_MODE", "basic"),
		ExternalPlannerURL: getEnv("EXTERNAL_PLANNER_URL", ""),

		MaxTickersPerRequest: getEnvAsInt("MAX_TICKERS_PER_REQUEST", 10),
		MaxPlanSteps:         getEnvAsInt("MAX_PLAN_STEPS", 12),
		OrchestratorParallel: getEnvAsInt("ORCHESTRATOR_PARALLELISM", 4),
		RequestTimeout:       getEnvAsDuration("REQUEST_TIMEOUT_SECONDS", 60),
		StepTimeout:          getEnvAsDuration("STEP_TIMEOUT_SECONDS", 20),
		LLMTimeout:           getEnvAsDuration("LLM_TIMEOUT_SECONDS", 30),
	}
}

// LoadProvider reads the MOEX ISS provider configuration from the environment.
func LoadProvider() *ProviderConfig {
	_ = godotenv.Load()

	return &ProviderConfig{
		BaseURL:         getEnv("MOEX_ISS_BASE_URL", "https://iss.moex.com/iss"),
		RateLimitRPS:    getEnvAsFloat("MOEX_ISS_RATE_LIMIT_RPS", 3),
		Timeout:         getEnvAsDuration("MOEX_ISS_TIMEOUT_SECONDS", 10),
		MaxLookbackDays: getEnvAsInt("MOEX_ISS_MAX_LOOKBACK_DAYS", 730),
		EnableCache:     getEnvAsBool("ENABLE_CACHE", true),
		CacheTTL:        getEnvAsDuration("CACHE_TTL_SECONDS", 30),
		CacheMaxSize:    getEnvAsInt("CACHE_MAX_SIZE", 256),
	}
}

// LoadRisk reads the risk MCP server configuration from the environment.
func LoadRisk() *RiskConfig {
	_ = godotenv.Load()

	return &RiskConfig{
		Host:                  getEnv("RISK_MCP_HOST", "0.0.0.0"),
		Port:                  getEnvAsInt("RISK_MCP_PORT", 8021),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		MaxPortfolioTickers:   getEnvAsInt("RISK_MAX_PORTFOLIO_TICKERS", 10),
		MaxCorrelationTickers: getEnvAsInt("RISK_MAX_CORRELATION_TICKERS", 15),
		MaxPeers:              getEnvAsInt("RISK_MAX_PEERS", 5),
		MaxLookbackDays:       getEnvAsInt("RISK_MAX_LOOKBACK_DAYS", 730),
		DefaultIndexTicker:    getEnv("RISK_DEFAULT_INDEX_TICKER", "IMOEX"),
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultSeconds)) * time.Second
}

func splitCSV(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
