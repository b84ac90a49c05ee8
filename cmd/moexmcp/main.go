// Package main is the entry point for the MOEX data MCP server. It
// exposes the ISS market-data operations (snapshot, OHLCV, index
// constituents, dividends) as MCP tools.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mosfin/analyst/internal/config"
	"github.com/mosfin/analyst/internal/mcp"
	"github.com/mosfin/analyst/internal/moex"
	"github.com/mosfin/analyst/pkg/logger"
)

func main() {
	providerCfg := config.LoadProvider()

	log := logger.New(logger.Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Pretty: os.Getenv("ENVIRONMENT") == "development",
	})
	log.Info().Str("base_url", providerCfg.BaseURL).Msg("Starting MOEX data MCP server")

	provider := moex.NewClient(providerCfg, log)
	if cache := provider.Cache(); cache != nil {
		janitor, err := moex.NewJanitor(cache, "@every 30s", log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to build cache janitor")
		}
		janitor.Start()
		defer janitor.Stop()
	}

	registry := mcp.NewRegistry()
	if err := moex.NewTools(provider).RegisterAll(registry); err != nil {
		log.Fatal().Err(err).Msg("Failed to register data tools")
	}

	promRegistry := prometheus.NewRegistry()
	dispatcher := mcp.NewDispatcher(registry, mcp.NewMetrics(promRegistry), mcp.DispatcherConfig{}, log)

	port := 8020
	if v := os.Getenv("MOEX_MCP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}
	srv := mcp.NewServer(mcp.ServerConfig{
		Name:          "moex-mcp",
		Addr:          fmt.Sprintf(":%d", port),
		EnableMetrics: true,
	}, dispatcher, promRegistry, log)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("MOEX MCP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	if err := srv.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}
}
