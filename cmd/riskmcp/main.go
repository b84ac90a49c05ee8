// Package main is the entry point for the risk MCP server. It exposes
// the portfolio analytics tools over JSON-RPC, backed by the MOEX ISS
// market-data provider.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mosfin/analyst/internal/config"
	"github.com/mosfin/analyst/internal/mcp"
	"github.com/mosfin/analyst/internal/moex"
	"github.com/mosfin/analyst/internal/risk"
	"github.com/mosfin/analyst/pkg/logger"
)

func main() {
	cfg := config.LoadRisk()
	providerCfg := config.LoadProvider()

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: os.Getenv("ENVIRONMENT") == "development",
	})
	log.Info().Msg("Starting risk MCP server")

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
	if err := risk.NewTools(provider, *cfg).RegisterAll(registry); err != nil {
		log.Fatal().Err(err).Msg("Failed to register risk tools")
	}

	promRegistry := prometheus.NewRegistry()
	dispatcher := mcp.NewDispatcher(registry, mcp.NewMetrics(promRegistry), mcp.DispatcherConfig{}, log)

	srv := mcp.NewServer(mcp.ServerConfig{
		Name:          "risk-mcp",
		Addr:          fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		EnableMetrics: true,
	}, dispatcher, promRegistry, log)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Risk MCP server failed")
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
