// Package main is the entry point for the orchestrator agent. The agent
// accepts A2A and AG-UI requests, plans the analysis with the configured
// strategy, executes the plan against the MCP servers and streams the
// formatted answer back.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mosfin/analyst/internal/agent"
	"github.com/mosfin/analyst/internal/agent/formatter"
	"github.com/mosfin/analyst/internal/agent/llm"
	"github.com/mosfin/analyst/internal/agent/orchestrator"
	"github.com/mosfin/analyst/internal/agent/plan"
	"github.com/mosfin/analyst/internal/agent/planner"
	"github.com/mosfin/analyst/internal/config"
	"github.com/mosfin/analyst/internal/mcpclient"
	"github.com/mosfin/analyst/internal/server"
	"github.com/mosfin/analyst/pkg/logger"
)

func main() {
	cfg := config.LoadAgent()

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.Environment == "development",
	})
	log.Info().Str("planner", cfg.PlannerMode).Msg("Starting analyst agent")

	// Discover tools from every configured MCP server before accepting
	// requests; a server that is down at boot is skipped with a warning.
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	router, err := mcpclient.NewRouter(bootCtx, cfg.MCPURLs, cfg.StepTimeout, log)
	bootCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MCP servers")
	}
	log.Info().Strs("tools", router.ToolNames()).Msg("MCP tools discovered")

	var llmClient *llm.Client
	if cfg.LLMAPIKey != "" || cfg.LLMAPIBase != "" {
		llmClient = llm.New(llm.Config{
			APIBase:       cfg.LLMAPIBase,
			APIKey:        cfg.LLMAPIKey,
			ModelMain:     cfg.LLMModelMain,
			ModelFallback: cfg.LLMModelFallback,
			Timeout:       cfg.LLMTimeout,
		}, log)
	} else {
		log.Warn().Msg("No LLM configured, narratives degrade to deterministic summaries")
	}

	validator := &plan.Validator{
		MaxSteps:   cfg.MaxPlanSteps,
		MaxTickers: cfg.MaxTickersPerRequest,
		CostRank:   router.CostRank,
	}
	strategy, err := planner.New(planner.Config{
		Mode:            cfg.PlannerMode,
		MaxTickers:      cfg.MaxTickersPerRequest,
		MaxSteps:        cfg.MaxPlanSteps,
		MaxLookbackDays: 730,
		ExternalURL:     cfg.ExternalPlannerURL,
	}, llmClient, validator, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build planner")
	}

	orch := orchestrator.New(router, orchestrator.Config{
		Parallelism: cfg.OrchestratorParallel,
		StepTimeout: cfg.StepTimeout,
	}, log)

	a := agent.New(strategy, orch, formatter.New(llmClient, log), agent.Config{}, log)

	srv := server.New(server.Config{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		RequestTimeout: cfg.RequestTimeout,
	}, a, log)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Agent server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}
}
