// Command shannon runs the embedded cognitive-workflow engine: the
// durable event log, the pattern-dispatching workflow service, the
// cron scheduler, and the HTTP surface, all in a single process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/otel"

	"github.com/shannon-run/shannon/api"
	"github.com/shannon-run/shannon/workflow"
	"github.com/shannon-run/shannon/workflow/activity"
	"github.com/shannon-run/shannon/workflow/breaker"
	"github.com/shannon-run/shannon/workflow/ckpt"
	"github.com/shannon-run/shannon/workflow/emit"
	"github.com/shannon-run/shannon/workflow/eventlog"
	"github.com/shannon-run/shannon/workflow/model"
	"github.com/shannon-run/shannon/workflow/model/anthropic"
	"github.com/shannon-run/shannon/workflow/model/google"
	"github.com/shannon-run/shannon/workflow/model/openai"
	"github.com/shannon-run/shannon/workflow/pattern"
	"github.com/shannon-run/shannon/workflow/sandbox"
	"github.com/shannon-run/shannon/workflow/schedule"
	"github.com/shannon-run/shannon/workflow/tool"
)

// config is assembled once at startup from environment inputs: storage
// path, compression/checksum toggles, max_concurrent_workflows, LLM base
// URL, OTEL_ENABLED, pricing YAML path, and the other SHANNON_* settings
// below. No OTLP endpoint is read; the OpenTelemetry sink uses whatever
// global TracerProvider is installed (see buildEmitterSinks).
type config struct {
	storagePath            string
	enableCompression      bool
	enableChecksum         bool
	maxConcurrentWorkflows int
	llmBaseURL             string
	llmProvider            string
	llmModelName           string
	webSearchURL           string
	pricingPath            string
	listenAddr             string
	defaultPattern         string
	sandboxMemCeilingMB    int
	logLevel               string
	toolSecurity           tool.Security
	otelEnabled            bool
	mysqlDSN               string
}

func loadConfig() config {
	return config{
		storagePath:            envOr("SHANNON_STORAGE_PATH", "shannon.db"),
		enableCompression:      envBool("SHANNON_CHECKPOINT_COMPRESSION", true),
		enableChecksum:         envBool("SHANNON_CHECKPOINT_CHECKSUM", true),
		maxConcurrentWorkflows: envInt("SHANNON_MAX_CONCURRENT_WORKFLOWS", 8),
		llmBaseURL:             envOr("SHANNON_LLM_BASE_URL", "http://localhost:8081"),
		llmProvider:            envOr("SHANNON_LLM_PROVIDER", ""),
		llmModelName:           envOr("SHANNON_LLM_MODEL", ""),
		webSearchURL:           envOr("SHANNON_WEB_SEARCH_URL", "http://localhost:8082/search"),
		pricingPath:            os.Getenv(activity.PricingEnvVar),
		listenAddr:             envOr("SHANNON_LISTEN_ADDR", ":8080"),
		defaultPattern:         envOr("SHANNON_DEFAULT_PATTERN", "react"),
		sandboxMemCeilingMB:    envInt("SHANNON_SANDBOX_MEMORY_MB", 256),
		logLevel:               envOr("SHANNON_LOG_LEVEL", "info"),
		toolSecurity:           toolSecurityFromEnv(),
		otelEnabled:            envBool("OTEL_ENABLED", false),
		mysqlDSN:               os.Getenv("SHANNON_MYSQL_DSN"),
	}
}

// toolSecurityFromEnv builds the tool_execute gating policy
// (SPEC_FULL.md §D.1) from SHANNON_TOOL_ALLOWLIST / SHANNON_TOOL_BLOCKLIST,
// comma-separated tool names. At most one should be set; allow-list
// wins if both are, since it is the more restrictive default to fail
// toward.
func toolSecurityFromEnv() tool.Security {
	if v := os.Getenv("SHANNON_TOOL_ALLOWLIST"); v != "" {
		return tool.NewAllowList(strings.Split(v, ",")...)
	}
	if v := os.Getenv("SHANNON_TOOL_BLOCKLIST"); v != "" {
		return tool.NewBlockList(strings.Split(v, ",")...)
	}
	return tool.AllowAllTools()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func main() {
	cfg := loadConfig()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "shannon",
		Level: hclog.LevelFromString(cfg.logLevel),
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("shannon exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config, logger hclog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := openEventLog(cfg)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}

	ckptMgr, err := ckpt.NewManager(ckpt.Config{
		EnableCompression: cfg.enableCompression,
		EnableChecksum:    cfg.enableChecksum,
	})
	if err != nil {
		return fmt.Errorf("build checkpoint manager: %w", err)
	}

	pricing, err := activity.LoadPricingTable(cfg.pricingPath)
	if err != nil {
		return fmt.Errorf("load pricing table: %w", err)
	}
	costs := activity.NewCostTracker("shannon", pricing)

	box, err := sandbox.New(ctx, logger.Named("sandbox"), cfg.sandboxMemCeilingMB)
	if err != nil {
		return fmt.Errorf("start sandbox: %w", err)
	}
	defer box.Close(context.Background())

	invoker := buildInvoker(cfg, logger, costs, box)
	patterns := pattern.NewRegistry()
	svc := workflow.NewService(log, ckptMgr, patterns, invoker, cfg.maxConcurrentWorkflows, logger.Named("engine"))
	svc.SetEmitterSinks(buildEmitterSinks(cfg, logger)...)

	recovered, err := svc.Recover(ctx)
	if err != nil {
		logger.Error("recovery scan failed", "error", err)
	} else if recovered > 0 {
		logger.Info("recovered non-terminal workflows", "count", recovered)
	}

	scheduleStore := schedule.NewMemStore()
	scheduler := schedule.NewScheduler(scheduleStore, serviceSubmitter{svc: svc, pattern: cfg.defaultPattern}, logger.Named("scheduler"))
	go scheduler.Run(ctx)

	server := api.NewServer(svc, scheduler, scheduleStore, logger.Named("http"), api.WithDefaultPattern(cfg.defaultPattern))
	httpServer := &http.Server{Addr: cfg.listenAddr, Handler: server}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Error("workflow service shutdown failed", "error", err)
	}
	return nil
}

// openEventLog picks the durable Log backend: MySQL when
// SHANNON_MYSQL_DSN is set, SQLite (the default, zero-ops choice)
// otherwise.
func openEventLog(cfg config) (eventlog.Log, error) {
	if cfg.mysqlDSN != "" {
		return eventlog.NewMySQLLog(cfg.mysqlDSN)
	}
	return eventlog.NewSQLiteLog(cfg.storagePath)
}

// buildEmitterSinks assembles the observability sinks every workflow's
// Bus forwards events to (spec §6). Structured event logging is always
// on, at the engine logger's configured level; a span-per-event
// OpenTelemetry sink is added when OTEL_ENABLED is set, exporting
// against whatever global TracerProvider the deployment has installed
// (otel.SetTracerProvider), matching the package's own pluggable
// default of a no-op provider when none is configured.
func buildEmitterSinks(cfg config, logger hclog.Logger) []emit.Emitter {
	sinks := []emit.Emitter{emit.NewHCLogEmitter(logger.Named("bus"))}
	if cfg.otelEnabled {
		sinks = append(sinks, emit.NewOTelEmitter(otel.Tracer("shannon")))
	}
	return sinks
}

// buildInvoker registers every built-in activity (spec §4.F) behind a
// shared breaker registry, keyed by activity name.
func buildInvoker(cfg config, logger hclog.Logger, costs *activity.CostTracker, box *sandbox.Sandbox) *activity.Invoker {
	breakers := breaker.NewRegistry(breaker.DefaultConfig())
	inv := activity.NewInvoker(breakers, logger.Named("activity"), nil)

	if chat, modelName, ok := buildChatModel(cfg.llmProvider, cfg.llmModelName); ok {
		inv.Register(activity.NewLLMActivityWithModel("llm_reason", "reason", chat, modelName, costs))
		inv.Register(activity.NewLLMActivityWithModel("llm_synthesize", "synthesize", chat, modelName, costs))
	} else {
		inv.Register(activity.NewLLMActivity("llm_reason", "reason", cfg.llmBaseURL, costs))
		inv.Register(activity.NewLLMActivity("llm_synthesize", "synthesize", cfg.llmBaseURL, costs))
	}
	inv.Register(activity.CalculatorActivity{})

	cachedHTTPTool := tool.NewCachingTool(tool.NewHTTPTool(), 256, 5*time.Minute)
	inv.Register(activity.NewToolActivityWithSecurity([]tool.Tool{cachedHTTPTool}, cfg.toolSecurity))
	inv.Register(activity.NewWebFetchActivity())
	inv.Register(activity.NewWebSearchActivity(cfg.webSearchURL))
	inv.Register(activity.NewSandboxActivity(box))

	return inv
}

// buildChatModel selects an in-process model.ChatModel backend for
// LLMActivity when SHANNON_LLM_PROVIDER names one of the adapters this
// module carries; with no provider configured, LLMActivity falls back
// to its HTTP-endpoint path (spec §4.F's default wire contract).
func buildChatModel(provider, modelName string) (model.ChatModel, string, bool) {
	switch provider {
	case "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		m := anthropic.NewChatModel(key, modelName)
		if modelName == "" {
			modelName = "claude-sonnet-4-5-20250929"
		}
		return m, modelName, true
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		m := openai.NewChatModel(key, modelName)
		if modelName == "" {
			modelName = "gpt-4o"
		}
		return m, modelName, true
	case "google":
		key := os.Getenv("GOOGLE_API_KEY")
		m := google.NewChatModel(key, modelName)
		if modelName == "" {
			modelName = "gemini-2.5-flash"
		}
		return m, modelName, true
	default:
		return nil, "", false
	}
}

// serviceSubmitter adapts workflow.Service to schedule.Submitter so
// the scheduler's due-check loop submits new workflow runs through the
// same path an HTTP client would (spec §4.J).
type serviceSubmitter struct {
	svc     *workflow.Service
	pattern string
}

func (s serviceSubmitter) Submit(ctx context.Context, query, sessionID string) (string, error) {
	handle, err := s.svc.Submit(ctx, workflow.SubmitRequest{
		SessionID:   sessionID,
		PatternType: s.pattern,
		Query:       query,
	})
	if err != nil {
		return "", err
	}
	return handle.WorkflowID, nil
}
