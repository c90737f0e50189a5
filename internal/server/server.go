// Package server wires the Steward components and creates the MCP
// server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools, prompts and resources that depend on
// interfaces. No evaluation logic lives here, only wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/HendryAvila/steward/internal/charter"
	"github.com/HendryAvila/steward/internal/config"
	"github.com/HendryAvila/steward/internal/pipeline"
	"github.com/HendryAvila/steward/internal/prompts"
	"github.com/HendryAvila/steward/internal/resources"
	"github.com/HendryAvila/steward/internal/store"
	"github.com/HendryAvila/steward/internal/templates"
	"github.com/HendryAvila/steward/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// openStore is swapped in tests.
var openStore = store.New

// Runtime holds the shared components behind every surface.
type Runtime struct {
	Config   config.Config
	Logger   *slog.Logger
	Charters charter.Registry
	Engine   *pipeline.Evaluator
	Renderer *templates.EmbedRenderer
	// Store is nil when the proposal store could not be opened.
	Store *store.Store

	files *charter.FileRegistry
}

// NewRuntime builds the runtime described by cfg. Metrics are
// registered with reg when it is non-nil.
//
// The returned cleanup function closes the proposal store and must be
// called on shutdown. It is always non-nil and safe to call even if the
// store failed to open.
func NewRuntime(cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (*Runtime, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{Config: cfg, Logger: logger}

	// --- Charters ---

	charters, files, err := openCharters(cfg, logger)
	if err != nil {
		return nil, noop, err
	}
	rt.Charters, rt.files = charters, files

	// --- Engine ---

	var metrics *pipeline.Metrics
	if reg != nil {
		metrics = pipeline.NewMetrics(reg)
	}
	rt.Engine, err = pipeline.New(pipeline.Options{
		Extractor:      cfg.NewExtractor(logger),
		ExtractTimeout: cfg.ExtractorTimeout,
		Metrics:        metrics,
		Logger:         logger,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("creating evaluator: %w", err)
	}

	rt.Renderer, err = templates.NewRenderer()
	if err != nil {
		return nil, noop, fmt.Errorf("creating template renderer: %w", err)
	}

	// --- Store ---
	//
	// The store is an independent subsystem: if it fails to open,
	// evaluation keeps working without persistence.

	storeCfg := store.DefaultConfig()
	if cfg.DataDir != "" {
		storeCfg.DataDir = cfg.DataDir
	}
	st, err := openStore(storeCfg)
	if err != nil {
		logger.Warn("proposal store disabled", "dir", storeCfg.DataDir, "error", err)
		return rt, noop, nil
	}
	rt.Store = st
	cleanup := func() {
		if err := st.Close(); err != nil {
			logger.Warn("proposal store close", "error", err)
		}
	}
	return rt, cleanup, nil
}

// openCharters returns the charter registry. Without a charter
// directory only the built-in charter is served. With one, the
// built-in charter still backs the "default" coop unless a file
// claims it.
func openCharters(cfg config.Config, logger *slog.Logger) (charter.Registry, *charter.FileRegistry, error) {
	if cfg.CharterDir == "" {
		reg, err := charter.NewStaticRegistry(charter.Default())
		if err != nil {
			return nil, nil, fmt.Errorf("publishing default charter: %w", err)
		}
		return reg, nil, nil
	}

	files, err := charter.NewFileRegistry(cfg.CharterDir, logger)
	if err != nil {
		return nil, nil, err
	}
	if _, err := files.ActiveConfig(charter.Default().CoopID); errors.Is(err, charter.ErrUnknownCoop) {
		if err := files.Publish(charter.Default()); err != nil {
			return nil, nil, fmt.Errorf("publishing default charter: %w", err)
		}
	}
	if _, err := files.ActiveConfig(cfg.DefaultCoop); err != nil {
		logger.Warn("default coop has no charter", "coop", cfg.DefaultCoop, "dir", cfg.CharterDir)
	}
	logger.Info("charters loaded", "dir", cfg.CharterDir, "coops", files.CoopIDs())
	return files, files, nil
}

// WatchCharters reloads charter files as they change until ctx is
// done. It is a no-op when no charter directory is configured.
func (rt *Runtime) WatchCharters(ctx context.Context) error {
	if rt.files == nil {
		return nil
	}
	return rt.files.Watch(ctx)
}

// New creates the MCP server with all tools, prompts and resources
// registered against rt.
func New(rt *Runtime) *server.MCPServer {
	s := server.NewMCPServer(
		"steward",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	coop := rt.Config.DefaultCoop

	// --- Register tools ---

	var st tools.Store
	if rt.Store != nil {
		st = rt.Store
	}
	evaluateTool := tools.NewEvaluateTool(rt.Engine, rt.Charters, st, rt.Renderer, coop)
	evaluateTool.SetLogger(rt.Logger)
	s.AddTool(evaluateTool.Definition(), evaluateTool.Handle)

	charterTool := tools.NewGetCharterTool(rt.Charters, coop)
	s.AddTool(charterTool.Definition(), charterTool.Handle)

	if rt.Store != nil {
		registerStoreTools(s, rt.Store, rt.Renderer)
	}

	// --- Register prompts ---

	reviewPrompt := prompts.NewReviewPrompt(coop)
	s.AddPrompt(reviewPrompt.Definition(), reviewPrompt.Handle)

	queuePrompt := prompts.NewQueuePrompt()
	s.AddPrompt(queuePrompt.Definition(), queuePrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(rt.Charters, coop)
	s.AddResource(resourceHandler.CharterResource(), resourceHandler.HandleCharter)

	return s
}

// registerStoreTools registers the tools that read stored proposals.
func registerStoreTools(s *server.MCPServer, st *store.Store, r templates.Renderer) {
	getTool := tools.NewGetProposalTool(st, r)
	s.AddTool(getTool.Definition(), getTool.Handle)

	listTool := tools.NewListProposalsTool(st, r)
	s.AddTool(listTool.Definition(), listTool.Handle)

	searchTool := tools.NewSearchProposalsTool(st, r)
	s.AddTool(searchTool.Definition(), searchTool.Handle)
}

// noop is the cleanup returned when there is nothing to close.
func noop() {}

// serverInstructions tells the AI how to use Steward.
func serverInstructions() string {
	return `You have access to Steward, a proposal evaluation engine for member-owned cooperatives.

## WHEN TO USE STEWARD

Use Steward when a member drafts, revises or asks about a funding proposal
for their cooperative, or asks whether an idea fits the coop's mission.

## HOW TO EVALUATE

1. Search first: steward_search_proposals finds earlier evaluations of similar ideas.
2. Call steward_evaluate_proposal with the full proposal text. Pass declared
   fields (amount_requested, local_percent, national_percent, category) only
   when the member states them explicitly. Never invent numbers.
3. Read the decision:
   - advance: ready for a member vote
   - revise: answer the blocking questions or adopt the recommended alternative
   - block: a charter rule excludes it, or a clearly better alternative exists
4. Relay every decision reason. Ask blocking questions before nice-to-know ones.

## OTHER TOOLS

- steward_get_charter: the goals, weights and rules scoring is based on
- steward_get_proposal: a stored evaluation by id
- steward_list_proposals: recent evaluations with totals per decision

Evaluations are deterministic for the same text, charter and engine version.
The audit section records every check and a digest that proves the record
was not edited after the fact.`
}
