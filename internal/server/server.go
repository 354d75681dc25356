// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package server wraps the mcp-go server and registers the memory tool
// surface over one engine instance.
package server

import (
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/engramdb/engram/internal/engine"
	"github.com/engramdb/engram/internal/tools"
)

// MCPServer wraps the mcp-go server with our configuration
type MCPServer struct {
	mcpServer *mcpserver.MCPServer
	engine    *engine.Engine
	logger    *slog.Logger
}

// NewMCPServer creates a new MCP server instance over the engine
func NewMCPServer(eng *engine.Engine, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	mcpServer := mcpserver.NewMCPServer(
		"Engram",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
	)
	return &MCPServer{
		mcpServer: mcpServer,
		engine:    eng,
		logger:    logger,
	}
}

// RegisterTools registers all MCP tools
func (s *MCPServer) RegisterTools() {
	toolCtx := tools.NewToolContext(s.engine, s.logger)

	// memory_store: typed create - "Remember this"
	s.mcpServer.AddTool(tools.NewStoreTool(), tools.StoreHandler(toolCtx))

	// memory_recall: filtered, ranked retrieval - "What do I know about X?"
	s.mcpServer.AddTool(tools.NewRecallTool(), tools.RecallHandler(toolCtx))

	// memory_reinforce: strengthen - "This mattered again"
	s.mcpServer.AddTool(tools.NewReinforceTool(), tools.ReinforceHandler(toolCtx))

	// memory_connect: associate two memories - "These are related"
	s.mcpServer.AddTool(tools.NewConnectTool(), tools.ConnectHandler(toolCtx))

	// memory_related: associated + similar neighbors of one memory
	s.mcpServer.AddTool(tools.NewRelatedTool(), tools.RelatedHandler(toolCtx))

	// memory_chains: associative similarity paths from one memory
	s.mcpServer.AddTool(tools.NewChainsTool(), tools.ChainsHandler(toolCtx))

	// memory_consolidate: decay, evict and merge pass
	s.mcpServer.AddTool(tools.NewConsolidateTool(), tools.ConsolidateHandler(toolCtx))

	// memory_stats: store and index counts
	s.mcpServer.AddTool(tools.NewStatsTool(), tools.StatsHandler(toolCtx))

	// memory_rebuild: full index rebuild
	s.mcpServer.AddTool(tools.NewRebuildTool(), tools.RebuildHandler(toolCtx))

	// memory_export / memory_import: full-set transfer
	s.mcpServer.AddTool(tools.NewExportTool(), tools.ExportHandler(toolCtx))
	s.mcpServer.AddTool(tools.NewImportTool(), tools.ImportHandler(toolCtx))

	// memory_forget: permanent delete
	s.mcpServer.AddTool(tools.NewForgetTool(), tools.ForgetHandler(toolCtx))
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *MCPServer) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcpServer)
}

// GetMCPServer returns the underlying MCP server
func (s *MCPServer) GetMCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}
