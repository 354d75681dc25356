// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package tools defines the MCP tool surface. Every tool is a thin
// schema-plus-handler pair over the engine; handlers never reach around
// it into the store or index.
package tools

import (
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/engramdb/engram/internal/engine"
)

// ToolContext holds shared dependencies for all tools
type ToolContext struct {
	Engine *engine.Engine
	Logger *slog.Logger
}

// NewToolContext creates a new tool context
func NewToolContext(eng *engine.Engine, logger *slog.Logger) *ToolContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolContext{
		Engine: eng,
		Logger: logger,
	}
}

// objectArg extracts a string-valued object argument from the request.
// Non-string values are dropped.
func objectArg(request mcp.CallToolRequest, name string) map[string]string {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := args[name].(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// hasArg reports whether the argument was provided at all, so absent and
// zero-valued arguments can be told apart.
func hasArg(request mcp.CallToolRequest, name string) bool {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return false
	}
	_, ok = args[name]
	return ok
}

// resultJSON renders a payload as an indented JSON tool result
func resultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to render result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
