// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/engramdb/engram/internal/memory"
)

// NewReinforceTool creates the memory_reinforce tool definition
func NewReinforceTool() mcp.Tool {
	return mcp.NewTool("memory_reinforce",
		mcp.WithDescription("Strengthen a memory. Reinforced memories decay slower and rank higher in salience-ordered recall. Use when a memory proves useful again."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Memory to reinforce"),
		),
		mcp.WithNumber("boost",
			mcp.Description("How much to add to the reinforcement score. Default: 1.0"),
		),
	)
}

// ReinforceHandler handles the memory_reinforce tool
func ReinforceHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		boost := request.GetFloat("boost", 1.0)

		rec, err := tc.Engine.Reinforce(ctx, id, boost)
		if err != nil {
			if errors.Is(err, memory.ErrNotFound) {
				return mcp.NewToolResultError(fmt.Sprintf("memory not found: %s", id)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("failed to reinforce memory: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Reinforced %s (score now %.2f, accessed %d times)", rec.ID, rec.ReinforcementScore, rec.AccessCount)), nil
	}
}
