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

// NewForgetTool creates the memory_forget tool definition
func NewForgetTool() mcp.Tool {
	return mcp.NewTool("memory_forget",
		mcp.WithDescription("Delete a memory permanently. The memory is removed from storage and every search index before this returns. Use memory_export first if a backup is wanted."),
		mcp.WithString("id",
			mcp.Description("Memory to delete"),
		),
		mcp.WithArray("ids",
			mcp.Description("Several memories to delete at once; unknown ids are skipped"),
		),
	)
}

// ForgetHandler handles the memory_forget tool
func ForgetHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := request.GetString("id", "")
		ids := request.GetStringSlice("ids", nil)

		switch {
		case id != "" && len(ids) > 0:
			return mcp.NewToolResultError("provide either 'id' or 'ids', not both"), nil

		case id != "":
			if err := tc.Engine.Forget(ctx, id); err != nil {
				if errors.Is(err, memory.ErrNotFound) {
					return mcp.NewToolResultError(fmt.Sprintf("memory not found: %s", id)), nil
				}
				return mcp.NewToolResultError(fmt.Sprintf("failed to forget memory: %v", err)), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Forgot memory %s", id)), nil

		case len(ids) > 0:
			if err := tc.Engine.ForgetBatch(ctx, ids); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to forget memories: %v", err)), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Forgot %d memories", len(ids))), nil

		default:
			return mcp.NewToolResultError("'id' or 'ids' is required"), nil
		}
	}
}
