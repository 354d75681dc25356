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

// NewConnectTool creates the memory_connect tool definition
func NewConnectTool() mcp.Tool {
	return mcp.NewTool("memory_connect",
		mcp.WithDescription("Link two related memories. The association is bidirectional and feeds memory_related lookups."),
		mcp.WithString("from",
			mcp.Required(),
			mcp.Description("First memory id"),
		),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Second memory id"),
		),
		mcp.WithString("relationship",
			mcp.Description("Type of connection: 'related_to', 'follows', 'contradicts' or 'reinforces'. Default: 'related_to'"),
		),
		mcp.WithNumber("strength",
			mcp.Description("Connection importance from 0.0 (weak) to 1.0 (strong). Default: 0.5"),
		),
	)
}

// ConnectHandler handles the memory_connect tool
func ConnectHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		from, err := request.RequireString("from")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		to, err := request.RequireString("to")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		relationship := request.GetString("relationship", memory.AssociationRelatedTo)
		strength := request.GetFloat("strength", 0.5)

		assoc, err := tc.Engine.Connect(ctx, from, to, relationship, strength)
		if err != nil {
			if errors.Is(err, memory.ErrNotFound) {
				return mcp.NewToolResultError(fmt.Sprintf("memory not found: %v", err)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("failed to connect memories: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Connected '%s' -%s-> '%s' (strength: %.2f)", assoc.SourceID, assoc.Type, assoc.TargetID, assoc.Strength)), nil
	}
}
