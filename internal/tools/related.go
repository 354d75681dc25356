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

// NewRelatedTool creates the memory_related tool definition
func NewRelatedTool() mcp.Tool {
	return mcp.NewTool("memory_related",
		mcp.WithDescription("Find memories related to one memory: explicitly connected memories first (strongest connections ranked higher), then semantically similar ones until the limit is reached."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Memory to start from"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results. Default: 10"),
		),
	)
}

// RelatedHandler handles the memory_related tool
func RelatedHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		limit := int(request.GetFloat("limit", 10.0))

		records, err := tc.Engine.RelatedMemories(ctx, id, limit)
		if err != nil {
			if errors.Is(err, memory.ErrNotFound) {
				return mcp.NewToolResultError(fmt.Sprintf("memory not found: %s", id)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("failed to find related memories: %v", err)), nil
		}

		if len(records) == 0 {
			return mcp.NewToolResultText("No related memories found."), nil
		}

		payload := struct {
			Count    int                    `json:"count"`
			Memories []*memory.MemoryRecord `json:"memories"`
		}{
			Count:    len(records),
			Memories: records,
		}
		return resultJSON(payload)
	}
}

// NewChainsTool creates the memory_chains tool definition
func NewChainsTool() mcp.Tool {
	return mcp.NewTool("memory_chains",
		mcp.WithDescription("Discover associative chains: depth-bounded paths of memories linked by strong semantic similarity, starting from one memory. Useful for tracing how a theme threads through stored memories."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Memory to start from"),
		),
		mcp.WithNumber("depth",
			mcp.Description("Chain length in memories. Default: 3"),
		),
	)
}

// ChainsHandler handles the memory_chains tool
func ChainsHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		depth := int(request.GetFloat("depth", 3.0))

		chains, err := tc.Engine.MemoryChains(ctx, id, depth)
		if err != nil {
			if errors.Is(err, memory.ErrNotFound) {
				return mcp.NewToolResultError(fmt.Sprintf("memory not found: %s", id)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("failed to find memory chains: %v", err)), nil
		}

		if len(chains) == 0 {
			return mcp.NewToolResultText("No memory chains found."), nil
		}

		payload := struct {
			Count  int        `json:"count"`
			Chains [][]string `json:"chains"`
		}{
			Count:  len(chains),
			Chains: chains,
		}
		return resultJSON(payload)
	}
}
