// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// NewConsolidateTool creates the memory_consolidate tool definition
func NewConsolidateTool() mcp.Tool {
	return mcp.NewTool("memory_consolidate",
		mcp.WithDescription("Run one maintenance pass over all memories: decay scores of memories not accessed recently, evict memories whose salience fell below the threshold, and merge near-duplicates. Running it twice in a row changes nothing the second time."),
	)
}

// ConsolidateHandler handles the memory_consolidate tool
func ConsolidateHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := tc.Engine.Consolidate(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("consolidation failed: %v", err)), nil
		}
		return resultJSON(result)
	}
}

// NewStatsTool creates the memory_stats tool definition
func NewStatsTool() mcp.Tool {
	return mcp.NewTool("memory_stats",
		mcp.WithDescription("Report memory counts by type, association count, and index sizes (embeddings, keywords, entities, day buckets, clusters)."),
	)
}

// StatsHandler handles the memory_stats tool
func StatsHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := tc.Engine.Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to gather stats: %v", err)), nil
		}
		return resultJSON(stats)
	}
}

// NewRebuildTool creates the memory_rebuild tool definition
func NewRebuildTool() mcp.Tool {
	return mcp.NewTool("memory_rebuild",
		mcp.WithDescription("Rebuild every search index from stored memories. Repairs any index inconsistency left by failed incremental updates and recomputes similarity clusters."),
	)
}

// RebuildHandler handles the memory_rebuild tool
func RebuildHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := tc.Engine.RebuildIndex(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("rebuild failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf(
			"Rebuilt index: %d memories processed, %d embeddings stored, %d clusters formed",
			result.RecordsProcessed, result.EmbeddingsStored, result.ClustersFormed)), nil
	}
}
