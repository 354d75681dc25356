// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// NewExportTool creates the memory_export tool definition
func NewExportTool() mcp.Tool {
	return mcp.NewTool("memory_export",
		mcp.WithDescription("Export every memory, with its associations, as one self-describing JSON array. The output feeds memory_import unchanged."),
	)
}

// ExportHandler handles the memory_export tool
func ExportHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := tc.Engine.ExportAll(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("export failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

// NewImportTool creates the memory_import tool definition
func NewImportTool() mcp.Tool {
	return mcp.NewTool("memory_import",
		mcp.WithDescription("Import a memory_export blob. Existing ids are overwritten, unknown fields are ignored, and the search index is rebuilt afterwards. Entries that fail to import do not block the rest."),
		mcp.WithString("data",
			mcp.Required(),
			mcp.Description("JSON array produced by memory_export"),
		),
	)
}

// ImportHandler handles the memory_import tool
func ImportHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := request.RequireString("data")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		count, err := tc.Engine.ImportAll(ctx, []byte(data))
		if err != nil {
			if count > 0 {
				return mcp.NewToolResultText(fmt.Sprintf("Imported %d memories with warnings: %v", count, err)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("import failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Imported %d memories", count)), nil
	}
}
