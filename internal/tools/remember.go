// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/engramdb/engram/internal/memory"
)

// NewStoreTool creates the memory_store tool definition
func NewStoreTool() mcp.Tool {
	return mcp.NewTool("memory_store",
		mcp.WithDescription("Store a new memory. Pick the type that matches what is being remembered: EPISODIC for events that happened, SEMANTIC for facts, EMOTIONAL for feelings, PROCEDURAL for how-to knowledge."),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Memory type: EPISODIC, SEMANTIC, EMOTIONAL or PROCEDURAL"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The information to remember"),
		),
		mcp.WithNumber("priority",
			mcp.Description("Importance from 0 to 100. Default: 50"),
		),
		mcp.WithNumber("certainty",
			mcp.Description("Confidence from 0 to 1, for SEMANTIC memories. Default: 0.8"),
		),
		mcp.WithNumber("valence",
			mcp.Description("Feeling direction from -1 (negative) to 1 (positive), for EMOTIONAL memories"),
		),
		mcp.WithNumber("intensity",
			mcp.Description("Feeling strength from 0 to 1, for EMOTIONAL memories. Default: 0.5"),
		),
		mcp.WithArray("entities",
			mcp.Description("People, places or things this memory involves"),
		),
		mcp.WithArray("tags",
			mcp.Description("Labels for organization"),
		),
		mcp.WithObject("metadata",
			mcp.Description("Extra string key/value annotations"),
		),
	)
}

// StoreHandler handles the memory_store tool
func StoreHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		typeArg, err := request.RequireString("type")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		content, err := request.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		memType, err := memory.ParseMemoryType(typeArg)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		priority := request.GetFloat("priority", 50)
		entities := request.GetStringSlice("entities", nil)
		metadata := objectArg(request, "metadata")
		if tags := request.GetStringSlice("tags", nil); len(tags) > 0 {
			if metadata == nil {
				metadata = make(map[string]string)
			}
			metadata[memory.TagsMetadataKey] = strings.Join(tags, ",")
		}

		var rec *memory.MemoryRecord
		switch memType {
		case memory.TypeEpisodic:
			rec, err = tc.Engine.CreateEpisodicMemory(ctx, content, priority, entities, metadata)
		case memory.TypeSemantic:
			certainty := request.GetFloat("certainty", 0.8)
			rec, err = tc.Engine.CreateSemanticMemory(ctx, content, certainty, priority, entities, metadata)
		case memory.TypeEmotional:
			valence := request.GetFloat("valence", 0)
			intensity := request.GetFloat("intensity", 0.5)
			rec, err = tc.Engine.CreateEmotionalMemory(ctx, content, valence, intensity, priority, entities, metadata)
		case memory.TypeProcedural:
			rec, err = tc.Engine.CreateProceduralMemory(ctx, content, priority, entities, metadata)
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to store memory: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Stored %s memory %s", strings.ToLower(string(rec.Type)), rec.ID)), nil
	}
}
