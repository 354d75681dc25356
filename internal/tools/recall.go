// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/engramdb/engram/internal/memory"
)

// NewRecallTool creates the memory_recall tool definition
func NewRecallTool() mcp.Tool {
	return mcp.NewTool("memory_recall",
		mcp.WithDescription("Find and retrieve memories. This is the primary retrieval tool: free text resolves through the semantic index, attribute filters narrow the candidates, and every filter must hold at once. Results are ranked by the chosen sort criterion."),
		mcp.WithString("query",
			mcp.Description("Free text to search for. Examples: 'hiking trip', 'what made me happy last week'"),
		),
		mcp.WithString("type",
			mcp.Description("Restrict to one memory type: EPISODIC, SEMANTIC, EMOTIONAL or PROCEDURAL"),
		),
		mcp.WithNumber("min_certainty",
			mcp.Description("Minimum confidence from 0 to 1"),
		),
		mcp.WithNumber("valence_min",
			mcp.Description("Lower bound on emotional valence, -1 to 1"),
		),
		mcp.WithNumber("valence_max",
			mcp.Description("Upper bound on emotional valence, -1 to 1"),
		),
		mcp.WithArray("tags",
			mcp.Description("Require every listed tag"),
		),
		mcp.WithArray("entities",
			mcp.Description("Require every listed entity"),
		),
		mcp.WithString("after",
			mcp.Description("Only memories created at or after this RFC3339 timestamp"),
		),
		mcp.WithString("before",
			mcp.Description("Only memories created at or before this RFC3339 timestamp"),
		),
		mcp.WithNumber("min_reinforcement",
			mcp.Description("Minimum reinforcement score, 0 to 10"),
		),
		mcp.WithString("sort_by",
			mcp.Description("SALIENCE (default), RECENCY, PRIORITY, EMOTIONAL or RELEVANCE"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results. Default: 10"),
		),
	)
}

// RecallHandler handles the memory_recall tool
func RecallHandler(tc *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q := memory.MemoryQuery{
			Text:             request.GetString("query", ""),
			MinCertainty:     request.GetFloat("min_certainty", 0),
			MinReinforcement: request.GetFloat("min_reinforcement", 0),
			Tags:             request.GetStringSlice("tags", nil),
			Entities:         request.GetStringSlice("entities", nil),
			Limit:            int(request.GetFloat("limit", 10.0)),
		}

		if typeArg := request.GetString("type", ""); typeArg != "" {
			memType, err := memory.ParseMemoryType(typeArg)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			q.Type = memType
		}

		if hasArg(request, "valence_min") || hasArg(request, "valence_max") {
			q.Emotional = &memory.EmotionalRange{
				Min: request.GetFloat("valence_min", -1),
				Max: request.GetFloat("valence_max", 1),
			}
		}

		if s := request.GetString("after", ""); s != "" {
			ts, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid 'after' timestamp: %v", err)), nil
			}
			q.From = ts
		}
		if s := request.GetString("before", ""); s != "" {
			ts, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid 'before' timestamp: %v", err)), nil
			}
			q.To = ts
		}

		if s := request.GetString("sort_by", ""); s != "" {
			q.SortBy = memory.SortCriterion(strings.ToUpper(strings.TrimSpace(s)))
		}

		records, err := tc.Engine.Query(ctx, q)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("recall failed: %v", err)), nil
		}

		if len(records) == 0 {
			return mcp.NewToolResultText("No memories found."), nil
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
