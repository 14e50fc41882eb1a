package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/halvard/meshgen/internal/engine"
	"github.com/halvard/meshgen/internal/fingerprint"
	"github.com/halvard/meshgen/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Engine *engine.Engine
}

// NewMCPServer creates an MCP server exposing the generation engine as
// tools plus a metrics resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"meshgen",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("meshgen: local 3D asset generation with cache-aware reuse."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("generate_asset",
			mcp.WithDescription("Generate a 3D asset from a text prompt, reusing cached assets when allowed by the reuse policy."),
			mcp.WithString("prompt", mcp.Description("Text prompt describing the asset"), mcp.Required()),
			mcp.WithString("provider", mcp.Description("Provider id (unknown ids fall back to the default)")),
			mcp.WithString("reuse_policy", mcp.Description("One of: always, smart, never (default smart)")),
		),
		mcpGenerateAsset(deps),
	)

	s.AddTool(
		mcp.NewTool("get_generation",
			mcp.WithDescription("Look up one generation record by id."),
			mcp.WithNumber("id", mcp.Description("Generation id"), mcp.Required()),
		),
		mcpGetGeneration(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_feedback",
			mcp.WithDescription("Rate a generation from 1 to 5; ratings gate future similarity-based reuse."),
			mcp.WithNumber("id", mcp.Description("Generation id"), mcp.Required()),
			mcp.WithNumber("rating", mcp.Description("Rating 1..5"), mcp.Required()),
			mcp.WithString("comment", mcp.Description("Optional free-form comment")),
		),
		mcpSubmitFeedback(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"meshgen://metrics",
			"Generation Metrics",
			mcp.WithResourceDescription("Cache hit rate, ratings, and top prompts as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceMetrics(deps),
	)

	return s
}

func mcpGenerateAsset(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return mcpError("prompt is required"), nil
		}

		policy := engine.ReusePolicy(req.GetString("reuse_policy", string(engine.PolicySmart)))
		switch policy {
		case engine.PolicySmart, engine.PolicyAlways, engine.PolicyNever:
		default:
			return mcpError(fmt.Sprintf("unknown reuse_policy %q", policy)), nil
		}

		g, err := deps.Engine.Submit(ctx, engine.Request{
			Prompt:      prompt,
			Mode:        fingerprint.ModeText,
			Provider:    req.GetString("provider", ""),
			ReusePolicy: policy,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("generation failed: %v", err)), nil
		}

		b, err := json.Marshal(toResponse(g))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetGeneration(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		g, err := deps.Engine.Generation(int64(id))
		if err == storage.ErrNotFound {
			return mcpError(fmt.Sprintf("generation %d not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}

		b, err := json.Marshal(toResponse(g))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSubmitFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		rating, err := req.RequireInt("rating")
		if err != nil {
			return mcpError("rating is required"), nil
		}

		err = deps.Engine.RecordFeedback(int64(id), rating, nil, req.GetString("comment", ""))
		switch {
		case err == storage.ErrNotFound:
			return mcpError(fmt.Sprintf("generation %d not found", id)), nil
		case err != nil:
			return mcpError(fmt.Sprintf("feedback failed: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Recorded rating %d for generation %d", rating, id)), nil
	}
}

func mcpResourceMetrics(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		m, err := deps.Engine.Metrics()
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate metrics: %w", err)
		}

		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metrics: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
