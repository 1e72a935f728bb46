package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/finplan/internal/app"
	"github.com/kalambet/finplan/internal/chat"
	"github.com/kalambet/finplan/internal/dashboard"
	"github.com/kalambet/finplan/internal/gateway"
)

// NewMCPServer creates an MCP server exposing plan generation and the
// advisory chat.
func NewMCPServer(a *app.App, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"finplan",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("finplan: AI-generated personal investment plans grounded in live web search, with an advisor chat about the current plan."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("generate_plan",
			mcp.WithDescription("Generate a new investment plan from the saved profile. Replaces the current plan on success."),
		),
		mcpGeneratePlan(a),
	)

	s.AddTool(
		mcp.NewTool("ask_advisor",
			mcp.WithDescription("Ask the advisor a question about the current plan, or pass a ticker to ask the standard follow-up about that allocation."),
			mcp.WithString("message", mcp.Description("Question for the advisor")),
			mcp.WithString("ticker", mcp.Description("Allocation ticker to ask about instead of a free-form message")),
		),
		mcpAskAdvisor(a),
	)

	s.AddTool(
		mcp.NewTool("set_profile_field",
			mcp.WithDescription("Update one field of the saved profile used for plan generation."),
			mcp.WithString("key", mcp.Description("Profile field key (e.g. risk_tolerance, annual_income)"), mcp.Required()),
			mcp.WithString("value", mcp.Description("Value as typed in the profile form; empty clears"), mcp.Required()),
		),
		mcpSetProfileField(a),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"plan://current",
			"Current Plan",
			mcp.WithResourceDescription("Most recent investment plan as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePlan(a),
	)

	s.AddResource(
		mcp.NewResource(
			"plan://dashboard",
			"Plan Dashboard",
			mcp.WithResourceDescription("Most recent investment plan rendered as markdown"),
			mcp.WithMIMEType("text/markdown"),
		),
		mcpResourceDashboard(a),
	)

	s.AddResource(
		mcp.NewResource(
			"chat://history",
			"Advisor Chat History",
			mcp.WithResourceDescription("Advisor conversation as a JSON list of {role, text, sources}"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceChatHistory(a),
	)

	return s
}

func mcpGeneratePlan(a *app.App) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prof, err := a.Profiles.GetProfile()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get profile: %v", err)), nil
		}

		p, err := a.GeneratePlan(ctx, prof)
		if errors.Is(err, app.ErrLocked) || errors.Is(err, app.ErrInvalidProfile) {
			return mcpError(err.Error()), nil
		}
		if err != nil {
			return mcpError(gateway.FriendlyError(err)), nil
		}

		return mcpText(dashboard.Markdown(p)), nil
	}
}

func mcpAskAdvisor(a *app.App) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ticker := req.GetString("ticker", "")
		message := req.GetString("message", "")
		if ticker == "" && message == "" {
			return mcpError("message or ticker is required"), nil
		}

		var (
			reply chat.Message
			err   error
		)
		if ticker != "" {
			reply, err = a.AskAbout(ctx, ticker)
		} else {
			reply, err = a.Ask(ctx, message)
		}
		if err != nil {
			return mcpError(err.Error()), nil
		}

		b, err := json.Marshal(reply)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSetProfileField(a *app.App) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		if err := a.Profiles.SetField(key, value); err != nil {
			return mcpError(fmt.Sprintf("failed to set profile field: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Set %s = %s", key, value)), nil
	}
}

func mcpResourcePlan(a *app.App) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		p, err := a.CurrentPlan()
		if err != nil {
			return nil, err
		}

		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal plan: %w", err)
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

func mcpResourceDashboard(a *app.App) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		p, err := a.CurrentPlan()
		if err != nil {
			return nil, err
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "text/markdown",
				Text:     dashboard.Markdown(p),
			},
		}, nil
	}
}

func mcpResourceChatHistory(a *app.App) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(a.Advisor.Messages())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal chat history: %w", err)
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
