package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/cramplan/internal/planner"
	"github.com/kalambet/cramplan/internal/session"
)

// ScheduleResourceURI addresses the current review state.
const ScheduleResourceURI = "cramplan://schedule"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Session   *session.Manager
	Planner   Planner // optional; if nil, study_plan and practice_test return an error
	Materials MaterialsLoader
	Guard     *Guard
}

// NewMCPServer creates an MCP server with all cramplan tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Guard == nil {
		deps.Guard = NewGuard()
	}

	s := server.NewMCPServer(
		"cramplan",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("cramplan: study plans, practice tests and a spaced review checklist for an upcoming test."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("generate_schedule",
			mcp.WithDescription("Build a review checklist from study materials (one item per line) on days 0, 1, 3, 7 and 14 up to the test date. Replaces the current checklist."),
			mcp.WithString("test_date", mcp.Description("Test date, YYYY-MM-DD"), mcp.Required()),
			mcp.WithString("materials", mcp.Description("Study items, one per line")),
			mcp.WithString("source", mcp.Description("Optional http(s) URL to load materials from")),
		),
		mcpGenerateSchedule(deps),
	)

	s.AddTool(
		mcp.NewTool("toggle_card",
			mcp.WithDescription("Mark a review item done, or not done, on one date."),
			mcp.WithString("date", mcp.Description("Scheduled date, YYYY-MM-DD"), mcp.Required()),
			mcp.WithString("id", mcp.Description("Item id, e.g. card-0"), mcp.Required()),
		),
		mcpToggleCard(deps),
	)

	s.AddTool(
		mcp.NewTool("study_plan",
			mcp.WithDescription("Generate a spaced-repetition study plan as JSON."),
			mcp.WithString("test_name", mcp.Description("Name of the test"), mcp.Required()),
			mcp.WithString("test_date", mcp.Description("Test date, YYYY-MM-DD; must be in the future"), mcp.Required()),
			mcp.WithString("materials", mcp.Description("Study materials text")),
			mcp.WithString("source", mcp.Description("Optional http(s) URL to load materials from")),
		),
		mcpStudyPlan(deps),
	)

	s.AddTool(
		mcp.NewTool("practice_test",
			mcp.WithDescription("Generate a practice test with a separate answer key."),
			mcp.WithString("test_name", mcp.Description("Name of the test"), mcp.Required()),
			mcp.WithString("test_date", mcp.Description("Test date, YYYY-MM-DD; must be in the future"), mcp.Required()),
			mcp.WithString("materials", mcp.Description("Study materials text")),
			mcp.WithString("source", mcp.Description("Optional http(s) URL to load materials from")),
		),
		mcpPracticeTest(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			ScheduleResourceURI,
			"Review Schedule",
			mcp.WithResourceDescription("Current review checklist as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSchedule(deps),
	)

	return s
}

func mcpGenerateSchedule(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		testDate, err := req.RequireString("test_date")
		if err != nil {
			return mcpError("test_date is required"), nil
		}

		materials, err := resolveMaterials(ctx, deps.Materials, req.GetString("materials", ""), req.GetString("source", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		st, err := deps.Session.Generate(testDate, materials)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to generate schedule: %v", err)), nil
		}
		return mcpJSON(st)
	}
}

func mcpToggleCard(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		date, err := req.RequireString("date")
		if err != nil {
			return mcpError("date is required"), nil
		}
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		st, err := deps.Session.Toggle(date, id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to toggle: %v", err)), nil
		}

		for _, it := range st.Schedule[date] {
			if it.ID == id {
				state := "not done"
				if it.Done {
					state = "done"
				}
				return mcpText(fmt.Sprintf("%s on %s is %s", id, date, state)), nil
			}
		}
		return mcpText("toggled"), nil
	}
}

func mcpStudyPlan(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		form, errResult := mcpForm(ctx, deps, req)
		if errResult != nil {
			return errResult, nil
		}

		var plan planner.StudyPlan
		err := deps.Guard.Do(func() error {
			var err error
			plan, err = deps.Planner.StudyPlan(ctx, form)
			return err
		})
		if err != nil {
			return mcpError(fmt.Sprintf("study plan failed: %v", err)), nil
		}
		return mcpJSON(plan)
	}
}

func mcpPracticeTest(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		form, errResult := mcpForm(ctx, deps, req)
		if errResult != nil {
			return errResult, nil
		}

		var test planner.PracticeTest
		err := deps.Guard.Do(func() error {
			var err error
			test, err = deps.Planner.PracticeTest(ctx, form)
			return err
		})
		if err != nil {
			return mcpError(fmt.Sprintf("practice test failed: %v", err)), nil
		}
		return mcpText(test.Questions + "\n\n" + planner.AnswerKeySeparator + "\n\n" + test.AnswerKey), nil
	}
}

func mcpForm(ctx context.Context, deps MCPDeps, req mcp.CallToolRequest) (planner.Form, *mcp.CallToolResult) {
	if deps.Planner == nil {
		return planner.Form{}, mcpError("generation not available: no API key configured")
	}
	name, err := req.RequireString("test_name")
	if err != nil {
		return planner.Form{}, mcpError("test_name is required")
	}
	date, err := req.RequireString("test_date")
	if err != nil {
		return planner.Form{}, mcpError("test_date is required")
	}
	materials, err := resolveMaterials(ctx, deps.Materials, req.GetString("materials", ""), req.GetString("source", ""))
	if err != nil {
		return planner.Form{}, mcpError(err.Error())
	}
	return planner.Form{TestName: name, TestDate: date, Materials: materials}, nil
}

func mcpResourceSchedule(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		st, err := deps.Session.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load schedule: %w", err)
		}

		b, err := json.Marshal(st)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schedule: %w", err)
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

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
