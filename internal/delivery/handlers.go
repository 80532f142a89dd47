package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"proctor/internal/session"

	"github.com/mark3labs/mcp-go/mcp"
)

// jsonResult renders a handler result as indented JSON.
func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleTestList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	assessments := s.library.List()
	views := make([]*AssessmentView, 0, len(assessments))
	for _, asmt := range assessments {
		views = append(views, viewOfAssessment(asmt, false))
	}
	return jsonResult(views)
}

func (s *Server) handleTestGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	testID, err := request.RequireString("test")
	if err != nil {
		return mcp.NewToolResultError("test argument is required"), nil
	}

	asmt, ok := s.library.Get(testID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown assessment %q", testID)), nil
	}
	return jsonResult(viewOfAssessment(asmt, true))
}

func (s *Server) handleSessionCreate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	testID, err := request.RequireString("test")
	if err != nil {
		return mcp.NewToolResultError("test argument is required"), nil
	}

	args := request.GetArguments()
	var cfg session.Config
	if v, ok := args["force_branching"].(bool); ok && v {
		cfg |= session.ForceBranching
	}
	if v, ok := args["force_preconditions"].(bool); ok && v {
		cfg |= session.ForcePreconditions
	}
	if v, ok := args["path_tracking"].(bool); ok && v {
		cfg |= session.PathTracking
	}
	if v, ok := args["always_allow_jumps"].(bool); ok && v {
		cfg |= session.AlwaysAllowJumps
	}
	if v, ok := args["initialize_all_items"].(bool); ok && v {
		cfg |= session.InitializeAllItems
	}

	view, err := s.service.Create(ctx, testID, cfg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create session: %v", err)), nil
	}
	return jsonResult(view)
}

func (s *Server) handleSessionState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError("session argument is required"), nil
	}

	view, err := s.service.State(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(view)
}

func (s *Server) handleSessionList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summaries, err := s.service.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list sessions: %v", err)), nil
	}
	return jsonResult(summaries)
}

func (s *Server) handleAttemptBegin(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError("session argument is required"), nil
	}
	allowLate, _ := request.GetArguments()["allow_late"].(bool)

	view, err := s.service.BeginAttempt(ctx, id, allowLate)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(view)
}

func (s *Server) handleAttemptEnd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError("session argument is required"), nil
	}

	args := request.GetArguments()
	responses := map[string]interface{}{}
	if raw := args["responses"]; raw != nil {
		var ok bool
		responses, ok = raw.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("responses must be a JSON object"), nil
		}
	}
	allowLate, _ := args["allow_late"].(bool)

	view, err := s.service.EndAttempt(ctx, id, responses, allowLate)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(view)
}

func (s *Server) handleMoveNext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError("session argument is required"), nil
	}

	view, err := s.service.MoveNext(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(view)
}

func (s *Server) handleMoveBack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError("session argument is required"), nil
	}

	view, err := s.service.MoveBack(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(view)
}

func (s *Server) handleJump(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError("session argument is required"), nil
	}
	position, ok := request.GetArguments()["position"].(float64)
	if !ok {
		return mcp.NewToolResultError("position argument is required and must be a number"), nil
	}

	view, err := s.service.Jump(ctx, id, int(position))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(view)
}

func (s *Server) handleTestPartNext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError("session argument is required"), nil
	}

	view, err := s.service.NextTestPart(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(view)
}

func (s *Server) handleSectionNext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError("session argument is required"), nil
	}

	view, err := s.service.NextSection(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(view)
}

func (s *Server) handleSessionSuspend(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError("session argument is required"), nil
	}

	view, err := s.service.Suspend(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(view)
}

func (s *Server) handleSessionResume(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError("session argument is required"), nil
	}

	view, err := s.service.Resume(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(view)
}

func (s *Server) handleSessionEnd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError("session argument is required"), nil
	}

	view, err := s.service.End(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(view)
}
