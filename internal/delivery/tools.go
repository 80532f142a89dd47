package delivery

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerTools declares the delivery tool surface. The handlers live
// in handlers.go.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	testListTool := mcp.NewTool("test_list",
		mcp.WithDescription("List the assessments available for delivery"),
	)
	mcpServer.AddTool(testListTool, s.handleTestList)

	testGetTool := mcp.NewTool("test_get",
		mcp.WithDescription("Describe one assessment, including its parts and route items"),
		mcp.WithString("test",
			mcp.Required(),
			mcp.Description("Assessment identifier"),
		),
	)
	mcpServer.AddTool(testGetTool, s.handleTestGet)

	sessionCreateTool := mcp.NewTool("session_create",
		mcp.WithDescription("Start a new candidate session over an assessment"),
		mcp.WithString("test",
			mcp.Required(),
			mcp.Description("Assessment identifier"),
		),
		mcp.WithBoolean("force_branching",
			mcp.Description("Apply branch rules in nonlinear test parts too"),
		),
		mcp.WithBoolean("force_preconditions",
			mcp.Description("Apply preconditions in nonlinear test parts too"),
		),
		mcp.WithBoolean("path_tracking",
			mcp.Description("Record visited positions so move_back can retrace jumps and branches"),
		),
		mcp.WithBoolean("always_allow_jumps",
			mcp.Description("Permit jump in linear test parts"),
		),
		mcp.WithBoolean("initialize_all_items",
			mcp.Description("Materialize every item session up front instead of part by part"),
		),
	)
	mcpServer.AddTool(sessionCreateTool, s.handleSessionCreate)

	sessionStateTool := mcp.NewTool("session_state",
		mcp.WithDescription("Report the current state of a session, live or stored"),
		mcp.WithString("session",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
	)
	mcpServer.AddTool(sessionStateTool, s.handleSessionState)

	sessionListTool := mcp.NewTool("session_list",
		mcp.WithDescription("List all sessions, live and stored"),
	)
	mcpServer.AddTool(sessionListTool, s.handleSessionList)

	attemptBeginTool := mcp.NewTool("attempt_begin",
		mcp.WithDescription("Open an attempt on the current item"),
		mcp.WithString("session",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
		mcp.WithBoolean("allow_late",
			mcp.Description("Admit the attempt even after time limits have expired"),
		),
	)
	mcpServer.AddTool(attemptBeginTool, s.handleAttemptBegin)

	attemptEndTool := mcp.NewTool("attempt_end",
		mcp.WithDescription("Submit responses for the current item and close the attempt"),
		mcp.WithString("session",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
		mcp.WithObject("responses",
			mcp.Description("Response values keyed by response identifier"),
		),
		mcp.WithBoolean("allow_late",
			mcp.Description("Admit the submission even after time limits have expired"),
		),
	)
	mcpServer.AddTool(attemptEndTool, s.handleAttemptEnd)

	moveNextTool := mcp.NewTool("move_next",
		mcp.WithDescription("Advance to the next reachable item"),
		mcp.WithString("session",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
	)
	mcpServer.AddTool(moveNextTool, s.handleMoveNext)

	moveBackTool := mcp.NewTool("move_back",
		mcp.WithDescription("Return to the previous item"),
		mcp.WithString("session",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
	)
	mcpServer.AddTool(moveBackTool, s.handleMoveBack)

	jumpTool := mcp.NewTool("jump",
		mcp.WithDescription("Move the cursor straight to a route position"),
		mcp.WithString("session",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
		mcp.WithNumber("position",
			mcp.Required(),
			mcp.Description("Zero-based route position"),
		),
	)
	mcpServer.AddTool(jumpTool, s.handleJump)

	testpartNextTool := mcp.NewTool("testpart_next",
		mcp.WithDescription("Leave the current test part and enter the next"),
		mcp.WithString("session",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
	)
	mcpServer.AddTool(testpartNextTool, s.handleTestPartNext)

	sectionNextTool := mcp.NewTool("section_next",
		mcp.WithDescription("Leave the current section and move past its last item"),
		mcp.WithString("session",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
	)
	mcpServer.AddTool(sectionNextTool, s.handleSectionNext)

	sessionSuspendTool := mcp.NewTool("session_suspend",
		mcp.WithDescription("Suspend a session; its snapshot stays in the store for later resume"),
		mcp.WithString("session",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
	)
	mcpServer.AddTool(sessionSuspendTool, s.handleSessionSuspend)

	sessionResumeTool := mcp.NewTool("session_resume",
		mcp.WithDescription("Bring a suspended session back to interaction"),
		mcp.WithString("session",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
	)
	mcpServer.AddTool(sessionResumeTool, s.handleSessionResume)

	sessionEndTool := mcp.NewTool("session_end",
		mcp.WithDescription("End a session, submitting any pending responses and running final outcome processing"),
		mcp.WithString("session",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
	)
	mcpServer.AddTool(sessionEndTool, s.handleSessionEnd)
}
