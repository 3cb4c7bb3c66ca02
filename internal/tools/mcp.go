// Package tools exposes mission operations to MCP clients.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"missioncontrol/internal/account"
	"missioncontrol/internal/backend"
	"missioncontrol/internal/config"
	"missioncontrol/internal/errors"
	"missioncontrol/internal/formatters"
	"missioncontrol/internal/mission"
	"missioncontrol/internal/panels"
	"missioncontrol/internal/types"
	"missioncontrol/internal/utils"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Toolbox holds what the tools call into
type Toolbox struct {
	api        backend.API
	gate       *account.Gate
	identity   account.Identity
	maxUpload  int64
	uploadAs   types.UploadRequest
	formatters *formatters.FormatterRegistry
	logger     *errors.Logger
}

// New creates a toolbox acting as identity. Optimizations are charged to that identity's credits.
func New(api backend.API, gate *account.Gate, identity account.Identity, cfg *config.Config, logger *errors.Logger) *Toolbox {
	tb := &Toolbox{
		api:        api,
		gate:       gate,
		identity:   identity,
		formatters: formatters.NewFormatterRegistry(),
		logger:     logger,
	}
	if cfg != nil {
		tb.maxUpload = cfg.Mission.MaxUploadSize
		tb.uploadAs = types.UploadRequest{UserEmail: cfg.Mission.DefaultUserEmail, UserName: cfg.Mission.DefaultUserName}
	}
	if identity.Email != "" {
		tb.uploadAs.UserEmail = identity.Email
	}
	if identity.Name != "" {
		tb.uploadAs.UserName = identity.Name
	}
	return tb
}

// NewServer creates an MCP server with every mission tool registered
func (tb *Toolbox) NewServer(version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "missioncontrol", Version: version}, nil)
	tb.Register(srv)
	return srv
}

// Serve runs the tools over stdio until ctx is cancelled or the client disconnects
func (tb *Toolbox) Serve(ctx context.Context, version string) error {
	tb.logger.Info("Serving MCP tools over stdio", "identity_id", tb.identity.ID)
	return tb.NewServer(version).Run(ctx, &mcp.StdioTransport{})
}

// Register adds the mission tools to srv
func (tb *Toolbox) Register(srv *mcp.Server) {
	tb.registerUpload(srv)
	tb.registerOptimize(srv)
	tb.registerGrade(srv)
	tb.registerSpyglass(srv)
	tb.registerChat(srv)
	tb.registerCourses(srv)
	tb.registerHealth(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	properties["format"] = map[string]any{
		"type":        "string",
		"enum":        []string{"json", "text", "markdown", "yaml"},
		"description": "Output format, json by default",
	}
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// formatted is embedded in every tool's arguments
type formatted struct {
	Format string `json:"format"`
}

func (f formatted) format() string { return f.Format }

type formatter interface{ format() string }

// addTool registers a typed tool. Failures become tool errors so the client can show them.
func addTool[In formatter](tb *Toolbox, srv *mcp.Server, tool *mcp.Tool, run func(context.Context, *In) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in := new(In)
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, in); err != nil {
				return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
			}
		}

		start := time.Now()
		out, err := run(ctx, in)
		if err != nil {
			tb.logger.Debug("Tool call failed", "tool", tool.Name, "error", err.Error())
			return toolError(err), nil
		}
		tb.logger.Debug("Tool call finished", "tool", tool.Name, "duration_ms", time.Since(start).Milliseconds())

		text, err := tb.render(out, (*in).format())
		if err != nil {
			return toolError(err), nil
		}
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, nil
	})
}

// textViewer picks the value the text formats render
type textViewer interface{ textView() any }

func (tb *Toolbox) render(v any, format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" || format == "json" {
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal: %w", err)
		}
		return string(data), nil
	}
	if tv, ok := v.(textViewer); ok {
		v = tv.textView()
	}
	return tb.formatters.Format(v, format)
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}

// --- mission_upload ---

type uploadArgs struct {
	formatted
	Path      string `json:"path"`
	UserEmail string `json:"user_email"`
	UserName  string `json:"user_name"`
}

func (tb *Toolbox) registerUpload(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "mission_upload",
		Description: "Upload a resume PDF from a local path. Returns the resume id used by the other tools.",
		InputSchema: inputSchema(map[string]any{
			"path":       str("Path to the resume PDF"),
			"user_email": str("Email sent with the upload, defaults to the signed-in identity"),
			"user_name":  str("Name sent with the upload"),
		}, []string{"path"}),
	}
	addTool(tb, srv, tool, func(ctx context.Context, in *uploadArgs) (any, error) {
		file, err := utils.LoadResume(in.Path, tb.maxUpload)
		if err != nil {
			return nil, err
		}
		req := tb.uploadAs
		req.Filename = file.Name
		if in.UserEmail != "" {
			req.UserEmail = in.UserEmail
		}
		if in.UserName != "" {
			req.UserName = in.UserName
		}
		return tb.api.Upload(ctx, file, req)
	})
}

// --- mission_optimize ---

type optimizeArgs struct {
	formatted
	ResumeID       string `json:"resume_id"`
	JobDescription string `json:"job_description"`
}

// optimizeOutput is the pipeline result with the ATS panel and the balance left
type optimizeOutput struct {
	Credits int                       `json:"credits"`
	ATS     panels.ATSView            `json:"ats"`
	Result  *types.OptimizationResult `json:"result"`
}

func (o optimizeOutput) textView() any { return o.ATS }

func (tb *Toolbox) registerOptimize(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "mission_optimize",
		Description: "Run the full agent pipeline for an uploaded resume against a job description. Costs one credit.",
		InputSchema: inputSchema(map[string]any{
			"resume_id":       str("Resume id returned by mission_upload"),
			"job_description": str("The job posting to optimize against"),
		}, []string{"resume_id", "job_description"}),
	}
	addTool(tb, srv, tool, func(ctx context.Context, in *optimizeArgs) (any, error) {
		if tb.gate == nil {
			return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "no account store is configured", nil)
		}
		session, err := tb.gate.Resolve(ctx, tb.identity)
		if err != nil {
			return nil, err
		}

		m := mission.New(tb.api, session, tb.logger)
		defer m.Close()
		if err := m.BindResume(types.ResumeHandle{ResumeID: in.ResumeID}); err != nil {
			return nil, err
		}
		result, err := m.StartOptimization(ctx, in.JobDescription)
		if err != nil {
			return nil, err
		}

		credits, err := session.Reconcile(ctx)
		if err != nil {
			tb.logger.LogError(err, "Failed to reconcile credits", "resume_id", in.ResumeID)
		}
		return optimizeOutput{
			Credits: credits,
			ATS:     panels.NewATSView(result, in.ResumeID, tb.api),
			Result:  result,
		}, nil
	})
}

// --- mission_grade ---

type gradeArgs struct {
	formatted
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	ModelAnswer string `json:"model_answer"`
	Category    string `json:"category"`
}

func (tb *Toolbox) registerGrade(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "mission_grade",
		Description: "Grade an interview answer. Returns a score out of 10, a verdict and coaching notes.",
		InputSchema: inputSchema(map[string]any{
			"question":     str("The interview question"),
			"answer":       str("The candidate's answer"),
			"model_answer": str("Optional reference answer"),
			"category":     str("technical, behavioral, situational, gap_probe or leadership"),
		}, []string{"question", "answer"}),
	}
	addTool(tb, srv, tool, func(ctx context.Context, in *gradeArgs) (any, error) {
		if strings.TrimSpace(in.Answer) == "" {
			return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "answer is empty", nil)
		}
		return tb.api.Grade(ctx, types.GradeRequest{
			Question:    in.Question,
			UserAnswer:  in.Answer,
			ModelAnswer: in.ModelAnswer,
			Category:    in.Category,
		})
	})
}

// --- mission_spyglass ---

type spyglassArgs struct {
	formatted
	ResumeID string `json:"resume_id"`
	Tab      string `json:"tab"`
}

func (tb *Toolbox) registerSpyglass(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "mission_spyglass",
		Description: "Show who viewed a resume: recent events, locations and a daily timeline.",
		InputSchema: inputSchema(map[string]any{
			"resume_id": str("Resume id returned by mission_upload"),
			"tab":       map[string]any{"type": "string", "enum": []string{"events", "geo", "timeline"}},
		}, []string{"resume_id"}),
	}
	addTool(tb, srv, tool, func(ctx context.Context, in *spyglassArgs) (any, error) {
		panel := panels.NewSpyglassPanel()
		if in.Tab != "" {
			if err := panel.SetTab(panels.Tab(strings.ToLower(in.Tab))); err != nil {
				return nil, err
			}
		}
		stats, err := tb.api.Spyglass(ctx, in.ResumeID)
		if err != nil {
			return nil, err
		}
		return panel.Render(stats, time.Now()), nil
	})
}

// --- mission_chat ---

type chatArgs struct {
	formatted
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	ResumeID  string `json:"resume_id"`
}

func (tb *Toolbox) registerChat(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "mission_chat",
		Description: "Send one message to the orchestrator. Pass the returned session_id to continue the conversation.",
		InputSchema: inputSchema(map[string]any{
			"message":    str("The message"),
			"session_id": str("Session id from a previous reply"),
			"resume_id":  str("Resume the conversation is about"),
		}, []string{"message"}),
	}
	addTool(tb, srv, tool, func(ctx context.Context, in *chatArgs) (any, error) {
		if strings.TrimSpace(in.Message) == "" {
			return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "message is empty", nil)
		}
		return tb.api.Chat(ctx, types.ChatRequest{
			Message:   strings.TrimSpace(in.Message),
			SessionID: in.SessionID,
			ResumeID:  in.ResumeID,
		})
	})
}

// --- mission_courses ---

type coursesArgs struct {
	formatted
	ResumeID string `json:"resume_id"`
}

func (tb *Toolbox) registerCourses(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "mission_courses",
		Description: "Recommend courses that close the resume's skill gaps, most urgent first.",
		InputSchema: inputSchema(map[string]any{
			"resume_id": str("Resume id returned by mission_upload"),
		}, []string{"resume_id"}),
	}
	addTool(tb, srv, tool, func(ctx context.Context, in *coursesArgs) (any, error) {
		return panels.RefreshCourses(ctx, tb.api, in.ResumeID)
	})
}

// --- mission_health ---

type healthArgs struct {
	formatted
}

func (tb *Toolbox) registerHealth(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "mission_health",
		Description: "Probe the agent backend: ONLINE, DEGRADED or OFFLINE with latency.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	addTool(tb, srv, tool, func(ctx context.Context, _ *healthArgs) (any, error) {
		return tb.api.Probe(ctx), nil
	})
}
