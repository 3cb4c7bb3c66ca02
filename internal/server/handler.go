package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"missioncontrol/internal/account"
	mcErrors "missioncontrol/internal/errors"
	"missioncontrol/internal/panels"
	"missioncontrol/internal/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName          = "missioncontrol.api"
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	multipartMemory     = 1 << 20
)

var timeNow = time.Now

// startSpan opens a handler span tagged with the workspace when there is one
func (s *Server) startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	ctx, span := s.Observability.Tracer(tracerName).Start(r.Context(), name)
	if ws := r.PathValue("ws"); ws != "" {
		span.SetAttributes(attribute.String("workspace.id", ws))
	}
	return ctx, span
}

// fail records err on the span and writes the error response
func (s *Server) fail(w http.ResponseWriter, r *http.Request, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if appErr, ok := mcErrors.As(err); ok {
		span.SetAttributes(
			attribute.String("error.type", string(appErr.Type)),
			attribute.String("error.code", appErr.Code))
	}
	s.writeError(w, r, err)
}

// identityOf returns the identity the auth middleware attached
func identityOf(r *http.Request) account.Identity {
	id, _ := account.IdentityFrom(r.Context())
	return id
}

// workspace looks up the caller's workspace from the {ws} path value
func (s *Server) workspace(w http.ResponseWriter, r *http.Request, span trace.Span) (*Workspace, bool) {
	ws, err := s.Workspaces.Get(r.PathValue("ws"), identityOf(r))
	if err != nil {
		s.fail(w, r, span, err)
		return nil, false
	}
	return ws, true
}

// accountHandler returns the caller's account, creating it on first sight
func (s *Server) accountHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.account")
	defer span.End()

	acc, err := s.Gate.Account(ctx, identityOf(r))
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	s.writeJSON(w, http.StatusOK, acc)
}

// missionsHandler lists the caller's recent missions with analytics
func (s *Server) missionsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.account.missions")
	defer span.End()

	// Validation
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.fail(w, r, span, mcErrors.NewValidationError(mcErrors.ErrCodeInvalidRequest, "limit must be a positive integer", err))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	id := identityOf(r)
	if _, err := s.Gate.Account(ctx, id); err != nil {
		s.fail(w, r, span, err)
		return
	}
	history, err := s.Gate.History(ctx, id.ID, limit)
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}

// createWorkspaceHandler opens a workspace for the caller
func (s *Server) createWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.workspace.create")
	defer span.End()

	ws, err := s.newWorkspace(ctx, identityOf(r))
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	s.Workspaces.Add(ws)
	span.SetAttributes(attribute.String("workspace.id", ws.ID))
	s.writeJSON(w, http.StatusCreated, ws.Info())
}

// getWorkspaceHandler returns the workspace summary
func (s *Server) getWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "api.workspace.get")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, ws.Info())
}

// deleteWorkspaceHandler closes the workspace and settles its pending credits
func (s *Server) deleteWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "api.workspace.delete")
	defer span.End()

	if err := s.Workspaces.Remove(r.PathValue("ws"), identityOf(r)); err != nil {
		s.fail(w, r, span, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// uploadHandler handles resume upload requests
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.workspace.upload")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}

	// Read the uploaded file
	name, data, err := readUpload(r)
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	span.SetAttributes(attribute.String("file.name", name), attribute.Int("file.size", len(data)))

	// Validate, forward and bind
	handle, err := ws.Upload(ctx, name, data)
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"handle":  handle,
		"mission": ws.Machine.Snapshot(),
	})
}

// readUpload extracts the "file" part of a multipart form
func readUpload(r *http.Request) (string, []byte, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return "", nil, mcErrors.NewValidationError(mcErrors.ErrCodeInvalidFile, "file is too large", err).
				WithContext("limit_bytes", maxBytesErr.Limit)
		}
		return "", nil, mcErrors.NewValidationError(mcErrors.ErrCodeInvalidRequest, "expected a multipart form", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, mcErrors.NewValidationError(mcErrors.ErrCodeMissingResume, "form field \"file\" is required", err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, mcErrors.NewIOError(mcErrors.ErrCodeFileNotReadable, "failed to read uploaded file", err)
	}
	return header.Filename, data, nil
}

// optimizeHandler handles optimization requests. Costs one credit.
func (s *Server) optimizeHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.workspace.optimize")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	// Parse request
	var req OptimizeRequest
	if err := parseJSONRequest(r, &req); err != nil {
		s.fail(w, r, span, err)
		return
	}

	// Run the pipeline
	result, err := ws.Optimize(ctx, req.JobDescription)
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"mission": ws.Machine.Snapshot(),
		"result":  result,
	})
}

// selectAgentHandler switches the rendered agent panel
func (s *Server) selectAgentHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.workspace.view")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	agent := types.AgentID(strings.ToUpper(r.PathValue("agent")))
	if err := ws.Machine.SelectAgentView(ctx, agent); err != nil {
		s.fail(w, r, span, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ws.Machine.Snapshot())
}

// resetHandler clears the mission back to the upload stage
func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "api.workspace.reset")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	ws.Machine.Reset()
	s.writeJSON(w, http.StatusOK, ws.Machine.Snapshot())
}

// panelHandler renders one agent panel
func (s *Server) panelHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "api.workspace.panel")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	view, err := ws.Panel(types.AgentID(strings.ToUpper(r.PathValue("agent"))))
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	s.writeFormatted(w, r, span, view)
}

// writeFormatted answers with JSON, or with the ?format= rendering of v
func (s *Server) writeFormatted(w http.ResponseWriter, r *http.Request, span trace.Span, v any) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	// JSON needs no formatter
	if format == "" || format == "json" {
		s.writeJSON(w, http.StatusOK, v)
		return
	}
	if !slices.Contains(s.Formatters.GetSupportedFormats(), format) {
		s.fail(w, r, span, mcErrors.NewValidationError(mcErrors.ErrCodeInvalidFormat, "unsupported format", nil).
			WithContext("format", format).
			WithContext("supported", s.Formatters.GetSupportedFormats()))
		return
	}

	// Render and pick the content type
	out, err := s.Formatters.Format(v, format)
	if err != nil {
		s.fail(w, r, span, mcErrors.NewInternalError(mcErrors.ErrCodeInvalidFormat, "failed to render panel", err))
		return
	}

	contentType := "text/plain; charset=utf-8"
	switch format {
	case "markdown":
		contentType = "text/markdown; charset=utf-8"
	case "yaml":
		contentType = "application/yaml"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, out)
}

// atsSourceHandler returns the optimized LaTeX source
func (s *Server) atsSourceHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "api.ats.source")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	src, err := ws.ATSSource()
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-latex; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, src)
}

// atsPDFHandler returns the download link for the optimized PDF
func (s *Server) atsPDFHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "api.ats.pdf")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	link, err := ws.ATSDownload()
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"download_url": link})
}

// interviewSelectHandler selects an interview question
func (s *Server) interviewSelectHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "api.interview.select")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	var req SelectQuestionRequest
	if err := parseJSONRequest(r, &req); err != nil {
		s.fail(w, r, span, err)
		return
	}
	panel := ws.Interview()
	if err := panel.Select(req.Index); err != nil {
		s.fail(w, r, span, err)
		return
	}
	s.writeJSON(w, http.StatusOK, panel.View())
}

// interviewAnswerHandler stores the draft answer
func (s *Server) interviewAnswerHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "api.interview.answer")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	var req AnswerRequest
	if err := parseJSONRequest(r, &req); err != nil {
		s.fail(w, r, span, err)
		return
	}
	panel := ws.Interview()
	panel.SetAnswer(req.Answer)
	s.writeJSON(w, http.StatusOK, panel.View())
}

// interviewSubmitHandler sends the draft answer for grading
func (s *Server) interviewSubmitHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.interview.submit")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	panel := ws.Interview()
	if _, err := panel.SubmitAnswer(ctx); err != nil {
		s.fail(w, r, span, err)
		return
	}
	s.writeJSON(w, http.StatusOK, panel.View())
}

// interviewModelAnswerHandler toggles the model answer
func (s *Server) interviewModelAnswerHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "api.interview.model_answer")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	panel := ws.Interview()
	panel.ToggleModelAnswer()
	s.writeJSON(w, http.StatusOK, panel.View())
}

// interviewRegenerateHandler replaces the interview questions
func (s *Server) interviewRegenerateHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.interview.regenerate")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	view, err := ws.RegenerateQuestions(ctx)
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// ghostwriterRegenerateHandler asks for a post in another tone
func (s *Server) ghostwriterRegenerateHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.ghostwriter.regenerate")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	// An empty body keeps the default tone
	var req ToneRequest
	if r.ContentLength != 0 {
		if err := parseJSONRequest(r, &req); err != nil {
			s.fail(w, r, span, err)
			return
		}
	}
	view, err := ws.RegeneratePost(ctx, req.Tone)
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// ghostwriterBlockHandler returns one copyable ghostwriter block as plain text
func (s *Server) ghostwriterBlockHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "api.ghostwriter.block")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	view, err := ws.Panel(types.AgentGhostwriter)
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	// Extract the requested block
	text, err := view.(panels.GhostwriterView).Text(panels.Block(r.PathValue("block")))
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}

// affiliateRefreshHandler reloads the course recommendations on request
func (s *Server) affiliateRefreshHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.affiliate.refresh")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	view, err := ws.RefreshCourses(ctx)
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// spyglassRefreshHandler fetches spyglass stats now
func (s *Server) spyglassRefreshHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.spyglass.refresh")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	stats, err := ws.Spyglass.Refresh(ctx)
	if err != nil && stats == nil {
		s.fail(w, r, span, err)
		return
	}
	if err != nil {
		// The last good snapshot is still shown
		span.RecordError(err)
	}
	s.writeJSON(w, http.StatusOK, ws.SpyglassTab.Render(stats, timeNow()))
}

// spyglassTabHandler switches the spyglass tab
func (s *Server) spyglassTabHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "api.spyglass.tab")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	var req TabRequest
	if err := parseJSONRequest(r, &req); err != nil {
		s.fail(w, r, span, err)
		return
	}
	if err := ws.SpyglassTab.SetTab(panels.Tab(strings.ToLower(req.Tab))); err != nil {
		s.fail(w, r, span, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ws.SpyglassTab.Render(ws.Spyglass.Snapshot().Stats, timeNow()))
}

// chatTranscriptHandler returns the chat transcript
func (s *Server) chatTranscriptHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "api.chat.transcript")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	s.writeFormatted(w, r, span, ws.Chat.Transcript())
}

// chatSendHandler sends one chat turn
func (s *Server) chatSendHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.startSpan(r, "api.chat.send")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	// Parse request
	var req ChatRequest
	if err := parseJSONRequest(r, &req); err != nil {
		s.fail(w, r, span, err)
		return
	}
	reply, err := ws.Chat.Send(ctx, req.Message)
	if err != nil {
		s.fail(w, r, span, err)
		return
	}
	span.SetAttributes(attribute.String("chat.agent", string(reply.Agent)))
	s.writeJSON(w, http.StatusOK, map[string]any{
		"reply":      reply,
		"transcript": ws.Chat.Transcript(),
	})
}

// chatMinimizeHandler minimizes or restores the chat overlay
func (s *Server) chatMinimizeHandler(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "api.chat.minimize")
	defer span.End()

	ws, ok := s.workspace(w, r, span)
	if !ok {
		return
	}
	var req MinimizeRequest
	if err := parseJSONRequest(r, &req); err != nil {
		s.fail(w, r, span, err)
		return
	}
	ws.Chat.SetMinimized(req.Minimized)
	s.writeJSON(w, http.StatusOK, ws.Chat.Transcript())
}
