package backend

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"missioncontrol/internal/config"
	"missioncontrol/internal/errors"
	"missioncontrol/internal/types"
	"missioncontrol/internal/utils"
)

// API is the full set of backend operations
type API interface {
	Upload(ctx context.Context, file *utils.ResumeFile, req types.UploadRequest) (*types.ResumeHandle, error)
	Optimize(ctx context.Context, req types.OptimizeRequest) (*types.OptimizationResult, error)
	Grade(ctx context.Context, req types.GradeRequest) (*types.GradeResult, error)
	Spyglass(ctx context.Context, resumeID string) (*types.SpyglassStats, error)
	Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error)
	Courses(ctx context.Context, resumeID string) (*types.AffiliateSection, error)
	GenerateQuestions(ctx context.Context, req types.QuestionsRequest) (*types.InterviewSection, error)
	LinkedInPost(ctx context.Context, req types.LinkedInRequest) (*types.GhostwriterSection, error)
	PDFLink(resumeID string) string
	Probe(ctx context.Context) types.ProbeResult
}

var _ API = (*Client)(nil)

// invalid wraps a request validation failure; no call is made
func invalid(err error) error {
	return errors.NewValidationError(errors.ErrCodeInvalidRequest, "invalid request", err)
}

// Upload sends a resume PDF as multipart form data
func (c *Client) Upload(ctx context.Context, file *utils.ResumeFile, req types.UploadRequest) (*types.ResumeHandle, error) {
	if file == nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidFile, "no resume file given", nil)
	}
	if req.Filename == "" {
		req.Filename = file.Name
	}
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	if _, err := utils.ValidateResume(file.Name, file.Data, c.maxUploadSize); err != nil {
		return nil, err
	}

	body := func() (io.Reader, string, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", req.Filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", err
		}
		if err := w.WriteField("user_email", req.UserEmail); err != nil {
			return nil, "", err
		}
		if err := w.WriteField("user_name", req.UserName); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &buf, w.FormDataContentType(), nil
	}

	data, err := c.call(ctx, config.OperationUpload, http.MethodPost, "/api/resume/upload", body)
	if err != nil {
		return nil, err
	}
	handle, err := decode[types.ResumeHandle](config.OperationUpload, data)
	if err != nil {
		return nil, err
	}
	if handle.ResumeID == "" {
		return nil, errors.NewMalformedError(errors.ErrCodeMalformedResponse, "upload response carried no resume_id", nil)
	}
	return handle, nil
}

// Optimize runs the full multi-agent pipeline
func (c *Client) Optimize(ctx context.Context, req types.OptimizeRequest) (*types.OptimizationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	data, err := c.call(ctx, config.OperationOptimize, http.MethodPost, "/api/optimize", jsonBody(req))
	if err != nil {
		return nil, err
	}
	c.auditShape(config.OperationOptimize, optimizeSchemaLoader, data)
	return decode[types.OptimizationResult](config.OperationOptimize, data)
}

// Grade scores an interview answer
func (c *Client) Grade(ctx context.Context, req types.GradeRequest) (*types.GradeResult, error) {
	if req.Category == "" {
		req.Category = string(types.CategoryTechnical)
	}
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	data, err := c.call(ctx, config.OperationGrade, http.MethodPost, "/api/interview/grade", jsonBody(req))
	if err != nil {
		return nil, err
	}
	return decode[types.GradeResult](config.OperationGrade, data)
}

// Spyglass fetches the view tracking stats for a resume
func (c *Client) Spyglass(ctx context.Context, resumeID string) (*types.SpyglassStats, error) {
	if strings.TrimSpace(resumeID) == "" {
		return nil, errors.NewValidationError(errors.ErrCodeMissingResume, "resume id is required", nil)
	}
	data, err := c.call(ctx, config.OperationSpyglass, http.MethodGet, "/api/spyglass/"+url.PathEscape(resumeID), nil)
	if err != nil {
		return nil, err
	}
	c.auditShape(config.OperationSpyglass, spyglassSchemaLoader, data)
	return decode[types.SpyglassStats](config.OperationSpyglass, data)
}

// Chat sends one chat turn to the orchestrator
func (c *Client) Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	data, err := c.call(ctx, config.OperationChat, http.MethodPost, "/api/chat", jsonBody(req))
	if err != nil {
		return nil, err
	}
	return decode[types.ChatResponse](config.OperationChat, data)
}

// Courses fetches affiliate course recommendations for a resume
func (c *Client) Courses(ctx context.Context, resumeID string) (*types.AffiliateSection, error) {
	if strings.TrimSpace(resumeID) == "" {
		return nil, errors.NewValidationError(errors.ErrCodeMissingResume, "resume id is required", nil)
	}
	data, err := c.call(ctx, config.OperationCourses, http.MethodGet, "/api/affiliate/courses/"+url.PathEscape(resumeID), nil)
	if err != nil {
		return nil, err
	}
	return decode[types.AffiliateSection](config.OperationCourses, data)
}

// GenerateQuestions asks the interviewer agent for a fresh question set
func (c *Client) GenerateQuestions(ctx context.Context, req types.QuestionsRequest) (*types.InterviewSection, error) {
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	data, err := c.call(ctx, config.OperationQuestions, http.MethodPost, "/api/interview/generate", jsonBody(req))
	if err != nil {
		return nil, err
	}
	return decode[types.InterviewSection](config.OperationQuestions, data)
}

// LinkedInPost asks the ghostwriter for a post in the given tone
func (c *Client) LinkedInPost(ctx context.Context, req types.LinkedInRequest) (*types.GhostwriterSection, error) {
	if req.Tone == "" {
		req.Tone = "humble_brag"
	}
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	data, err := c.call(ctx, config.OperationPosts, http.MethodPost, "/api/ghostwriter/linkedin", jsonBody(req))
	if err != nil {
		return nil, err
	}
	return decode[types.GhostwriterSection](config.OperationPosts, data)
}

// PDFLink builds the download URL for the optimized PDF. It makes no request.
func (c *Client) PDFLink(resumeID string) string {
	return c.baseURL + "/api/resume/" + url.PathEscape(resumeID) + "/pdf"
}

// Health reads the backend's health document
func (c *Client) Health(ctx context.Context) (*types.HealthStatus, error) {
	data, err := c.call(ctx, config.OperationHealth, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	return decode[types.HealthStatus](config.OperationHealth, data)
}

// Probe classifies the backend as ONLINE, DEGRADED or OFFLINE
func (c *Client) Probe(ctx context.Context) types.ProbeResult {
	start := time.Now()
	status, err := c.Health(ctx)
	latency := time.Since(start)

	if err != nil {
		return types.ProbeResult{State: types.ProbeOffline, Latency: latency, Error: err.Error()}
	}

	result := types.ProbeResult{
		State:   types.ProbeOnline,
		Latency: latency,
		Version: status.Version,
		Agents:  status.Agents,
	}
	degradedAfter := c.health.DegradedAfter
	if !strings.EqualFold(status.Status, "online") || (degradedAfter > 0 && latency > degradedAfter) {
		result.State = types.ProbeDegraded
	}
	return result
}
