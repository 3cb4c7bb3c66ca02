package server

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"missioncontrol/internal/account"
	mcErrors "missioncontrol/internal/errors"
	"missioncontrol/internal/observability"
)

// route is one entry of the HTTP surface
type route struct {
	pattern string
	handler http.HandlerFunc
	summary string
	public  bool
}

// routes is the whole HTTP surface
func (s *Server) routes() []route {
	return []route{
		{"GET /health", s.healthHandler, "Health check with backend probe", true},
		{"GET /stats", s.statsHandler, "Server statistics", true},

		{"GET /api/account", s.accountHandler, "Account and credits", false},
		{"GET /api/account/missions", s.missionsHandler, "Mission history and analytics", false},

		{"POST /api/workspaces", s.createWorkspaceHandler, "Open a workspace", false},
		{"GET /api/workspaces/{ws}", s.getWorkspaceHandler, "Mission snapshot", false},
		{"DELETE /api/workspaces/{ws}", s.deleteWorkspaceHandler, "Close a workspace", false},
		{"POST /api/workspaces/{ws}/upload", s.uploadHandler, "Upload a resume PDF", false},
		{"POST /api/workspaces/{ws}/optimize", s.optimizeHandler, "Run the agent pipeline", false},
		{"POST /api/workspaces/{ws}/view/{agent}", s.selectAgentHandler, "Switch the active panel", false},
		{"POST /api/workspaces/{ws}/reset", s.resetHandler, "Start over", false},
		{"GET /api/workspaces/{ws}/panels/{agent}", s.panelHandler, "Rendered panel (?format=json|text|markdown|yaml)", false},

		{"GET /api/workspaces/{ws}/ats/source", s.atsSourceHandler, "Optimized LaTeX source", false},
		{"GET /api/workspaces/{ws}/ats/pdf", s.atsPDFHandler, "Optimized PDF link", false},

		{"POST /api/workspaces/{ws}/interview/select", s.interviewSelectHandler, "Select a question", false},
		{"POST /api/workspaces/{ws}/interview/answer", s.interviewAnswerHandler, "Update the draft answer", false},
		{"POST /api/workspaces/{ws}/interview/submit", s.interviewSubmitHandler, "Grade the answer", false},
		{"POST /api/workspaces/{ws}/interview/model-answer", s.interviewModelAnswerHandler, "Toggle the model answer", false},
		{"POST /api/workspaces/{ws}/interview/regenerate", s.interviewRegenerateHandler, "Generate new questions", false},

		{"POST /api/workspaces/{ws}/ghostwriter/regenerate", s.ghostwriterRegenerateHandler, "Rewrite the post in another tone", false},
		{"GET /api/workspaces/{ws}/ghostwriter/{block}", s.ghostwriterBlockHandler, "Copyable ghostwriter block", false},

		{"POST /api/workspaces/{ws}/affiliate/refresh", s.affiliateRefreshHandler, "Reload course recommendations", false},

		{"POST /api/workspaces/{ws}/spyglass/refresh", s.spyglassRefreshHandler, "Refresh view tracking now", false},
		{"POST /api/workspaces/{ws}/spyglass/tab", s.spyglassTabHandler, "Switch the spyglass sub-view", false},

		{"GET /api/workspaces/{ws}/chat", s.chatTranscriptHandler, "Chat transcript", false},
		{"POST /api/workspaces/{ws}/chat", s.chatSendHandler, "Send a chat message", false},
		{"POST /api/workspaces/{ws}/chat/minimize", s.chatMinimizeHandler, "Minimize or restore the chat", false},

		{"GET /ws/workspaces/{ws}", s.eventsHandler, "Websocket stream of workspace events", false},
	}
}

// setupRoutes configures all HTTP routes and middleware
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	traced := observability.ObservabilityMiddleware(s.Observability)

	for _, rt := range s.routes() {
		handler := rt.handler
		if !rt.public {
			handler = s.authMiddleware(s.rateLimitMiddleware(s.requestSizeLimitMiddleware(handler)))
		}
		mux.Handle(rt.pattern, traced(handler))
	}
	if path, metrics := s.Observability.MetricsHandler(); metrics != nil {
		mux.Handle("GET "+path, metrics)
	}
	return mux
}

// Handler returns the complete HTTP handler
func (s *Server) Handler() http.Handler {
	return s.Observability.HTTPMiddleware()(s.setupRoutes())
}

// authMiddleware resolves the caller's identity and stores it on the request context
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.authenticate(r)
		if err != nil {
			s.Logger.Info("Authentication failed",
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r),
				"reason", err.Error())
			s.writeError(w, r, err)
			return
		}

		s.Logger.Debug("Request authenticated",
			"endpoint", r.URL.Path,
			"identity_id", id.ID)
		next(w, r.WithContext(account.WithIdentity(r.Context(), id)))
	}
}

// authenticate checks, in order, a service API key, a bearer token, the websocket
// access_token query parameter and finally the development identity
func (s *Server) authenticate(r *http.Request) (account.Identity, error) {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return s.apiKeyIdentity(apiKey)
	}

	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if s.APIKeys[token] {
			return s.apiKeyIdentity(token)
		}
		return s.verify(token)
	}

	if strings.HasPrefix(r.URL.Path, "/ws/") {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return s.verify(token)
		}
	}

	if s.Verifier != nil {
		if dev, ok := s.Verifier.DevIdentity(); ok {
			return dev, nil
		}
	}
	return account.Identity{}, mcErrors.NewUnauthorizedError(mcErrors.ErrCodeUnauthorized,
		"X-API-Key header or Authorization Bearer token required", nil)
}

func (s *Server) verify(token string) (account.Identity, error) {
	if s.Verifier == nil {
		return account.Identity{}, mcErrors.NewUnauthorizedError(mcErrors.ErrCodeUnauthorized, "token verification is not configured", nil)
	}
	return s.Verifier.Verify(token)
}

// apiKeyIdentity maps a configured service key to a stable identity that never contains the key
func (s *Server) apiKeyIdentity(apiKey string) (account.Identity, error) {
	if !s.APIKeys[apiKey] {
		s.Logger.Info("Invalid API key", "api_key_prefix", maskAPIKey(apiKey))
		return account.Identity{}, mcErrors.NewUnauthorizedError(mcErrors.ErrCodeUnauthorized, "invalid API key", nil)
	}
	sum := sha256.Sum256([]byte(apiKey))
	return account.Identity{
		ID:   "apikey:" + hex.EncodeToString(sum[:8]),
		Name: "service " + maskAPIKey(apiKey),
	}, nil
}

// requestSizeLimitMiddleware limits the size of incoming requests
func (s *Server) requestSizeLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.MaxRequestSize > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestSize)
		}
		next(w, r)
	}
}

// maskAPIKey masks an API key for logging (shows only first 8 characters)
func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "****"
	}
	return apiKey[:8] + "****"
}
