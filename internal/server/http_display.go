package server

import (
	"fmt"
	"io"
	"os"
)

// displayServerInfo shows server configuration information
func (s *Server) displayServerInfo() {
	s.displayServerInfoTo(os.Stdout)
}

func (s *Server) displayServerInfoTo(w io.Writer) {
	s.displayListenInfo(w)
	s.displayEndpoints(w)
	s.displayAuthInfo(w)
	s.displayRequestLimitInfo(w)
	s.displayRateLimitInfo(w)
}

func (s *Server) displayListenInfo(w io.Writer) {
	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)
	switch s.TLSConfig.Mode {
	case TLSModeServer:
		_, _ = fmt.Fprintf(w, "Starting server with HTTPS on https://%s\n", addr)
	case TLSModeMutual:
		_, _ = fmt.Fprintf(w, "Starting server with mTLS on https://%s (client certificates: %s)\n", addr, s.getClientAuthPolicy())
	default:
		_, _ = fmt.Fprintf(w, "Starting server on http://%s\n", addr)
	}
	if s.TLSConfig.Mode == TLSModeServer || s.TLSConfig.Mode == TLSModeMutual {
		if s.TLSConfig.Reload.Enabled {
			_, _ = fmt.Fprintln(w, "TLS reload: ENABLED")
		} else {
			_, _ = fmt.Fprintln(w, "TLS reload: DISABLED")
		}
	}
}

// displayEndpoints lists the routes from the route table
func (s *Server) displayEndpoints(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Available endpoints:")
	for _, rt := range s.routes() {
		suffix := ""
		if !rt.public {
			suffix = " (requires identity)"
		}
		_, _ = fmt.Fprintf(w, "  %-60s - %s%s\n", rt.pattern, rt.summary, suffix)
	}
}

// displayAuthInfo shows authentication configuration
func (s *Server) displayAuthInfo(w io.Writer) {
	if len(s.APIKeys) > 0 {
		_, _ = fmt.Fprintf(w, "Service API keys: %d configured (X-API-Key header)\n", len(s.APIKeys))
	}
	if s.Verifier != nil {
		if dev, ok := s.Verifier.DevIdentity(); ok {
			_, _ = fmt.Fprintf(w, "WARNING: development identity %q is used for unauthenticated requests\n", dev.ID)
		}
	}
}

// displayRequestLimitInfo shows request size limit configuration
func (s *Server) displayRequestLimitInfo(w io.Writer) {
	if s.MaxRequestSize > 0 {
		_, _ = fmt.Fprintf(w, "Request size limit: %d bytes (%.1f MB)\n", s.MaxRequestSize, float64(s.MaxRequestSize)/(1024*1024))
	} else {
		_, _ = fmt.Fprintln(w, "Request size limit: DISABLED")
	}
}

// displayRateLimitInfo shows rate limiting configuration
func (s *Server) displayRateLimitInfo(w io.Writer) {
	if s.RateLimit == nil || !s.RateLimit.Enabled {
		_, _ = fmt.Fprintln(w, "Rate limiting: DISABLED")
		return
	}
	_, _ = fmt.Fprintf(w, "Rate limiting: ENABLED (%d requests/min, burst: %d)\n",
		s.RateLimit.RequestsPerMin, s.RateLimit.BurstCapacity)
	if s.RateLimit.ByIdentity {
		_, _ = fmt.Fprintln(w, "  - Per identity rate limiting enabled")
	}
	if s.RateLimit.ByIP {
		_, _ = fmt.Fprintln(w, "  - Per IP address rate limiting enabled")
	}
}
