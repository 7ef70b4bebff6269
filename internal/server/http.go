package server

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// HTTPConfig assembles the server's single HTTP surface.
type HTTPConfig struct {
	// Sync is the WebSocket sync endpoint handler. Optional.
	Sync http.Handler
	// Health is the health endpoint handler. Optional.
	Health http.Handler
	// Metrics is the metrics scrape handler. Optional.
	Metrics http.Handler
	// AllowedOrigins lists Origin values allowed to reach the protocol
	// endpoint from a browser. "*" allows any.
	AllowedOrigins []string
}

// HTTPHandler mounts the streamable MCP endpoint at /mcp next to the sync
// channel and operational endpoints.
func (s *Server) HTTPHandler(cfg HTTPConfig) http.Handler {
	mux := http.NewServeMux()

	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
	mux.Handle("/mcp", corsMiddleware(cfg.AllowedOrigins, streamable))

	if cfg.Sync != nil {
		mux.Handle("/sync", cfg.Sync)
	}
	if cfg.Health != nil {
		mux.Handle("/healthz", cfg.Health)
		mux.Handle("/readyz", cfg.Health)
	}
	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics)
	}
	return mux
}

// corsMiddleware answers preflight requests and stamps allowed origins.
// Widgets render inside sandboxed iframes on the host's origin, so the
// protocol endpoint must opt in explicitly.
func corsMiddleware(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Mcp-Session-Id, Mcp-Protocol-Version, Last-Event-ID")
			w.Header().Set("Access-Control-Expose-Headers", "Mcp-Session-Id")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
