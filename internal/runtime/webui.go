package runtime

import (
	"net/http"
	"strings"

	"github.com/drblury/sockflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/sockflow/internal/runtime/logging"
)

// StartWebUIServer mounts the introspection API when enabled. The routes
// endpoint serves the route table with live per-event stats.
func (s *Service) StartWebUIServer() {
	if !s.Conf.WebUIEnabled {
		return
	}
	s.RegisterHTTPHandler(s.Conf.GetWebUIPort(), "/api/routes", http.HandlerFunc(s.handleGetRoutes))
}

func (s *Service) handleGetRoutes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if len(s.Conf.WebUICORSAllowedOrigins) > 0 {
		if origin := s.allowedCORSOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := jsoncodec.Encode(w, s.Routes()); err != nil {
		s.Logger.Error("encode route listing", err, loggingpkg.LogFields{
			"path": r.URL.Path,
		})
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// allowedCORSOrigin echoes the request origin when the allow list matches
// it, or "*" when the list holds the wildcard. Empty means disallowed.
func (s *Service) allowedCORSOrigin(origin string) string {
	for _, allowed := range s.Conf.WebUICORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}
