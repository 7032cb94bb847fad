package transport

import "net/http"

// applyCORS sets the response headers every adapter's endpoints honor for
// preflight and actual requests, per §4.2.1/§4.2.3's CORS requirements.
func applyCORS(w http.ResponseWriter, r *http.Request, cfg Config) {
	origin := r.Header.Get("Origin")
	allow := ""
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			allow = "*"
			break
		}
		if o == origin {
			allow = origin
			break
		}
	}
	if allow != "" {
		w.Header().Set("Access-Control-Allow-Origin", allow)
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+cfg.SessionHeaderName)
	w.Header().Set("Access-Control-Expose-Headers", cfg.SessionHeaderName)
}

func handlePreflight(w http.ResponseWriter, r *http.Request, cfg Config) bool {
	if r.Method != http.MethodOptions {
		return false
	}
	applyCORS(w, r, cfg)
	w.WriteHeader(http.StatusNoContent)
	return true
}
