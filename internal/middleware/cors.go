package middleware

import "net/http"

// CORSMiddleware lets the dispatch web UI call the API from another
// origin. Origins are matched exactly; an empty allow list opens the
// API to any origin, which suits local development.
type CORSMiddleware struct {
	origins  map[string]bool
	allowAll bool
}

// NewCORSMiddleware builds the middleware from the configured origin
// allow list.
func NewCORSMiddleware(allowedOrigins ...string) *CORSMiddleware {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &CORSMiddleware{origins: origins, allowAll: len(allowedOrigins) == 0}
}

// Wrap adds the CORS headers and answers preflight requests before they
// reach the routed handler.
func (c *CORSMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && c.allowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *CORSMiddleware) allowed(origin string) bool {
	return c.allowAll || c.origins[origin] || c.origins["*"]
}
