package middleware

import (
	"net/http"
	"strings"
)

var (
	corsAllowMethods  = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}, ", ")
	corsAllowHeaders  = strings.Join([]string{"Content-Type", "Authorization", "Idempotency-Key", RequestIDHeader}, ", ")
	corsExposeHeaders = strings.Join([]string{RequestIDHeader, ReplayHeader}, ", ")
)

// CORSMiddleware answers cross-origin requests from the storefront and
// dashboard front ends.
type CORSMiddleware struct {
	exact    map[string]struct{}
	suffixes []string
	allowAll bool
}

// NewCORSMiddleware creates a CORS middleware. "*" allows every origin and an
// entry starting with "." allows that domain's subdomains.
func NewCORSMiddleware(allowedOrigins []string) *CORSMiddleware {
	m := &CORSMiddleware{exact: make(map[string]struct{}, len(allowedOrigins))}
	for _, origin := range allowedOrigins {
		switch {
		case origin == "*":
			m.allowAll = true
		case strings.HasPrefix(origin, "."):
			m.suffixes = append(m.suffixes, origin)
		case origin != "":
			m.exact[strings.TrimSuffix(origin, "/")] = struct{}{}
		}
	}
	return m
}

func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && m.Allows(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			h.Set("Access-Control-Max-Age", "3600")
		}

		// Preflight never reaches the router.
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Allows reports whether origin may call the API.
func (m *CORSMiddleware) Allows(origin string) bool {
	if m.allowAll {
		return true
	}
	if _, ok := m.exact[origin]; ok {
		return true
	}
	for _, suffix := range m.suffixes {
		if strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}
