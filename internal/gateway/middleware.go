package gateway

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"
)

// contextKey avoids collisions with other packages' context values
type contextKey string

const actorContextKey contextKey = "actor_context"

// securityHeadersMiddleware adds security headers
func (s *Service) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs requests and responses
func (s *Service) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		recorder := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r)

		duration := time.Since(start)

		s.logger.HTTPRequest(r.Context(), r.Method, r.URL.Path, r.UserAgent(),
			clientIP(r), recorder.statusCode, duration.Milliseconds(), nil)
	})
}

// authMiddleware validates the bearer token and attaches the caller's
// access context, including request provenance, to the request context.
func (s *Service) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeErrorResponse(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.writeErrorResponse(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		actor, err := s.tokenValidator.ValidateJWT(parts[1])
		if err != nil {
			s.logger.WithError(err).Warn("Token validation failed")
			s.writeErrorResponse(w, http.StatusUnauthorized, "invalid token")
			return
		}

		// Request provenance travels with the actor into every audit entry.
		actor.IPAddress = clientIP(r)
		actor.UserAgent = r.UserAgent()

		ctx := context.WithValue(r.Context(), actorContextKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP extracts the originating client address
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// First address is the originating client
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseRecorder captures the response status code for logging
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code
func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
