package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"eventsite/internal/logger"
	"eventsite/internal/security"
)

// Request context keys
type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	SessionKey   contextKey = "session_token"
)

// SessionCookie carries the session token.
const SessionCookie = "eventsite_session"

// Standard API error response
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id"`
}

// Standard API success response
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id"`
}

// Middleware chain for the public JSON endpoints
func APIMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return RequestID(
		Logging(
			ErrorHandling(next),
		),
	)
}

// RequestID middleware adds a unique request ID to each request
func RequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// Logging middleware logs every request with its status and duration
func Logging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := GetRequestID(r.Context())

		logger.LogDebug("Request %s started: %s %s from %s", requestID, r.Method, r.URL.Path, logger.GetClientIP(r))

		// Capture the status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		logger.LogInfo("Request %s completed: %s %s -> %d in %dms",
			requestID, r.Method, r.URL.Path, rw.statusCode, duration.Milliseconds())
	}
}

// ErrorHandling middleware recovers panics and answers with a 500
func ErrorHandling(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.LogError("Panic in handler (request %s, %s %s): %v",
					GetRequestID(r.Context()), r.Method, r.URL.Path, err)
				if wantsJSON(r) {
					WriteAPIError(w, r, http.StatusInternalServerError, "internal_error",
						"An internal error occurred", "")
					return
				}
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	}
}

// requestSession is the per-request session state. The token stays empty
// until the handler needs a session.
type requestSession struct {
	token    string
	sessions *security.SessionStore
	secure   bool
}

// Session puts the visitor's live session, if any, into the request
// context. No session is created here; see StartSession.
func Session(sessions *security.SessionStore, secure bool) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			rs := &requestSession{sessions: sessions, secure: secure}
			if c, err := r.Cookie(SessionCookie); err == nil && sessions.Valid(c.Value) {
				rs.token = c.Value
			}
			ctx := context.WithValue(r.Context(), SessionKey, rs)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
	}
}

// StartSession returns the request's session token, opening a session and
// setting its cookie on first use.
func StartSession(w http.ResponseWriter, r *http.Request) (string, error) {
	rs, ok := r.Context().Value(SessionKey).(*requestSession)
	if !ok {
		return "", errors.New("session middleware not installed")
	}
	if rs.token != "" {
		return rs.token, nil
	}
	token, err := rs.sessions.Start()
	if err != nil {
		return "", err
	}
	SetSessionCookie(w, token, rs.secure)
	rs.token = token
	return token, nil
}

// SetSessionCookie writes the session cookie; call it again after the
// token was rotated.
func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// AdminChecker reports whether a session belongs to a logged in admin.
type AdminChecker interface {
	IsAdmin(token string) bool
}

// RequireAdmin redirects anonymous sessions to loginPath.
func RequireAdmin(sessions AdminChecker, loginPath string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !sessions.IsAdmin(GetSession(r.Context())) {
				logger.LogWarn("Unauthorized %s %s from %s", r.Method, r.URL.Path, logger.GetClientIP(r))
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		}
	}
}

// Helper functions
func generateRequestID() string {
	id, err := gonanoid.New(12)
	if err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return id
}

// GetRequestID retrieves the request ID from the request context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetSession retrieves the session token from the request context. It is
// empty for visitors without a session.
func GetSession(ctx context.Context) string {
	if rs, ok := ctx.Value(SessionKey).(*requestSession); ok {
		return rs.token
	}
	return ""
}

func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

// WriteAPIError writes a standardized error response
func WriteAPIError(w http.ResponseWriter, r *http.Request, statusCode int, code, message, details string) {
	response := APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: GetRequestID(r.Context()),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// WriteAPISuccess writes a standardized success response
func WriteAPISuccess(w http.ResponseWriter, r *http.Request, data interface{}) {
	response := APIResponse{
		Success:   true,
		Data:      data,
		RequestID: GetRequestID(r.Context()),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
