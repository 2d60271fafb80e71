package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/internal/service/analysis"
	"github.com/sf-ghc-rreddy/OpenflowHealthDashboard/pkg/jwt"
)

type authContextKey string

const contextKeySession authContextKey = "openflow-session"

type contextSetter interface {
	SetContext(context.Context)
}

// requireSession ensures the request carries a valid session token before invoking the handler.
func (r *Router) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureSession(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureSession validates the session token and enriches the context.
// Streaming endpoints cannot set headers, so the token may also arrive
// as a query parameter.
func (r *Router) ensureSession(w http.ResponseWriter, req *http.Request) (context.Context, *analysis.Session, bool) {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		if q := strings.TrimSpace(req.URL.Query().Get("token")); q != "" {
			token, err = q, nil
		}
	}
	if err != nil {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "session token required")
		return req.Context(), nil, false
	}
	claims, err := jwt.Parse(token, r.sessionSecret)
	if err != nil {
		r.logger.Warn("session token validation failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "invalid session token")
		return req.Context(), nil, false
	}
	session, ok := r.sessions.Get(claims.SessionID)
	if !ok {
		r.logger.Warn("session not found", "session_id", claims.SessionID, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "session expired or removed")
		return req.Context(), nil, false
	}
	ctx := context.WithValue(req.Context(), contextKeySession, session)
	return ctx, session, true
}

// sessionFromContext extracts the analysis session from context.
func sessionFromContext(ctx context.Context) (*analysis.Session, bool) {
	value := ctx.Value(contextKeySession)
	if value == nil {
		return nil, false
	}
	session, ok := value.(*analysis.Session)
	return session, ok
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
