package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
)

// Validator is the part of goSession.Engine that Guard needs.
type Validator interface {
	Validate(ctx context.Context, wireValue string) (*goSession.AuthResult, error)
}

type authResultContextKey struct{}

// AuthResultFromContext returns the result Guard stored for this request.
func AuthResultFromContext(ctx context.Context) (*goSession.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*goSession.AuthResult)
	return res, ok
}

// IdentityFromContext returns the authenticated identity, or "".
func IdentityFromContext(ctx context.Context) string {
	res, ok := AuthResultFromContext(ctx)
	if !ok || res == nil {
		return ""
	}
	return res.Identity
}

// WithAuthResult stores res in ctx the way Guard does.
func WithAuthResult(ctx context.Context, res *goSession.AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

// Guard rejects requests without a valid session. Missing or
// unauthenticated credentials get 401; an unavailable credential store
// gets 503. A nil extract uses DefaultExtractor.
func Guard(v Validator, extract Extractor) func(http.Handler) http.Handler {
	if extract == nil {
		extract = DefaultExtractor()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				WriteMessage(w, http.StatusServiceUnavailable, "Authentication unavailable.")
				return
			}

			wire, ok := extract(r)
			if !ok {
				WriteMessage(w, http.StatusUnauthorized, "No token provided.")
				return
			}

			res, err := v.Validate(r.Context(), wire)
			if err != nil {
				if errors.Is(err, goSession.ErrUpstreamUnavailable) || errors.Is(err, goSession.ErrEngineNotReady) {
					WriteMessage(w, http.StatusServiceUnavailable, "Authentication unavailable.")
					return
				}
				WriteMessage(w, http.StatusUnauthorized, "Invalid or expired token.")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthResult(r.Context(), res)))
		})
	}
}

// WriteMessage writes {"message": msg} with the given status.
func WriteMessage(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"message": msg})
}

// WriteJSON writes v as the JSON response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
