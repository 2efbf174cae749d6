package middleware

import (
	"net/http"
	"strings"
)

// DefaultCookieName is the cookie carrying the session credential.
const DefaultCookieName = "token"

// Extractor returns the wire credential carried by r, or false when there is
// none.
type Extractor func(r *http.Request) (string, bool)

// FromCookie reads the credential from the named cookie.
func FromCookie(name string) Extractor {
	return func(r *http.Request) (string, bool) {
		c, err := r.Cookie(name)
		if err != nil || c.Value == "" {
			return "", false
		}
		return c.Value, true
	}
}

// FromBearer reads the credential from an "Authorization: Bearer" header.
func FromBearer() Extractor {
	return func(r *http.Request) (string, bool) {
		return bearerToken(r.Header.Get("Authorization"))
	}
}

// FromHeader reads the credential verbatim from the named header.
func FromHeader(name string) Extractor {
	return func(r *http.Request) (string, bool) {
		v := strings.TrimSpace(r.Header.Get(name))
		return v, v != ""
	}
}

// FirstOf tries each extractor in order and returns the first credential
// found.
func FirstOf(extractors ...Extractor) Extractor {
	return func(r *http.Request) (string, bool) {
		for _, ex := range extractors {
			if ex == nil {
				continue
			}
			if v, ok := ex(r); ok {
				return v, true
			}
		}
		return "", false
	}
}

// DefaultExtractor accepts the session cookie first and falls back to a
// bearer header.
func DefaultExtractor() Extractor {
	return FirstOf(FromCookie(DefaultCookieName), FromBearer())
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
