package middleware

import "net/http"

// RequireAllowListed admits only identities on ids. It must run behind
// Guard; requests without an authenticated identity are refused too.
func RequireAllowListed(ids []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			if _, ok := allowed[id]; !ok || id == "" {
				WriteMessage(w, http.StatusForbidden, "Access denied. Admin privileges required.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
