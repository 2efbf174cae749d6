package middleware

import (
	"net/http"
	"time"
)

// CookieOptions controls the session cookie attributes. The zero value
// yields the cross-site defaults: HttpOnly, Secure, SameSite=None.
type CookieOptions struct {
	Name     string
	Path     string
	Domain   string
	Insecure bool
	SameSite http.SameSite
}

func (o CookieOptions) base() *http.Cookie {
	c := &http.Cookie{
		Name:     o.Name,
		Path:     o.Path,
		Domain:   o.Domain,
		HttpOnly: true,
		Secure:   !o.Insecure,
		SameSite: o.SameSite,
	}
	if c.Name == "" {
		c.Name = DefaultCookieName
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if c.SameSite == 0 {
		c.SameSite = http.SameSiteNoneMode
	}
	// Browsers drop SameSite=None cookies that are not Secure.
	if c.SameSite == http.SameSiteNoneMode && !c.Secure {
		c.SameSite = http.SameSiteLaxMode
	}
	return c
}

// SetSessionCookie writes the session credential with Max-Age equal to
// lifetime.
func SetSessionCookie(w http.ResponseWriter, wire string, lifetime time.Duration, opts CookieOptions) {
	c := opts.base()
	c.Value = wire
	c.MaxAge = int(lifetime / time.Second)
	http.SetCookie(w, c)
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, opts CookieOptions) {
	c := opts.base()
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	http.SetCookie(w, c)
}
