package api

import (
	"fmt"
	"net/http"

	"github.com/astromechza/pixelwar/pkg/canvas"
)

// credential resolves an identifier that may arrive both as a query parameter and as a
// cookie. When both copies are present they must match. requireBoth demands both copies.
func credential(r *http.Request, name string, requireBoth bool, mismatch error) (string, error) {
	fromQuery := r.URL.Query().Get(name)
	var fromCookie string
	if c, err := r.Cookie(name); err == nil {
		fromCookie = c.Value
	}
	switch {
	case fromQuery == "" && fromCookie == "":
		return "", fmt.Errorf("%w: missing %s", mismatch, name)
	case requireBoth && (fromQuery == "" || fromCookie == ""):
		return "", fmt.Errorf("%w: %s must be sent as query parameter and cookie", mismatch, name)
	case fromQuery != "" && fromCookie != "" && fromQuery != fromCookie:
		return "", fmt.Errorf("%w: %s copies do not match", mismatch, name)
	case fromCookie != "":
		return fromCookie, nil
	default:
		return fromQuery, nil
	}
}

func tokenCredential(r *http.Request, requireBoth bool) (string, error) {
	return credential(r, keyCookie, requireBoth, canvas.ErrInvalidToken)
}

func userCredential(r *http.Request, requireBoth bool) (string, error) {
	return credential(r, idCookie, requireBoth, canvas.ErrUnknownUser)
}

func (s *Server) setCookie(w http.ResponseWriter, name, value string) {
	sameSite := http.SameSiteNoneMode
	if !s.opts.CookieSecure {
		// browsers reject SameSite=None without Secure
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   s.opts.CookieMaxAge,
		Secure:   s.opts.CookieSecure,
		SameSite: sameSite,
	})
}
