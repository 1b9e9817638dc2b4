package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/thejerf/abtime"

	"go-identity-service/internal/middleware"
	"go-identity-service/internal/model"
)

// CredentialDelivery hands a session to the client twice: as an HttpOnly
// cookie for browsers and as a token in the JSON body for API clients.
type CredentialDelivery struct {
	cookieTTL   time.Duration
	forceSecure bool
	clock       abtime.AbstractTime
}

func NewCredentialDelivery(cookieDays int, secure bool, clock abtime.AbstractTime) *CredentialDelivery {
	if cookieDays <= 0 {
		cookieDays = 90
	}
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &CredentialDelivery{
		cookieTTL:   time.Duration(cookieDays) * 24 * time.Hour,
		forceSecure: secure,
		clock:       clock,
	}
}

// Deliver writes the session cookie and the token body. Without remember the
// cookie lasts only for the browser session.
func (d *CredentialDelivery) Deliver(w http.ResponseWriter, r *http.Request, status int, session model.Session, remember bool) {
	cookie := &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   d.secure(r),
		SameSite: http.SameSiteNoneMode,
	}
	if remember {
		cookie.Expires = d.clock.Now().Add(d.cookieTTL)
	}
	http.SetCookie(w, cookie)

	writeSuccess(w, status, model.SessionResponse{
		Token: session.Token,
		User:  session.Identity.Public(),
	}, nil)
}

// Clear expires the session cookie.
func (d *CredentialDelivery) Clear(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   d.secure(r),
		SameSite: http.SameSiteNoneMode,
		MaxAge:   -1,
	})
}

// secure reports whether the cookie may only travel over TLS. Browsers reject
// SameSite=None cookies without Secure outside localhost.
func (d *CredentialDelivery) secure(r *http.Request) bool {
	if d.forceSecure || r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
