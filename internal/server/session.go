package server

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joelkehle/valuation-wizard/internal/hostbridge"
	"github.com/joelkehle/valuation-wizard/internal/statestore"
	"github.com/joelkehle/valuation-wizard/internal/wizard"
)

// VisitorCookie holds the opaque id addressing the visitor's durable slot.
const VisitorCookie = "valuation_wizard_visitor"

// open builds the tiered store for this request and opens a session on it.
func (s *Server) open(w http.ResponseWriter, r *http.Request) (*wizard.Session, *hostbridge.Outbox) {
	tiers := []statestore.Tier{statestore.NewCookieTier(w, r, s.cookie)}
	if s.kv != nil {
		id := s.visitorID(w, r)
		tiers = append(tiers, statestore.NewKVTier(r.Context(), s.kv, statestore.VisitorScope(id), s.cookie.Name, s.prefixes))
	}
	store := statestore.New(wizard.MaxStep, tiers, statestore.WithLogger(s.log), statestore.WithClock(s.now))
	out := hostbridge.NewOutbox()
	return s.wizard.Open(store, out), out
}

// visitorID returns the id from the visitor cookie, issuing a new one when
// it is missing or malformed.
func (s *Server) visitorID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(VisitorCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
		s.log.Debug("replacing malformed visitor id")
	}
	id := uuid.NewString()
	maxAge := s.cookie.MaxAge
	if maxAge <= 0 {
		maxAge = statestore.DefaultCookieMaxAge
	}
	ck := &http.Cookie{
		Name:     VisitorCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Expires:  s.now().Add(maxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if s.cookie.Secure {
		ck.Secure = true
		ck.SameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, ck)
	s.log.Debug("issued visitor id", zap.String("visitor", id))
	return id
}
