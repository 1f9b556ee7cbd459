package statestore

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Cookie tier defaults.
const (
	DefaultCookieMaxBytes = 3800
	DefaultCookieMaxAge   = 180 * 24 * time.Hour
)

var ErrPayloadTooLarge = errors.New("statestore: payload exceeds cookie ceiling")

// CookieTier keeps the payload in a path-wide cookie bound to one request and
// its response. Reads see writes made earlier in the same request.
type CookieTier struct {
	w        http.ResponseWriter
	r        *http.Request
	name     string
	maxBytes int
	maxAge   time.Duration
	secure   bool
	now      func() time.Time

	pending *string
	removed bool
}

type CookieConfig struct {
	Name     string
	MaxBytes int
	MaxAge   time.Duration
	// Secure marks the cookie Secure and SameSite=None, required when the
	// wizard runs inside a third-party iframe over HTTPS.
	Secure bool
}

func NewCookieTier(w http.ResponseWriter, r *http.Request, cfg CookieConfig) *CookieTier {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultCookieMaxBytes
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultCookieMaxAge
	}
	return &CookieTier{
		w:        w,
		r:        r,
		name:     cfg.Name,
		maxBytes: cfg.MaxBytes,
		maxAge:   cfg.MaxAge,
		secure:   cfg.Secure,
		now:      time.Now,
	}
}

func (c *CookieTier) Name() string { return "cookie" }

func (c *CookieTier) Write(payload string) error {
	if len(payload) > c.maxBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(payload), c.maxBytes)
	}
	ck := c.cookie(payload, c.now().Add(c.maxAge), int(c.maxAge.Seconds()))
	if err := ck.Valid(); err != nil {
		return fmt.Errorf("statestore: invalid cookie: %w", err)
	}
	http.SetCookie(c.w, ck)
	c.pending = &payload
	c.removed = false
	return nil
}

func (c *CookieTier) Read() (string, bool, error) {
	if c.pending != nil {
		return *c.pending, true, nil
	}
	if c.removed {
		return "", false, nil
	}
	ck, err := c.r.Cookie(c.name)
	if errors.Is(err, http.ErrNoCookie) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if ck.Value == "" {
		return "", false, nil
	}
	return ck.Value, true, nil
}

// Remove expires the cookie.
func (c *CookieTier) Remove() error {
	http.SetCookie(c.w, c.cookie("", time.Unix(0, 0), -1))
	c.pending = nil
	c.removed = true
	return nil
}

func (c *CookieTier) cookie(value string, expires time.Time, maxAge int) *http.Cookie {
	ck := &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if c.secure {
		ck.Secure = true
		ck.SameSite = http.SameSiteNoneMode
	}
	return ck
}
