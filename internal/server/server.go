// Package server exposes the wizard over HTTP: a JSON API driven by the
// iframe script, the results pages, and the static wizard assets.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joelkehle/valuation-wizard/internal/hostbridge"
	"github.com/joelkehle/valuation-wizard/internal/insight"
	"github.com/joelkehle/valuation-wizard/internal/report"
	"github.com/joelkehle/valuation-wizard/internal/sharelink"
	"github.com/joelkehle/valuation-wizard/internal/statestore"
	"github.com/joelkehle/valuation-wizard/internal/wizard"
)

// Deps wires the server. KV, PDF and Insight are optional.
type Deps struct {
	Wizard   *wizard.Service
	KV       statestore.KV
	Cookie   statestore.CookieConfig
	Prefixes []string
	WebDir   string
	Styles   *report.Styles
	PDF      report.PDFRenderer
	Insight  insight.Writer
	Logger   *zap.Logger
	Now      func() time.Time
}

type Server struct {
	wizard   *wizard.Service
	kv       statestore.KV
	cookie   statestore.CookieConfig
	prefixes []string
	webDir   string
	styles   *report.Styles
	pdf      report.PDFRenderer
	insight  insight.Writer
	decoders []sharelink.Decoder
	log      *zap.Logger
	now      func() time.Time
}

func New(d Deps) http.Handler {
	s := &Server{
		wizard:   d.Wizard,
		kv:       d.KV,
		cookie:   d.Cookie,
		prefixes: d.Prefixes,
		webDir:   d.WebDir,
		styles:   d.Styles,
		pdf:      d.PDF,
		insight:  d.Insight,
		log:      d.Logger,
		now:      d.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.styles == nil {
		s.styles = report.NewStyles(d.WebDir)
	}
	if s.cookie.Name == "" {
		s.cookie.Name = "valuation_wizard_state"
	}
	s.decoders = sharelink.DefaultDecoders(s.log)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/fields", s.handleFields)
	mux.HandleFunc("/api/next", s.handleNext)
	mux.HandleFunc("/api/back", s.handleBack)
	mux.HandleFunc("/api/reveal", s.handleReveal)
	mux.HandleFunc("/api/clear", s.handleClear)
	mux.Handle("/api/host/ready", hostbridge.ReadyHandler(s.log))
	mux.HandleFunc("/results", s.handleResults)
	mux.HandleFunc("/results/pdf", s.handleResultsPDF)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError renders err with the host messages queued so far; a wizard
// rejection still carries the notifications it produced.
func writeError(w http.ResponseWriter, err error, out *hostbridge.Outbox) {
	body := map[string]any{}
	status := http.StatusInternalServerError
	var we *wizard.Error
	if errors.As(err, &we) {
		status = we.Status
		body["error"] = we.Message
		body["code"] = we.Code
		if len(we.Fields) > 0 {
			body["fields"] = we.Fields
		}
	} else {
		body["error"] = err.Error()
		body["code"] = wizard.CodeInternal
	}
	if out != nil {
		body["hostMessages"] = out.Drain()
	}
	writeJSON(w, status, body)
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

type stateResponse struct {
	State        wizard.View          `json:"state"`
	Submission   *submissionSummary   `json:"submission,omitempty"`
	HostMessages []hostbridge.Message `json:"hostMessages"`
}

type submissionSummary struct {
	ID         string          `json:"id"`
	Queued     bool            `json:"queued"`
	ShareLinks sharelink.Links `json:"shareLinks"`
}

func (s *Server) respond(w http.ResponseWriter, sess *wizard.Session, out *hostbridge.Outbox, sub *wizard.Submission) {
	resp := stateResponse{State: sess.View(), HostMessages: out.Drain()}
	if sub != nil {
		resp.Submission = &submissionSummary{ID: sub.ID, Queued: sub.Queued, ShareLinks: sub.Links}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	sess, out := s.open(w, r)
	sess.Seed(r.URL.Query())
	s.respond(w, sess, out, nil)
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Fields map[string]any `json:"fields"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json: " + err.Error(), "code": wizard.CodeValidation})
		return
	}
	sess, out := s.open(w, r)
	if err := sess.Update(req.Fields); err != nil {
		writeError(w, err, out)
		return
	}
	s.respond(w, sess, out, nil)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	sess, out := s.open(w, r)
	sub, err := sess.Next(r.Context())
	if err != nil {
		writeError(w, err, out)
		return
	}
	s.respond(w, sess, out, sub)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	sess, out := s.open(w, r)
	sess.Back()
	s.respond(w, sess, out, nil)
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	sess, out := s.open(w, r)
	if err := sess.Reveal(s.now()); err != nil {
		writeError(w, err, out)
		return
	}
	s.respond(w, sess, out, nil)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	sess, out := s.open(w, r)
	sess.Clear()
	s.respond(w, sess, out, nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	if r.URL.Path == "/" || r.URL.Path == "/index.html" {
		http.ServeFile(w, r, filepath.Join(s.webDir, "index.html"))
		return
	}
	rel := strings.TrimPrefix(filepath.Clean(r.URL.Path), "/")
	if _, err := fs.Stat(os.DirFS(s.webDir), rel); err == nil {
		http.ServeFile(w, r, filepath.Join(s.webDir, rel))
		return
	}
	http.NotFound(w, r)
}

func decodeBody(r *http.Request, dst any) error {
	blob, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(blob)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.UseNumber()
	return dec.Decode(dst)
}
