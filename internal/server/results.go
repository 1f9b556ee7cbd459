package server

import (
	"fmt"
	"html"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/joelkehle/valuation-wizard/internal/report"
	"github.com/joelkehle/valuation-wizard/internal/sharelink"
	"github.com/joelkehle/valuation-wizard/internal/valuation"
	"github.com/joelkehle/valuation-wizard/internal/wizard"
)

const noResultsHTML = "<h1>No results found</h1><p>This link is incomplete or has expired. " +
	"Run the valuation again to get a fresh report.</p>"

// resolveReport finds the snapshot for this request, robust link first, then
// legacy link, then the visitor's stored state.
func (s *Server) resolveReport(w http.ResponseWriter, r *http.Request) (report.Input, sharelink.Source, bool) {
	sess, _ := s.open(w, r)
	snap, source, ok := sharelink.Resolve(r.URL.Query(), s.decoders, sess.Snapshot)
	if !ok {
		return report.Input{}, source, false
	}
	in := report.Input{
		Record:      snap.Record,
		Result:      valuation.Compute(snap.Record),
		GeneratedAt: snap.GeneratedAt(),
	}
	if s.insight != nil {
		c, err := s.insight.Commentary(r.Context(), in.Record, in.Result)
		if err != nil {
			s.log.Warn("report commentary unavailable", zap.Error(err))
		}
		in.Commentary = c
	}
	return in, source, true
}

func reportTitle(in report.Input) string {
	if c := strings.TrimSpace(in.Record.CompanyName); c != "" {
		return c + " valuation"
	}
	return "SaaS valuation"
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	in, source, ok := s.resolveReport(w, r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if !ok {
		css, _ := s.styles.CSS()
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(report.Page("No results found", noResultsHTML, css, "")))
		return
	}
	doc, err := report.RenderPage(reportTitle(in), report.Markdown(in), s.styles)
	if err != nil {
		s.log.Error("render results page", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<p>" + html.EscapeString("failed to render results") + "</p>"))
		return
	}
	s.log.Debug("results served", zap.String("source", string(source)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

func (s *Server) handleResultsPDF(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	if s.pdf == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "pdf renderer unavailable"})
		return
	}
	in, _, ok := s.resolveReport(w, r)
	if !ok {
		writeError(w, wizard.NewNotFoundError("no results found for this link"), nil)
		return
	}
	title := reportTitle(in)
	pdf, err := s.pdf.Render(r.Context(), title, report.Markdown(in))
	if err != nil {
		s.log.Error("render results pdf", zap.Error(err))
		writeError(w, wizard.NewInternalError("failed to render pdf"), nil)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sanitizeFilename(title)+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func sanitizeFilename(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "valuation"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, v)
}
