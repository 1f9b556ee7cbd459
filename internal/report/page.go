package report

import (
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

const defaultCSS = `body{font-family:system-ui,-apple-system,"Segoe UI",sans-serif;color:#1c1917;background:#fafaf9;margin:0;}
.report{max-width:860px;margin:0 auto;padding:1.5rem;}
.report table{width:100%;border-collapse:collapse;margin:0.5rem 0 1.25rem;font-size:0.9rem;}
.report th,.report td{border:1px solid #d6d3d1;padding:0.4rem 0.55rem;text-align:left;vertical-align:top;}
.report thead th{background:#f5f5f4;}
.report h1{font-size:1.7rem;margin-bottom:0.25rem;}
.report h2{font-size:1.15rem;margin-top:1.75rem;border-bottom:1px solid #e7e5e4;padding-bottom:0.2rem;}`

// Styles loads style.css from a web directory once, falling back to a
// built-in sheet when the file is absent.
type Styles struct {
	webDir string
	once   sync.Once
	css    string
	err    error
}

func NewStyles(webDir string) *Styles {
	return &Styles{webDir: webDir}
}

func (s *Styles) CSS() (string, error) {
	s.once.Do(func() {
		if s.webDir == "" {
			s.css = defaultCSS
			return
		}
		b, err := os.ReadFile(filepath.Join(s.webDir, "style.css"))
		switch {
		case errors.Is(err, os.ErrNotExist):
			s.css = defaultCSS
		case err != nil:
			s.err = fmt.Errorf("read style.css: %w", err)
		default:
			s.css = string(b)
		}
	})
	return s.css, s.err
}

// Page wraps an HTML fragment in a standalone document.
func Page(title, fragment, css, extraCSS string) string {
	return "<!doctype html><html><head><meta charset='utf-8'>" +
		"<meta name='viewport' content='width=device-width,initial-scale=1'>" +
		"<title>" + html.EscapeString(title) + "</title>" +
		"<style>" + css + "\n" + extraCSS + "</style></head><body>" +
		"<main class='report'>" + fragment + "</main></body></html>"
}

// RenderPage converts markdown into a complete HTML document.
func RenderPage(title, markdown string, styles *Styles) (string, error) {
	fragment, err := RenderHTML(markdown)
	if err != nil {
		return "", err
	}
	css, err := styles.CSS()
	if err != nil {
		return "", err
	}
	return Page(title, fragment, css, ""), nil
}

var (
	reMethodHeading = regexp.MustCompile(`(?i)<h2([^>]*)>\s*` + regexp.QuoteMeta(methodHeading) + `\s*</h2>`)
	reTopHeading    = regexp.MustCompile(`(?i)<h2([^>]*)>\s*(Biggest opportunity)\s*</h2>`)
)

// applyPrintLayoutHooks marks headings that need print-only treatment.
func applyPrintLayoutHooks(contentHTML string) string {
	out := reMethodHeading.ReplaceAllString(contentHTML, `<h2$1 data-page-break-before="true">`+methodHeading+`</h2>`)
	return reTopHeading.ReplaceAllString(out, `<h2$1 data-highlight="true">$2</h2>`)
}
