package report

import (
	"context"
	"encoding/base64"
	"os"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// PDFRenderer turns report markdown into a PDF document.
type PDFRenderer interface {
	Render(ctx context.Context, title, markdown string) ([]byte, error)
}

const printCSS = "html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;} " +
	"body{background:#fff !important;} .report{max-width:none;padding:0;} " +
	`h2[data-page-break-before="true"]{break-before:page;page-break-before:always;} ` +
	`h2[data-highlight="true"]{color:#92400e;} ` +
	"@media print{ @page{size:auto;margin:12mm;} }"

// ChromiumPDFRenderer prints the HTML report with a headless Chrome.
type ChromiumPDFRenderer struct {
	styles     *Styles
	chromePath string
	timeout    time.Duration
}

func NewChromiumPDFRenderer(styles *Styles) *ChromiumPDFRenderer {
	return &ChromiumPDFRenderer{
		styles:     styles,
		chromePath: detectChromePath(),
		timeout:    30 * time.Second,
	}
}

// BuildHTML returns the print-ready document for markdown.
func (r *ChromiumPDFRenderer) BuildHTML(title, markdown string) (string, error) {
	fragment, err := RenderHTML(markdown)
	if err != nil {
		return "", err
	}
	css, err := r.styles.CSS()
	if err != nil {
		return "", err
	}
	return Page(title, applyPrintLayoutHooks(fragment), css, printCSS), nil
}

func (r *ChromiumPDFRenderer) Render(ctx context.Context, title, markdown string) ([]byte, error) {
	htmlDoc, err := r.BuildHTML(title, markdown)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
				`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.5).
				WithPaperHeight(11).
				WithMarginTop(0.5).
				WithMarginBottom(0.75).
				WithMarginLeft(0.5).
				WithMarginRight(0.5).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, err
	}
	return pdf, nil
}

func detectChromePath() string {
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
