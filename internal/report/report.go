// Package report renders the results view for a resolved share snapshot:
// markdown first, then HTML through goldmark or PDF through headless Chrome.
package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/joelkehle/valuation-wizard/internal/valuation"
)

// Input is everything one report needs.
type Input struct {
	Record      valuation.Record
	Result      valuation.Result
	GeneratedAt time.Time
	Commentary  string
}

const methodHeading = "How this estimate works"

var dimensionLabels = map[valuation.Dimension]string{
	valuation.DimensionGrowth:        "Growth",
	valuation.DimensionChurn:         "Revenue churn",
	valuation.DimensionProfitability: "Profitability",
	valuation.DimensionMarketGravity: "Market gravity",
	valuation.DimensionCAC:           "CAC efficiency",
}

var bucketLabels = map[string]string{
	valuation.ChurnUnder2:    "Under 2% monthly",
	valuation.Churn2To5:      "2-5% monthly",
	valuation.Churn5To10:     "5-10% monthly",
	valuation.Churn10To15:    "10-15% monthly",
	valuation.ChurnOver15:    "Over 15% monthly",
	valuation.ChurnDontTrack: "Not tracked",

	valuation.ProfitableOver20: "Profitable, 20%+ margin",
	valuation.Profitable0To20:  "Profitable, 0-20% margin",
	valuation.Breakeven:        "Breakeven",
	valuation.BurningModerate:  "Burning cash (moderate)",
	valuation.BurningHeavy:     "Burning cash (heavy)",

	valuation.GravityMassiveMagnet: "Massive magnet",
	valuation.GravityStrongPull:    "Strong pull",
	valuation.GravityModeratePull:  "Moderate pull",
	valuation.GravityWeakPull:      "Weak pull",
	valuation.GravityNoPull:        "No pull",

	valuation.RetentionOver120:  "Over 120%",
	valuation.Retention100To120: "100-120%",
	valuation.Retention90To100:  "90-100%",
	valuation.RetentionUnder90:  "Under 90%",

	valuation.CACContextPerCustomer: "per customer",
	valuation.CACContextBlended:     "blended",
	valuation.CACContextUnknown:     "unknown",

	valuation.BusinessModelB2B: "B2B",
	valuation.BusinessModelB2C: "B2C",
}

// DimensionLabel returns the display name of d.
func DimensionLabel(d valuation.Dimension) string {
	if l, ok := dimensionLabels[d]; ok {
		return l
	}
	return string(d)
}

func bucketLabel(v string) string {
	if v == "" {
		return "Not provided"
	}
	if l, ok := bucketLabels[v]; ok {
		return l
	}
	return v
}

// Markdown builds the report body.
func Markdown(in Input) string {
	r, res := in.Record, in.Result
	var b strings.Builder

	title := "Your SaaS valuation"
	if c := strings.TrimSpace(r.CompanyName); c != "" {
		title = c + " valuation"
	}
	fmt.Fprintf(&b, "# %s\n\n", escapeMarkdown(title))
	if name := strings.TrimSpace(r.FirstName + " " + r.LastName); name != "" {
		fmt.Fprintf(&b, "Prepared for **%s**", escapeMarkdown(name))
		if !in.GeneratedAt.IsZero() {
			fmt.Fprintf(&b, " on %s", in.GeneratedAt.UTC().Format("January 2, 2006"))
		}
		b.WriteString(".\n\n")
	}

	b.WriteString("## Estimate\n\n")
	b.WriteString("| | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Current valuation | %s |\n", FormatCurrency(res.CurrentValuation))
	fmt.Fprintf(&b, "| Optimized valuation | %s |\n", FormatCurrency(res.OptimizedValuation))
	fmt.Fprintf(&b, "| Median benchmark | %s |\n", FormatCurrency(res.MedianValuation))
	fmt.Fprintf(&b, "| vs. median | %s |\n", formatPercent(res.VsMedian))
	fmt.Fprintf(&b, "| vs. optimized | %s |\n\n", formatPercent(res.VsOptimal))

	b.WriteString("## Inputs\n\n")
	b.WriteString("| Metric | Answer |\n|---|---|\n")
	fmt.Fprintf(&b, "| ARR | %s |\n", FormatCurrency(r.ARR))
	fmt.Fprintf(&b, "| Quarter-over-quarter growth | %s |\n", formatPercent(r.QoQGrowthRate))
	fmt.Fprintf(&b, "| Net revenue retention | %s |\n", bucketLabel(r.NetRevenueRetention))
	fmt.Fprintf(&b, "| Revenue churn | %s |\n", bucketLabel(r.RevenueChurn))
	cac := "Not provided"
	if r.CAC > 0 {
		cac = FormatCurrency(r.CAC) + " " + bucketLabel(r.CACContext)
	}
	fmt.Fprintf(&b, "| CAC | %s |\n", cac)
	fmt.Fprintf(&b, "| Profitability | %s |\n", bucketLabel(r.Profitability))
	fmt.Fprintf(&b, "| Market gravity | %s |\n", bucketLabel(r.MarketGravity))
	fmt.Fprintf(&b, "| Business model | %s |\n\n", bucketLabel(r.BusinessModel))

	b.WriteString("## Scorecard\n\n")
	b.WriteString("| Dimension | Multiplier | Score |\n|---|---|---|\n")
	for _, d := range valuation.Dimensions {
		m := res.Multipliers.Get(d)
		fmt.Fprintf(&b, "| %s | %s | %s |\n", DimensionLabel(d), formatMultiplier(m), scoreBar(valuation.Score(d, m)))
	}
	b.WriteString("\n")

	if len(res.Opportunities) > 0 {
		top := res.BiggestOpportunity
		b.WriteString("## Biggest opportunity\n\n")
		if top.Impact > 0 {
			fmt.Fprintf(&b, "Moving **%s** to best in class (%s → %s) is worth about **%s**.\n\n",
				DimensionLabel(top.Dimension), formatMultiplier(top.Current), formatMultiplier(top.Best), FormatCurrency(top.Impact))
		} else {
			b.WriteString("Every dimension is already at or above best in class.\n\n")
		}
		b.WriteString("| Rank | Dimension | Current | Best | Impact |\n|---|---|---|---|---|\n")
		for i, o := range res.Opportunities {
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
				i+1, DimensionLabel(o.Dimension), formatMultiplier(o.Current), formatMultiplier(o.Best), FormatCurrency(o.Impact))
		}
		b.WriteString("\n")
	}

	if c := strings.TrimSpace(in.Commentary); c != "" {
		b.WriteString("## Commentary\n\n")
		b.WriteString(c)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "## %s\n\n", methodHeading)
	b.WriteString("The estimate starts from ARR × 2.0 and applies one multiplier each for growth, churn, " +
		"profitability, market gravity, CAC efficiency and business model. The optimized figure swaps in " +
		"best-in-class multipliers; the median benchmark holds every multiplier at 1.0. " +
		"It is a heuristic, not an appraisal.\n")
	return b.String()
}

// RenderHTML converts markdown to an HTML fragment.
func RenderHTML(markdown string) (string, error) {
	var out strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &out); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return out.String(), nil
}

// FormatCurrency renders v as whole dollars with thousands separators.
func FormatCurrency(v float64) string {
	neg := v < 0
	s := strconv.FormatFloat(math.Abs(math.Round(v)), 'f', 0, 64)
	var b strings.Builder
	if neg && s != "0" {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

func formatPercent(v float64) string {
	s := strconv.FormatFloat(v, 'f', 1, 64)
	if v > 0 {
		s = "+" + s
	}
	return s + "%"
}

func formatMultiplier(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + "×"
}

func scoreBar(score int) string {
	return strings.Repeat("●", score) + strings.Repeat("○", 5-score) + " " + strconv.Itoa(score) + "/5"
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`, "<", "&lt;", ">", "&gt;", "|", `\|`, "#", `\#`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
