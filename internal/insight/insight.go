// Package insight writes short commentary for a valuation result, either
// with an LLM or from fixed per-dimension advice.
package insight

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/joelkehle/valuation-wizard/internal/valuation"
)

// Writer produces markdown commentary for one result.
type Writer interface {
	Commentary(ctx context.Context, r valuation.Record, res valuation.Result) (string, error)
}

var advice = map[valuation.Dimension]string{
	valuation.DimensionGrowth:        "Growth carries the most weight in the formula. Expansion revenue from existing accounts is usually the cheapest lever.",
	valuation.DimensionChurn:         "Cutting monthly churn compounds: every retained dollar keeps paying. Start with the first 90 days of onboarding.",
	valuation.DimensionProfitability: "Buyers pay more for efficient growth. Trimming burn without stalling growth lifts this multiplier directly.",
	valuation.DimensionMarketGravity: "Brand pull lowers acquisition cost over time. Referral loops and integrations strengthen it.",
	valuation.DimensionCAC:           "Acquisition cost is high relative to ARR. Tighten targeting before scaling paid channels.",
}

// StaticWriter builds commentary from the ranked opportunities.
type StaticWriter struct{}

func (StaticWriter) Commentary(_ context.Context, _ valuation.Record, res valuation.Result) (string, error) {
	var lines []string
	for _, o := range res.Opportunities {
		if o.Impact <= 0 {
			continue
		}
		lines = append(lines, "- "+advice[o.Dimension])
		if len(lines) == 2 {
			break
		}
	}
	if len(lines) == 0 {
		return "Every dimension is at or above best in class. Keep doing what you are doing.", nil
	}
	return strings.Join(lines, "\n"), nil
}

// Fallback tries Primary and uses Secondary when it fails or returns nothing.
type Fallback struct {
	Primary   Writer
	Secondary Writer
	Logger    *zap.Logger
}

func (f Fallback) Commentary(ctx context.Context, r valuation.Record, res valuation.Result) (string, error) {
	if f.Primary != nil {
		out, err := f.Primary.Commentary(ctx, r, res)
		if err == nil && strings.TrimSpace(out) != "" {
			return out, nil
		}
		if f.Logger != nil {
			f.Logger.Warn("commentary writer failed; using fallback", zap.Error(err))
		}
	}
	if f.Secondary == nil {
		return "", fmt.Errorf("no commentary writer available")
	}
	return f.Secondary.Commentary(ctx, r, res)
}
