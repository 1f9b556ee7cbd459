// Package valuation implements the heuristic SaaS valuation used by the
// wizard. Compute is pure: every lookup has a default, so malformed enum input
// never fails.
package valuation

import (
	"math"
	"sort"
)

const baseMultiple = 2.0

// Best-in-class multipliers used for the optimized valuation.
const (
	bestGrowth        = 1.6
	bestChurn         = 1.3
	bestProfitability = 1.4
	bestMarketGravity = 1.3
	bestCAC           = 1.3
)

const defaultBucketMultiplier = 0.9

var churnMultipliers = map[string]float64{
	ChurnUnder2:    1.3,
	Churn2To5:      1.1,
	Churn5To10:     0.9,
	Churn10To15:    0.7,
	ChurnOver15:    0.5,
	ChurnDontTrack: 0.8,
}

var profitabilityMultipliers = map[string]float64{
	ProfitableOver20: 1.4,
	Profitable0To20:  1.2,
	Breakeven:        1.0,
	BurningModerate:  0.85,
	BurningHeavy:     0.7,
}

var marketGravityMultipliers = map[string]float64{
	GravityMassiveMagnet: 1.3,
	GravityStrongPull:    1.15,
	GravityModeratePull:  1.0,
	GravityWeakPull:      0.85,
	GravityNoPull:        0.7,
}

// multiplierRange is the known [min, max] of each dimension, used for scores.
var multiplierRange = map[Dimension][2]float64{
	DimensionGrowth:        {0.4, 2.0},
	DimensionChurn:         {0.5, 1.3},
	DimensionProfitability: {0.7, 1.4},
	DimensionMarketGravity: {0.7, 1.3},
	DimensionCAC:           {0.7, 1.3},
}

var bestMultipliers = map[Dimension]float64{
	DimensionGrowth:        bestGrowth,
	DimensionChurn:         bestChurn,
	DimensionProfitability: bestProfitability,
	DimensionMarketGravity: bestMarketGravity,
	DimensionCAC:           bestCAC,
}

// Compute scores a record.
func Compute(r Record) Result {
	m := MultipliersFor(r)
	scale := r.ARR * baseMultiple

	current := scale * m.product()
	optimized := scale * bestGrowth * bestChurn * bestProfitability * bestMarketGravity * bestCAC * m.BusinessModel
	median := scale

	opps := opportunities(scale, m)
	res := Result{
		CurrentValuation:   current,
		OptimizedValuation: optimized,
		MedianValuation:    median,
		VsMedian:           percentDelta(current, median),
		VsOptimal:          percentDelta(current, optimized),
		Multipliers:        m,
		Scores:             scoresFor(m),
		Opportunities:      opps,
	}
	if len(opps) > 0 {
		res.BiggestOpportunity = opps[0]
	}
	return res
}

// MultipliersFor resolves every multiplier for a record.
func MultipliersFor(r Record) Multipliers {
	return Multipliers{
		Growth:        GrowthMultiplier(r.QoQGrowthRate / 100),
		Churn:         lookup(churnMultipliers, r.RevenueChurn),
		Profitability: lookup(profitabilityMultipliers, r.Profitability),
		MarketGravity: lookup(marketGravityMultipliers, r.MarketGravity),
		CACEfficiency: CACEfficiency(r.CAC, r.ARR, r.CACContext),
		BusinessModel: businessModelMultiplier(r.BusinessModel),
	}
}

// GrowthMultiplier maps a fractional growth rate onto the seven growth bands.
// Bands are half-open: a boundary value belongs to the band it starts.
func GrowthMultiplier(g float64) float64 {
	switch {
	case g < -0.10:
		return 0.4
	case g < 0:
		return 0.6
	case g < 0.20:
		return 0.8
	case g < 0.40:
		return 1.0
	case g < 0.60:
		return 1.3
	case g < 1.00:
		return 1.6
	default:
		return 2.0
	}
}

// CACEfficiency rates CAC against monthly revenue. Unknown context, zero CAC
// or zero ARR yield the neutral 1.0.
func CACEfficiency(cac, arr float64, context string) float64 {
	if cac <= 0 || arr <= 0 || context == "" || context == CACContextUnknown {
		return 1.0
	}
	ratio := (cac / 12) / (arr / 12)
	switch {
	case ratio < 0.10:
		return 1.3
	case ratio < 0.25:
		return 1.15
	case ratio < 0.50:
		return 1.0
	case ratio < 1.00:
		return 0.85
	default:
		return 0.7
	}
}

func businessModelMultiplier(model string) float64 {
	if model == BusinessModelB2B {
		return 1.1
	}
	return 0.9
}

func lookup(table map[string]float64, bucket string) float64 {
	if v, ok := table[bucket]; ok {
		return v
	}
	return defaultBucketMultiplier
}

func opportunities(scale float64, m Multipliers) []Opportunity {
	out := make([]Opportunity, 0, len(Dimensions))
	for _, d := range Dimensions {
		cur := m.Get(d)
		best := bestMultipliers[d]
		out = append(out, Opportunity{
			Dimension: d,
			Current:   cur,
			Best:      best,
			Impact:    scale * (best - cur),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Impact > out[j].Impact })
	return out
}

func scoresFor(m Multipliers) Scores {
	return Scores{
		Growth:        Score(DimensionGrowth, m.Growth),
		Churn:         Score(DimensionChurn, m.Churn),
		Profitability: Score(DimensionProfitability, m.Profitability),
		MarketGravity: Score(DimensionMarketGravity, m.MarketGravity),
		CACEfficiency: Score(DimensionCAC, m.CACEfficiency),
	}
}

// Score rescales a multiplier linearly onto 1-5 over the dimension's range.
func Score(d Dimension, multiplier float64) int {
	rng, ok := multiplierRange[d]
	if !ok || rng[1] <= rng[0] {
		return 3
	}
	v := 1 + 4*(multiplier-rng[0])/(rng[1]-rng[0])
	v = math.Round(v)
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return int(v)
}

func percentDelta(v, ref float64) float64 {
	if ref == 0 {
		return 0
	}
	return (v - ref) / ref * 100
}
