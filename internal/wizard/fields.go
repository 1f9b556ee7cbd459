package wizard

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/joelkehle/valuation-wizard/internal/valuation"
)

var enumValues = map[string][]string{
	"businessModel": {valuation.BusinessModelB2B, valuation.BusinessModelB2C},
	"netRevenueRetention": {
		valuation.RetentionOver120, valuation.Retention100To120, valuation.Retention90To100,
		valuation.RetentionUnder90, valuation.RetentionDontTrack,
	},
	"revenueChurn": {
		valuation.ChurnUnder2, valuation.Churn2To5, valuation.Churn5To10,
		valuation.Churn10To15, valuation.ChurnOver15, valuation.ChurnDontTrack,
	},
	"profitability": {
		valuation.ProfitableOver20, valuation.Profitable0To20, valuation.Breakeven,
		valuation.BurningModerate, valuation.BurningHeavy,
	},
	"marketGravity": {
		valuation.GravityMassiveMagnet, valuation.GravityStrongPull, valuation.GravityModeratePull,
		valuation.GravityWeakPull, valuation.GravityNoPull,
	},
	"cacContext": {valuation.CACContextPerCustomer, valuation.CACContextBlended, valuation.CACContextUnknown},
}

func enumField(r *valuation.Record, name string) *string {
	switch name {
	case "businessModel":
		return &r.BusinessModel
	case "netRevenueRetention":
		return &r.NetRevenueRetention
	case "revenueChurn":
		return &r.RevenueChurn
	case "profitability":
		return &r.Profitability
	case "marketGravity":
		return &r.MarketGravity
	case "cacContext":
		return &r.CACContext
	}
	return nil
}

func textField(r *valuation.Record, name string) *string {
	switch name {
	case "firstName":
		return &r.FirstName
	case "lastName":
		return &r.LastName
	case "email":
		return &r.Email
	case "phone":
		return &r.Phone
	case "companyName":
		return &r.CompanyName
	case "website":
		return &r.Website
	}
	return nil
}

// applyFields sets the named record fields from loosely typed input. Either
// every field applies or none does.
func applyFields(r valuation.Record, fields map[string]any) (valuation.Record, map[string]string) {
	errs := map[string]string{}
	for name, raw := range fields {
		switch name {
		case "arr", "cac":
			v, err := toNumber(raw)
			if err != nil {
				errs[name] = err.Error()
				continue
			}
			v = math.Max(v, 0)
			if name == "arr" {
				r.ARR = v
			} else {
				r.CAC = v
			}
		case "qoqGrowthRate":
			v, err := toNumber(raw)
			if err != nil {
				errs[name] = err.Error()
				continue
			}
			if v < MinGrowthRate || v > MaxGrowthRate {
				errs[name] = fmt.Sprintf("must be between %d and %d", MinGrowthRate, MaxGrowthRate)
				continue
			}
			r.QoQGrowthRate = v
		default:
			if p := enumField(&r, name); p != nil {
				s, ok := raw.(string)
				if raw != nil && !ok {
					errs[name] = "must be a string"
					continue
				}
				s = strings.TrimSpace(s)
				if s != "" && !slices.Contains(enumValues[name], s) {
					errs[name] = "choose one of the listed options"
					continue
				}
				*p = s
				continue
			}
			if p := textField(&r, name); p != nil {
				s, ok := raw.(string)
				if raw != nil && !ok {
					errs[name] = "must be a string"
					continue
				}
				*p = strings.TrimSpace(s)
				continue
			}
			errs[name] = "unknown field"
		}
	}
	return r, errs
}

func toNumber(raw any) (float64, error) {
	var v float64
	switch x := raw.(type) {
	case nil:
		return 0, nil
	case float64:
		v = x
	case int:
		v = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("must be a number")
		}
		v = f
	case string:
		s := strings.NewReplacer(",", "", "$", "", "%", "", " ", "").Replace(x)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("must be a number")
		}
		v = f
	default:
		return 0, fmt.Errorf("must be a number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("must be a number")
	}
	return v, nil
}
