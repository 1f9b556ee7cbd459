package wizard

import (
	"regexp"
	"strings"

	"github.com/joelkehle/valuation-wizard/internal/valuation"
)

// Step indexes the wizard screens.
type Step int

const (
	StepWelcome Step = iota
	StepBusinessModel
	StepARR
	StepGrowth
	StepRetention
	StepCAC
	StepProfitability
	StepMarketGravity
	StepContact
)

// MaxStep is the last collecting step; "next" there submits.
const MaxStep = int(StepContact)

// TotalSteps counts the collecting steps.
const TotalSteps = MaxStep + 1

var stepNames = [...]string{
	StepWelcome:       "welcome",
	StepBusinessModel: "business_model",
	StepARR:           "arr",
	StepGrowth:        "growth",
	StepRetention:     "retention",
	StepCAC:           "cac",
	StepProfitability: "profitability",
	StepMarketGravity: "market_gravity",
	StepContact:       "contact",
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return "unknown"
	}
	return stepNames[s]
}

// Growth input bounds, in percent.
const (
	MinGrowthRate = -250
	MaxGrowthRate = 250
)

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern   = regexp.MustCompile(`^\+?[0-9\s\-().]{7,20}$`)
	websitePattern = regexp.MustCompile(`(?i)^(https?://)?([a-z0-9]([a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}(:[0-9]{1,5})?(/\S*)?$`)
)

func validEmail(v string) bool { return emailPattern.MatchString(v) }

func validPhone(v string) bool {
	if !phonePattern.MatchString(v) {
		return false
	}
	digits := 0
	for _, c := range v {
		if c >= '0' && c <= '9' {
			digits++
		}
	}
	return digits >= 7
}

func validWebsite(v string) bool { return websitePattern.MatchString(v) }

const msgRequired = "this field is required"

// validateStep returns per-field messages for anything that blocks leaving
// step s. An empty map means the step is complete.
func validateStep(s Step, r valuation.Record) map[string]string {
	errs := map[string]string{}
	required := func(field, v string) {
		if strings.TrimSpace(v) == "" {
			errs[field] = msgRequired
		}
	}
	switch s {
	case StepBusinessModel:
		required("businessModel", r.BusinessModel)
	case StepARR:
		if r.ARR <= 0 {
			errs["arr"] = "enter your annual recurring revenue"
		}
	case StepRetention:
		required("revenueChurn", r.RevenueChurn)
		required("netRevenueRetention", r.NetRevenueRetention)
	case StepCAC:
		required("cacContext", r.CACContext)
		if r.CACContext != "" && r.CACContext != valuation.CACContextUnknown && r.CAC <= 0 {
			errs["cac"] = "enter your customer acquisition cost"
		}
	case StepProfitability:
		required("profitability", r.Profitability)
	case StepMarketGravity:
		required("marketGravity", r.MarketGravity)
	case StepContact:
		required("firstName", r.FirstName)
		required("companyName", r.CompanyName)
		switch email := strings.TrimSpace(r.Email); {
		case email == "":
			errs["email"] = msgRequired
		case !validEmail(email):
			errs["email"] = "enter a valid email address"
		}
		if p := strings.TrimSpace(r.Phone); p != "" && !validPhone(p) {
			errs["phone"] = "enter a valid phone number"
		}
		if w := strings.TrimSpace(r.Website); w != "" && !validWebsite(w) {
			errs["website"] = "enter a valid website"
		}
	}
	return errs
}
