// Package statestore persists wizard progress across reloads.
//
// State is written in a compact form (short keys, falsy values dropped,
// deflated, URL-safe base64) and kept in an ordered list of tiers: a cookie
// when the payload is small enough, then a durable key/value slot that also
// mirrors every successful write.
package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/joelkehle/valuation-wizard/internal/compact"
	"github.com/joelkehle/valuation-wizard/internal/valuation"
)

// FormatVersion tags every payload written by this package.
const FormatVersion = "2"

// Compact keys.
const (
	keyRecord      = "vd"
	keyStep        = "cs"
	keySubmitted   = "is"
	keyWaiting     = "srw"
	keyResults     = "sr"
	keySubmittedAt = "sa"
	keyVersion     = "v"
	keyWrittenAt   = "t"
	keyUTM         = "u"
	keySubmission  = "id"
)

var ErrCorrupt = errors.New("statestore: corrupt payload")

// WizardState is the record plus navigation and submission state.
type WizardState struct {
	Record             valuation.Record  `json:"record"`
	CurrentStep        int               `json:"currentStep"`
	IsSubmitted        bool              `json:"isSubmitted"`
	ShowResultsWaiting bool              `json:"showResultsWaiting"`
	ShowResults        bool              `json:"showResults"`
	SubmittedAt        *time.Time        `json:"submittedAt,omitempty"`
	FormatVersion      string            `json:"formatVersion"`
	UTM                map[string]string `json:"utm,omitempty"`
	// SubmissionID ties the state to its background webhook delivery.
	SubmissionID       string            `json:"submissionId,omitempty"`
}

// Encode renders st in the compact on-disk form.
func Encode(st WizardState, writtenAt time.Time) (string, error) {
	vd, err := toMap(st.Record)
	if err != nil {
		return "", err
	}
	dropFalsy(vd)

	out := map[string]any{
		keyRecord:     vd,
		keyStep:       st.CurrentStep,
		keySubmitted:  st.IsSubmitted,
		keyWaiting:    st.ShowResultsWaiting,
		keyResults:    st.ShowResults,
		keyVersion:    FormatVersion,
		keyWrittenAt:  writtenAt.UnixMilli(),
		keySubmission: st.SubmissionID,
	}
	if st.SubmittedAt != nil {
		out[keySubmittedAt] = st.SubmittedAt.UTC().Format(time.RFC3339Nano)
	}
	if len(st.UTM) > 0 {
		out[keyUTM] = st.UTM
	}
	dropFalsy(out)

	blob, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("statestore: marshal: %w", err)
	}
	return compact.Pack(blob)
}

// Decode rebuilds a fully populated state from a compact payload. Missing keys
// take their zero defaults and CurrentStep outside [0, maxStep] becomes 0.
func Decode(payload string, maxStep int) (WizardState, error) {
	blob, err := compact.Unpack(payload)
	if err != nil {
		return WizardState{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var m map[string]any
	if err := json.Unmarshal(blob, &m); err != nil || m == nil {
		return WizardState{}, ErrCorrupt
	}

	st := WizardState{
		CurrentStep:        clampStep(m[keyStep], maxStep),
		IsSubmitted:        truthy(m[keySubmitted]),
		ShowResultsWaiting: truthy(m[keyWaiting]),
		ShowResults:        truthy(m[keyResults]),
		SubmittedAt:        timeValue(m[keySubmittedAt]),
		FormatVersion:      stringValue(m[keyVersion]),
		SubmissionID:       stringValue(m[keySubmission]),
	}
	if st.FormatVersion == "" {
		st.FormatVersion = FormatVersion
	}
	vd, _ := m[keyRecord].(map[string]any)
	st.Record = recordFrom(vd)
	if u, ok := m[keyUTM].(map[string]any); ok {
		st.UTM = make(map[string]string, len(u))
		for k, v := range u {
			if s := stringValue(v); s != "" {
				st.UTM[k] = s
			}
		}
	}
	return st, nil
}

func recordFrom(m map[string]any) valuation.Record {
	return valuation.Record{
		ARR:                 nonNegative(numberValue(m["arr"])),
		NetRevenueRetention: stringValue(m["netRevenueRetention"]),
		RevenueChurn:        stringValue(m["revenueChurn"]),
		QoQGrowthRate:       numberValue(m["qoqGrowthRate"]),
		CAC:                 nonNegative(numberValue(m["cac"])),
		CACContext:          stringValue(m["cacContext"]),
		Profitability:       stringValue(m["profitability"]),
		MarketGravity:       stringValue(m["marketGravity"]),
		BusinessModel:       stringValue(m["businessModel"]),
		FirstName:           stringValue(m["firstName"]),
		LastName:            stringValue(m["lastName"]),
		Email:               stringValue(m["email"]),
		Phone:               stringValue(m["phone"]),
		CompanyName:         stringValue(m["companyName"]),
		Website:             stringValue(m["website"]),
	}
}

func toMap(v any) (map[string]any, error) {
	blob, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("statestore: marshal record: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(blob, &m); err != nil {
		return nil, fmt.Errorf("statestore: unmarshal record: %w", err)
	}
	return m, nil
}

func dropFalsy(m map[string]any) {
	for k, v := range m {
		if !truthy(v) {
			delete(m, k)
		}
	}
}

// truthy mirrors loose truthiness: false, 0, NaN, "" and nil are falsy.
// Empty maps are treated as falsy so they are not written.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0 && !math.IsNaN(t)
	case int:
		return t != 0
	case int64:
		return t != 0
	case map[string]any:
		return len(t) > 0
	case map[string]string:
		return len(t) > 0
	default:
		return true
	}
}

func clampStep(v any, maxStep int) int {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	step := int(f)
	if step < 0 || step > maxStep {
		return 0
	}
	return step
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "true"
		}
	}
	return ""
}

func numberValue(v any) float64 {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	}
	return 0
}

func nonNegative(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}

func timeValue(v any) *time.Time {
	switch t := v.(type) {
	case string:
		ts, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil
		}
		return &ts
	case float64:
		if t <= 0 {
			return nil
		}
		ts := time.UnixMilli(int64(t)).UTC()
		return &ts
	}
	return nil
}
