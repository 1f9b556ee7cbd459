package wizard

import (
	"maps"
	"time"

	"github.com/joelkehle/valuation-wizard/internal/sharelink"
	"github.com/joelkehle/valuation-wizard/internal/valuation"
)

// Payload is the JSON body posted to the webhook and handed to the host
// page. Record fields are inlined at the top level.
type Payload struct {
	valuation.Record
	Valuation      valuation.Result  `json:"valuation"`
	Scores         valuation.Scores  `json:"scores"`
	ShareURL       string            `json:"shareUrl"`
	LegacyShareURL string            `json:"legacyShareUrl"`
	UTM            map[string]string `json:"utm,omitempty"`
	Source         string            `json:"source"`
	Timestamp      string            `json:"timestamp"`
}

func newPayload(r valuation.Record, res valuation.Result, links sharelink.Links, utm map[string]string, source string, at time.Time) Payload {
	var utmCopy map[string]string
	if len(utm) > 0 {
		utmCopy = maps.Clone(utm)
	}
	return Payload{
		Record:         r,
		Valuation:      res,
		Scores:         res.Scores,
		ShareURL:       links.Robust,
		LegacyShareURL: links.Legacy,
		UTM:            utmCopy,
		Source:         source,
		Timestamp:      at.UTC().Format(time.RFC3339Nano),
	}
}

// Submission is the outcome of submitting. Queued reports whether a webhook
// post was started; its result is only logged.
type Submission struct {
	ID        string           `json:"id"`
	Payload   Payload          `json:"payload"`
	Valuation valuation.Result `json:"valuation"`
	Links     sharelink.Links  `json:"shareLinks"`
	Queued    bool             `json:"queued"`
}
