package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/valuation-wizard/internal/hostbridge"
	"github.com/joelkehle/valuation-wizard/internal/sharelink"
	"github.com/joelkehle/valuation-wizard/internal/statestore"
	"github.com/joelkehle/valuation-wizard/internal/valuation"
	"github.com/joelkehle/valuation-wizard/internal/webhook"
)

// memStore keeps the encoded payload so every save goes through the real
// compact codec.
type memStore struct {
	payload string
	saves   int
	cleared bool
}

func (m *memStore) Save(st statestore.WizardState) bool {
	p, err := statestore.Encode(st, time.Now())
	if err != nil {
		return false
	}
	m.payload = p
	m.saves++
	return true
}

func (m *memStore) Load() (statestore.WizardState, bool) {
	if m.payload == "" {
		return statestore.WizardState{}, false
	}
	st, err := statestore.Decode(m.payload, MaxStep)
	if err != nil {
		return statestore.WizardState{}, false
	}
	return st, true
}

func (m *memStore) Clear() {
	m.payload = ""
	m.cleared = true
}

// fakeSubmitter runs on the delivery goroutine; read its fields only after
// drain.
type fakeSubmitter struct {
	payloads []Payload
	result   webhook.Result
	err      error
}

func (f *fakeSubmitter) Post(_ context.Context, payload any) (webhook.Result, error) {
	f.payloads = append(f.payloads, payload.(Payload))
	return f.result, f.err
}

// blockingSubmitter holds the post until release is closed.
type blockingSubmitter struct {
	started     chan struct{}
	release     chan struct{}
	ctxErr      error
	hasDeadline bool
}

func newBlockingSubmitter() *blockingSubmitter {
	return &blockingSubmitter{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingSubmitter) Post(ctx context.Context, _ any) (webhook.Result, error) {
	close(b.started)
	<-b.release
	b.ctxErr = ctx.Err()
	_, b.hasDeadline = ctx.Deadline()
	return webhook.Result{Delivered: true, Status: 200}, nil
}

func drain(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Drain(ctx))
}

func actionsOf(msgs []hostbridge.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Action)
	}
	return out
}

var testNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestService(sub Submitter) *Service {
	return NewService(Config{
		ShareBaseURL:    "https://acme.example/valuation/results",
		Source:          "valuation-wizard",
		ProcessingDelay: 3 * time.Minute,
		DeliveryTimeout: 5 * time.Second,
	}, sub, WithClock(func() time.Time { return testNow }))
}

func completeRecord() map[string]any {
	return map[string]any{
		"businessModel":       "b2b",
		"arr":                 1_000_000.0,
		"qoqGrowthRate":       40.0,
		"revenueChurn":        "under_2",
		"netRevenueRetention": "over_120",
		"cacContext":          "no_clue",
		"profitability":       "profitable_20_plus",
		"marketGravity":       "massive_magnet",
		"firstName":           "Ada",
		"lastName":            "Lovelace",
		"email":               "ada@example.com",
		"companyName":         "Analytical Engines",
	}
}

// walkToContact fills the record and advances to the contact step.
func walkToContact(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.Update(completeRecord()))
	for s.State().CurrentStep < MaxStep {
		sub, err := s.Next(context.Background())
		require.NoError(t, err)
		require.Nil(t, sub)
	}
}

func TestOpenFreshState(t *testing.T) {
	s := newTestService(nil).Open(&memStore{}, nil)
	assert.Equal(t, PhaseCollecting, s.Phase())
	assert.Equal(t, 0, s.State().CurrentStep)
	assert.Equal(t, statestore.FormatVersion, s.State().FormatVersion)
	assert.Equal(t, "welcome", s.View().StepName)
}

func TestNextAdvancesAndPersists(t *testing.T) {
	store := &memStore{}
	s := newTestService(nil).Open(store, nil)
	walkToContact(t, s)
	assert.Equal(t, MaxStep, s.State().CurrentStep)
	assert.Equal(t, 1+MaxStep, store.saves, "one save for the update and one per step")

	reopened := newTestService(nil).Open(store, nil)
	assert.Equal(t, MaxStep, reopened.State().CurrentStep)
	assert.Equal(t, "Analytical Engines", reopened.State().Record.CompanyName)
}

func TestNextBlockedByValidation(t *testing.T) {
	s := newTestService(nil).Open(&memStore{}, nil)
	_, err := s.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, int(StepBusinessModel), s.State().CurrentStep)

	_, err = s.Next(context.Background())
	var werr *Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, CodeValidation, werr.Code)
	assert.Equal(t, 400, werr.Status)
	assert.Contains(t, werr.Fields, "businessModel")
	assert.Equal(t, int(StepBusinessModel), s.State().CurrentStep)
}

func TestValidateStep(t *testing.T) {
	tests := []struct {
		name   string
		step   Step
		record valuation.Record
		fields []string
	}{
		{"welcome never blocks", StepWelcome, valuation.Record{}, nil},
		{"arr required", StepARR, valuation.Record{}, []string{"arr"}},
		{"growth may be zero", StepGrowth, valuation.Record{}, nil},
		{"retention", StepRetention, valuation.Record{RevenueChurn: "under_2"}, []string{"netRevenueRetention"}},
		{"cac needed with context", StepCAC, valuation.Record{CACContext: "blended"}, []string{"cac"}},
		{"cac optional when unknown", StepCAC, valuation.Record{CACContext: "no_clue"}, nil},
		{"contact empty", StepContact, valuation.Record{}, []string{"firstName", "email", "companyName"}},
		{"contact formats", StepContact, valuation.Record{
			FirstName: "A", CompanyName: "B", Email: "not-an-email", Phone: "12", Website: "nope",
		}, []string{"email", "phone", "website"}},
		{"contact ok", StepContact, valuation.Record{
			FirstName: "A", CompanyName: "B", Email: "a@b.co", Phone: "+1 (555) 010-2000", Website: "https://b.co/about",
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := validateStep(tt.step, tt.record)
			got := make([]string, 0, len(errs))
			for k := range errs {
				got = append(got, k)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestFormatValidators(t *testing.T) {
	assert.True(t, validEmail("first.last+tag@sub.example.org"))
	assert.False(t, validEmail("a@b"))
	assert.False(t, validEmail("a b@c.de"))

	assert.True(t, validPhone("555-010-2000"))
	assert.False(t, validPhone("(((---)))"))
	assert.False(t, validPhone("call me"))

	assert.True(t, validWebsite("example.com"))
	assert.True(t, validWebsite("HTTP://www.Example.co.uk:8080/pricing?x=1"))
	assert.False(t, validWebsite("http://"))
	assert.False(t, validWebsite("example"))
}

func TestUpdateCoercesAndRejects(t *testing.T) {
	s := newTestService(nil).Open(&memStore{}, nil)
	require.NoError(t, s.Update(map[string]any{
		"arr":         "$1,250,000",
		"cac":         -40.0,
		"companyName": "  Hopper  ",
	}))
	r := s.State().Record
	assert.Equal(t, 1_250_000.0, r.ARR)
	assert.Equal(t, 0.0, r.CAC)
	assert.Equal(t, "Hopper", r.CompanyName)

	err := s.Update(map[string]any{
		"revenueChurn":  "sometimes",
		"qoqGrowthRate": 400.0,
		"email":         42.0,
		"favoriteColor": "blue",
		"arr":           2.0,
	})
	var werr *Error
	require.ErrorAs(t, err, &werr)
	assert.Len(t, werr.Fields, 4)
	assert.Equal(t, 1_250_000.0, s.State().Record.ARR, "rejected update applies nothing")

	require.NoError(t, s.Update(map[string]any{"revenueChurn": nil}))
	assert.Equal(t, "", s.State().Record.RevenueChurn)
}

func TestSubmitBuildsPayloadAndMovesToWaiting(t *testing.T) {
	store := &memStore{}
	out := hostbridge.NewOutbox()
	sub := &fakeSubmitter{result: webhook.Result{Delivered: true, Status: 200}}
	svc := newTestService(sub)
	s := svc.Open(store, out)
	s.Seed(url.Values{"utm_source": {"newsletter"}, "utm_campaign": {"spring"}})
	walkToContact(t, s)
	out.Drain()

	res, err := s.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Queued)
	assert.NotEmpty(t, res.ID)
	assert.InDelta(t, 6_766_760, res.Valuation.CurrentValuation, 1e-6)
	assert.Equal(t, []string{"formSubmitted", "hideElement", "showElement"}, actionsOf(out.Drain()))
	drain(t, svc)

	require.Len(t, sub.payloads, 1)
	p := sub.payloads[0]
	assert.Equal(t, "valuation-wizard", p.Source)
	assert.Equal(t, testNow.Format(time.RFC3339Nano), p.Timestamp)
	assert.Equal(t, map[string]string{"utm_source": "newsletter", "utm_campaign": "spring"}, p.UTM)
	assert.Equal(t, res.Valuation.Scores, p.Scores)

	blob, err := json.Marshal(p)
	require.NoError(t, err)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(blob, &wire))
	assert.Equal(t, "ada@example.com", wire["email"], "record fields are top level")
	assert.Contains(t, wire, "scores")

	robust, err := url.Parse(p.ShareURL)
	require.NoError(t, err)
	snap, ok := sharelink.RobustDecoder{}.TryDecode(robust.Query().Get(sharelink.ParamRobust))
	require.True(t, ok)
	assert.Equal(t, "Analytical Engines", snap.CompanyName)
	legacy, err := url.Parse(p.LegacyShareURL)
	require.NoError(t, err)
	_, ok = sharelink.LegacyDecoder{}.TryDecode(legacy.Query().Get(sharelink.ParamLegacy))
	assert.True(t, ok)

	assert.Equal(t, PhaseWaiting, s.Phase())
	st := s.State()
	assert.True(t, st.IsSubmitted)
	assert.True(t, st.ShowResultsWaiting)
	require.NotNil(t, st.SubmittedAt)
	assert.Equal(t, res.ID, st.SubmissionID)

	// The next request relays the delivery exactly once.
	out = hostbridge.NewOutbox()
	reopened := svc.Open(store, out)
	assert.Equal(t, PhaseWaiting, reopened.Phase())
	assert.Equal(t, []string{"hideElement", "webhookSuccess"}, actionsOf(out.Drain()))
	out = hostbridge.NewOutbox()
	svc.Open(store, out)
	assert.Equal(t, []string{"hideElement"}, actionsOf(out.Drain()))
}

func TestSlowWebhookDoesNotDelayNext(t *testing.T) {
	store := &memStore{}
	sub := newBlockingSubmitter()
	svc := newTestService(sub)
	s := svc.Open(store, nil)
	walkToContact(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		sub *Submission
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.Next(ctx)
		done <- outcome{res, err}
	}()

	var got outcome
	select {
	case got = <-done:
	case <-time.After(2 * time.Second):
		close(sub.release)
		t.Fatal("Next waited on the webhook")
	}
	require.NoError(t, got.err)
	assert.True(t, got.sub.Queued)
	assert.Equal(t, PhaseWaiting, s.Phase())
	reloaded, ok := store.Load()
	require.True(t, ok)
	assert.True(t, reloaded.IsSubmitted, "state is saved before delivery finishes")

	// Cancelling the originating request must not cancel the delivery.
	cancel()
	<-sub.started
	close(sub.release)
	drain(t, svc)
	assert.NoError(t, sub.ctxErr)
	assert.True(t, sub.hasDeadline)

	out := hostbridge.NewOutbox()
	svc.Open(store, out)
	assert.Contains(t, actionsOf(out.Drain()), hostbridge.ActionWebhookSuccess)
}

func TestSubmitFailureDoesNotBlockFlow(t *testing.T) {
	out := hostbridge.NewOutbox()
	sub := &fakeSubmitter{result: webhook.Result{Status: 502}, err: errors.New("bad gateway")}
	store := &memStore{}
	svc := newTestService(sub)
	s := svc.Open(store, out)
	walkToContact(t, s)
	out.Drain()

	res, err := s.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Queued)
	assert.Equal(t, PhaseWaiting, s.Phase())
	drain(t, svc)
	require.Len(t, sub.payloads, 1)

	out = hostbridge.NewOutbox()
	svc.Open(store, out)
	assert.NotContains(t, actionsOf(out.Drain()), hostbridge.ActionWebhookSuccess)
}

func TestSubmitWithoutWebhook(t *testing.T) {
	s := newTestService(nil).Open(&memStore{}, nil)
	walkToContact(t, s)
	res, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Queued)
	assert.Equal(t, PhaseWaiting, s.Phase())
}

func TestSubmittedRecordIsFrozen(t *testing.T) {
	sub := &fakeSubmitter{result: webhook.Result{Delivered: true}}
	svc := newTestService(sub)
	s := svc.Open(&memStore{}, nil)
	walkToContact(t, s)
	_, err := s.Next(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, s.Update(map[string]any{"firstName": "Mallory"}), ErrSubmitted)
	s.Back()
	assert.Equal(t, MaxStep, s.State().CurrentStep)
	again, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, again)
	drain(t, svc)
	assert.Len(t, sub.payloads, 1)

	s.Seed(url.Values{"first_name": {"Mallory"}})
	assert.Equal(t, "Ada", s.State().Record.FirstName)
}

func TestBack(t *testing.T) {
	store := &memStore{}
	s := newTestService(nil).Open(store, nil)
	s.Back()
	assert.Equal(t, 0, s.State().CurrentStep)
	assert.Zero(t, store.saves)

	_, err := s.Next(context.Background())
	require.NoError(t, err)
	s.Back()
	assert.Equal(t, 0, s.State().CurrentStep)
	assert.Equal(t, 2, store.saves)
}

func TestReveal(t *testing.T) {
	out := hostbridge.NewOutbox()
	s := newTestService(nil).Open(&memStore{}, out)
	var werr *Error
	require.ErrorAs(t, s.Reveal(testNow), &werr)
	assert.Equal(t, CodeNotReady, werr.Code)

	walkToContact(t, s)
	_, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(3*time.Minute), s.RevealAt())
	assert.Equal(t, testNow.Add(3*time.Minute), *s.View().RevealAt)

	require.ErrorAs(t, s.Reveal(testNow.Add(time.Minute)), &werr)
	assert.Equal(t, 409, werr.Status)
	assert.Equal(t, PhaseWaiting, s.Phase())

	out.Drain()
	require.NoError(t, s.Reveal(testNow.Add(3*time.Minute)))
	assert.Equal(t, PhaseResults, s.Phase())
	assert.False(t, s.State().ShowResultsWaiting)
	assert.Equal(t, []hostbridge.Message{
		{Action: hostbridge.ActionHideElement, ElementID: ElementWaiting},
		{Action: hostbridge.ActionShowElement, ElementID: ElementResults},
	}, out.Drain())

	require.NoError(t, s.Reveal(testNow), "revealing twice is a no-op")

	v := s.View()
	require.NotNil(t, v.Valuation)
	assert.InDelta(t, 6_766_760, v.Valuation.CurrentValuation, 1e-6)
	require.NotNil(t, v.ShareLinks)
	assert.Contains(t, v.ShareLinks.Robust, "?d=")
}

func TestSeedOverridesStoredContact(t *testing.T) {
	store := &memStore{}
	svc := newTestService(nil)
	s := svc.Open(store, nil)
	require.NoError(t, s.Update(map[string]any{"firstName": "Old", "email": "old@example.com", "companyName": "Keep"}))

	out := hostbridge.NewOutbox()
	s = svc.Open(store, out)
	s.Seed(url.Values{
		"first_name": {"New"},
		"email":      {"new@example.com"},
		"utm_medium": {"email"},
		"other":      {"ignored"},
	})
	r := s.State().Record
	assert.Equal(t, "New", r.FirstName)
	assert.Equal(t, "new@example.com", r.Email)
	assert.Equal(t, "Keep", r.CompanyName)
	assert.Equal(t, map[string]string{"utm_medium": "email"}, s.State().UTM)
	assert.Equal(t, []hostbridge.Message{
		{Action: hostbridge.ActionHideFields, Fields: []string{"firstName", "email"}},
	}, out.Drain())

	reopened := svc.Open(store, nil)
	assert.Equal(t, "New", reopened.State().Record.FirstName)
	assert.Equal(t, "email", reopened.State().UTM["utm_medium"])
}

func TestSeedWithoutParamsDoesNotSave(t *testing.T) {
	store := &memStore{}
	s := newTestService(nil).Open(store, nil)
	s.Seed(url.Values{})
	assert.Zero(t, store.saves)
}

func TestOpenSubmittedStateHidesIntro(t *testing.T) {
	store := &memStore{}
	svc := newTestService(nil)
	s := svc.Open(store, nil)
	walkToContact(t, s)
	_, err := s.Next(context.Background())
	require.NoError(t, err)

	out := hostbridge.NewOutbox()
	svc.Open(store, out)
	assert.Equal(t, []hostbridge.Message{{Action: hostbridge.ActionHideElement, ElementID: ElementIntro}}, out.Drain())
}

func TestClear(t *testing.T) {
	store := &memStore{}
	s := newTestService(nil).Open(store, nil)
	walkToContact(t, s)
	s.Clear()
	assert.True(t, store.cleared)
	assert.Equal(t, 0, s.State().CurrentStep)
	_, ok := store.Load()
	assert.False(t, ok)
}

func TestSnapshotNeedsEssentials(t *testing.T) {
	s := newTestService(nil).Open(&memStore{}, nil)
	_, ok := s.Snapshot()
	assert.False(t, ok)

	require.NoError(t, s.Update(completeRecord()))
	snap, ok := s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, testNow.Format(time.RFC3339Nano), snap.Timestamp)
}

func TestErrorMessageListsFields(t *testing.T) {
	err := NewValidationError(map[string]string{"email": "bad", "arr": "missing"})
	assert.Equal(t, "validation: please correct the highlighted fields (arr: missing; email: bad)", err.Error())
}
