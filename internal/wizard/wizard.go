// Package wizard drives the valuation wizard: step sequencing, validation,
// submission and the results reveal. A Session wraps one visitor's state for
// the duration of one request and persists after every mutation.
package wizard

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/joelkehle/valuation-wizard/internal/hostbridge"
	"github.com/joelkehle/valuation-wizard/internal/sharelink"
	"github.com/joelkehle/valuation-wizard/internal/statestore"
	"github.com/joelkehle/valuation-wizard/internal/valuation"
	"github.com/joelkehle/valuation-wizard/internal/webhook"
)

const tracerName = "github.com/joelkehle/valuation-wizard/internal/wizard"

type Phase string

const (
	PhaseCollecting Phase = "collecting"
	PhaseSubmitting Phase = "submitting"
	PhaseWaiting    Phase = "waiting_for_results"
	PhaseResults    Phase = "showing_results"
)

// Host page element ids toggled around submission.
const (
	ElementIntro   = "valuation-intro"
	ElementWaiting = "valuation-waiting"
	ElementResults = "valuation-results"
)

// Query parameters that pre-fill contact fields.
var seedParams = []struct{ param, field string }{
	{"first_name", "firstName"},
	{"email", "email"},
	{"phone", "phone"},
}

var utmParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"}

// Persister is the state store as seen by a session.
type Persister interface {
	Save(st statestore.WizardState) bool
	Load() (statestore.WizardState, bool)
	Clear()
}

// Submitter delivers the submission payload.
type Submitter interface {
	Post(ctx context.Context, payload any) (webhook.Result, error)
}

type Config struct {
	ShareBaseURL    string
	Source          string
	ProcessingDelay time.Duration
	// DeliveryTimeout bounds one background webhook post; zero leaves it to
	// the submitter.
	DeliveryTimeout time.Duration
}

// Service holds what outlives a request.
type Service struct {
	cfg       Config
	submitter Submitter
	now       func() time.Time
	log       *zap.Logger
	tracer    trace.Tracer
	relays    *relayTable
	inflight  sync.WaitGroup
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(tracerName) }
}

// NewService builds a service. A nil submitter skips delivery.
func NewService(cfg Config, submitter Submitter, opts ...Option) *Service {
	s := &Service{
		cfg:       cfg,
		submitter: submitter,
		now:       time.Now,
		log:       zap.NewNop(),
		tracer:    otel.Tracer(tracerName),
		relays:    newRelayTable(maxPendingRelays),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open loads the visitor's state from store, or starts a fresh one.
func (s *Service) Open(store Persister, notifier hostbridge.Notifier) *Session {
	if notifier == nil {
		notifier = hostbridge.Discard{}
	}
	st, ok := store.Load()
	if !ok {
		st = statestore.WizardState{FormatVersion: statestore.FormatVersion}
	}
	if st.IsSubmitted {
		notifier.NotifyElementHidden(ElementIntro)
		if s.relays.take(st.SubmissionID) {
			notifier.NotifyWebhookSuccess()
		}
	}
	return &Session{svc: s, store: store, notifier: notifier, state: st}
}

type Session struct {
	svc      *Service
	store    Persister
	notifier hostbridge.Notifier
	state    statestore.WizardState

	submitting bool
}

func (s *Session) State() statestore.WizardState { return s.state }

func (s *Session) Phase() Phase {
	if s.submitting {
		return PhaseSubmitting
	}
	return phaseOf(s.state)
}

func phaseOf(st statestore.WizardState) Phase {
	switch {
	case st.ShowResults:
		return PhaseResults
	case st.IsSubmitted:
		return PhaseWaiting
	default:
		return PhaseCollecting
	}
}

func (s *Session) save() {
	s.state.FormatVersion = statestore.FormatVersion
	if !s.store.Save(s.state) {
		s.svc.log.Warn("wizard state not persisted", zap.Int("step", s.state.CurrentStep))
	}
}

// Update sets record fields by their JSON names.
func (s *Session) Update(fields map[string]any) error {
	if s.state.IsSubmitted {
		return ErrSubmitted
	}
	if len(fields) == 0 {
		return nil
	}
	r, errs := applyFields(s.state.Record, fields)
	if len(errs) > 0 {
		return NewValidationError(errs)
	}
	s.state.Record = r
	s.save()
	return nil
}

// Back moves to the previous step. It does nothing on the first step or
// once submitted.
func (s *Session) Back() {
	if s.state.IsSubmitted || s.state.CurrentStep <= 0 {
		return
	}
	s.state.CurrentStep--
	s.save()
}

// Next validates the current step and advances. On the contact step it
// submits: the state moves to the waiting phase and is saved before the
// webhook post starts in the background, so delivery never delays or
// changes the flow. Next after submission is a no-op.
func (s *Session) Next(ctx context.Context) (*Submission, error) {
	if s.state.IsSubmitted {
		return nil, nil
	}
	step := Step(s.state.CurrentStep)
	if errs := validateStep(step, s.state.Record); len(errs) > 0 {
		return nil, NewValidationError(errs)
	}
	if step < StepContact {
		s.state.CurrentStep++
		s.save()
		return nil, nil
	}
	return s.submit(ctx), nil
}

func (s *Session) submit(ctx context.Context) *Submission {
	ctx, span := s.svc.tracer.Start(ctx, "wizard.submit")
	defer span.End()
	s.submitting = true
	defer func() { s.submitting = false }()

	now := s.svc.now().UTC()
	r := s.state.Record
	res := valuation.Compute(r)
	links, err := sharelink.BuildLinks(s.svc.cfg.ShareBaseURL, sharelink.NewSnapshot(r, now))
	if err != nil {
		s.svc.log.Warn("build share links", zap.Error(err))
	}
	sub := &Submission{
		ID:        uuid.NewString(),
		Payload:   newPayload(r, res, links, s.state.UTM, s.svc.cfg.Source, now),
		Valuation: res,
		Links:     links,
		Queued:    s.svc.submitter != nil,
	}
	span.SetAttributes(
		attribute.String("wizard.submission_id", sub.ID),
		attribute.Bool("wizard.queued", sub.Queued),
		attribute.Float64("wizard.current_valuation", res.CurrentValuation),
	)
	s.notifier.NotifyFormSubmitted(sub.Payload)

	s.state.IsSubmitted = true
	s.state.ShowResultsWaiting = true
	s.state.ShowResults = false
	s.state.SubmittedAt = &now
	s.state.SubmissionID = sub.ID
	s.save()
	s.notifier.NotifyElementHidden(ElementIntro)
	s.notifier.NotifyElementShown(ElementWaiting)

	if sub.Queued {
		s.svc.deliver(ctx, sub.ID, sub.Payload)
	} else {
		s.svc.log.Info("submission not delivered: no webhook configured", zap.String("submission", sub.ID))
	}
	s.svc.log.Info("valuation submitted",
		zap.String("submission", sub.ID),
		zap.Float64("current_valuation", res.CurrentValuation))
	return sub
}

// RevealAt is when the waiting screen gives way to results. The zero time
// means immediately.
func (s *Session) RevealAt() time.Time {
	if s.state.SubmittedAt == nil {
		return time.Time{}
	}
	return s.state.SubmittedAt.Add(s.svc.cfg.ProcessingDelay)
}

// Reveal moves from waiting to showing results once the processing delay
// has passed at now.
func (s *Session) Reveal(now time.Time) error {
	switch s.Phase() {
	case PhaseResults:
		return nil
	case PhaseCollecting:
		return NewNotReadyError("nothing has been submitted yet")
	}
	if at := s.RevealAt(); now.Before(at) {
		return NewNotReadyError(fmt.Sprintf("results are ready at %s", at.UTC().Format(time.RFC3339)))
	}
	s.state.ShowResultsWaiting = false
	s.state.ShowResults = true
	s.save()
	s.notifier.NotifyElementHidden(ElementWaiting)
	s.notifier.NotifyElementShown(ElementResults)
	return nil
}

// Seed applies first-load query parameters. Contact values override what
// was stored; UTM values are captured for the submission. Nothing changes
// once submitted.
func (s *Session) Seed(q url.Values) {
	if s.state.IsSubmitted {
		return
	}
	changed := false
	var seeded []string
	for _, p := range seedParams {
		v := strings.TrimSpace(q.Get(p.param))
		if v == "" {
			continue
		}
		field := textField(&s.state.Record, p.field)
		if *field != v {
			*field = v
			changed = true
		}
		seeded = append(seeded, p.field)
	}
	for _, k := range utmParams {
		v := q.Get(k)
		if v == "" {
			continue
		}
		if s.state.UTM == nil {
			s.state.UTM = map[string]string{}
		}
		if s.state.UTM[k] != v {
			s.state.UTM[k] = v
			changed = true
		}
	}
	if changed {
		s.save()
	}
	s.notifier.NotifyFieldsHidden(seeded)
}

// Clear wipes every storage tier and starts over.
func (s *Session) Clear() {
	s.store.Clear()
	s.state = statestore.WizardState{FormatVersion: statestore.FormatVersion}
	s.notifier.NotifyElementShown(ElementIntro)
}

// Snapshot returns the shareable view of the stored record when it carries
// the essential contact fields.
func (s *Session) Snapshot() (sharelink.Snapshot, bool) {
	at := s.svc.now()
	if s.state.SubmittedAt != nil {
		at = *s.state.SubmittedAt
	}
	snap := sharelink.NewSnapshot(s.state.Record, at)
	return snap, snap.HasEssentials()
}

// View is the client-facing rendering of a session.
type View struct {
	Phase       Phase             `json:"phase"`
	Step        int               `json:"step"`
	StepName    string            `json:"stepName"`
	TotalSteps  int               `json:"totalSteps"`
	Record      valuation.Record  `json:"record"`
	SubmittedAt *time.Time        `json:"submittedAt,omitempty"`
	RevealAt    *time.Time        `json:"revealAt,omitempty"`
	Valuation   *valuation.Result `json:"valuation,omitempty"`
	ShareLinks  *sharelink.Links  `json:"shareLinks,omitempty"`
}

func (s *Session) View() View {
	v := View{
		Phase:       s.Phase(),
		Step:        s.state.CurrentStep,
		StepName:    Step(s.state.CurrentStep).String(),
		TotalSteps:  TotalSteps,
		Record:      s.state.Record,
		SubmittedAt: s.state.SubmittedAt,
	}
	if v.Phase == PhaseWaiting {
		at := s.RevealAt()
		v.RevealAt = &at
	}
	if v.Phase == PhaseResults {
		res := valuation.Compute(s.state.Record)
		v.Valuation = &res
		if snap, ok := s.Snapshot(); ok {
			if links, err := sharelink.BuildLinks(s.svc.cfg.ShareBaseURL, snap); err == nil {
				v.ShareLinks = &links
			}
		}
	}
	return v
}
