package statestore

import (
	"time"

	"go.uber.org/zap"
)

// Tier is one storage backend in the fallback chain.
type Tier interface {
	Name() string
	Write(payload string) error
	// Read returns ok=false when the tier holds nothing.
	Read() (payload string, ok bool, err error)
	Remove() error
}

// Store saves and loads WizardState across an ordered list of tiers.
// It never returns errors: failures are logged and the next tier is tried.
type Store struct {
	tiers   []Tier
	maxStep int
	now     func() time.Time
	log     *zap.Logger
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// New builds a store. Tiers are tried in the order given.
func New(maxStep int, tiers []Tier, opts ...Option) *Store {
	s := &Store{
		tiers:   tiers,
		maxStep: maxStep,
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save writes st to the first tier that accepts and verifies it, then mirrors
// the payload into every later tier. Earlier tiers that were skipped are
// cleared so they cannot shadow the new state on load.
func (s *Store) Save(st WizardState) bool {
	payload, err := Encode(st, s.now())
	if err != nil {
		s.log.Warn("encode wizard state", zap.Error(err))
		return false
	}

	primary := -1
	for i, t := range s.tiers {
		if err := t.Write(payload); err != nil {
			s.log.Debug("state tier skipped", zap.String("tier", t.Name()), zap.Error(err))
			continue
		}
		got, ok, err := t.Read()
		if err != nil || !ok || got != payload {
			s.log.Warn("state tier failed verification", zap.String("tier", t.Name()), zap.Error(err))
			continue
		}
		primary = i
		break
	}
	if primary < 0 {
		s.log.Warn("wizard state not saved: no tier accepted the payload", zap.Int("bytes", len(payload)))
		return false
	}

	for _, t := range s.tiers[:primary] {
		if err := t.Remove(); err != nil {
			s.log.Debug("clear skipped tier", zap.String("tier", t.Name()), zap.Error(err))
		}
	}
	for _, t := range s.tiers[primary+1:] {
		if err := t.Write(payload); err != nil {
			s.log.Warn("mirror wizard state", zap.String("tier", t.Name()), zap.Error(err))
		}
	}
	s.log.Debug("wizard state saved",
		zap.String("tier", s.tiers[primary].Name()),
		zap.Int("bytes", len(payload)),
		zap.Int("step", st.CurrentStep))
	return true
}

// Load returns the state from the first tier holding a parseable payload.
// Corrupt payloads are removed from their tier.
func (s *Store) Load() (WizardState, bool) {
	for _, t := range s.tiers {
		payload, ok, err := t.Read()
		if err != nil {
			s.log.Debug("read state tier", zap.String("tier", t.Name()), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		st, err := Decode(payload, s.maxStep)
		if err != nil {
			s.log.Warn("discarding corrupt wizard state", zap.String("tier", t.Name()), zap.Error(err))
			if err := t.Remove(); err != nil {
				s.log.Debug("remove corrupt state", zap.String("tier", t.Name()), zap.Error(err))
			}
			continue
		}
		return st, true
	}
	return WizardState{}, false
}

// Clear removes the state from every tier.
func (s *Store) Clear() {
	for _, t := range s.tiers {
		if err := t.Remove(); err != nil {
			s.log.Warn("clear state tier", zap.String("tier", t.Name()), zap.Error(err))
		}
	}
}
