package wizard

import (
	"context"
	"sync"

	"github.com/golang/groupcache/lru"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// maxPendingRelays bounds the delivered-but-not-yet-relayed ids kept in
// memory; visitors who never come back age out.
const maxPendingRelays = 4096

// relayTable remembers submissions whose webhook delivery succeeded until a
// later request for the same visitor relays webhookSuccess to the host.
type relayTable struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func newRelayTable(size int) *relayTable {
	return &relayTable{cache: lru.New(size)}
}

func (t *relayTable) markDelivered(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Add(id, struct{}{})
}

// take reports whether id was delivered and forgets it.
func (t *relayTable) take(id string) bool {
	if id == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.cache.Get(id); !ok {
		return false
	}
	t.cache.Remove(id)
	return true
}

// deliver posts p in the background. The request context only contributes
// its values and trace; cancelling it does not stop delivery.
func (s *Service) deliver(ctx context.Context, id string, p Payload) {
	ctx = context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, span := s.tracer.Start(ctx, "wizard.deliver")
		defer span.End()
		if s.cfg.DeliveryTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.DeliveryTimeout)
			defer cancel()
		}

		res, err := s.submitter.Post(ctx, p)
		span.SetAttributes(
			attribute.String("wizard.submission_id", id),
			attribute.Bool("wizard.delivered", res.Delivered),
			attribute.Int("http.status_code", res.Status),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "webhook delivery failed")
			s.log.Warn("webhook submission failed",
				zap.String("submission", id),
				zap.Int("status", res.Status),
				zap.Error(err))
			return
		}
		s.relays.markDelivered(id)
		s.log.Info("webhook submission delivered",
			zap.String("submission", id),
			zap.Int("status", res.Status),
			zap.Duration("duration", res.Duration))
	}()
}

// Drain waits for in-flight deliveries, or until ctx is done.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
