package broadcast

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"sharebot/internal/session"
	kit "sharebot/internal/transport"
	"sharebot/pkg/logx"
)

// Draft starts a broadcast of source to every consumer. Audiences above the
// confirmation threshold are parked as the requester's pending draft instead.
// Progress and the final summary are written to replyTo.
func (s *Service) Draft(ctx context.Context, requester int64, replyTo kit.ChatTarget, source kit.MessageRef) (Decision, error) {
	targets, err := s.registry.ListConsumers(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("list consumers: %w", err)
	}
	if len(targets) == 0 {
		return Decision{}, ErrNoAudience
	}
	cfg := s.config()
	if len(targets) > cfg.ConfirmThreshold {
		p := session.PendingBroadcast{Source: source, Audience: len(targets), DraftedAt: s.now()}
		if err := s.pending.SetPending(ctx, requester, p, cfg.PendingTTL); err != nil {
			return Decision{}, err
		}
		s.log.Info("broadcast awaiting confirmation", logx.Int64("requester", requester), logx.Int("audience", len(targets)))
		return Decision{State: StateAwaitingConfirmation, Audience: len(targets)}, nil
	}
	id := s.enqueue(ctx, job{requester: requester, replyTo: replyTo, source: source, targets: targets})
	return Decision{State: StateDispatching, Audience: len(targets), JobID: id}, nil
}

// Confirm dispatches the requester's pending draft to the current consumer list.
func (s *Service) Confirm(ctx context.Context, requester int64, replyTo kit.ChatTarget) (Decision, error) {
	p, ok, err := s.pending.TakePending(ctx, requester)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{}, ErrNoPending
	}
	targets, err := s.registry.ListConsumers(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("list consumers: %w", err)
	}
	if len(targets) == 0 {
		return Decision{}, ErrNoAudience
	}
	id := s.enqueue(ctx, job{requester: requester, replyTo: replyTo, source: p.Source, targets: targets})
	return Decision{State: StateDispatching, Audience: len(targets), JobID: id}, nil
}

// Cancel drops the requester's pending draft and reports whether one existed.
func (s *Service) Cancel(ctx context.Context, requester int64) (bool, error) {
	return s.pending.ClearPending(ctx, requester)
}

func (s *Service) enqueue(ctx context.Context, j job) string {
	j.id = ulid.Make().String()
	if !s.running() {
		s.execJob(ctx, j)
		return j.id
	}
	select {
	case s.queue <- j:
		s.log.Debug("broadcast job enqueued", logx.String("job", j.id), logx.Int("total", len(j.targets)), logx.Int("queue_len", len(s.queue)))
	default:
		s.log.Warn("broadcast queue full; dispatching on its own goroutine", logx.String("job", j.id))
		go s.execJob(context.WithoutCancel(ctx), j)
	}
	return j.id
}
