package broadcast

import (
	"context"
	"fmt"
	"time"

	"sharebot/internal/eventbus"
	"sharebot/internal/metrics"
	kit "sharebot/internal/transport"
	"sharebot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan job) {
	for {
		// fast-exit so stop wins over queued work
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j := <-queue:
			s.execJob(ctx, j)
		}
	}
}

// execJob copies the source message to every target in order. A failed copy is
// counted and skipped. Progress is edited into one message.
func (s *Service) execJob(ctx context.Context, j job) Result {
	start := s.now()
	metrics.BroadcastsActive.Inc()
	defer metrics.BroadcastsActive.Dec()

	total := len(j.targets)
	s.log.Info("broadcast job started", logx.String("job", j.id), logx.Int64("requester", j.requester), logx.Int("total", total))

	html := &kit.SendOptions{ParseMode: "HTML"}
	progress, err := s.channel.SendText(ctx, j.replyTo, startingText, nil)
	hasProgress := err == nil
	if err != nil {
		s.log.Warn("broadcast progress message failed", logx.String("job", j.id), logx.Err(err))
	}

	res := Result{JobID: j.id, Requester: j.requester, Total: total}
	for i, t := range j.targets {
		if ctx.Err() != nil {
			res.Failed += total - i
			break
		}
		cfg := s.config()
		if _, err := s.channel.CopyMessage(ctx, kit.ChatTarget{ChatID: t.ID}, j.source, nil); err != nil {
			res.Failed++
			metrics.BroadcastSends.WithLabelValues("failed").Inc()
			s.log.Debug("broadcast send failed", logx.String("job", j.id), logx.Int64("chat_id", t.ID), logx.Err(err))
		} else {
			res.Success++
			metrics.BroadcastSends.WithLabelValues("ok").Inc()
		}

		sent := i + 1
		if hasProgress && (sent%cfg.ProgressEvery == 0 || sent == total) {
			pct := sent * 100 / total
			if err := s.channel.EditText(ctx, progress, renderProgress(pct, res.Success, res.Failed, s.now().Sub(start)), nil); err != nil {
				s.log.Debug("broadcast progress edit failed", logx.String("job", j.id), logx.Err(err))
			}
		}
		if sent%cfg.PauseEvery == 0 && sent < total {
			if err := s.sleep(ctx, cfg.Pause); err != nil {
				res.Failed += total - sent
				break
			}
		}
	}
	res.Elapsed = s.now().Sub(start)

	// The summary is written even when ctx was cancelled mid-run.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	summary := renderSummary(res)
	if hasProgress {
		err = s.channel.EditText(fctx, progress, summary, html)
	} else {
		_, err = s.channel.SendText(fctx, j.replyTo, summary, html)
	}
	if err != nil {
		s.log.Warn("broadcast summary failed", logx.String("job", j.id), logx.Err(err))
	}
	// A finished broadcast leaves no draft behind for its requester.
	if s.pending != nil {
		if _, err := s.pending.ClearPending(fctx, j.requester); err != nil {
			s.log.Warn("clear pending draft failed", logx.String("job", j.id), logx.Err(err))
		}
	}

	eventbus.Publish(s.bus, eventbus.TypeBroadcastFinished, res)
	fields := []logx.Field{
		logx.String("job", j.id),
		logx.Int("total", res.Total),
		logx.Int("failed", res.Failed),
		logx.Duration("dur", res.Elapsed),
		logx.Float64("success_rate", res.Rate()),
	}
	if res.Failed > 0 {
		s.log.Warn("broadcast job finished with failures", fields...)
	} else {
		s.log.Info("broadcast job finished", fields...)
	}
	return res
}

const startingText = "📢 Starting broadcast...\n⏳ Progress: 0%\n✅ Success: 0\n❌ Failed: 0"

func renderProgress(pct, ok, failed int, elapsed time.Duration) string {
	return fmt.Sprintf("📢 Broadcasting...\n⏳ Progress: %d%%\n✅ Success: %d\n❌ Failed: %d\n⏱ Elapsed: %ds",
		pct, ok, failed, int(elapsed.Seconds()))
}

func renderSummary(r Result) string {
	return fmt.Sprintf("📢 <b>Broadcast Complete</b>\n\n"+
		"✅ Success: <code>%d</code>\n"+
		"❌ Failed: <code>%d</code>\n"+
		"📊 Total Users: <code>%d</code>\n"+
		"⏱ Elapsed Time: <code>%ds</code>\n\n"+
		"%.1f%% delivery success rate",
		r.Success, r.Failed, r.Total, int(r.Elapsed.Seconds()), r.Rate())
}
