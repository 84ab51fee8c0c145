// Package delivery sends a batch's clusters to a chat with bounded retry.
package delivery

import (
	"context"
	"time"

	"sharebot/internal/metrics"
	kit "sharebot/internal/transport"
	"sharebot/internal/vault"
	"sharebot/pkg/logx"
)

const (
	DefaultAttempts = 3
	DefaultBackoff  = 2 * time.Second
)

// Sender is the part of the chat adapter delivery needs.
type Sender interface {
	SendMedia(ctx context.Context, to kit.ChatTarget, m kit.Media, opt *kit.SendOptions) (kit.MessageRef, error)
	SendAlbum(ctx context.Context, to kit.ChatTarget, items []kit.Media, opt *kit.SendOptions) error
}

type Config struct {
	Attempts int
	Backoff  time.Duration
}

// ClusterFailure records a cluster that exhausted its attempts.
type ClusterFailure struct {
	Index int
	Kind  vault.Kind
	Items int
	Err   error
}

type Report struct {
	Clusters  int
	Delivered int
	Items     int
	Failed    []ClusterFailure
}

// Partial reports whether at least one cluster failed.
func (r Report) Partial() bool { return len(r.Failed) > 0 }

// Engine delivers clusters in order. A failed cluster never stops the rest.
type Engine struct {
	sender Sender
	log    logx.Logger
	cfg    Config
	sleep  func(ctx context.Context, d time.Duration) error
}

type Option func(*Engine)

// WithSleep replaces the backoff wait; tests use it to skip real time.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

func NewEngine(sender Sender, cfg Config, log logx.Logger, opts ...Option) *Engine {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	} else if cfg.Backoff == 0 {
		cfg.Backoff = DefaultBackoff
	}
	e := &Engine{sender: sender, log: log, cfg: cfg, sleep: sleepCtx}
	for _, o := range opts {
		if o != nil {
			o(e)
		}
	}
	return e
}

// Deliver sends clusters to dest. protect is passed through as the channel's
// re-share restriction. The returned error is only ever the context's.
func (e *Engine) Deliver(ctx context.Context, clusters []vault.Cluster, dest kit.ChatTarget, protect bool) (Report, error) {
	rep := Report{Clusters: len(clusters)}
	opt := &kit.SendOptions{Protect: protect}
	for i, c := range clusters {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		err := e.sendWithRetry(ctx, c, dest, opt)
		if err == nil {
			rep.Delivered++
			rep.Items += len(c.Items)
			metrics.ClustersDelivered.WithLabelValues("ok").Inc()
			continue
		}
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		metrics.ClustersDelivered.WithLabelValues("failed").Inc()
		rep.Failed = append(rep.Failed, ClusterFailure{Index: i, Kind: c.Kind, Items: len(c.Items), Err: err})
		e.log.Warn("cluster delivery failed",
			logx.Int("cluster", i),
			logx.String("kind", string(c.Kind)),
			logx.Int("items", len(c.Items)),
			logx.Int64("chat_id", dest.ChatID),
			logx.Err(err),
		)
	}
	return rep, nil
}

func (e *Engine) sendWithRetry(ctx context.Context, c vault.Cluster, dest kit.ChatTarget, opt *kit.SendOptions) error {
	var last error
	for attempt := 1; attempt <= e.cfg.Attempts; attempt++ {
		err := e.sendCluster(ctx, c, dest, opt)
		if err == nil {
			return nil
		}
		last = err
		if attempt == e.cfg.Attempts {
			break
		}
		metrics.DeliveryRetries.Inc()
		e.log.Debug("cluster send retry scheduled", logx.Int("attempt", attempt+1), logx.Duration("delay", e.cfg.Backoff), logx.Err(err))
		if err := e.sleep(ctx, e.cfg.Backoff); err != nil {
			return err
		}
	}
	op := "send"
	if c.Multi() {
		op = "send album"
	}
	return &vault.ChannelError{Op: op, Attempts: e.cfg.Attempts, Err: last}
}

func (e *Engine) sendCluster(ctx context.Context, c vault.Cluster, dest kit.ChatTarget, opt *kit.SendOptions) error {
	if c.Multi() {
		album := make([]kit.Media, len(c.Items))
		for i, it := range c.Items {
			album[i] = toMedia(it)
			// Only the first item of a grouped send keeps its caption.
			if i > 0 {
				album[i].Caption = ""
			}
		}
		return e.sender.SendAlbum(ctx, dest, album, opt)
	}
	_, err := e.sender.SendMedia(ctx, dest, toMedia(c.Items[0]), opt)
	return err
}

var mediaKinds = map[vault.Kind]kit.MediaKind{
	vault.KindDocument:  kit.MediaDocument,
	vault.KindPhoto:     kit.MediaPhoto,
	vault.KindAudio:     kit.MediaAudio,
	vault.KindVideo:     kit.MediaVideo,
	vault.KindVoice:     kit.MediaVoice,
	vault.KindVideoNote: kit.MediaVideoNote,
	vault.KindAnimation: kit.MediaAnimation,
	vault.KindSticker:   kit.MediaSticker,
}

// toMedia maps an item onto the channel's send call; unknown kinds go out as documents.
func toMedia(it vault.Item) kit.Media {
	mk, ok := mediaKinds[it.Kind]
	if !ok {
		mk = kit.MediaDocument
	}
	return kit.Media{Kind: mk, FileRef: it.ExternalRef, Caption: it.Caption}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}
