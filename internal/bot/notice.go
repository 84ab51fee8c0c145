package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	kit "sharebot/internal/transport"
	"sharebot/pkg/logx"
)

// noticer debounces the per-owner "files received" message: each staged item
// pushes the owner's notice back by delay.
type noticer struct {
	mu     sync.Mutex
	delay  time.Duration
	timers map[int64]*time.Timer
	fire   func(owner int64, chat kit.ChatTarget)
}

func newNoticer(delay time.Duration, fire func(owner int64, chat kit.ChatTarget)) *noticer {
	return &noticer{delay: delay, timers: map[int64]*time.Timer{}, fire: fire}
}

func (n *noticer) touch(owner int64, chat kit.ChatTarget) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.timers[owner]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(n.delay, func() {
		n.mu.Lock()
		// A later touch or reset replaced this timer.
		if n.timers[owner] != t {
			n.mu.Unlock()
			return
		}
		delete(n.timers, owner)
		n.mu.Unlock()
		n.fire(owner, chat)
	})
	n.timers[owner] = t
}

func (n *noticer) reset(owner int64) {
	n.mu.Lock()
	if t, ok := n.timers[owner]; ok {
		t.Stop()
		delete(n.timers, owner)
	}
	n.mu.Unlock()
}

func (n *noticer) stopAll() {
	n.mu.Lock()
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
	n.mu.Unlock()
}

func (n *noticer) pending(owner int64) bool {
	n.mu.Lock()
	_, ok := n.timers[owner]
	n.mu.Unlock()
	return ok
}

func (b *Bot) sendNotice(owner int64, chat kit.ChatTarget) {
	ctx, cancel := context.WithTimeout(b.rootCtx(), 10*time.Second)
	defer cancel()

	n, err := b.deps.Vault.CountStaged(ctx, owner)
	if err != nil {
		b.log.Warn("count staged for notice failed", logx.Int64("owner", owner), logx.Err(err))
		return
	}
	if n == 0 {
		return
	}
	text := txtNoticeFew
	if n >= 10 {
		text = fmt.Sprintf(txtNoticeMany, n)
	}
	if _, err := b.deps.Adapter.SendText(ctx, chat, text, nil); err != nil {
		b.log.Warn("receipt notice failed", logx.Int64("owner", owner), logx.Err(err))
	}
}
