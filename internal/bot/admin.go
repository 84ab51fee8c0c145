package bot

import (
	"context"
	"fmt"
	"time"

	"sharebot/pkg/tgui"
)

func (b *Bot) cmdHelp(ctx context.Context, req *Request) error {
	if b.isOwner(req.FromID) {
		return b.replyHTML(ctx, req, txtHelpOwner)
	}
	return b.replyHTML(ctx, req, txtHelpPublic)
}

func (b *Bot) cmdStats(ctx context.Context, req *Request) error {
	st, err := b.deps.Vault.Stats(ctx)
	if err != nil {
		return err
	}
	_, err = tgui.New().
		Title("📈", "Bot Statistics").
		Blank().
		KV("📦 Total Files", fmt.Sprint(st.Items)).
		KV("🔗 Total Share Links", fmt.Sprint(st.Batches)).
		KV("👥 Total Users", fmt.Sprint(st.Consumers)).
		KV("⏱ Uptime", formatUptime(b.now().Sub(b.deps.StartedAt))).
		Build().
		Send(ctx, b.deps.Adapter, req.Chat)
	return err
}

func (b *Bot) cmdUptime(ctx context.Context, req *Request) error {
	return b.replyHTML(ctx, req, "⏱ "+tgui.B("Bot Uptime:").String()+" "+tgui.Code(formatUptime(b.now().Sub(b.deps.StartedAt))).String())
}

// formatUptime renders d as "1d 2h 3m 4s".
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	days := s / 86400
	s %= 86400
	return fmt.Sprintf("%dd %dh %dm %ds", days, s/3600, (s%3600)/60, s%60)
}
