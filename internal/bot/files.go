package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	kit "sharebot/internal/transport"
	"sharebot/internal/vault"
	"sharebot/pkg/logx"
	"sharebot/pkg/tgui"
)

func (b *Bot) reply(ctx context.Context, req *Request, text string) error {
	_, err := b.deps.Adapter.SendText(ctx, req.Chat, text, nil)
	return err
}

func (b *Bot) replyHTML(ctx context.Context, req *Request, html string) error {
	_, err := b.deps.Adapter.SendText(ctx, req.Chat, html, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

// DeepLink is the shareable start link for code.
func (b *Bot) DeepLink(code string) string {
	return "https://t.me/" + b.deps.Adapter.Username() + "?start=" + code
}

func (b *Bot) cmdStart(ctx context.Context, req *Request) error {
	msg := req.Message
	if err := b.deps.Vault.UpsertConsumer(ctx, vault.Consumer{ID: msg.FromID, DisplayName: msg.FromUsername}); err != nil {
		req.Logger.Warn("consumer upsert failed", logx.Err(err))
	}

	code := req.Arg(0)
	if code == "" {
		return b.replyHTML(ctx, req, txtWelcome)
	}

	rep, err := b.deps.Links.FulfillLink(ctx, code, req.Chat)
	if errors.Is(err, vault.ErrNotFound) {
		return b.reply(ctx, req, txtInvalidLink)
	}
	if err != nil {
		return err
	}
	for _, f := range rep.Failed {
		req.Logger.Warn("cluster delivery failed", logx.String("code", code), logx.Int("cluster", f.Index), logx.Err(f.Err))
		if err := b.reply(ctx, req, txtDeliveryFailed); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) handleMedia(ctx context.Context, req *Request) error {
	msg := req.Message
	it := vault.Item{
		ExternalRef: msg.Media.FileRef,
		Kind:        vault.Kind(msg.Media.Kind),
		Caption:     msg.Media.Caption,
	}
	var opts []vault.StageOption
	if msg.IsForwarded {
		opts = append(opts, vault.WithoutProbe())
	}
	n, err := b.deps.Vault.Stage(ctx, req.FromID, it, opts...)
	if errors.Is(err, vault.ErrInvalidItem) {
		req.Logger.Info("item rejected", logx.String("kind", string(it.Kind)), logx.Err(err))
		return b.reply(ctx, req, txtProbeFailed)
	}
	if err != nil {
		return err
	}
	req.Logger.Debug("item staged", logx.String("kind", string(it.Kind)), logx.Int("staged", n), logx.Bool("forwarded", msg.IsForwarded))
	b.notice.touch(req.FromID, req.Chat)
	return nil
}

func (b *Bot) cmdSaveFiles(ctx context.Context, req *Request) error {
	res, err := b.deps.Vault.Commit(ctx, req.FromID)
	if errors.Is(err, vault.ErrEmptyBatch) {
		return b.reply(ctx, req, txtEmptyBatch)
	}
	if err != nil {
		return err
	}
	b.notice.reset(req.FromID)

	link := b.DeepLink(res.Code)
	m := tgui.New().
		DisablePreview(true).
		Inline(tgui.NewInline().Row(tgui.URLBtn("📤 Open share link", link))).
		Line(fmt.Sprintf("💾 Successfully saved %d files!", res.Count)).
		HTML("🔗 Share link: " + tgui.Code(link)).
		HTML("🆔 Code: " + tgui.Code(res.Code))
	if res.Settings.AutoDelete {
		m.Line(fmt.Sprintf("⏳ Files will auto-delete after %d hours.", res.Settings.DeleteAfterHours))
	}
	_, err = m.Build().Send(ctx, b.deps.Adapter, req.Chat)
	return err
}

func (b *Bot) cmdCancelUpload(ctx context.Context, req *Request) error {
	n, err := b.deps.Vault.Cancel(ctx, req.FromID)
	if err != nil {
		return err
	}
	b.notice.reset(req.FromID)
	req.Logger.Info("upload canceled", logx.Int("dropped", n))
	return b.reply(ctx, req, txtUploadCanceled)
}

func (b *Bot) cmdDeleteFiles(ctx context.Context, req *Request) error {
	code := req.Arg(0)
	if code == "" {
		return b.reply(ctx, req, txtDeleteUsage)
	}
	n, err := b.deps.Vault.DeleteBatch(ctx, code, req.FromID)
	if errors.Is(err, vault.ErrUnauthorized) || errors.Is(err, vault.ErrNotFound) {
		return b.reply(ctx, req, txtDeleteDenied)
	}
	if err != nil {
		return err
	}
	req.Logger.Info("batch deleted", logx.String("code", code), logx.Int("items", n))
	return b.reply(ctx, req, txtDeleted)
}

func (b *Bot) cmdViewFiles(ctx context.Context, req *Request) error {
	list, err := b.deps.Vault.ListBatches(ctx, req.FromID, b.cfg.ListLimit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return b.reply(ctx, req, txtVaultEmpty)
	}
	_, err = renderVault(list, b.DeepLink).Send(ctx, b.deps.Adapter, req.Chat)
	return err
}

func renderVault(list []vault.BatchSummary, link func(string) string) tgui.Message {
	m := tgui.New().HTML("✨ " + tgui.B("Your File Vault") + " ✨").Blank()
	total := 0
	for _, s := range list {
		total += s.Count
		lock := "🔓"
		if s.Settings.ProtectContent {
			lock = "🔒"
		}
		auto := "🔴 OFF"
		if s.Settings.AutoDelete {
			auto = fmt.Sprintf("🟢 ON (%dh)", s.Settings.DeleteAfterHours)
		}
		m.HTML(tgui.H(s.FirstKind.Emoji()+" "+lock+" ") + tgui.B(batchTitle(s))).
			HTML("   📂 Files: " + tgui.Code(fmt.Sprint(s.Count))).
			Line("   🕒 Auto-delete: " + auto).
			HTML("   🔗 " + tgui.Code(link(s.Code))).
			HTML("   🆔 " + tgui.Code(s.Code)).
			Blank()
	}
	m.HTML(tgui.I(fmt.Sprintf("📊 Showing %d most recent batches (%d files total)", len(list), total)))
	return m.Build()
}

// batchTitle is the first caption line, or "Unnamed <kind>".
func batchTitle(s vault.BatchSummary) string {
	line, _, _ := strings.Cut(s.FirstCaption, "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return "Unnamed " + string(s.FirstKind)
	}
	return tgui.TruncRunes(line, 50)
}
