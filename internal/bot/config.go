package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sharebot/internal/session"
	kit "sharebot/internal/transport"
	"sharebot/internal/vault"
	"sharebot/pkg/logx"
	"sharebot/pkg/tgui"
)

const (
	cbConfig = "cfg"

	actToggle  = "toggle"
	actHours   = "hours"
	actProtect = "protect"
	actClose   = "close"
)

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}

// configView renders the settings keyboard. An empty code means the global defaults.
func configView(code string, s vault.Settings) tgui.Message {
	prefix := "Default "
	title := tgui.B("Global Configuration Settings").String() + "\n\nConfigure default auto-delete settings for new files:"
	if code != "" {
		prefix = ""
		title = tgui.B("Configuration for code: "+code).String() + "\n\nConfigure auto-delete settings for this specific file batch:"
	}
	kb := tgui.NewInline().
		Row(tgui.Btn("🔄 "+prefix+"Auto-delete: "+onOff(s.AutoDelete), tgui.Data(cbConfig, actToggle, code))).
		Row(tgui.Btn(fmt.Sprintf("⏱ %sDelete after: %d hours", prefix, s.DeleteAfterHours), tgui.Data(cbConfig, actHours, code))).
		Row(tgui.Btn("🔒 Content Protection: "+onOff(s.ProtectContent), tgui.Data(cbConfig, actProtect, code))).
		Row(tgui.Btn("❌ Close", tgui.Data(cbConfig, actClose, "")))
	return tgui.New().HTML(tgui.Raw("⚙️ " + title)).Inline(kb).Build()
}

func (b *Bot) loadSettings(ctx context.Context, code string) (vault.Settings, error) {
	if code == "" {
		return b.deps.Settings.Global(ctx)
	}
	return b.deps.Settings.GetEffective(ctx, code)
}

func (b *Bot) patchSettings(ctx context.Context, code string, p vault.Patch) (vault.Settings, error) {
	if code == "" {
		return b.deps.Settings.SetGlobal(ctx, p)
	}
	return b.deps.Settings.SetForCode(ctx, code, p)
}

func (b *Bot) cmdConfig(ctx context.Context, req *Request) error {
	code := req.Arg(0)
	if code != "" {
		owns, err := b.deps.Vault.Owns(ctx, code, req.FromID)
		if err != nil {
			return err
		}
		if !owns {
			return b.reply(ctx, req, txtConfigDenied)
		}
	}
	s, err := b.loadSettings(ctx, code)
	if err != nil {
		return err
	}
	_, err = configView(code, s).Send(ctx, b.deps.Adapter, req.Chat)
	return err
}

func (b *Bot) handleConfigCallback(ctx context.Context, req *Request) error {
	cb := req.Callback
	ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
	action, code := req.Arg(0), req.Arg(1)

	if action == actClose {
		return b.deps.Adapter.DeleteMessage(ctx, ref)
	}
	if code != "" {
		owns, err := b.deps.Vault.Owns(ctx, code, req.FromID)
		if err != nil {
			return err
		}
		if !owns {
			return b.deps.Adapter.EditText(ctx, ref, txtConfigDenied, nil)
		}
	}

	cur, err := b.loadSettings(ctx, code)
	if err != nil {
		return err
	}
	var p vault.Patch
	switch action {
	case actToggle:
		v := !cur.AutoDelete
		p.AutoDelete = &v
	case actProtect:
		v := !cur.ProtectContent
		p.ProtectContent = &v
	case actHours:
		return b.promptHours(ctx, req, ref, code)
	default:
		req.Logger.Debug("unknown config action", logx.String("action", action))
		return nil
	}

	next, err := b.patchSettings(ctx, code, p)
	if err != nil {
		return err
	}
	req.Logger.Info("settings updated", logx.String("code", code), logx.Any("settings", next))
	return configView(code, next).Edit(ctx, b.deps.Adapter, ref)
}

func (b *Bot) promptHours(ctx context.Context, req *Request, ref kit.MessageRef, code string) error {
	a := session.AwaitingInput{Scope: session.ScopeGlobal, ConfigMessage: ref}
	text := "⏳ " + tgui.B("Set default auto-delete time").String() +
		"\n\nSend the number of hours after which new files should be automatically deleted (1-720):"
	if code != "" {
		a.Scope, a.Code = session.ScopeCode, code
		text = "⏳ " + tgui.B("Set auto-delete time for code: "+code).String() +
			"\n\nSend the number of hours after which these files should be automatically deleted (1-720):"
	}
	if err := b.deps.Sessions.SetAwaiting(ctx, req.FromID, a, b.cfg.AwaitTTL); err != nil {
		return err
	}
	return b.deps.Adapter.EditText(ctx, ref, text, &kit.SendOptions{ParseMode: "HTML"})
}

// handleText consumes an owner's plain text when a settings value is awaited.
func (b *Bot) handleText(ctx context.Context, req *Request) error {
	a, ok, err := b.deps.Sessions.Awaiting(ctx, req.FromID)
	if err != nil || !ok {
		return err
	}
	hours, perr := strconv.Atoi(strings.TrimSpace(req.Message.Text))
	if perr != nil || vault.ValidateHours(hours) != nil {
		return b.reply(ctx, req, txtHoursInvalid)
	}

	code := ""
	if a.Scope == session.ScopeCode {
		code = a.Code
	}
	next, err := b.patchSettings(ctx, code, vault.Patch{DeleteAfterHours: &hours})
	if errors.Is(err, vault.ErrNotFound) {
		// The batch went away while the owner was typing.
		_ = b.deps.Sessions.ClearAwaiting(ctx, req.FromID)
		return b.reply(ctx, req, txtConfigDenied)
	}
	if err != nil {
		return err
	}
	if err := b.deps.Sessions.ClearAwaiting(ctx, req.FromID); err != nil {
		req.Logger.Warn("clear awaiting failed", logx.Err(err))
	}

	src := kit.MessageRef{ChatID: req.Message.ChatID, ThreadID: req.Message.ThreadID, MessageID: req.Message.ID}
	if err := b.deps.Adapter.DeleteMessage(ctx, src); err != nil {
		req.Logger.Debug("delete input message failed", logx.Err(err))
	}
	req.Logger.Info("delete hours updated", logx.String("code", code), logx.Int("hours", next.DeleteAfterHours))
	return configView(code, next).Edit(ctx, b.deps.Adapter, a.ConfigMessage)
}
