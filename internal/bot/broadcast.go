package bot

import (
	"context"
	"errors"
	"fmt"

	"sharebot/internal/broadcast"
	"sharebot/pkg/logx"
)

func (b *Bot) cmdBroadcast(ctx context.Context, req *Request) error {
	src := req.Message.ReplyTo
	if src == nil {
		return b.reply(ctx, req, txtBroadcastUsage)
	}
	d, err := b.deps.Broadcast.Draft(ctx, req.FromID, req.Chat, *src)
	return b.broadcastReply(ctx, req, d, err)
}

func (b *Bot) cmdBroadcastConfirm(ctx context.Context, req *Request) error {
	d, err := b.deps.Broadcast.Confirm(ctx, req.FromID, req.Chat)
	return b.broadcastReply(ctx, req, d, err)
}

func (b *Bot) cmdBroadcastCancel(ctx context.Context, req *Request) error {
	had, err := b.deps.Broadcast.Cancel(ctx, req.FromID)
	if err != nil {
		return err
	}
	if !had {
		return b.reply(ctx, req, txtNoPendingCancel)
	}
	return b.reply(ctx, req, txtPendingDropped)
}

func (b *Bot) broadcastReply(ctx context.Context, req *Request, d broadcast.Decision, err error) error {
	switch {
	case errors.Is(err, broadcast.ErrNoPending):
		return b.reply(ctx, req, txtNoPending)
	case errors.Is(err, broadcast.ErrNoAudience):
		return b.reply(ctx, req, txtNoAudience)
	case err != nil:
		return err
	}
	req.Logger.Info("broadcast decided", logx.String("state", string(d.State)), logx.Int("audience", d.Audience), logx.String("job", d.JobID))
	if d.State == broadcast.StateAwaitingConfirmation {
		return b.reply(ctx, req, fmt.Sprintf(txtConfirmPrompt, d.Audience))
	}
	// Dispatching: the broadcast worker posts its own progress message.
	return nil
}
