package bot

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"

	kit "sharebot/internal/transport"
	"sharebot/pkg/logx"
	"sharebot/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string
	Description string
	Access      Access
	// Denied is the reply to non-owners of an owner-only command.
	Denied string
	Handle HandlerFunc
}

type Request struct {
	Update   kit.Update
	Chat     kit.ChatTarget
	FromID   int64
	Command  string
	Args     []string
	Message  *kit.Message
	Callback *kit.Callback
	ReqID    string
	Logger   logx.Logger
}

// Arg returns the i-th argument or "".
func (r *Request) Arg(i int) string {
	if i < 0 || i >= len(r.Args) {
		return ""
	}
	return r.Args[i]
}

func (b *Bot) newRequest(up kit.Update, chat kit.ChatTarget, from int64, command string) *Request {
	rid := ulid.Make().String()
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: command,
		ReqID:   rid,
		Logger: b.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", command),
		),
	}
}

func (b *Bot) chain(h HandlerFunc) HandlerFunc {
	return Chain(h,
		MWErrorReply(b.deps.Adapter),
		MWPanicRecover(b.log),
		MWRequestLog(b.log),
		MWTimeout(b.cfg.CommandTimeout),
	)
}

// parseCommand splits "/name@bot arg1 arg2". ok is false for plain text.
func parseCommand(text string) (name string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	name = strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", nil, false
	}
	return name, parts[1:], true
}

func (b *Bot) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	name, args, ok := parseCommand(msg.Text)
	if !ok {
		if !b.isOwner(msg.FromID) {
			return
		}
		req := b.newRequest(up, chat, msg.FromID, "text")
		req.Message = msg
		_ = b.chain(b.handleText)(ctx, req)
		return
	}

	cmd, found := b.commands[name]
	if !found {
		b.log.Debug("unknown command ignored", logx.String("cmd", name), logx.Int64("from_id", msg.FromID))
		return
	}
	if cmd.Access == AccessOwnerOnly && !b.isOwner(msg.FromID) {
		_, _ = b.deps.Adapter.SendText(ctx, chat, cmd.Denied, nil)
		return
	}
	req := b.newRequest(up, chat, msg.FromID, name)
	req.Message = msg
	req.Args = args
	_ = b.chain(cmd.Handle)(ctx, req)
}

func (b *Bot) routeMedia(ctx context.Context, up kit.Update) {
	msg := up.Message
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if !b.isOwner(msg.FromID) {
		_, _ = b.deps.Adapter.SendText(ctx, chat, txtUploadDenied, nil)
		return
	}
	req := b.newRequest(up, chat, msg.FromID, "upload")
	req.Message = msg
	_ = b.chain(b.handleMedia)(ctx, req)
}

func (b *Bot) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	chat := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	defer func() { _ = b.deps.Adapter.AnswerCallback(ctx, cb.ID, "") }()

	scope, action, payload, ok := tgui.ParseData(cb.Data)
	if !ok || scope != cbConfig {
		return
	}
	ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
	if !b.isOwner(cb.FromID) {
		_ = b.deps.Adapter.EditText(ctx, ref, txtConfigForbidden, nil)
		return
	}
	req := b.newRequest(up, chat, cb.FromID, "cb:"+scope+":"+action)
	req.Callback = cb
	req.Args = []string{action, payload}
	_ = b.chain(b.handleConfigCallback)(ctx, req)
}

// Commands lists the menu entries in registration order.
func (b *Bot) Commands() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(commandOrder))
	for _, name := range commandOrder {
		if c, ok := b.commands[name]; ok {
			out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
		}
	}
	return out
}

var commandOrder = []string{
	"start", "help", "savefiles", "cancelupload", "viewfiles", "deletefiles",
	"config", "stats", "uptime", "broadcast", "broadcast_confirm", "broadcast_cancel",
}

func (b *Bot) registry() map[string]Command {
	cmds := []Command{
		{Name: "start", Description: "Welcome message or open a shared link", Access: AccessEveryone, Handle: b.cmdStart},
		{Name: "help", Description: "Show available commands", Access: AccessEveryone, Handle: b.cmdHelp},
		{Name: "savefiles", Description: "Save uploaded files and generate link", Access: AccessOwnerOnly,
			Denied: "🚫 You are not authorized to save files.", Handle: b.cmdSaveFiles},
		{Name: "cancelupload", Description: "Cancel current upload session", Access: AccessOwnerOnly,
			Denied: "🚫 You are not authorized to cancel uploads.", Handle: b.cmdCancelUpload},
		{Name: "viewfiles", Description: "View your uploaded files with codes", Access: AccessOwnerOnly,
			Denied: "🚫 You are not authorized to view files.", Handle: b.cmdViewFiles},
		{Name: "deletefiles", Description: "Delete files using their code", Access: AccessOwnerOnly,
			Denied: "🚫 You are not authorized to delete files.", Handle: b.cmdDeleteFiles},
		{Name: "config", Description: "Configure auto-delete settings", Access: AccessOwnerOnly,
			Denied: txtConfigForbidden, Handle: b.cmdConfig},
		{Name: "stats", Description: "View bot statistics", Access: AccessOwnerOnly,
			Denied: "🚫 You are not authorized to view statistics.", Handle: b.cmdStats},
		{Name: "uptime", Description: "Show bot running time", Access: AccessOwnerOnly,
			Denied: "🚫 You are not authorized to view uptime.", Handle: b.cmdUptime},
		{Name: "broadcast", Description: "Send a message to all users", Access: AccessOwnerOnly,
			Denied: "🚫 You are not authorized to broadcast messages.", Handle: b.cmdBroadcast},
		{Name: "broadcast_confirm", Description: "Confirm a pending broadcast", Access: AccessOwnerOnly,
			Denied: "🚫 You are not authorized to broadcast messages.", Handle: b.cmdBroadcastConfirm},
		{Name: "broadcast_cancel", Description: "Drop a pending broadcast", Access: AccessOwnerOnly,
			Denied: "🚫 You are not authorized to broadcast messages.", Handle: b.cmdBroadcastCancel},
	}
	m := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		m[c.Name] = c
	}
	return m
}
