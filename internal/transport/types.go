package transport

import (
	"context"
	"errors"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
	IsGroup      bool
	IsForwarded  bool

	// Media is set when the message carries a file.
	Media *Media
	// ReplyTo is the message this one answers, if any.
	ReplyTo *MessageRef
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// Target returns the chat the referenced message lives in.
func (r MessageRef) Target() ChatTarget { return ChatTarget{ChatID: r.ChatID, ThreadID: r.ThreadID} }

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	Protect            bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// MediaKind is the channel-level content type of a file.
type MediaKind string

const (
	MediaDocument  MediaKind = "document"
	MediaPhoto     MediaKind = "photo"
	MediaAudio     MediaKind = "audio"
	MediaVideo     MediaKind = "video"
	MediaVoice     MediaKind = "voice"
	MediaVideoNote MediaKind = "video_note"
	MediaAnimation MediaKind = "animation"
	MediaSticker   MediaKind = "sticker"
)

// Media is a file already known to the channel, addressed by its opaque file reference.
type Media struct {
	Kind    MediaKind
	FileRef string
	Caption string
}

// ErrUnsupportedMedia is returned for media kinds the adapter cannot send.
var ErrUnsupportedMedia = errors.New("transport: unsupported media kind")

// Adapter is the chat channel used by the bot.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error

	SendMedia(ctx context.Context, to ChatTarget, m Media, opt *SendOptions) (MessageRef, error)
	SendAlbum(ctx context.Context, to ChatTarget, items []Media, opt *SendOptions) error
	CopyMessage(ctx context.Context, to ChatTarget, from MessageRef, opt *SendOptions) (MessageRef, error)
	// Probe reports whether fileRef is still retrievable from the channel.
	Probe(ctx context.Context, fileRef string) error

	// Username is the bot's public handle, used for deep links.
	Username() string
}

type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish a command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
