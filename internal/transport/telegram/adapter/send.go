package adapter

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "sharebot/internal/transport"
)

const telegramTextLimit = 4000

func sendOptions(to kit.ChatTarget, opt *kit.SendOptions, withMarkup bool) *tele.SendOptions {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	so := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		Protected:             opt.Protect,
		ThreadID:              to.ThreadID,
	}
	if withMarkup && opt.ReplyMarkupAdapter != nil {
		if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok {
			so.ReplyMarkup = rm
		}
	}
	return so
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chunks := splitTelegramText(text, telegramTextLimit, parseMode)
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		// Markup goes on the first chunk only.
		msg, err := a.bot.Send(chat, chunk, sendOptions(to, opt, i == 0))
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// EditText edits ref in place; overflow beyond one message is sent as new messages.
func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chunks := splitTelegramText(text, telegramTextLimit, parseMode)
	to := ref.Target()

	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	so := sendOptions(to, opt, true)
	so.ThreadID = 0
	if _, err := a.bot.Edit(m, chunks[0], so); err != nil {
		if isNotModified(err) {
			return nil
		}
		return err
	}

	chat := &tele.Chat{ID: to.ChatID}
	for _, chunk := range chunks[1:] {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.bot.Send(chat, chunk, sendOptions(to, opt, false)); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref kit.MessageRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Delete(&tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}})
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

func (a *Adapter) SendMedia(ctx context.Context, to kit.ChatTarget, m kit.Media, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	what, err := sendable(m)
	if err != nil {
		return kit.MessageRef{}, err
	}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, what, sendOptions(to, opt, true))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

// SendAlbum sends 2..10 items as one media group. Only photo, video, audio
// and document can be grouped, and audio/document cannot mix with the others.
func (a *Adapter) SendAlbum(ctx context.Context, to kit.ChatTarget, items []kit.Media, opt *kit.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	album, err := albumOf(items)
	if err != nil {
		return err
	}
	_, err = a.bot.SendAlbum(&tele.Chat{ID: to.ChatID}, album, sendOptions(to, opt, false))
	return err
}

func (a *Adapter) CopyMessage(ctx context.Context, to kit.ChatTarget, from kit.MessageRef, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	src := &tele.Message{ID: from.MessageID, Chat: &tele.Chat{ID: from.ChatID}}
	msg, err := a.bot.Copy(&tele.Chat{ID: to.ChatID}, src, sendOptions(to, opt, true))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

// Probe asks the Bot API for the file's metadata. Files above the download
// limit still exist, so "file is too big" counts as alive.
func (a *Adapter) Probe(ctx context.Context, fileRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(fileRef) == "" {
		return fmt.Errorf("probe: empty file reference")
	}
	if _, err := a.bot.FileByID(fileRef); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "file is too big") {
			return nil
		}
		return err
	}
	return nil
}

func sendable(m kit.Media) (tele.Sendable, error) {
	f := tele.File{FileID: m.FileRef}
	switch m.Kind {
	case kit.MediaDocument:
		return &tele.Document{File: f, Caption: m.Caption}, nil
	case kit.MediaPhoto:
		return &tele.Photo{File: f, Caption: m.Caption}, nil
	case kit.MediaAudio:
		return &tele.Audio{File: f, Caption: m.Caption}, nil
	case kit.MediaVideo:
		return &tele.Video{File: f, Caption: m.Caption}, nil
	case kit.MediaVoice:
		return &tele.Voice{File: f, Caption: m.Caption}, nil
	case kit.MediaVideoNote:
		return &tele.VideoNote{File: f}, nil
	case kit.MediaAnimation:
		return &tele.Animation{File: f, Caption: m.Caption}, nil
	case kit.MediaSticker:
		return &tele.Sticker{File: f}, nil
	}
	return nil, fmt.Errorf("%w: %q", kit.ErrUnsupportedMedia, m.Kind)
}

func albumOf(items []kit.Media) (tele.Album, error) {
	album := make(tele.Album, 0, len(items))
	for _, m := range items {
		f := tele.File{FileID: m.FileRef}
		switch m.Kind {
		case kit.MediaDocument:
			album = append(album, &tele.Document{File: f, Caption: m.Caption})
		case kit.MediaPhoto:
			album = append(album, &tele.Photo{File: f, Caption: m.Caption})
		case kit.MediaAudio:
			album = append(album, &tele.Audio{File: f, Caption: m.Caption})
		case kit.MediaVideo:
			album = append(album, &tele.Video{File: f, Caption: m.Caption})
		default:
			return nil, fmt.Errorf("%w in album: %q", kit.ErrUnsupportedMedia, m.Kind)
		}
	}
	return album, nil
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

// splitTelegramText splits long messages into chunks Telegram accepts.
// It prefers newline boundaries and, for HTML, avoids cutting inside a tag.
// It always returns at least one chunk.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid tiny chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if strings.EqualFold(parseMode, "HTML") && end < len(rs) {
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
