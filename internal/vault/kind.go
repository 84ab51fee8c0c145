package vault

// Kind is the closed set of item content types.
type Kind string

const (
	KindDocument  Kind = "document"
	KindPhoto     Kind = "photo"
	KindAudio     Kind = "audio"
	KindVideo     Kind = "video"
	KindVoice     Kind = "voice"
	KindVideoNote Kind = "video_note"
	KindAnimation Kind = "animation"
	KindSticker   Kind = "sticker"
)

var kinds = map[Kind]struct {
	groupable bool
	emoji     string
}{
	KindDocument:  {groupable: true, emoji: "📄"},
	KindPhoto:     {groupable: true, emoji: "🖼️"},
	KindAudio:     {groupable: true, emoji: "🎵"},
	KindVideo:     {groupable: true, emoji: "🎬"},
	KindVoice:     {emoji: "🎤"},
	KindVideoNote: {emoji: "📹"},
	KindAnimation: {emoji: "🎞️"},
	KindSticker:   {emoji: "🩹"},
}

func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Groupable reports whether items of this kind may share a multi-item cluster.
func (k Kind) Groupable() bool { return kinds[k].groupable }

// Emoji is the listing icon for k.
func (k Kind) Emoji() string {
	if e := kinds[k].emoji; e != "" {
		return e
	}
	return "📁"
}
