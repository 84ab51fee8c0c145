package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"sharebot/internal/broadcast"
	"sharebot/internal/delivery"
	"sharebot/internal/session"
	"sharebot/internal/settings"
	"sharebot/internal/storage"
	kit "sharebot/internal/transport"
	"sharebot/internal/vault"
	"sharebot/pkg/logx"
	"sharebot/pkg/tgui"
)

const owner = int64(100)

type sent struct {
	To   kit.ChatTarget
	Text string
	Opt  *kit.SendOptions
}

type fakeAdapter struct {
	mu      sync.Mutex
	nextID  int
	sent    []sent
	edits   []sent
	deleted []kit.MessageRef
	answers []string
	menu    []kit.BotCommand
}

func (a *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(context.Context) error                     { return nil }

func (a *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	a.sent = append(a.sent, sent{To: to, Text: text, Opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: a.nextID}, nil
}

func (a *fakeAdapter) EditText(_ context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.edits = append(a.edits, sent{To: ref.Target(), Text: text, Opt: opt})
	return nil
}

func (a *fakeAdapter) DeleteMessage(_ context.Context, ref kit.MessageRef) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, ref)
	return nil
}

func (a *fakeAdapter) AnswerCallback(_ context.Context, id, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.answers = append(a.answers, id)
	return nil
}

func (a *fakeAdapter) SendMedia(context.Context, kit.ChatTarget, kit.Media, *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}
func (a *fakeAdapter) SendAlbum(context.Context, kit.ChatTarget, []kit.Media, *kit.SendOptions) error {
	return nil
}
func (a *fakeAdapter) CopyMessage(context.Context, kit.ChatTarget, kit.MessageRef, *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}
func (a *fakeAdapter) Probe(context.Context, string) error { return nil }
func (a *fakeAdapter) Username() string                    { return "sharebot" }

func (a *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	a.mu.Lock()
	a.menu = cmds
	a.mu.Unlock()
	return nil
}

func (a *fakeAdapter) texts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.sent))
	for i, s := range a.sent {
		out[i] = s.Text
	}
	return out
}

func (a *fakeAdapter) last() sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sent) == 0 {
		return sent{}
	}
	return a.sent[len(a.sent)-1]
}

func (a *fakeAdapter) lastEdit() sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.edits) == 0 {
		return sent{}
	}
	return a.edits[len(a.edits)-1]
}

type okProber struct{}

func (okProber) Probe(context.Context, string) error { return nil }

type fakeLinks struct {
	rep delivery.Report
	err error
}

func (l fakeLinks) FulfillLink(context.Context, string, kit.ChatTarget) (delivery.Report, error) {
	return l.rep, l.err
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	audience int
	pending  bool
	sources  []kit.MessageRef
}

func (f *fakeBroadcaster) Draft(_ context.Context, _ int64, _ kit.ChatTarget, src kit.MessageRef) (broadcast.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.audience == 0 {
		return broadcast.Decision{}, broadcast.ErrNoAudience
	}
	f.sources = append(f.sources, src)
	f.pending = true
	return broadcast.Decision{State: broadcast.StateAwaitingConfirmation, Audience: f.audience}, nil
}

func (f *fakeBroadcaster) Confirm(context.Context, int64, kit.ChatTarget) (broadcast.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.pending {
		return broadcast.Decision{}, broadcast.ErrNoPending
	}
	f.pending = false
	return broadcast.Decision{State: broadcast.StateDispatching, Audience: f.audience, JobID: "job-1"}, nil
}

func (f *fakeBroadcaster) Cancel(context.Context, int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	had := f.pending
	f.pending = false
	return had, nil
}

type harness struct {
	bot      *Bot
	ad       *fakeAdapter
	vault    *vault.Service
	settings *settings.Store
	bc       *fakeBroadcaster
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	ctx := context.Background()
	st := storage.NewMemory()
	set := settings.New(st, logx.Nop())
	if _, err := set.Init(ctx, vault.Settings{DeleteAfterHours: 24}); err != nil {
		t.Fatalf("settings.Init: %v", err)
	}
	svc := vault.NewService(st, okProber{}, vault.WithDefaults(set))
	ad := &fakeAdapter{}
	bc := &fakeBroadcaster{audience: 3}
	if cfg.Owners == nil {
		cfg.Owners = []int64{owner}
	}
	b := New(cfg, Deps{
		Adapter:   ad,
		Vault:     svc,
		Links:     fakeLinks{},
		Settings:  set,
		Broadcast: bc,
		Sessions:  session.NewMemory(time.Now),
		StartedAt: time.Now().Add(-90 * time.Minute),
	})
	t.Cleanup(b.notice.stopAll)
	return &harness{bot: b, ad: ad, vault: svc, settings: set, bc: bc}
}

func textUpdate(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 7, ChatID: from, FromID: from, Text: text}}
}

func mediaUpdate(from int64, ref, caption string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID: from, FromID: from,
		Media: &kit.Media{Kind: kit.MediaDocument, FileRef: ref, Caption: caption},
	}}
}

func callbackUpdate(from int64, data string) kit.Update {
	return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb", FromID: from, ChatID: from, MessageID: 55, Data: data}}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		name string
		args []string
		ok   bool
	}{
		{"/start abc", "start", []string{"abc"}, true},
		{"/SaveFiles@sharebot", "savefiles", nil, true},
		{"  /deletefiles   Ab12Cd34 ", "deletefiles", []string{"Ab12Cd34"}, true},
		{"hello", "", nil, false},
		{"/", "", nil, false},
	}
	for _, tc := range cases {
		name, args, ok := parseCommand(tc.in)
		if ok != tc.ok || name != tc.name || len(args) != len(tc.args) {
			t.Fatalf("parseCommand(%q) = %q %v %v, want %q %v %v", tc.in, name, args, ok, tc.name, tc.args, tc.ok)
		}
	}
}

func TestMediaFromStrangerIsDenied(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	ctx := context.Background()

	h.bot.Handle(ctx, mediaUpdate(999, "f1", ""))
	if got := h.ad.last().Text; got != txtUploadDenied {
		t.Fatalf("reply = %q, want %q", got, txtUploadDenied)
	}
	if n, _ := h.vault.CountStaged(ctx, 999); n != 0 {
		t.Fatalf("CountStaged = %d, want 0", n)
	}
}

func TestOwnerOnlyCommandDenied(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	h.bot.Handle(context.Background(), textUpdate(999, "/stats"))
	if got, want := h.ad.last().Text, "🚫 You are not authorized to view statistics."; got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
}

func TestUnknownCommandIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	h.bot.Handle(context.Background(), textUpdate(owner, "/nope"))
	h.bot.Handle(context.Background(), textUpdate(999, "just chatting"))
	if got := h.ad.texts(); len(got) != 0 {
		t.Fatalf("sent = %v, want nothing", got)
	}
}

func TestSaveFilesFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{NoticeDelay: time.Hour})
	ctx := context.Background()

	h.bot.Handle(ctx, textUpdate(owner, "/savefiles"))
	if got := h.ad.last().Text; got != txtEmptyBatch {
		t.Fatalf("empty commit reply = %q, want %q", got, txtEmptyBatch)
	}

	for i := 0; i < 3; i++ {
		h.bot.Handle(ctx, mediaUpdate(owner, fmt.Sprintf("f%d", i), "Holiday pics"))
	}
	if !h.bot.notice.pending(owner) {
		t.Fatalf("notice not scheduled after staging")
	}
	h.bot.Handle(ctx, textUpdate(owner, "/savefiles"))
	if h.bot.notice.pending(owner) {
		t.Fatalf("notice still pending after commit")
	}

	out := h.ad.last()
	if !strings.Contains(out.Text, "Successfully saved 3 files!") {
		t.Fatalf("commit reply = %q", out.Text)
	}
	if !strings.Contains(out.Text, "https://t.me/sharebot?start=") {
		t.Fatalf("commit reply lacks deep link: %q", out.Text)
	}
	if out.Opt == nil || out.Opt.ParseMode != "HTML" || out.Opt.ReplyMarkupAdapter == nil {
		t.Fatalf("commit reply opts = %+v, want HTML with a link button", out.Opt)
	}

	list, err := h.vault.ListBatches(ctx, owner, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListBatches = %v, %v; want one batch", list, err)
	}
	if list[0].Count != 3 {
		t.Fatalf("batch count = %d, want 3", list[0].Count)
	}
}

func TestNoticeDebounce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{NoticeDelay: 20 * time.Millisecond})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		h.bot.Handle(ctx, mediaUpdate(owner, fmt.Sprintf("f%d", i), ""))
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ad.last().Text == txtNoticeFew {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(60 * time.Millisecond)

	n := 0
	for _, s := range h.ad.texts() {
		if s == txtNoticeFew {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("notices sent = %d, want 1", n)
	}
}

func TestDeleteFilesRequiresOwnership(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{Owners: []int64{owner, 200}, NoticeDelay: time.Hour})
	ctx := context.Background()

	h.bot.Handle(ctx, mediaUpdate(owner, "f1", ""))
	res, err := h.vault.Commit(ctx, owner)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	cases := []struct {
		from int64
		text string
		want string
	}{
		{owner, "/deletefiles", txtDeleteUsage},
		{200, "/deletefiles " + res.Code, txtDeleteDenied},
		{owner, "/deletefiles ZZZZZZZZ", txtDeleteDenied},
		{owner, "/deletefiles " + res.Code, txtDeleted},
	}
	for _, tc := range cases {
		h.bot.Handle(ctx, textUpdate(tc.from, tc.text))
		if got := h.ad.last().Text; got != tc.want {
			t.Fatalf("%d %q reply = %q, want %q", tc.from, tc.text, got, tc.want)
		}
	}
}

func TestStartWithUnknownCode(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	h.bot.deps.Links = fakeLinks{err: fmt.Errorf("lookup: %w", vault.ErrNotFound)}
	h.bot.Handle(context.Background(), textUpdate(999, "/start nosuchcd"))
	if got := h.ad.last().Text; got != txtInvalidLink {
		t.Fatalf("reply = %q, want %q", got, txtInvalidLink)
	}
}

func TestStartReportsFailedClusters(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	h.bot.deps.Links = fakeLinks{rep: delivery.Report{Clusters: 2, Delivered: 1, Failed: []delivery.ClusterFailure{{Index: 1, Err: errors.New("boom")}}}}
	h.bot.Handle(context.Background(), textUpdate(999, "/start Ab12Cd34"))
	if got := h.ad.last().Text; got != txtDeliveryFailed {
		t.Fatalf("reply = %q, want %q", got, txtDeliveryFailed)
	}
}

func TestRenderVault(t *testing.T) {
	t.Parallel()
	list := []vault.BatchSummary{{
		Code:         "Ab12Cd34",
		Count:        2,
		FirstKind:    vault.KindPhoto,
		FirstCaption: "Trip <2024>\nsecond line",
		Settings:     vault.Settings{AutoDelete: true, DeleteAfterHours: 12, ProtectContent: true},
	}}
	m := renderVault(list, func(c string) string { return "link/" + c })
	for _, want := range []string{"Trip &lt;2024&gt;", "🔒", "🟢 ON (12h)", "<code>link/Ab12Cd34</code>", "2 files total"} {
		if !strings.Contains(m.Text, want) {
			t.Fatalf("vault text missing %q:\n%s", want, m.Text)
		}
	}
	if strings.Contains(m.Text, "second line") {
		t.Fatalf("vault text includes caption tail:\n%s", m.Text)
	}
}

func TestBatchTitleFallback(t *testing.T) {
	t.Parallel()
	if got, want := batchTitle(vault.BatchSummary{FirstKind: vault.KindVideo}), "Unnamed video"; got != want {
		t.Fatalf("batchTitle = %q, want %q", got, want)
	}
}

func TestConfigToggleAndHours(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	ctx := context.Background()

	h.bot.Handle(ctx, textUpdate(owner, "/config"))
	if got := h.ad.last().Text; !strings.Contains(got, "Global Configuration Settings") {
		t.Fatalf("config reply = %q", got)
	}

	h.bot.Handle(ctx, callbackUpdate(owner, tgui.Data(cbConfig, actToggle, "")))
	g, _ := h.settings.Global(ctx)
	if !g.AutoDelete {
		t.Fatalf("AutoDelete = false after toggle, want true")
	}
	if got := h.ad.lastEdit().Text; !strings.Contains(got, "Global Configuration Settings") {
		t.Fatalf("edited text = %q", got)
	}

	h.bot.Handle(ctx, callbackUpdate(owner, tgui.Data(cbConfig, actHours, "")))
	if got := h.ad.lastEdit().Text; !strings.Contains(got, "Set default auto-delete time") {
		t.Fatalf("hours prompt = %q", got)
	}

	h.bot.Handle(ctx, textUpdate(owner, "999"))
	if got := h.ad.last().Text; got != txtHoursInvalid {
		t.Fatalf("reply = %q, want %q", got, txtHoursInvalid)
	}
	h.bot.Handle(ctx, textUpdate(owner, " 48 "))
	g, _ = h.settings.Global(ctx)
	if g.DeleteAfterHours != 48 {
		t.Fatalf("DeleteAfterHours = %d, want 48", g.DeleteAfterHours)
	}
	if len(h.ad.deleted) != 1 {
		t.Fatalf("deleted = %d, want the input message removed", len(h.ad.deleted))
	}

	before := len(h.ad.texts())
	h.bot.Handle(ctx, textUpdate(owner, "12"))
	if got := len(h.ad.texts()); got != before {
		t.Fatalf("text without awaiting produced a reply")
	}
}

func TestConfigForCodeChecksOwner(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{Owners: []int64{owner, 200}, NoticeDelay: time.Hour})
	ctx := context.Background()

	h.bot.Handle(ctx, mediaUpdate(owner, "f1", ""))
	res, err := h.vault.Commit(ctx, owner)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	h.bot.Handle(ctx, textUpdate(200, "/config "+res.Code))
	if got := h.ad.last().Text; got != txtConfigDenied {
		t.Fatalf("reply = %q, want %q", got, txtConfigDenied)
	}
	h.bot.Handle(ctx, callbackUpdate(200, tgui.Data(cbConfig, actProtect, res.Code)))
	if got := h.ad.lastEdit().Text; got != txtConfigDenied {
		t.Fatalf("edit = %q, want %q", got, txtConfigDenied)
	}

	h.bot.Handle(ctx, callbackUpdate(owner, tgui.Data(cbConfig, actProtect, res.Code)))
	s, _ := h.settings.GetEffective(ctx, res.Code)
	if !s.ProtectContent {
		t.Fatalf("ProtectContent = false, want true")
	}
}

func TestCallbackFromStranger(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	h.bot.Handle(context.Background(), callbackUpdate(999, tgui.Data(cbConfig, actToggle, "")))
	if got := h.ad.lastEdit().Text; got != txtConfigForbidden {
		t.Fatalf("edit = %q, want %q", got, txtConfigForbidden)
	}
	if len(h.ad.answers) != 1 {
		t.Fatalf("answers = %d, want 1", len(h.ad.answers))
	}
}

func TestBroadcastCommands(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	ctx := context.Background()

	h.bot.Handle(ctx, textUpdate(owner, "/broadcast_confirm"))
	if got := h.ad.last().Text; got != txtNoPending {
		t.Fatalf("confirm reply = %q, want %q", got, txtNoPending)
	}
	h.bot.Handle(ctx, textUpdate(owner, "/broadcast"))
	if got := h.ad.last().Text; got != txtBroadcastUsage {
		t.Fatalf("broadcast reply = %q, want usage", got)
	}

	up := textUpdate(owner, "/broadcast")
	up.Message.ReplyTo = &kit.MessageRef{ChatID: owner, MessageID: 3}
	h.bot.Handle(ctx, up)
	if got, want := h.ad.last().Text, fmt.Sprintf(txtConfirmPrompt, 3); got != want {
		t.Fatalf("draft reply = %q, want %q", got, want)
	}

	n := len(h.ad.texts())
	h.bot.Handle(ctx, textUpdate(owner, "/broadcast_confirm"))
	if got := len(h.ad.texts()); got != n {
		t.Fatalf("confirm sent %d extra messages, want 0", got-n)
	}
	h.bot.Handle(ctx, textUpdate(owner, "/broadcast_cancel"))
	if got := h.ad.last().Text; got != txtNoPendingCancel {
		t.Fatalf("cancel reply = %q, want %q", got, txtNoPendingCancel)
	}
}

func TestFormatUptime(t *testing.T) {
	t.Parallel()
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0d 0h 0m 0s"},
		{-time.Second, "0d 0h 0m 0s"},
		{26*time.Hour + 3*time.Minute + 4*time.Second, "1d 2h 3m 4s"},
	}
	for _, tc := range cases {
		if got := formatUptime(tc.d); got != tc.want {
			t.Fatalf("formatUptime(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestUpdateMenuPublishesCommands(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	if err := h.bot.UpdateMenu(context.Background()); err != nil {
		t.Fatalf("UpdateMenu: %v", err)
	}
	if len(h.ad.menu) != len(commandOrder) || h.ad.menu[0].Command != "start" {
		t.Fatalf("menu = %+v", h.ad.menu)
	}
}

func TestRunShardsBySender(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{Workers: 2, NoticeDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update)
	done := make(chan error, 1)
	go func() { done <- h.bot.Run(ctx, updates) }()

	for i := 0; i < 5; i++ {
		updates <- mediaUpdate(owner, fmt.Sprintf("f%d", i), fmt.Sprint(i))
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := h.vault.CountStaged(context.Background(), owner); n == 5 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	res, err := h.vault.Commit(context.Background(), owner)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	b, err := h.vault.Retrieve(context.Background(), res.Code)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for i, it := range b.Items {
		if it.Caption != fmt.Sprint(i) {
			t.Fatalf("item %d caption = %q, want staging order", i, it.Caption)
		}
	}
}
