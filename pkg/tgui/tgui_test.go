package tgui

import "testing"

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 5, "hello…"},
		{"héllo wörld", 4, "héll…"},
		{"x", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncRunes(tt.in, tt.n); got != tt.want {
			t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestParseData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in                     string
		scope, action, payload string
		ok                     bool
	}{
		{"cfg:toggle:g", "cfg", "toggle", "g", true},
		{"cfg:close", "cfg", "close", "", true},
		{"cfg:hours:c:AbC:d", "cfg", "hours", "c:AbC:d", true},
		{"nocolon", "", "", "", false},
		{":x", "", "", "", false},
	}
	for _, tt := range tests {
		s, a, p, ok := ParseData(tt.in)
		if ok != tt.ok || s != tt.scope || a != tt.action || p != tt.payload {
			t.Fatalf("ParseData(%q) = %q %q %q %v, want %q %q %q %v", tt.in, s, a, p, ok, tt.scope, tt.action, tt.payload, tt.ok)
		}
	}
	if got := Data("cfg", "close", ""); got != "cfg:close" {
		t.Fatalf("Data = %q, want cfg:close", got)
	}
}

func TestBuilderEscapes(t *testing.T) {
	t.Parallel()

	m := New().Title("📈", "Stats <all>").KV("Files", "3").Line("a & b").Build()
	want := "📈 <b>Stats &lt;all&gt;</b>\n• Files: <code>3</code>\na &amp; b"
	if m.Text != want {
		t.Fatalf("Text = %q, want %q", m.Text, want)
	}
	if m.Opt.ParseMode != "HTML" || !m.Opt.DisablePreview {
		t.Fatalf("Opt = %+v, want HTML with preview disabled", m.Opt)
	}
}

func TestInlineRows(t *testing.T) {
	t.Parallel()

	kb := NewInline().Row(Btn("a", "x:a")).Row(Btn("b", "x:b"), URLBtn("c", "https://t.me"))
	rows := kb.Rows()
	if len(rows) != 2 || len(rows[1]) != 2 {
		t.Fatalf("rows = %v, want 2 rows with 1 and 2 buttons", rows)
	}
	if rows[0][0].Data != "x:a" {
		t.Fatalf("data = %q, want x:a", rows[0][0].Data)
	}
}
