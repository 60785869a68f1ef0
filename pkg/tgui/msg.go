package tgui

import (
	"context"
	"strings"

	kit "rankbot/internal/transport"
)

const parseModeHTML = "HTML"

// Message is text plus the options it must be sent with.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

func (m Message) Send(ctx context.Context, ad kit.Adapter, to kit.ChatTarget) (kit.MessageRef, error) {
	opt := m.Opt
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	return ad.SendText(ctx, to, m.Text, opt)
}

// Builder assembles a reply line by line. It starts in HTML mode with link
// previews off; every non-raw line is escaped in HTML mode.
type Builder struct {
	mode  string
	lines []string
}

func New() *Builder { return &Builder{mode: parseModeHTML} }

// ParseMode switches the parse mode. Empty means plain text.
func (b *Builder) ParseMode(mode string) *Builder {
	b.mode = strings.TrimSpace(mode)
	return b
}

func (b *Builder) isHTML() bool { return strings.EqualFold(b.mode, parseModeHTML) }

func (b *Builder) text(s string) string {
	if b.isHTML() {
		return escaper.Replace(s)
	}
	return s
}

func (b *Builder) bold(s string) string {
	if b.isHTML() {
		return B(s).String()
	}
	return s
}

func (b *Builder) add(line string) *Builder {
	b.lines = append(b.lines, line)
	return b
}

// Title adds "<emoji> <b>title</b>". Blank titles are skipped.
func (b *Builder) Title(emoji, title string) *Builder {
	title = strings.TrimSpace(title)
	if title == "" {
		return b
	}
	if e := strings.TrimSpace(emoji); e != "" {
		return b.add(e + " " + b.bold(title))
	}
	return b.add(b.bold(title))
}

func (b *Builder) Line(s string) *Builder {
	if strings.TrimSpace(s) == "" {
		return b.add("")
	}
	return b.add(b.text(s))
}

// RawLine appends pre-escaped HTML as is.
func (b *Builder) RawLine(h H) *Builder { return b.add(string(h)) }

func (b *Builder) Blank() *Builder { return b.add("") }

// KV adds a "• key: value" row.
func (b *Builder) KV(key, value string) *Builder {
	key = strings.TrimSpace(key)
	if key == "" {
		return b
	}
	return b.add("• " + b.bold(key) + ": " + b.text(strings.TrimSpace(value)))
}

func (b *Builder) Build() Message {
	return Message{
		Text: strings.Trim(strings.Join(b.lines, "\n"), "\n"),
		Opt:  &kit.SendOptions{ParseMode: b.mode, DisablePreview: true},
	}
}
