package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	kit "rankbot/internal/transport"
)

type chatSpy struct {
	sent chan string
	to   chan kit.ChatTarget
}

func newChatSpy() *chatSpy {
	return &chatSpy{sent: make(chan string, 8), to: make(chan kit.ChatTarget, 8)}
}

func (c *chatSpy) Start(context.Context, chan<- kit.Update) error { return nil }
func (c *chatSpy) Stop(context.Context) error                     { return nil }
func (c *chatSpy) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.to <- to
	c.sent <- text
	return kit.MessageRef{}, nil
}
func (c *chatSpy) SendDocument(context.Context, kit.ChatTarget, kit.Document) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}
func (c *chatSpy) AnswerQuery(context.Context, string, []kit.Suggestion) error { return nil }

func TestFormatChatRecord(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "fields sorted",
			in:   `{"level":"warn","time":"x","message":"refresh failed","stage":"write","err":"disk full"}`,
			want: "[WARN] refresh failed\n- err=disk full\n- stage=write",
		},
		{
			name: "no level",
			in:   `{"message":"hello"}`,
			want: "hello",
		},
		{
			name: "not json",
			in:   "plain line\n",
			want: "plain line",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatChatRecord([]byte(tt.in)); got != tt.want {
				t.Fatalf("formatChatRecord() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"ascii", "abcdefghijklmnop", 12, "abcdefghi..."},
		{"fits", "short", 12, "short"},
		// each hangul syllable is three bytes
		{"hangul mid rune", "랭킹보드업데이트", 14, "랭킹보..."},
		{"hangul short cut", "랭킹보드", 8, "랭킹"},
		{"mixed", "ok 솔로랭크 done", 11, "ok 솔..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			if got != tt.want {
				t.Fatalf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("truncate(%q, %d) = %q, not valid UTF-8", tt.in, tt.n, got)
			}
			if len(got) > tt.n {
				t.Fatalf("len(truncate(%q, %d)) = %d, want <= %d", tt.in, tt.n, len(got), tt.n)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"TRACE":   LevelDebug,
		" info ":  LevelInfo,
		"warning": LevelWarn,
		"ERROR":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in, LevelInfo); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "INFO").With(String("comp", "test"))
	log.Debug("hidden")
	log.Info("visible", Int("n", 3), Err(errors.New("boom")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatal(err)
	}
	if m["message"] != "visible" || m["comp"] != "test" || m["n"] != float64(3) || m[zerolog.ErrorFieldName] != "boom" {
		t.Fatalf("record = %v", m)
	}
}

func TestNopAndZero(t *testing.T) {
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero Logger should be IsZero")
	}
	zero.Info("discarded")
	if Nop().IsZero() {
		t.Fatal("Nop() should not be IsZero")
	}
	if Nop().Enabled(LevelError) {
		t.Fatal("Nop() should not enable any level")
	}
}

func TestChatSinkForwardsWarnings(t *testing.T) {
	spy := newChatSpy()
	path := filepath.Join(t.TempDir(), "bot.log")
	svc, log := New(Config{
		Level: "DEBUG",
		File:  FileConfig{Enabled: true, Path: path},
		Chat:  ChatConfig{Enabled: true, MinLevel: "WARN", RatePerSec: 10},
	}, spy)
	svc.SetChatTarget(-100, 7)

	log.Info("routine")
	log.Warn("disk low", String("free", "1%"))

	select {
	case msg := <-spy.sent:
		if !strings.HasPrefix(msg, "[WARN] disk low") || !strings.Contains(msg, "- free=1%") {
			t.Fatalf("chat message = %q", msg)
		}
		if to := <-spy.to; to.ChatID != -100 || to.ThreadID != 7 {
			t.Fatalf("chat target = %+v", to)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("warning was not forwarded")
	}
	select {
	case msg := <-spy.sent:
		t.Fatalf("unexpected extra chat message %q", msg)
	case <-time.After(50 * time.Millisecond):
	}

	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "routine") || !strings.Contains(string(data), "disk low") {
		t.Fatalf("file sink missing records: %q", data)
	}
	if svc.Dropped() != 0 {
		t.Fatalf("Dropped() = %d, want 0", svc.Dropped())
	}
}

func TestSetSenderAfterNew(t *testing.T) {
	spy := newChatSpy()
	base := Config{
		Level: "INFO",
		File:  FileConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "bot.log")},
		Chat:  ChatConfig{MinLevel: "WARN", RatePerSec: 10},
	}
	svc, log := New(base, nil)
	defer func() { _ = svc.Close() }()

	// a child built before the sender exists follows the later Apply
	child := log.With(String("comp", "telegram"))
	child.Warn("too early")

	svc.SetSender(spy)
	svc.SetChatTarget(-100, 3)
	final := base
	final.Chat.Enabled = true
	svc.Apply(final)

	child.Warn("poll failed")
	select {
	case msg := <-spy.sent:
		if !strings.HasPrefix(msg, "[WARN] poll failed") || !strings.Contains(msg, "- comp=telegram") {
			t.Fatalf("chat message = %q, want poll failed with comp=telegram", msg)
		}
		if to := <-spy.to; to.ChatID != -100 || to.ThreadID != 3 {
			t.Fatalf("chat target = %+v, want -100/3", to)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("warning was not forwarded after SetSender")
	}
	select {
	case msg := <-spy.sent:
		t.Fatalf("unexpected extra chat message %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
