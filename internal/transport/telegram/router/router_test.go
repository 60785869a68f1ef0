package router

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	kit "rankbot/internal/transport"
	logx "rankbot/pkg/logx"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAdapter struct {
	mu      sync.Mutex
	texts   []string
	answers map[string][]kit.Suggestion
	menu    []kit.BotCommand
	sent    chan struct{}
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{answers: map[string][]kit.Suggestion{}, sent: make(chan struct{}, 64)}
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	f.sent <- struct{}{}
	return kit.MessageRef{}, nil
}

func (f *fakeAdapter) SendDocument(context.Context, kit.ChatTarget, kit.Document) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (f *fakeAdapter) AnswerQuery(_ context.Context, id string, results []kit.Suggestion) error {
	f.mu.Lock()
	f.answers[id] = results
	f.mu.Unlock()
	f.sent <- struct{}{}
	return nil
}

func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	f.menu = cmds
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.sent:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d of %d sends", i, n)
		}
	}
}

func (f *fakeAdapter) sortedTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := slices.Clone(f.texts)
	slices.Sort(out)
	return out
}

func msg(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: -100, FromID: from, Text: text}}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		word string
		args []string
		raw  string
		ok   bool
	}{
		{"/rank Faker#KR1", "rank", []string{"Faker#KR1"}, "Faker#KR1", true},
		{"/Rank@rank_bot Hide on bush#KR1", "rank", []string{"Hide", "on", "bush#KR1"}, "Hide on bush#KR1", true},
		{"  /status  ", "status", []string{}, "", true},
		{"/help\nrank", "help", []string{"rank"}, "rank", true},
		{"hello", "", nil, "", false},
		{"/", "", nil, "", false},
		{"/@bot", "", nil, "", false},
	}
	for _, tc := range cases {
		word, args, raw, ok := ParseCommand(tc.in)
		if ok != tc.ok || word != tc.word || raw != tc.raw {
			t.Fatalf("ParseCommand(%q) = %q, %q, %v; want %q, %q, %v", tc.in, word, raw, ok, tc.word, tc.raw, tc.ok)
		}
		if tc.ok {
			if diff := cmp.Diff(tc.args, args); diff != "" {
				t.Fatalf("ParseCommand(%q) args mismatch (-want +got):\n%s", tc.in, diff)
			}
		}
	}
}

func TestRegisterRejectsInvalid(t *testing.T) {
	t.Parallel()
	r := New(newFakeAdapter())
	if err := r.Register(Command{Name: " ", Handle: func(context.Context, *Request) error { return nil }}); !errors.Is(err, errEmptyName) {
		t.Fatalf("empty name error = %v, want errEmptyName", err)
	}
	if err := r.Register(Command{Name: "x"}); !errors.Is(err, errNoHandler) {
		t.Fatalf("nil handler error = %v, want errNoHandler", err)
	}
	if _, ok := r.Lookup("h"); !ok {
		t.Fatalf("help alias not registered")
	}
}

func TestDispatchLoopRoutesCommands(t *testing.T) {
	ad := newFakeAdapter()

	var obsMu sync.Mutex
	outcomes := map[string]int{}
	r := New(ad,
		WithOwners([]int64{1}),
		WithWorkers(2),
		WithCommandObserver(func(cmd, outcome string) {
			obsMu.Lock()
			outcomes[cmd+":"+outcome]++
			obsMu.Unlock()
		}),
		WithQueryHandler(func(_ context.Context, q kit.Query) ([]kit.Suggestion, error) {
			return []kit.Suggestion{{Title: q.Text, Text: "/rank " + q.Text}}, nil
		}),
	)
	err := r.Register(
		Command{Name: "rank", Aliases: []string{"r"}, Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, "rank:"+req.RawArgs, nil)
		}},
		Command{Name: "refresh", Access: AccessOwnerOnly, Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, "refreshed", nil)
		}},
		Command{Name: "boom", Handle: func(context.Context, *Request) error { panic("kaboom") }},
	)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 16)
	done := make(chan error, 1)
	go func() { done <- r.DispatchLoop(ctx, updates) }()

	updates <- msg(5, "/rank Hide on bush#KR1")
	updates <- msg(5, "/r Faker#KR1")
	updates <- msg(5, "/refresh")
	updates <- msg(1, "/refresh")
	updates <- msg(5, "/nope")
	updates <- msg(5, "just chatting")
	ad.wait(t, 5)

	// a panicking handler must not take the workers down
	updates <- msg(5, "/boom")
	updates <- msg(5, "/rank after#boom")
	ad.wait(t, 1)

	updates <- kit.Update{Kind: kit.UpdateQuery, Query: &kit.Query{ID: "q1", Text: "fak"}}
	ad.wait(t, 1)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("DispatchLoop = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("DispatchLoop did not stop")
	}

	want := []string{
		"rank:Faker#KR1",
		"rank:Hide on bush#KR1",
		"rank:after#boom",
		"refreshed",
		"unauthorized",
		"unknown command, try /help",
	}
	if diff := cmp.Diff(want, ad.sortedTexts()); diff != "" {
		t.Fatalf("replies mismatch (-want +got):\n%s", diff)
	}

	ad.mu.Lock()
	answer := ad.answers["q1"]
	ad.mu.Unlock()
	if len(answer) != 1 || answer[0].Text != "/rank fak" {
		t.Fatalf("inline answer = %+v", answer)
	}

	obsMu.Lock()
	defer obsMu.Unlock()
	wantOutcomes := map[string]int{
		"rank:ok":         3,
		"refresh:denied":  1,
		"refresh:ok":      1,
		"unknown:unknown": 1,
		"boom:error":      1,
	}
	if diff := cmp.Diff(wantOutcomes, outcomes); diff != "" {
		t.Fatalf("outcomes mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownCommandsShareOneLabel(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	var labels []string
	r := New(ad, WithCommandObserver(func(cmd, outcome string) {
		labels = append(labels, cmd+":"+outcome)
	}))

	words := []string{"/junk1", "/junk2", "/zzz@rankbot", "/Ｆｏｏ", "/x y z"}
	for _, w := range words {
		r.route(context.Background(), msg(5, w))
	}
	ad.wait(t, len(words))

	seen := map[string]int{}
	for _, l := range labels {
		seen[l]++
	}
	want := map[string]int{UnknownCommand + ":" + OutcomeUnknown: len(words)}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Fatalf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestRouteRejectsWhenQueueFull(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	r := New(ad, WithQueueSize(1))
	_ = r.Register(Command{Name: "rank", Handle: func(context.Context, *Request) error { return nil }})

	// no workers are running, so the first job fills the queue
	r.route(context.Background(), msg(5, "/rank a#b"))
	r.route(context.Background(), msg(5, "/rank c#d"))
	ad.wait(t, 1)
	if got := ad.sortedTexts(); len(got) != 1 || got[0] != "busy, try again" {
		t.Fatalf("replies = %q, want one busy reply", got)
	}
}

func TestMiddlewareTimeoutAndRecover(t *testing.T) {
	t.Parallel()
	var deadline bool
	h := Chain(func(ctx context.Context, _ *Request) error {
		_, deadline = ctx.Deadline()
		panic("x")
	}, MWPanicRecover(logx.Nop()), MWTimeout(time.Second))
	err := h(context.Background(), &Request{})
	if err == nil || err.Error() != "panic: x" {
		t.Fatalf("err = %v, want panic: x", err)
	}
	if !deadline {
		t.Fatalf("MWTimeout did not set a deadline")
	}
}

func TestHelpText(t *testing.T) {
	t.Parallel()
	r := New(newFakeAdapter())
	_ = r.Register(
		Command{Name: "rank", Aliases: []string{"r", "lookup"}, Description: "look up a player", Usage: "/rank name#tag", Handle: func(context.Context, *Request) error { return nil }},
		Command{Name: "refresh", Description: "rebuild <report>", Access: AccessOwnerOnly, Handle: func(context.Context, *Request) error { return nil }},
	)

	top := r.HelpText(nil)
	rankAt := strings.Index(top, "<code>/rank</code> - look up a player")
	refreshAt := strings.Index(top, "🔒 <code>/refresh</code> - rebuild &lt;report&gt;")
	if rankAt < 0 || refreshAt < 0 || refreshAt < rankAt {
		t.Fatalf("top help = %q", top)
	}

	detail := r.HelpText([]string{"r"})
	for _, want := range []string{"<code>/rank</code>", "<code>/rank name#tag</code>", "• <code>/lookup</code>\n• <code>/r</code>"} {
		if !strings.Contains(detail, want) {
			t.Fatalf("detail help missing %q:\n%s", want, detail)
		}
	}
	if got := r.HelpText([]string{"zzz"}); !strings.Contains(got, "Unknown command") {
		t.Fatalf("unknown help = %q", got)
	}
}

func TestMenuCommands(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	r := New(ad)
	_ = r.Register(
		Command{Name: "refresh", Description: "rebuild now", Access: AccessOwnerOnly, Handle: func(context.Context, *Request) error { return nil }},
		Command{Name: "rank", Handle: func(context.Context, *Request) error { return nil }},
	)
	if err := r.PublishMenu(context.Background()); err != nil {
		t.Fatalf("PublishMenu: %v", err)
	}
	want := []kit.BotCommand{
		{Command: "help", Description: "list commands"},
		{Command: "rank", Description: "rank"},
		{Command: "refresh", Description: "🔒 rebuild now"},
	}
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if diff := cmp.Diff(want, ad.menu); diff != "" {
		t.Fatalf("menu mismatch (-want +got):\n%s", diff)
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"rank":     "rank",
		"Rank-Top": "rank_top",
		"a  b":     "a_b",
		"__x__":    "x",
		"9lives":   "cmd_9lives",
		"ünïcode":  "ncode",
	}
	for in, want := range cases {
		if got := sanitizeTelegramCommand(in); got != want {
			t.Fatalf("sanitizeTelegramCommand(%q) = %q, want %q", in, got, want)
		}
	}
	if got := sanitizeTelegramCommand(strings.Repeat("a", 40)); len(got) != 32 {
		t.Fatalf("long name kept %d chars, want 32", len(got))
	}
}
