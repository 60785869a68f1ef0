package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	rtsup "rankbot/internal/runtime/supervisor"
	kit "rankbot/internal/transport"
	logx "rankbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	// Name is the command word without the slash, e.g. "rank".
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

// QueryHandlerFunc answers an inline query with suggestions.
type QueryHandlerFunc func(ctx context.Context, q kit.Query) ([]kit.Suggestion, error)

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	// RawArgs is the text after the command word, trimmed. Riot names may
	// contain spaces so handlers that take one identity read this.
	RawArgs string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text back to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, opt)
	return err
}

// Command outcomes passed to the observer.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeDenied  = "denied"
	OutcomeBusy    = "busy"
	OutcomeUnknown = "unknown"
)

// UnknownCommand is the command label reported for words that match no
// registered command, keeping the label set bounded.
const UnknownCommand = "unknown"

const (
	defaultQueueSize    = 256
	defaultQueryTimeout = 5 * time.Second
)

var (
	errEmptyName = errors.New("router: command name is empty")
	errNoHandler = errors.New("router: command has no handler")
)

type Router struct {
	mu    sync.RWMutex
	cmds  map[string]*Command // canonical name -> command
	alias map[string]*Command
	query QueryHandlerFunc

	owners []int64

	log     logx.Logger
	adapter kit.Adapter
	observe func(command, outcome string)
	workers int

	jobs chan func()
}

type Option func(*Router)

func WithLogger(l logx.Logger) Option { return func(r *Router) { r.log = l } }

// WithOwners sets the user IDs allowed to run owner-only commands.
func WithOwners(ids []int64) Option {
	return func(r *Router) { r.owners = append([]int64(nil), ids...) }
}

func WithWorkers(n int) Option { return func(r *Router) { r.workers = n } }

func WithQueueSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.jobs = make(chan func(), n)
		}
	}
}

// WithCommandObserver is called once per routed command with one of the
// Outcome* values.
func WithCommandObserver(fn func(command, outcome string)) Option {
	return func(r *Router) { r.observe = fn }
}

func WithQueryHandler(fn QueryHandlerFunc) Option { return func(r *Router) { r.query = fn } }

func New(adapter kit.Adapter, opts ...Option) *Router {
	r := &Router{
		cmds:    map[string]*Command{},
		alias:   map[string]*Command{},
		log:     logx.Nop(),
		adapter: adapter,
		workers: 4,
		jobs:    make(chan func(), defaultQueueSize),
	}
	for _, o := range opts {
		o(r)
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	if r.workers < 1 {
		r.workers = 1
	}
	// always inject help
	_ = r.Register(Command{
		Name:        "help",
		Aliases:     []string{"h"},
		Description: "list commands",
		Usage:       "/help [command]",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, r.HelpText(req.Args), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
		},
	})
	return r
}

// Register adds commands. A later registration with the same name or alias
// replaces the earlier one.
func (r *Router) Register(cmds ...Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cmds {
		name := normalizeName(c.Name)
		if name == "" {
			return errEmptyName
		}
		if c.Handle == nil {
			return fmt.Errorf("%w: %s", errNoHandler, name)
		}
		cc := c
		cc.Name = name
		r.cmds[name] = &cc
		for _, a := range c.Aliases {
			if a = normalizeName(a); a != "" && a != name {
				r.alias[a] = &cc
			}
		}
	}
	return nil
}

// Lookup resolves a command word or alias.
func (r *Router) Lookup(word string) (Command, bool) {
	word = normalizeName(word)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.cmds[word]; ok {
		return *c, true
	}
	if c, ok := r.alias[word]; ok {
		return *c, true
	}
	return Command{}, false
}

// Commands returns the registered commands sorted by name.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	out := make([]Command, 0, len(r.cmds))
	for _, c := range r.cmds {
		out = append(out, *c)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Command) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (r *Router) isOwner(id int64) bool { return slices.Contains(r.owners, id) }

// tryEnqueue never blocks; a full queue rejects the job.
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop routes updates until ctx is done or updates is closed.
// Handlers run on a bounded worker pool.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	r.log.Info("command dispatcher started", logx.Int("workers", r.workers), logx.Int("job_queue_cap", cap(r.jobs)))

	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			return r.work(c, idx)
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		sup.Cancel()
		// Wait briefly for workers to finish their current job.
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) work(ctx context.Context, idx int) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-r.jobs:
			if job == nil {
				continue
			}
			// middleware already recovers; keep the worker alive regardless
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						r.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
					}
				}()
				job()
			}()
		}
	}
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		r.routeMessage(ctx, up)
	case kit.UpdateQuery:
		r.routeQuery(ctx, up)
	}
}

// ParseCommand splits "/rank@bot Faker#KR1" into the command word, the
// whitespace separated args and the raw remainder. ok is false when text
// is not a command.
func ParseCommand(text string) (word string, args []string, raw string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, "", false
	}
	head, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		head, rest = text[:i], text[i:]
	}
	word = strings.TrimPrefix(head, "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = normalizeName(word)
	if word == "" {
		return "", nil, "", false
	}
	raw = strings.TrimSpace(rest)
	return word, strings.Fields(raw), raw, true
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	word, args, raw, ok := ParseCommand(msg.Text)
	if !ok {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	cmd, found := r.Lookup(word)
	if !found {
		r.note(UnknownCommand, OutcomeUnknown)
		r.log.Debug("unknown command", logx.String("cmd", word), logx.Int64("chat_id", msg.ChatID))
		_, _ = r.adapter.SendText(ctx, chat, "unknown command, try /help", nil)
		return
	}
	if cmd.Access == AccessOwnerOnly && !r.isOwner(msg.FromID) {
		r.note(cmd.Name, OutcomeDenied)
		_, _ = r.adapter.SendText(ctx, chat, "unauthorized", nil)
		return
	}

	rid := uuid.NewString()
	req := &Request{
		Update:  up,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		RawArgs: raw,
		ReqID:   rid,
		Adapter: r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}

	final := Chain(
		cmd.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(cmd.Timeout),
	)

	if !r.tryEnqueue(func() {
		outcome := OutcomeOK
		if err := final(ctx, req); err != nil {
			outcome = OutcomeError
		}
		r.note(cmd.Name, outcome)
	}) {
		r.note(cmd.Name, OutcomeBusy)
		_, _ = r.adapter.SendText(ctx, chat, "busy, try again", nil)
	}
}

func (r *Router) routeQuery(ctx context.Context, up kit.Update) {
	q := up.Query
	if q == nil || r.query == nil {
		return
	}
	query := *q
	_ = r.tryEnqueue(func() {
		qctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
		defer cancel()
		results, err := r.query(qctx, query)
		if err != nil {
			r.log.Warn("inline query failed", logx.String("query_id", query.ID), logx.Err(err))
			return
		}
		if err := r.adapter.AnswerQuery(qctx, query.ID, results); err != nil {
			r.log.Debug("answer inline query failed", logx.String("query_id", query.ID), logx.Err(err))
		}
	})
}

func (r *Router) note(command, outcome string) {
	if r.observe != nil {
		r.observe(command, outcome)
	}
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "/")))
}
