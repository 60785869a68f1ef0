package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "rankbot/internal/transport"
)

const (
	chatQueueSize   = 128
	chatSendTimeout = 10 * time.Second
	chatMaxBytes    = 3500
	chatMaxValue    = 600
)

type chatItem struct {
	to  kit.ChatTarget
	msg string
}

// chatSink is a zerolog.LevelWriter that queues records for an operator
// chat. Writes never block: records over the rate or past a full queue are
// dropped.
type chatSink struct {
	queue   chan chatItem
	dropped atomic.Uint64

	mu       sync.Mutex
	sender   kit.Adapter
	chatID   int64
	threadID int
	minLevel zerolog.Level
	limiter  *rate.Limiter

	startOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func newChatSink(sender kit.Adapter, threadID int) *chatSink {
	return &chatSink{
		sender:   sender,
		queue:    make(chan chatItem, chatQueueSize),
		threadID: threadID,
		minLevel: LevelWarn,
	}
}

// configure applies cfg and reports whether the sink should be attached.
func (c *chatSink) configure(cfg ChatConfig) bool {
	rps := max(1, cfg.RatePerSec)
	c.mu.Lock()
	c.minLevel = parseLevel(cfg.MinLevel, LevelWarn)
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if cfg.ThreadID != 0 {
		c.threadID = cfg.ThreadID
	}
	noTarget := c.chatID == 0
	sender := c.sender
	c.mu.Unlock()

	if !cfg.Enabled || sender == nil {
		return false
	}
	c.start()
	if noTarget {
		fmt.Fprintln(os.Stderr, "logx: chat logging enabled but telegram.group_log is not set")
	}
	return true
}

func (c *chatSink) setSender(sender kit.Adapter) {
	c.mu.Lock()
	c.sender = sender
	c.mu.Unlock()
}

func (c *chatSink) setTarget(chatID int64, threadID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatID = chatID
	if threadID != 0 {
		c.threadID = threadID
	}
}

func (c *chatSink) start() {
	c.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		c.mu.Lock()
		c.cancel = cancel
		c.mu.Unlock()
		c.wg.Add(1)
		go c.run(ctx)
	})
}

func (c *chatSink) stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		c.wg.Wait()
	}
}

func (c *chatSink) run(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-c.queue:
			c.mu.Lock()
			sender := c.sender
			c.mu.Unlock()
			if sender == nil {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, chatSendTimeout)
			_, _ = sender.SendText(sctx, it.to, it.msg, &kit.SendOptions{DisablePreview: true})
			cancel()
		}
	}
}

func (c *chatSink) Write(p []byte) (int, error) { return c.WriteLevel(LevelInfo, p) }

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	to := kit.ChatTarget{ChatID: c.chatID, ThreadID: c.threadID}
	pass := to.ChatID != 0 && level >= c.minLevel && c.limiter != nil && c.limiter.Allow()
	c.mu.Unlock()
	if !pass {
		return len(p), nil
	}
	msg := formatChatRecord(p)
	if msg == "" {
		return len(p), nil
	}
	select {
	case c.queue <- chatItem{to: to, msg: msg}:
	default:
		c.dropped.Add(1)
	}
	return len(p), nil
}

// formatChatRecord renders one JSON record as
//
//	[LEVEL] message
//	- key=value
//
// with keys sorted. Non-JSON input is passed through trimmed.
func formatChatRecord(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var rec map[string]any
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return truncate(raw, chatMaxBytes)
	}

	var b strings.Builder
	if lvl, _ := rec["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := rec["message"].(string)
	b.WriteString(msg)

	delete(rec, "time")
	delete(rec, "level")
	delete(rec, "message")
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, truncate(fmt.Sprint(rec[k]), chatMaxValue))
	}
	return truncate(b.String(), chatMaxBytes)
}

// truncate cuts s to at most n bytes on a rune boundary, marking the cut
// with "...".
func truncate(s string, n int) string {
	switch {
	case n <= 0 || len(s) <= n:
		return s
	case n < 10:
		return s[:runeCut(s, n)]
	}
	return s[:runeCut(s, n-3)] + "..."
}

// runeCut backs i off to the start of the rune it falls inside.
func runeCut(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
