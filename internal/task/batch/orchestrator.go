// Package batch fans a roster out over the rank fetcher in fixed-size
// chunks with a bounded number of fetches in flight.
package batch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"rankbot/internal/rank"
	logx "rankbot/pkg/logx"
)

const (
	DefaultChunkSize = 50
	DefaultPause     = time.Second
)

// Fetcher resolves one identity. It must not fail; failures are results.
type Fetcher interface {
	Fetch(ctx context.Context, id rank.Identity) rank.Result
}

type Config struct {
	ChunkSize   int
	Concurrency int // defaults to ChunkSize
	Pause       time.Duration
}

func (c Config) normalize() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Concurrency <= 0 || c.Concurrency > c.ChunkSize {
		c.Concurrency = c.ChunkSize
	}
	if c.Pause < 0 {
		c.Pause = 0
	}
	return c
}

type Orchestrator struct {
	cfg     Config
	fetcher Fetcher
	log     logx.Logger
	sleep   func(context.Context, time.Duration) error
}

type Option func(*Orchestrator)

func WithLogger(l logx.Logger) Option { return func(o *Orchestrator) { o.log = l } }

func withSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

func New(f Fetcher, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg.normalize(),
		fetcher: f,
		log:     logx.Nop(),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run fetches every parseable entry and returns one result per entry in
// completion order. Chunks run one after another; within a chunk at most
// Concurrency fetches are in flight. Unparseable entries are skipped.
func (o *Orchestrator) Run(ctx context.Context, entries []string) []rank.Result {
	ids := make([]rank.Identity, 0, len(entries))
	for _, e := range entries {
		id, ok := rank.ParseIdentity(e)
		if !ok {
			o.log.Debug("skip roster entry", logx.String("entry", e))
			continue
		}
		ids = append(ids, id)
	}

	var (
		mu  sync.Mutex
		out = make([]rank.Result, 0, len(ids))
	)
	size := o.cfg.ChunkSize
	for start := 0; start < len(ids); start += size {
		if start > 0 && o.cfg.Pause > 0 {
			// a canceled pause is ignored; the fetches below fail fast instead
			_ = o.sleep(ctx, o.cfg.Pause)
		}
		chunk := ids[start:min(start+size, len(ids))]

		var g errgroup.Group
		g.SetLimit(o.cfg.Concurrency)
		for _, id := range chunk {
			g.Go(func() error {
				res := o.fetcher.Fetch(ctx, id)
				mu.Lock()
				out = append(out, res)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		o.log.Debug("chunk done",
			logx.Int("chunk", start/size+1),
			logx.Int("size", len(chunk)),
			logx.Int("done", len(out)),
			logx.Int("total", len(ids)),
		)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
