// Package refresh runs one full report cycle: load the roster, fetch every
// player, rank, render, write the report file and publish it.
package refresh

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"rankbot/internal/rank"
	"rankbot/internal/report"
	logx "rankbot/pkg/logx"
)

// Failure stages.
const (
	StageRender  = "render"
	StageWrite   = "write"
	StagePublish = "publish"
	StagePanic   = "panic"
)

// Failure is a whole-run error. Per-player failures never produce one.
type Failure struct {
	Stage string
	Err   error
}

func (f *Failure) Error() string { return fmt.Sprintf("refresh %s: %v", f.Stage, f.Err) }
func (f *Failure) Unwrap() error { return f.Err }

// Outcome summarizes a finished run.
type Outcome struct {
	RunID     string
	StartedAt time.Time
	Took      time.Duration

	Entries  int // roster entries considered
	Ranked   int
	Unranked int
	Failed   int

	// Top holds the best ranked results, highest first.
	Top []rank.Result

	// Path is the written report file. Empty if the write stage was not reached.
	Path string
}

// Summary is the one-line count used in captions and logs.
func (o Outcome) Summary() string {
	return fmt.Sprintf("Ranked: %d | Unranked: %d | Failed: %d", o.Ranked, o.Unranked, o.Failed)
}

type Roster interface {
	EnsureFresh()
	Entries() []string
}

type Batch interface {
	Run(ctx context.Context, entries []string) []rank.Result
}

// Publisher delivers a written report.
type Publisher interface {
	Publish(ctx context.Context, out Outcome) error
}

const topN = 3

type Config struct {
	ReportPath string
	Title      string
	Location   *time.Location
}

type Pipeline struct {
	cfg     Config
	roster  Roster
	batch   Batch
	publish Publisher
	log     logx.Logger
	observe func(Outcome, error)
	now     func() time.Time
}

type Option func(*Pipeline)

func WithPublisher(p Publisher) Option { return func(pl *Pipeline) { pl.publish = p } }
func WithLogger(l logx.Logger) Option  { return func(pl *Pipeline) { pl.log = l } }

// WithObserver is called after every run, successful or not.
func WithObserver(fn func(Outcome, error)) Option { return func(pl *Pipeline) { pl.observe = fn } }

func withNow(fn func() time.Time) Option { return func(pl *Pipeline) { pl.now = fn } }

func New(cfg Config, roster Roster, batch Batch, opts ...Option) *Pipeline {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	p := &Pipeline{
		cfg:    cfg,
		roster: roster,
		batch:  batch,
		log:    logx.Nop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run executes one cycle. The outcome is filled as far as the run got even
// when a *Failure is returned.
func (p *Pipeline) Run(ctx context.Context) (out Outcome, err error) {
	out.RunID = uuid.NewString()
	out.StartedAt = p.now()
	log := p.log.With(logx.String("run", out.RunID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("refresh panic", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = &Failure{Stage: StagePanic, Err: fmt.Errorf("%v", r)}
		}
		out.Took = time.Since(out.StartedAt)
		if p.observe != nil {
			p.observe(out, err)
		}
	}()

	p.roster.EnsureFresh()
	entries := p.roster.Entries()
	out.Entries = len(entries)
	log.Info("refresh started", logx.Int("entries", len(entries)))

	results := p.batch.Run(ctx, entries)
	ranking := rank.Rank(results)
	out.Ranked = len(ranking.Ranked)
	out.Unranked = len(ranking.Unranked)
	out.Failed = len(ranking.Failed)
	out.Top = append([]rank.Result(nil), ranking.Ranked[:min(topN, len(ranking.Ranked))]...)

	doc, rerr := report.Render(ranking, report.Meta{
		Title:       p.cfg.Title,
		GeneratedAt: out.StartedAt.In(p.cfg.Location),
	})
	if rerr != nil {
		return out, &Failure{Stage: StageRender, Err: rerr}
	}
	if werr := WriteFileAtomic(p.cfg.ReportPath, doc); werr != nil {
		return out, &Failure{Stage: StageWrite, Err: werr}
	}
	out.Path = p.cfg.ReportPath

	log.Info("refresh finished",
		logx.Int("ranked", out.Ranked),
		logx.Int("unranked", out.Unranked),
		logx.Int("failed", out.Failed),
		logx.String("path", out.Path),
		logx.Duration("took", time.Since(out.StartedAt)),
	)

	if p.publish != nil {
		if perr := p.publish.Publish(ctx, out); perr != nil {
			return out, &Failure{Stage: StagePublish, Err: perr}
		}
	}
	return out, nil
}

// WriteFileAtomic replaces path with data via a temp file in the same
// directory and a rename.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
