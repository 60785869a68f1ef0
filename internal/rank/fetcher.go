package rank

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rankbot/internal/riot"
	logx "rankbot/pkg/logx"
)

// DefaultLookupDelay separates the account and league calls of one fetch.
const DefaultLookupDelay = 500 * time.Millisecond

// API is the subset of the Riot client the fetcher needs.
type API interface {
	AccountByRiotID(ctx context.Context, name, tag string) (riot.Account, error)
	LeagueEntriesByPUUID(ctx context.Context, puuid string) ([]riot.LeagueEntry, error)
}

// Fetcher turns one identity into one Result. It never returns an error:
// every failure is folded into the result.
type Fetcher struct {
	api   API
	delay time.Duration
	sleep func(context.Context, time.Duration) error
	log   logx.Logger
	obs   func(Status, time.Duration)
}

type FetcherOption func(*Fetcher)

// WithLookupDelay overrides the pause between the two remote calls.
// Zero disables it.
func WithLookupDelay(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d >= 0 {
			f.delay = d
		}
	}
}

func WithFetchLogger(l logx.Logger) FetcherOption { return func(f *Fetcher) { f.log = l } }

// WithFetchObserver is called once per fetch with the final status.
func WithFetchObserver(fn func(Status, time.Duration)) FetcherOption {
	return func(f *Fetcher) { f.obs = fn }
}

func withSleep(fn func(context.Context, time.Duration) error) FetcherOption {
	return func(f *Fetcher) { f.sleep = fn }
}

func NewFetcher(api API, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		api:   api,
		delay: DefaultLookupDelay,
		sleep: sleepCtx,
		log:   logx.Nop(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch resolves id and classifies its solo-queue standing.
func (f *Fetcher) Fetch(ctx context.Context, id Identity) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("fetch panic", logx.String("id", id.String()), logx.Any("panic", r))
			res = Failed(id, fmt.Sprintf("panic: %v", r))
		}
		if f.obs != nil {
			f.obs(res.Status, time.Since(start))
		}
	}()
	return f.fetch(ctx, id)
}

func (f *Fetcher) fetch(ctx context.Context, id Identity) Result {
	acc, err := f.api.AccountByRiotID(ctx, id.Name, id.Tag)
	if err != nil {
		return f.classify(id, err)
	}
	if f.delay > 0 {
		if err := f.sleep(ctx, f.delay); err != nil {
			return Failed(id, err.Error())
		}
	}
	entries, err := f.api.LeagueEntriesByPUUID(ctx, acc.PUUID)
	if err != nil {
		return f.classify(id, err)
	}
	for _, e := range entries {
		if e.QueueType != riot.QueueSoloRanked {
			continue
		}
		return Success(id, Standing{
			Tier:         e.Tier,
			Division:     e.Rank,
			LeaguePoints: e.LeaguePoints,
			Wins:         max(e.Wins, 0),
			Losses:       max(e.Losses, 0),
			Score:        Score(e.Tier, e.Rank, e.LeaguePoints),
		})
	}
	return Unranked(id)
}

func (f *Fetcher) classify(id Identity, err error) Result {
	if IsNotFound(err) {
		return NotFound(id)
	}
	f.log.Debug("fetch failed", logx.String("id", id.String()), logx.Err(err))
	return Failed(id, err.Error())
}

// IsNotFound reports whether err means the player does not exist.
// Upstream errors are matched structurally first, then by text.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, riot.ErrNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "404") || strings.Contains(strings.ToLower(msg), "not found")
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
