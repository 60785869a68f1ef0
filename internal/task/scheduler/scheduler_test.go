package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"rankbot/internal/refresh"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var utc9 = time.FixedZone("UTC+9", 9*3600)

func mustDaily(t *testing.T, h, m int, loc *time.Location) Daily {
	t.Helper()
	d, err := NewDaily(h, m, loc)
	if err != nil {
		t.Fatalf("NewDaily(%d, %d) error: %v", h, m, err)
	}
	return d
}

func TestDailyWait(t *testing.T) {
	t.Parallel()
	d := mustDaily(t, 3, 0, utc9)
	cases := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		{"one hour before", time.Date(2024, 5, 1, 2, 0, 0, 0, utc9), time.Hour},
		{"one hour after", time.Date(2024, 5, 1, 4, 0, 0, 0, utc9), 23 * time.Hour},
		{"exactly at target", time.Date(2024, 5, 1, 3, 0, 0, 0, utc9), 24 * time.Hour},
		{"other zone input", time.Date(2024, 5, 1, 17, 30, 0, 0, time.UTC), 30 * time.Minute},
		{"month rollover", time.Date(2024, 1, 31, 23, 0, 0, 0, utc9), 4 * time.Hour},
	}
	for _, tc := range cases {
		if got := d.Wait(tc.now); got != tc.want {
			t.Fatalf("%s: Wait(%v) = %v, want %v", tc.name, tc.now, got, tc.want)
		}
	}
}

func TestDailyNextSubSecond(t *testing.T) {
	t.Parallel()
	d := mustDaily(t, 0, 30, time.UTC)
	now := time.Date(2024, 5, 1, 0, 29, 59, 500_000_000, time.UTC)
	want := time.Date(2024, 5, 1, 0, 30, 0, 0, time.UTC)
	if got := d.Next(now); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestNewDailyRejectsOutOfRange(t *testing.T) {
	t.Parallel()
	for _, hm := range [][2]int{{24, 0}, {-1, 0}, {0, 60}, {12, -5}} {
		if _, err := NewDaily(hm[0], hm[1], time.UTC); err == nil {
			t.Fatalf("NewDaily(%d, %d) error = nil, want error", hm[0], hm[1])
		}
	}
}

type scriptedRunner struct {
	mu    sync.Mutex
	calls int
	steps []func() (refresh.Outcome, error)
}

func (r *scriptedRunner) Run(context.Context) (refresh.Outcome, error) {
	r.mu.Lock()
	i := r.calls
	r.calls++
	r.mu.Unlock()
	if i < len(r.steps) {
		return r.steps[i]()
	}
	return refresh.Outcome{RunID: "late"}, nil
}

func TestRunSurvivesFailuresAndPanics(t *testing.T) {
	t.Parallel()
	runner := &scriptedRunner{steps: []func() (refresh.Outcome, error){
		func() (refresh.Outcome, error) {
			return refresh.Outcome{}, &refresh.Failure{Stage: refresh.StageWrite, Err: errors.New("disk full")}
		},
		func() (refresh.Outcome, error) { panic("boom") },
		func() (refresh.Outcome, error) { return refresh.Outcome{RunID: "ok", Ranked: 2}, nil },
	}}

	now := time.Date(2024, 5, 1, 2, 0, 0, 0, utc9)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var slept []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		now = now.Add(d)
		// first wait plus one sleep after each of the three scripted runs
		if len(slept) == 4 {
			cancel()
			return ctx.Err()
		}
		return nil
	}
	s := New(mustDaily(t, 3, 0, utc9), runner, withClock(func() time.Time { return now }, sleep))

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return")
	}

	want := []time.Duration{time.Hour, Period, Period, Period}
	if diff := cmp.Diff(want, slept); diff != "" {
		t.Fatalf("sleeps (-want +got):\n%s", diff)
	}
	if runner.calls != 3 {
		t.Fatalf("runner calls = %d, want 3", runner.calls)
	}
	st := s.Status()
	if st.Last == nil || st.Last.Err != nil || st.Last.Outcome.RunID != "ok" || st.Last.Trigger != TriggerScheduled {
		t.Fatalf("Last = %+v, want successful scheduled run ok", st.Last)
	}
	wantNext := time.Date(2024, 5, 4, 3, 0, 0, 0, utc9)
	if !st.Next.Equal(wantNext) {
		t.Fatalf("Next = %v, want %v", st.Next, wantNext)
	}
}

func TestRunReturnsOnCancelBeforeFirstTarget(t *testing.T) {
	t.Parallel()
	runner := &scriptedRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	s := New(mustDaily(t, 3, 0, utc9), runner)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if runner.calls != 0 {
		t.Fatalf("runner calls = %d, want 0", runner.calls)
	}
}

func TestTriggerNow(t *testing.T) {
	t.Parallel()
	runner := &scriptedRunner{steps: []func() (refresh.Outcome, error){
		func() (refresh.Outcome, error) { return refresh.Outcome{RunID: "m1", Ranked: 1}, nil },
		func() (refresh.Outcome, error) { panic("kaboom") },
		func() (refresh.Outcome, error) {
			return refresh.Outcome{RunID: "m3", Path: "r.html"}, &refresh.Failure{Stage: refresh.StagePublish, Err: errors.New("429")}
		},
	}}
	s := New(mustDaily(t, 3, 0, utc9), runner)

	out, err := s.TriggerNow(context.Background())
	if err != nil || out.RunID != "m1" {
		t.Fatalf("TriggerNow = %+v, %v, want m1, nil", out, err)
	}

	_, err = s.TriggerNow(context.Background())
	var f *refresh.Failure
	if !errors.As(err, &f) || f.Stage != refresh.StagePanic {
		t.Fatalf("err = %v, want panic failure", err)
	}

	out, err = s.TriggerNow(context.Background())
	if !errors.As(err, &f) || f.Stage != refresh.StagePublish || out.Path != "r.html" {
		t.Fatalf("TriggerNow = %+v, %v, want publish failure with path", out, err)
	}

	st := s.Status()
	if st.Last == nil || st.Last.Trigger != TriggerManual || st.Last.Err == nil {
		t.Fatalf("Last = %+v, want failed manual run", st.Last)
	}
	if !st.Next.IsZero() || st.Running != 0 {
		t.Fatalf("Status = %+v, want no timer and nothing running", st)
	}
}

func TestTriggerNowLeavesTimerArmed(t *testing.T) {
	t.Parallel()
	runner := &scriptedRunner{}

	var clockMu sync.Mutex
	now := time.Date(2024, 5, 1, 2, 0, 0, 0, utc9)
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	var slept []time.Duration
	entered := make(chan struct{})
	release := make(chan struct{})
	sleep := func(ctx context.Context, d time.Duration) error {
		clockMu.Lock()
		slept = append(slept, d)
		clockMu.Unlock()
		entered <- struct{}{}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-release:
		}
		clockMu.Lock()
		now = now.Add(d)
		clockMu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(mustDaily(t, 3, 0, utc9), runner, withClock(clock, sleep))
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitEntered := func() {
		t.Helper()
		select {
		case <-entered:
		case <-time.After(5 * time.Second):
			t.Fatalf("scheduler never slept")
		}
	}
	waitEntered()

	target := time.Date(2024, 5, 1, 3, 0, 0, 0, utc9)
	if got := s.Status().Next; !got.Equal(target) {
		t.Fatalf("Next before manual runs = %v, want %v", got, target)
	}

	for i := 0; i < 2; i++ {
		if _, err := s.TriggerNow(context.Background()); err != nil {
			t.Fatalf("TriggerNow #%d error: %v", i, err)
		}
	}
	st := s.Status()
	if !st.Next.Equal(target) {
		t.Fatalf("Next after manual runs = %v, want %v", st.Next, target)
	}
	if st.Last == nil || st.Last.Trigger != TriggerManual {
		t.Fatalf("Last = %+v, want manual run", st.Last)
	}

	// the pending first wait still completes and fires the scheduled run
	release <- struct{}{}
	waitEntered()

	st = s.Status()
	if want := target.Add(Period); !st.Next.Equal(want) {
		t.Fatalf("Next after scheduled run = %v, want %v", st.Next, want)
	}
	if st.Last == nil || st.Last.Trigger != TriggerScheduled {
		t.Fatalf("Last = %+v, want scheduled run", st.Last)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}

	runner.mu.Lock()
	calls := runner.calls
	runner.mu.Unlock()
	if calls != 3 {
		t.Fatalf("runner calls = %d, want 3", calls)
	}
	clockMu.Lock()
	defer clockMu.Unlock()
	if diff := cmp.Diff([]time.Duration{time.Hour, Period}, slept); diff != "" {
		t.Fatalf("sleeps (-want +got):\n%s", diff)
	}
}
