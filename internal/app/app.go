// Package app wires the rank pipeline, the scheduler, the chat bot and the
// operational HTTP server into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"rankbot/internal/bot"
	"rankbot/internal/config"
	"rankbot/internal/metrics"
	"rankbot/internal/observability/httpserver"
	"rankbot/internal/rank"
	"rankbot/internal/refresh"
	"rankbot/internal/riot"
	"rankbot/internal/roster"
	rtsup "rankbot/internal/runtime/supervisor"
	"rankbot/internal/task/batch"
	"rankbot/internal/task/scheduler"
	kit "rankbot/internal/transport"
	telegram "rankbot/internal/transport/telegram/adapter"
	"rankbot/internal/transport/telegram/router"
	logx "rankbot/pkg/logx"
)

type App struct {
	cfg *config.Config
	loc *time.Location

	log  logx.Logger
	logs *logx.Service

	metrics  *metrics.Manager
	roster   *roster.Store
	pipeline *refresh.Pipeline
	sched    *scheduler.Service
	http     *httpserver.Server

	// nil without chat
	adapter kit.Adapter
	router  *router.Router

	sup     *rtsup.Supervisor
	updates chan kit.Update
}

type options struct {
	chat bool
}

type Option func(*options)

// WithoutChat builds the pipeline only. Used by the one-shot mode, which
// needs no Telegram token.
func WithoutChat() Option { return func(o *options) { o.chat = false } }

// New builds every component from cfg. Nothing runs until Start or RunOnce.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{chat: true}
	for _, fn := range opts {
		fn(&o)
	}

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, fmt.Errorf("scheduler location: %w", err)
	}
	d, err := durations(cfg)
	if err != nil {
		return nil, err
	}

	if o.chat {
		if err := cfg.RequireTelegram(); err != nil {
			return nil, err
		}
	}

	logSvc, log := newLogging(cfg)
	var ad *telegram.Adapter
	if o.chat {
		ad, err = telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: d.poll,
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		attachChat(cfg, logSvc, ad)
	}
	a := &App{
		cfg:     cfg,
		loc:     loc,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		metrics: metrics.New(),
		updates: make(chan kit.Update, 256),
	}
	m := a.metrics

	a.roster = roster.New(cfg.Roster.Path,
		roster.WithLogger(log.With(logx.String("comp", "roster"))),
		roster.WithLoadHook(m.RosterLoaded),
	)

	client := riot.New(riot.Config{
		APIKey:          cfg.Riot.APIKey,
		AccountBaseURL:  cfg.Riot.AccountBaseURL,
		PlatformBaseURL: cfg.Riot.PlatformBaseURL,
		RatePerSec:      cfg.Riot.RatePerSec,
		Burst:           cfg.Riot.Burst,
		Timeout:         d.riotTimeout,
	},
		riot.WithLogger(log.With(logx.String("comp", "riot"))),
		riot.WithObserver(m.ObserveRiot),
	)
	fetcher := rank.NewFetcher(client,
		rank.WithLookupDelay(d.fetchDelay),
		rank.WithFetchLogger(log.With(logx.String("comp", "fetch"))),
		rank.WithFetchObserver(m.ObserveFetch),
	)
	orch := batch.New(fetcher, batch.Config{
		ChunkSize:   cfg.Batch.ChunkSize,
		Concurrency: cfg.Batch.Concurrency,
		Pause:       d.pause,
	}, batch.WithLogger(log.With(logx.String("comp", "batch"))))

	popts := []refresh.Option{
		refresh.WithLogger(log.With(logx.String("comp", "refresh"))),
		refresh.WithObserver(m.ObserveRefresh),
	}
	reportTo := kit.ChatTarget{ChatID: cfg.Telegram.ReportChatID, ThreadID: cfg.Telegram.ReportThreadID}
	if ad != nil && reportTo.ChatID != 0 {
		popts = append(popts, refresh.WithPublisher(
			bot.NewPublisher(ad, reportTo, cfg.Report.Title, log.With(logx.String("comp", "publish"))),
		))
	}
	a.pipeline = refresh.New(refresh.Config{
		ReportPath: cfg.Report.Path,
		Title:      cfg.Report.Title,
		Location:   loc,
	}, a.roster, orch, popts...)

	hour, minute, err := config.ParseHHMM(cfg.Scheduler.At)
	if err != nil {
		return nil, fmt.Errorf("scheduler.at: %w", err)
	}
	daily, err := scheduler.NewDaily(hour, minute, loc)
	if err != nil {
		return nil, err
	}
	a.sched = scheduler.New(daily, a.pipeline, scheduler.WithLogger(log.With(logx.String("comp", "scheduler"))))

	if cfg.HTTP.Enabled {
		a.http = httpserver.New(httpserver.Config{
			Addr:          cfg.HTTP.Addr,
			Token:         cfg.HTTP.Token,
			AllowInsecure: cfg.HTTP.AllowInsecure,
			Pprof:         cfg.HTTP.Pprof,
			ReadTimeout:   d.httpRead,
			WriteTimeout:  d.httpWrite,
			IdleTimeout:   d.httpIdle,
		}, httpserver.Deps{
			Metrics:    m.Handler(),
			ReportPath: cfg.Report.Path,
			Health:     a.health,
		}, log.With(logx.String("comp", "http")))
	}

	if ad != nil {
		a.adapter = ad
		hopts := []bot.Option{
			bot.WithLogger(log.With(logx.String("comp", "bot"))),
			bot.WithLocation(loc),
			bot.WithTitle(cfg.Report.Title),
		}
		if reportTo.ChatID != 0 {
			hopts = append(hopts, bot.WithReportTarget(reportTo))
		}
		handlers := bot.New(fetcher, a.roster, a.sched, hopts...)
		a.router = router.New(ad,
			router.WithLogger(log.With(logx.String("comp", "commands"))),
			router.WithOwners(cfg.Telegram.OwnerUserIDs),
			router.WithCommandObserver(m.ObserveCommand),
			router.WithQueryHandler(handlers.Suggest),
		)
		if err := a.router.Register(handlers.Commands()...); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// newLogging starts with the chat sink off. attachChat turns it on once the
// adapter exists.
func newLogging(cfg *config.Config) (*logx.Service, logx.Logger) {
	return logx.New(logConfig(cfg), nil)
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// attachChat sets the target before Apply so Apply does not warn about a
// missing one.
func attachChat(cfg *config.Config, svc *logx.Service, sender kit.Adapter) {
	svc.SetSender(sender)
	if cfg.Telegram.GroupLog != 0 {
		svc.SetChatTarget(cfg.Telegram.GroupLog, cfg.Logging.Telegram.ThreadID)
	}
	final := logConfig(cfg)
	final.Chat.Enabled = cfg.Logging.Telegram.Enabled
	svc.Apply(final)
}

type parsedDurations struct {
	poll        time.Duration
	riotTimeout time.Duration
	fetchDelay  time.Duration
	pause       time.Duration
	httpRead    time.Duration
	httpWrite   time.Duration
	httpIdle    time.Duration
}

func durations(cfg *config.Config) (parsedDurations, error) {
	var (
		d    parsedDurations
		errs []error
	)
	parse := func(dst *time.Duration, path, raw string, def time.Duration) {
		v, err := config.ParseDuration(path, raw, def)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = v
	}
	parse(&d.poll, "telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	parse(&d.riotTimeout, "riot.timeout", cfg.Riot.Timeout, 10*time.Second)
	parse(&d.fetchDelay, "riot.fetch_delay", cfg.Riot.FetchDelay, rank.DefaultLookupDelay)
	parse(&d.pause, "batch.pause", cfg.Batch.Pause, batch.DefaultPause)
	parse(&d.httpRead, "http.read_timeout", cfg.HTTP.ReadTimeout, 10*time.Second)
	parse(&d.httpWrite, "http.write_timeout", cfg.HTTP.WriteTimeout, 60*time.Second)
	parse(&d.httpIdle, "http.idle_timeout", cfg.HTTP.IdleTimeout, 60*time.Second)
	return d, errors.Join(errs...)
}

// Done is closed when the supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.roster.EnsureFresh()
	a.log.Info("roster loaded", logx.String("path", a.roster.Path()), logx.Int("entries", a.roster.Len()))

	if a.adapter != nil {
		if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
			a.sup.Cancel()
			return err
		}
		a.sup.Go("commands.dispatch", func(c context.Context) error {
			return a.router.DispatchLoop(c, a.updates)
		})
		a.sup.Go0("telegram.menu.update", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 5*time.Second)
			defer cancel()
			if err := a.router.PublishMenu(mctx); err != nil {
				a.log.Warn("menu update failed", logx.Err(err))
			}
		})
	}

	if a.cfg.Roster.Watch {
		a.sup.GoRestart("roster.watch", a.roster.Watch,
			rtsup.WithRestartBackoff(time.Second, 30*time.Second),
			rtsup.WithMaxRestarts(20),
		)
	}

	if a.cfg.Scheduler.Enabled {
		a.sup.Go("scheduler", a.sched.Run)
	} else {
		a.log.Info("scheduler disabled; refresh runs only on demand")
	}

	if a.http != nil {
		a.sup.Go("http", a.http.Run)
	}

	notify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started",
		logx.Bool("chat", a.adapter != nil),
		logx.Bool("scheduler", a.cfg.Scheduler.Enabled),
		logx.Bool("http", a.http != nil),
	)
	return nil
}

// RunOnce runs a single refresh on the caller's goroutine.
func (a *App) RunOnce(ctx context.Context) (refresh.Outcome, error) {
	return a.sched.TriggerNow(ctx)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	defer func() {
		if a.logs != nil {
			_ = a.logs.Close()
		}
	}()
	if a.sup == nil {
		return nil
	}
	notify(a.log, daemon.SdNotifyStopping)
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// cancel first so background loops start unwinding immediately
	a.sup.Cancel()

	// step runs one shutdown step bounded by max, never past ctx's deadline.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(sctx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-sctx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	if a.adapter != nil {
		step("adapter", 3*time.Second, a.adapter.Stop)
	}
	step("supervisor", 5*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return nil
}

func (a *App) health() map[string]any {
	st := a.sched.Status()
	h := map[string]any{
		"roster_entries": a.roster.Len(),
		"schedule":       st.Schedule,
		"running":        st.Running,
	}
	if !st.Next.IsZero() {
		h["next_run"] = st.Next.In(a.loc).Format(time.RFC3339)
	}
	if st.Last != nil {
		last := map[string]any{
			"trigger":  string(st.Last.Trigger),
			"finished": st.Last.Finished.In(a.loc).Format(time.RFC3339),
			"ok":       st.Last.Err == nil,
			"summary":  st.Last.Outcome.Summary(),
		}
		if st.Last.Err != nil {
			last["error"] = st.Last.Err.Error()
		}
		h["last_run"] = last
	}
	if a.logs != nil {
		h["log_chat_dropped"] = a.logs.Dropped()
	}
	if a.sup != nil {
		h["goroutines"] = a.sup.Counters()
	}
	return h
}

func notify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}
