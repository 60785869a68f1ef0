// Package bot holds the chat commands: single-player lookups, manual
// refreshes, status and inline roster suggestions.
package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"rankbot/internal/rank"
	"rankbot/internal/refresh"
	"rankbot/internal/task/scheduler"
	kit "rankbot/internal/transport"
	"rankbot/internal/transport/telegram/router"
	logx "rankbot/pkg/logx"
	"rankbot/pkg/tgui"
)

const (
	lookupTimeout  = 30 * time.Second
	refreshTimeout = 30 * time.Minute
)

type Lookup interface {
	Fetch(ctx context.Context, id rank.Identity) rank.Result
}

type Roster interface {
	Suggest(prefix string) []string
	Len() int
}

type Refresher interface {
	TriggerNow(ctx context.Context) (refresh.Outcome, error)
	Status() scheduler.Status
}

type Handlers struct {
	lookup    Lookup
	roster    Roster
	refresher Refresher
	log       logx.Logger
	loc       *time.Location
	title     string
	reportTo  *kit.ChatTarget
}

type Option func(*Handlers)

func WithLogger(l logx.Logger) Option { return func(h *Handlers) { h.log = l } }

// WithLocation sets the zone used to print times.
func WithLocation(loc *time.Location) Option { return func(h *Handlers) { h.loc = loc } }

// WithTitle sets the report title used in refresh replies.
func WithTitle(t string) Option { return func(h *Handlers) { h.title = t } }

// WithReportTarget names the chat the publisher posts each report to. A
// refresh asked from that chat is not sent the document a second time.
func WithReportTarget(to kit.ChatTarget) Option {
	return func(h *Handlers) { h.reportTo = &to }
}

func New(lookup Lookup, roster Roster, refresher Refresher, opts ...Option) *Handlers {
	h := &Handlers{
		lookup:    lookup,
		roster:    roster,
		refresher: refresher,
		log:       logx.Nop(),
		title:     "Leaderboard",
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handlers) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "rank",
			Aliases:     []string{"r"},
			Description: "look up a player's solo queue rank",
			Usage:       "/rank name#tag",
			Timeout:     lookupTimeout,
			Handle:      h.handleRank,
		},
		{
			Name:        "refresh",
			Description: "rebuild the leaderboard now",
			Usage:       "/refresh",
			Access:      router.AccessOwnerOnly,
			Timeout:     refreshTimeout,
			Handle:      h.handleRefresh,
		},
		{
			Name:        "status",
			Description: "schedule, last run and roster size",
			Usage:       "/status",
			Handle:      h.handleStatus,
		},
	}
}

func send(ctx context.Context, req *router.Request, m tgui.Message) error {
	_, err := m.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (h *Handlers) handleRank(ctx context.Context, req *router.Request) error {
	id, ok := rank.ParseIdentity(req.RawArgs)
	if !ok {
		return send(ctx, req, MalformedMessage(req.RawArgs, h.roster.Suggest(req.RawArgs)))
	}
	res := h.lookup.Fetch(ctx, id)
	req.Logger.Debug("lookup done", logx.String("riot_id", id.String()), logx.String("status", res.Status.String()))
	return send(ctx, req, RankCard(res))
}

func (h *Handlers) handleRefresh(ctx context.Context, req *router.Request) error {
	if err := req.Reply(ctx, "⏳ refreshing, this can take a few minutes…", nil); err != nil {
		return err
	}
	out, err := h.refresher.TriggerNow(ctx)

	var f *refresh.Failure
	switch {
	case err == nil:
	case errors.As(err, &f) && f.Stage == refresh.StagePublish:
		// the report exists, only the scheduled upload failed
		req.Logger.Warn("report publish failed", logx.Err(err))
	default:
		_ = req.Reply(ctx, "❌ refresh failed: "+tgui.TruncRunes(err.Error(), maxErrorRunes), nil)
		return err
	}

	if err == nil && h.reportTo != nil && *h.reportTo == req.Chat {
		return req.Reply(ctx, "✅ report posted above", nil)
	}

	caption := ReportCaption(h.title, out)
	_, derr := req.Adapter.SendDocument(ctx, req.Chat, kit.Document{
		Path:      out.Path,
		Caption:   caption.Text,
		ParseMode: caption.Opt.ParseMode,
	})
	if derr != nil {
		// fall back to the summary alone
		_ = send(ctx, req, caption)
		return derr
	}
	return nil
}

func (h *Handlers) handleStatus(ctx context.Context, req *router.Request) error {
	return send(ctx, req, StatusMessage(h.refresher.Status(), h.roster.Len(), h.loc))
}

// Suggest answers inline queries with roster entries matching the typed
// prefix. Choosing one sends "/rank <entry>".
func (h *Handlers) Suggest(_ context.Context, q kit.Query) ([]kit.Suggestion, error) {
	prefix := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(q.Text), "/rank"))
	entries := h.roster.Suggest(prefix)
	h.log.Debug("inline suggestions", logx.String("prefix", prefix), logx.Int("count", len(entries)))
	out := make([]kit.Suggestion, 0, len(entries))
	for i, e := range entries {
		out = append(out, kit.Suggestion{
			ID:    "r" + strconv.Itoa(i),
			Title: e,
			Text:  "/rank " + e,
		})
	}
	return out, nil
}
