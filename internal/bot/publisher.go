package bot

import (
	"context"
	"errors"

	"rankbot/internal/refresh"
	kit "rankbot/internal/transport"
	logx "rankbot/pkg/logx"
)

var errNoReport = errors.New("bot: outcome has no report file")

// Publisher uploads each finished report to one chat. A zero chat ID
// disables publishing.
type Publisher struct {
	sender kit.Adapter
	to     kit.ChatTarget
	title  string
	log    logx.Logger
}

func NewPublisher(sender kit.Adapter, to kit.ChatTarget, title string, log logx.Logger) *Publisher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Publisher{sender: sender, to: to, title: title, log: log}
}

func (p *Publisher) Publish(ctx context.Context, out refresh.Outcome) error {
	if p == nil || p.sender == nil || p.to.ChatID == 0 {
		return nil
	}
	if out.Path == "" {
		return errNoReport
	}
	caption := ReportCaption(p.title, out)
	ref, err := p.sender.SendDocument(ctx, p.to, kit.Document{
		Path:      out.Path,
		Caption:   caption.Text,
		ParseMode: caption.Opt.ParseMode,
	})
	if err != nil {
		return err
	}
	p.log.Info("report published",
		logx.String("run_id", out.RunID),
		logx.Int64("chat_id", ref.ChatID),
		logx.Int("message_id", ref.MessageID),
	)
	return nil
}
