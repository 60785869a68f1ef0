package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"rankbot/internal/rank"
	"rankbot/internal/refresh"
	"rankbot/internal/report"
	"rankbot/internal/task/scheduler"
	"rankbot/pkg/tgui"
)

const (
	maxErrorRunes      = 300
	malformedHintCount = 5
)

// RankCard renders one lookup result for chat.
func RankCard(res rank.Result) tgui.Message {
	switch res.Status {
	case rank.StatusNotFound:
		return tgui.New().
			RawLine(tgui.JoinH(" ", "❓", tgui.Code(res.String()), tgui.Esc("- "+report.NotFoundMessage))).
			Build()
	case rank.StatusError:
		return tgui.New().
			Line("⚠️ lookup failed: " + tgui.TruncRunes(res.Message, maxErrorRunes)).
			Build()
	}

	b := tgui.New().Title("🏆", res.String())
	if res.Status == rank.StatusUnranked {
		b.KV("Rank", "Unranked").KV("LP", "0")
	} else {
		b.KV("Rank", strings.TrimSpace(res.Standing.Tier+" "+res.Standing.Division)).
			KV("LP", strconv.Itoa(res.Standing.LeaguePoints))
	}
	wr, _ := report.FormatWinRate(res.Standing)
	return b.KV("W/L", fmt.Sprintf("%dW / %dL", res.Standing.Wins, res.Standing.Losses)).
		KV("Win rate", wr).
		Blank().
		RawLine(tgui.I("Data from Riot API")).
		Build()
}

// MalformedMessage explains the expected input and offers close roster
// matches for what was typed.
func MalformedMessage(input string, suggestions []string) tgui.Message {
	b := tgui.New().
		Line("Invalid format. Example: /rank Faker#KR1")
	if len(suggestions) > malformedHintCount {
		suggestions = suggestions[:malformedHintCount]
	}
	if len(suggestions) > 0 {
		b.Blank().Line("Did you mean:")
		for _, s := range suggestions {
			b.RawLine(tgui.JoinH(" ", "•", tgui.Code("/rank "+s)))
		}
	} else if strings.TrimSpace(input) != "" {
		b.Blank().Line("No roster entry starts with " + strconv.Quote(strings.TrimSpace(input)) + ".")
	}
	return b.Build()
}

// ReportCaption is the text attached to a published report document.
func ReportCaption(title string, out refresh.Outcome) tgui.Message {
	b := tgui.New().
		Title("📊", title+" updated").
		Line(fmt.Sprintf("%d players queried", out.Entries)).
		Line(out.Summary())
	if len(out.Top) > 0 {
		b.Blank()
		medals := []string{"🥇", "🥈", "🥉"}
		for i, r := range out.Top {
			m := strconv.Itoa(i+1) + "."
			if i < len(medals) {
				m = medals[i]
			}
			b.Line(fmt.Sprintf("%s %s - %s %s (%d LP)", m, r.String(), r.Standing.Tier, r.Standing.Division, r.Standing.LeaguePoints))
		}
	}
	return b.Build()
}

// StatusMessage renders the /status reply.
func StatusMessage(st scheduler.Status, rosterSize int, loc *time.Location) tgui.Message {
	b := tgui.New().Title("🤖", "Status").
		KV("Schedule", st.Schedule).
		KV("Roster", strconv.Itoa(rosterSize)+" entries")
	if st.Next.IsZero() {
		b.KV("Next run", "not scheduled")
	} else {
		b.KV("Next run", formatTime(st.Next, loc))
	}
	if st.Running > 0 {
		b.KV("Running", strconv.Itoa(st.Running))
	}
	if st.Last == nil {
		return b.KV("Last run", "none yet").Build()
	}
	last := st.Last
	result := last.Outcome.Summary()
	if last.Err != nil {
		result = "failed: " + tgui.TruncRunes(last.Err.Error(), maxErrorRunes)
	}
	return b.KV("Last run", fmt.Sprintf("%s (%s, took %s)", formatTime(last.Finished, loc), last.Trigger, last.Outcome.Took.Round(time.Second))).
		KV("Result", result).
		Build()
}

func formatTime(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("2006-01-02 15:04 MST")
}
