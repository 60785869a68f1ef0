// Package report renders a ranking as a standalone HTML page.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"rankbot/internal/rank"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var page = template.Must(template.ParseFS(templateFS, "templates/report.html.tmpl"))

// DefaultTitle heads the page when Meta.Title is empty.
const DefaultTitle = "LoL Ranked Leaderboard"

// NotFoundMessage is shown for players the account lookup did not find.
const NotFoundMessage = "player not found"

// Meta carries page-level data that is not part of the ranking.
type Meta struct {
	Title string
	// GeneratedAt is omitted from the page when zero.
	GeneratedAt time.Time
}

type row struct {
	Position  int
	RiotID    string
	Tier      string
	TierClass string
	Division  string
	LP        int
	Wins      int
	Losses    int
	Games     int
	WinRate   string
	RateClass string
}

type item struct {
	RiotID  string
	Message string
}

type view struct {
	Title     string
	Generated string
	Ranked    []row
	Unranked  []item
	Failed    []item
}

// Render produces the report document. It has no side effects.
func Render(r rank.Ranking, meta Meta) ([]byte, error) {
	v := view{Title: meta.Title}
	if strings.TrimSpace(v.Title) == "" {
		v.Title = DefaultTitle
	}
	if !meta.GeneratedAt.IsZero() {
		v.Generated = meta.GeneratedAt.Format("2006-01-02 15:04 MST")
	}

	v.Ranked = make([]row, 0, len(r.Ranked))
	for i, res := range r.Ranked {
		st := res.Standing
		rate, class := FormatWinRate(st)
		v.Ranked = append(v.Ranked, row{
			Position:  i + 1,
			RiotID:    res.String(),
			Tier:      st.Tier,
			TierClass: tierClass(st.Tier),
			Division:  st.Division,
			LP:        st.LeaguePoints,
			Wins:      st.Wins,
			Losses:    st.Losses,
			Games:     st.Games(),
			WinRate:   rate,
			RateClass: class,
		})
	}
	for _, res := range r.Unranked {
		v.Unranked = append(v.Unranked, item{RiotID: res.String()})
	}
	for _, res := range r.Failed {
		v.Failed = append(v.Failed, item{RiotID: res.String(), Message: FailureMessage(res)})
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, v); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// FormatWinRate returns the one-decimal win rate and its style class.
// A standing without games renders as "N/A".
func FormatWinRate(st rank.Standing) (text, class string) {
	pct, ok := st.WinRate()
	if !ok {
		return "N/A", "low"
	}
	switch {
	case pct >= 55:
		class = "high"
	case pct >= 50:
		class = "medium"
	default:
		class = "low"
	}
	return fmt.Sprintf("%.1f%%", pct), class
}

// FailureMessage is the text shown next to a failed lookup.
func FailureMessage(res rank.Result) string {
	if res.Status == rank.StatusNotFound || strings.TrimSpace(res.Message) == "" {
		return NotFoundMessage
	}
	return res.Message
}

func tierClass(tier string) string {
	t := strings.ToUpper(strings.TrimSpace(tier))
	for _, known := range rank.Tiers {
		if t == known {
			return t
		}
	}
	return ""
}
