package rank

import (
	"sort"
	"strings"
)

var tierWeight = map[string]int{
	"IRON":        0,
	"BRONZE":      1,
	"SILVER":      2,
	"GOLD":        3,
	"PLATINUM":    4,
	"EMERALD":     5,
	"DIAMOND":     6,
	"MASTER":      7,
	"GRANDMASTER": 8,
	"CHALLENGER":  9,
}

var divisionWeight = map[string]int{
	"I":   4,
	"II":  3,
	"III": 2,
	"IV":  1,
}

// Tiers lists the ladder from lowest to highest.
var Tiers = []string{"IRON", "BRONZE", "SILVER", "GOLD", "PLATINUM", "EMERALD", "DIAMOND", "MASTER", "GRANDMASTER", "CHALLENGER"}

// Score maps a standing onto one integer order:
// tier*1000 + division*100 + LP. Unknown tiers and divisions weigh 0.
func Score(tier, division string, lp int) int {
	t := tierWeight[strings.ToUpper(strings.TrimSpace(tier))]
	d := divisionWeight[strings.ToUpper(strings.TrimSpace(division))]
	return t*1000 + d*100 + lp
}

// Ranking is a result set partitioned for rendering.
type Ranking struct {
	Ranked   []Result // success, score descending
	Unranked []Result
	Failed   []Result // not found and errors
}

// Total is the number of results across all partitions.
func (r Ranking) Total() int { return len(r.Ranked) + len(r.Unranked) + len(r.Failed) }

// Rank partitions results and sorts the successes by score, highest first.
// Equal scores keep their input order.
func Rank(results []Result) Ranking {
	var out Ranking
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			out.Ranked = append(out.Ranked, r)
		case StatusUnranked:
			out.Unranked = append(out.Unranked, r)
		default:
			out.Failed = append(out.Failed, r)
		}
	}
	sort.SliceStable(out.Ranked, func(i, j int) bool {
		return out.Ranked[i].Standing.Score > out.Ranked[j].Standing.Score
	})
	return out
}
