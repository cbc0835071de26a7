// Package people ranks person candidates by decision-making authority.
//
// Classification is first-significant-word based, not substring based: a
// "Vice President of Sales" must not outrank a "President".
package people

import "strings"

// RankUnranked is the sentinel rank for titles that match no known pattern.
// Lower rank means higher priority.
const RankUnranked = 999

// Candidate is one person surfaced from an entity page.
type Candidate struct {
	Name       string
	Title      string
	Rank       int
	ProfileRef string // opaque reference to the person's own page, may be empty
}

// firstWordRanks maps a title's first word directly to a rank.
var firstWordRanks = map[string]int{
	"owner":      1,
	"founder":    1,
	"president":  1,
	"director":   1,
	"founding":   1,
	"co-founder": 2,
	"cofounder":  2,
	"ceo":        3,
}

// cSuiteQualifiers are the second words that make "chief ..." a rank-3 title.
var cSuiteQualifiers = map[string]bool{
	"executive":   true,
	"product":     true,
	"marketing":   true,
	"financial":   true,
	"sales":       true,
	"growth":      true,
	"operating":   true,
	"audit":       true,
	"compliance":  true,
	"information": true,
}

// Rank classifies a job title into a priority rank. Unrecognized titles get
// RankUnranked.
func Rank(title string) int {
	t := strings.ToLower(title)
	t = strings.ReplaceAll(t, "&", "and")
	t = strings.ReplaceAll(t, "/", " ")

	words := strings.Fields(t)
	if len(words) == 0 {
		return RankUnranked
	}

	if r, ok := firstWordRanks[words[0]]; ok {
		return r
	}
	if words[0] == "chief" && len(words) > 1 && cSuiteQualifiers[words[1]] {
		return 3
	}
	return RankUnranked
}

// SelectBest returns the highest-priority candidate, or nil for an empty
// list. Ties break on position: the first-listed candidate wins, so callers
// must enumerate people in discovery order.
func SelectBest(candidates []Candidate) *Candidate {
	if len(candidates) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Rank < candidates[best].Rank {
			best = i
		}
	}
	c := candidates[best]
	return &c
}
