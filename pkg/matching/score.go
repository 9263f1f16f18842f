package matching

import (
	"math"

	"github.com/as3contender/alex-orator-bot/pkg/registration"
	"github.com/as3contender/alex-orator-bot/pkg/topics"
)

// Weights of the score components; they sum to 1.
const (
	timeWeight       = 0.4
	topicWeight      = 0.3
	experienceWeight = 0.2
	bonusWeight      = 0.1
)

// neutralTimeScore applies when a preferred time cannot be parsed.
const neutralTimeScore = 0.5

const scorePrecision = 1e6

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// TimeScore rates how close two HH:MM preferred times are.
func TimeScore(a, b string) float64 {
	ma, errA := registration.ParsePreferredTime(a)
	mb, errB := registration.ParsePreferredTime(b)
	if errA != nil || errB != nil {
		return neutralTimeScore
	}
	switch diff := abs(ma - mb); {
	case diff <= 30:
		return 1.0
	case diff <= 120:
		return 0.7
	case diff <= 240:
		return 0.4
	default:
		return 0.1
	}
}

// TopicScore rates topic overlap, giving partial credit for topics that share
// a parent group.
func TopicScore(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}
	common := make(map[string]bool)
	for _, t := range a {
		if setB[t] {
			common[t] = true
		}
	}

	groupsA, groupsB := parentGroups(a), parentGroups(b)
	commonGroups := 0
	for g := range groupsA {
		if groupsB[g] {
			commonGroups++
		}
	}

	exact := float64(len(common)) / float64(max(len(a), len(b)))
	parent := 0.0
	if maxGroups := max(len(groupsA), len(groupsB)); commonGroups > 0 && maxGroups > 0 {
		parent = float64(commonGroups) / float64(maxGroups)
	}

	score := clamp(0.7*exact+0.3*parent, 0, 1)
	switch {
	case len(common) == len(a) && len(common) == len(b):
		score += 0.2
	case len(common) == 0 && commonGroups > 0:
		score += 0.1
	}
	return clamp(score, 0, 1)
}

func parentGroups(paths []string) map[string]bool {
	groups := make(map[string]bool, len(paths))
	for _, p := range paths {
		if g := topics.ParentGroup(p); g != "" {
			groups[g] = true
		}
	}
	return groups
}

// ExperienceScore favours partners with a similar number of past sessions.
func ExperienceScore(a, b int) float64 {
	switch diff := abs(a - b); {
	case diff <= 2:
		return 1.0
	case diff <= 5:
		return 0.8
	case diff <= 10:
		return 0.6
	default:
		return 0.3
	}
}

// BonusScore adds small preferences on top of the main components, capped
// at 0.2.
func BonusScore(requester, candidate Profile) float64 {
	bonus := 0.0
	if requester.Gender != nil && candidate.Gender != nil &&
		*requester.Gender != "" && *candidate.Gender != "" &&
		*requester.Gender != *candidate.Gender {
		bonus += 0.1
	}
	if candidate.TotalSessions > 5 {
		bonus += 0.05
	}
	if len(candidate.Topics) > 1 {
		bonus += 0.05
	}
	return min(bonus, 0.2)
}

// Score combines the weighted components into a value in [0, 1].
func Score(requester, candidate Profile) float64 {
	total := timeWeight*TimeScore(requester.PreferredTime, candidate.PreferredTime) +
		topicWeight*TopicScore(requester.Topics, candidate.Topics) +
		experienceWeight*ExperienceScore(requester.TotalSessions, candidate.TotalSessions) +
		bonusWeight*BonusScore(requester, candidate)
	return roundScore(clamp(total, 0, 1))
}

// roundScore drops float noise so that, for example, 0.4+0.3+0.2 compares
// as 0.9.
func roundScore(v float64) float64 {
	return math.Round(v*scorePrecision) / scorePrecision
}
