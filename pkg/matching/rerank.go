package matching

import (
	"math/rand/v2"
	"sort"
)

const (
	jitterLow  = 0.9
	jitterHigh = 1.1
)

// Rerank sorts scored candidates by score, keeps the best 2*limit and
// reorders them by score multiplied by a uniform jitter in [0.9, 1.1) drawn
// from rng, returning at most limit entries. When no more than limit
// candidates exist the plain score order is returned. The input slice is not
// modified.
func Rerank(scored []CandidateScore, limit int, rng *rand.Rand) []CandidateScore {
	if limit <= 0 || len(scored) == 0 {
		return nil
	}
	ranked := append([]CandidateScore(nil), scored...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) <= limit {
		return ranked
	}

	top := ranked[:min(2*limit, len(ranked))]
	type keyed struct {
		c   CandidateScore
		key float64
	}
	jittered := make([]keyed, len(top))
	for i, c := range top {
		jittered[i] = keyed{c: c, key: c.Score * (jitterLow + (jitterHigh-jitterLow)*rng.Float64())}
	}
	sort.SliceStable(jittered, func(i, j int) bool {
		return jittered[i].key > jittered[j].key
	})

	out := make([]CandidateScore, 0, limit)
	for _, k := range jittered[:limit] {
		out = append(out, k.c)
	}
	return out
}
