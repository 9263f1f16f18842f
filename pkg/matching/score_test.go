package matching

import (
	"math"
	"math/rand/v2"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTimeScore(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{a: "10:00", b: "10:20", want: 1.0},
		{a: "10:00", b: "10:30", want: 1.0},
		{a: "10:00", b: "11:30", want: 0.7},
		{a: "10:00", b: "13:30", want: 0.4},
		{a: "10:00", b: "20:00", want: 0.1},
		{a: "20:00", b: "10:00", want: 0.1},
		{a: "bad", b: "10:00", want: neutralTimeScore},
	}
	for _, tc := range cases {
		if got := TimeScore(tc.a, tc.b); got != tc.want {
			t.Fatalf("TimeScore(%s, %s) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestTopicScore(t *testing.T) {
	cases := []struct {
		name string
		a, b []string
		want float64
	}{
		{name: "identical single topic is capped", a: []string{"Storytelling - L1"}, b: []string{"Storytelling - L1"}, want: 1.0},
		{name: "empty side", a: nil, b: []string{"Storytelling - L1"}, want: 0},
		// no exact overlap, same group: 0.3*1 + 0.1
		{name: "parent only", a: []string{"Storytelling - L1"}, b: []string{"Storytelling - L2"}, want: 0.4},
		{name: "disjoint", a: []string{"Storytelling - L1"}, b: []string{"Debates - L1"}, want: 0},
		// exact 1/2, groups 2/2
		{
			name: "partial overlap",
			a:    []string{"Storytelling - L1", "Debates - L1"},
			b:    []string{"Storytelling - L1", "Debates - L2"},
			want: 0.7*0.5 + 0.3*1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TopicScore(tc.a, tc.b); !approx(got, tc.want) {
				t.Fatalf("TopicScore = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestExperienceScore(t *testing.T) {
	cases := []struct {
		a, b int
		want float64
	}{
		{a: 0, b: 2, want: 1.0},
		{a: 10, b: 5, want: 0.8},
		{a: 0, b: 10, want: 0.6},
		{a: 0, b: 11, want: 0.3},
	}
	for _, tc := range cases {
		if got := ExperienceScore(tc.a, tc.b); got != tc.want {
			t.Fatalf("ExperienceScore(%d, %d) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestBonusScore(t *testing.T) {
	male, female, empty := "male", "female", ""
	cases := []struct {
		name      string
		requester Profile
		candidate Profile
		want      float64
	}{
		{name: "none", candidate: Profile{Topics: []string{"a"}}, want: 0},
		{name: "different genders", requester: Profile{Gender: &male}, candidate: Profile{Gender: &female}, want: 0.1},
		{name: "unknown gender", requester: Profile{Gender: &male}, candidate: Profile{Gender: &empty}, want: 0},
		{name: "experienced and varied", candidate: Profile{TotalSessions: 6, Topics: []string{"a", "b"}}, want: 0.1},
		{
			name:      "capped",
			requester: Profile{Gender: &male},
			candidate: Profile{Gender: &female, TotalSessions: 6, Topics: []string{"a", "b"}},
			want:      0.2,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := BonusScore(tc.requester, tc.candidate); !approx(got, tc.want) {
				t.Fatalf("BonusScore = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestScoreStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	topicsPool := []string{"Storytelling - L1", "Storytelling - L2", "Debates - L1", "Improv", ""}
	genders := []string{"male", "female", ""}
	randomProfile := func() Profile {
		g := genders[rng.IntN(len(genders))]
		var ts []string
		for i := rng.IntN(4); i > 0; i-- {
			ts = append(ts, topicsPool[rng.IntN(len(topicsPool))])
		}
		return Profile{
			Gender:        &g,
			TotalSessions: rng.IntN(30),
			PreferredTime: []string{"00:00", "09:15", "18:00", "23:59", "x"}[rng.IntN(5)],
			Topics:        ts,
		}
	}
	for i := 0; i < 2000; i++ {
		if s := Score(randomProfile(), randomProfile()); s < 0 || s > 1 {
			t.Fatalf("score out of range: %v", s)
		}
	}
}

func TestScoreNearIdenticalParticipants(t *testing.T) {
	a := Profile{PreferredTime: "18:00", Topics: []string{"Storytelling - L1"}}
	b := Profile{PreferredTime: "18:30", Topics: []string{"Storytelling - L1"}}
	if s := Score(a, b); s < 0.9 {
		t.Fatalf("expected score >= 0.9, got %v", s)
	}
}

func scoredFixture() []CandidateScore {
	scores := []float64{0.5, 0.9, 0.7, 0.3, 0.85, 0.6}
	out := make([]CandidateScore, len(scores))
	for i, s := range scores {
		out[i] = CandidateScore{Profile: Profile{UserID: string(rune('a' + i))}, Score: s}
	}
	return out
}

func ids(cs []CandidateScore) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.UserID
	}
	return out
}

func TestRerankDeterministicWithSeed(t *testing.T) {
	in := scoredFixture()
	first := Rerank(in, 2, rand.New(rand.NewPCG(1, 2)))
	second := Rerank(in, 2, rand.New(rand.NewPCG(1, 2)))
	if len(first) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(first))
	}
	for i := range first {
		if first[i].UserID != second[i].UserID {
			t.Fatalf("same seed produced different order: %v vs %v", ids(first), ids(second))
		}
	}
}

func TestRerankDrawsFromTopTwiceLimit(t *testing.T) {
	in := scoredFixture()
	// top 4 by score: b(0.9) e(0.85) c(0.7) f(0.6)
	allowed := map[string]bool{"b": true, "e": true, "c": true, "f": true}
	for seed := uint64(0); seed < 50; seed++ {
		for _, c := range Rerank(in, 2, rand.New(rand.NewPCG(seed, seed+1))) {
			if !allowed[c.UserID] {
				t.Fatalf("seed %d selected %s outside the top 2*limit", seed, c.UserID)
			}
		}
	}
	if in[0].UserID != "a" {
		t.Fatal("input slice must not be reordered")
	}
}

func TestRerankSmallPoolKeepsScoreOrder(t *testing.T) {
	in := scoredFixture()[:3]
	got := ids(Rerank(in, 3, rand.New(rand.NewPCG(1, 1))))
	want := []string{"b", "c", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Rerank = %v, want %v", got, want)
		}
	}
	if Rerank(in, 0, nil) != nil {
		t.Fatal("expected nil for zero limit")
	}
}
