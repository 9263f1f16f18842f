// Package matching ranks eligible practice partners for a participant.
// Matching never writes; it reads a snapshot of registrations, profiles and
// live pairs for one week.
package matching

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/as3contender/alex-orator-bot/pkg/logger"
	"github.com/as3contender/alex-orator-bot/pkg/registration"
)

// Profile is a participant as seen by scoring: profile fields joined with the
// active registration for the week.
type Profile struct {
	UserID         string
	RegistrationID string
	Name           string
	Gender         *string
	TotalSessions  int
	PreferredTime  string
	Topics         []string
}

type CandidateScore struct {
	Profile
	Score float64
}

type Stats struct {
	TotalRegistrations int64
	TotalPairs         int64
	ConfirmedPairs     int64
	// ConfirmationRate is a percentage, 0 when no pairs exist.
	ConfirmationRate float64
}

type Snapshot interface {
	// Requester returns nil when the user has no active registration.
	Requester(ctx context.Context, userID string, week time.Time) (*Profile, error)
	// Pool returns active participants of the week other than userID, minus
	// those at maxPairsPerUser live pairs and those already paired with
	// userID.
	Pool(ctx context.Context, userID string, week time.Time, maxPairsPerUser int) ([]Profile, error)
	Stats(ctx context.Context, week time.Time) (Stats, error)
}

type Matcher struct {
	snapshot Snapshot

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMatcher returns a matcher drawing jitter from rng. A nil rng is seeded
// from the clock.
func NewMatcher(snapshot Snapshot, rng *rand.Rand) *Matcher {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Matcher{snapshot: snapshot, rng: rng}
}

// FindCandidates returns up to limit partners for userID in the week,
// best first. The result is empty when the requester is not registered for
// the week or has no topics or preferred time.
func (m *Matcher) FindCandidates(ctx context.Context, userID string, week time.Time, limit, maxPairsPerUser int) ([]CandidateScore, error) {
	if limit <= 0 {
		return nil, nil
	}
	week = registration.WeekStart(week)

	requester, err := m.snapshot.Requester(ctx, userID, week)
	if err != nil {
		return nil, err
	}
	if requester == nil || len(requester.Topics) == 0 || requester.PreferredTime == "" {
		return nil, nil
	}

	pool, err := m.snapshot.Pool(ctx, userID, week, maxPairsPerUser)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		logger.Info("no candidates found", "user_id", userID, "week", week.Format(time.DateOnly))
		return nil, nil
	}

	scored := make([]CandidateScore, 0, len(pool))
	for _, candidate := range pool {
		scored = append(scored, CandidateScore{Profile: candidate, Score: Score(*requester, candidate)})
	}

	m.mu.Lock()
	selected := Rerank(scored, limit, m.rng)
	m.mu.Unlock()

	logger.Debug("candidates ranked", "user_id", userID, "pool", len(pool), "selected", len(selected))
	return selected, nil
}

func (m *Matcher) Stats(ctx context.Context, week time.Time) (Stats, error) {
	return m.snapshot.Stats(ctx, registration.WeekStart(week))
}
