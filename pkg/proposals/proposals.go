// Package proposals runs the candidate offer flow: the bot suggests partners,
// remembers what it offered in a flow-state store, and turns a pick into a
// pair proposal.
package proposals

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/as3contender/alex-orator-bot/pkg/db"
	"github.com/as3contender/alex-orator-bot/pkg/errs"
	"github.com/as3contender/alex-orator-bot/pkg/flowstate"
	"github.com/as3contender/alex-orator-bot/pkg/logger"
	"github.com/as3contender/alex-orator-bot/pkg/matching"
	"github.com/as3contender/alex-orator-bot/pkg/pairing"
	"github.com/as3contender/alex-orator-bot/pkg/queue"
	"github.com/as3contender/alex-orator-bot/pkg/registration"
	"github.com/as3contender/alex-orator-bot/pkg/ui"
	"gorm.io/gorm"
)

const DefaultOfferTTL = 15 * time.Minute

// Limits resolves the pairing limits at call time; settings.Store
// implements it.
type Limits interface {
	MaxPairsPerUser(ctx context.Context, def int) int
	MaxCandidatesPerRequest(ctx context.Context, def int) int
}

type Defaults struct {
	MaxPairsPerUser         int
	MaxCandidatesPerRequest int
}

type offer struct {
	Week         time.Time `json:"week"`
	CandidateIDs []string  `json:"candidate_ids"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type Service struct {
	db       *gorm.DB
	matcher  *matching.Matcher
	regs     registration.Store
	pairs    *pairing.Manager
	queue    *queue.Queue
	state    flowstate.Store
	limits   Limits
	defaults Defaults
	offerTTL time.Duration
	now      func() time.Time
}

type Option func(*Service)

func WithLimits(limits Limits) Option {
	return func(s *Service) { s.limits = limits }
}

func WithDefaults(d Defaults) Option {
	return func(s *Service) { s.defaults = d }
}

func WithOfferTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.offerTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(gdb *gorm.DB, matcher *matching.Matcher, regs registration.Store, pairs *pairing.Manager, q *queue.Queue, state flowstate.Store, opts ...Option) *Service {
	s := &Service{
		db:       gdb,
		matcher:  matcher,
		regs:     regs,
		pairs:    pairs,
		queue:    q,
		state:    state,
		defaults: Defaults{MaxPairsPerUser: pairing.DefaultMaxPairsPerUser, MaxCandidatesPerRequest: 3},
		offerTTL: DefaultOfferTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func offerKey(userID string) string {
	return "offer:" + userID
}

func (s *Service) resolveLimits(ctx context.Context) (candidates, pairs int) {
	candidates, pairs = s.defaults.MaxCandidatesPerRequest, s.defaults.MaxPairsPerUser
	if s.limits != nil {
		candidates = s.limits.MaxCandidatesPerRequest(ctx, candidates)
		pairs = s.limits.MaxPairsPerUser(ctx, pairs)
	}
	return candidates, pairs
}

// Offer finds partners for userID in the week, remembers them and enqueues
// the offer message. An empty result still sends a "try again" message.
func (s *Service) Offer(ctx context.Context, userID string, week time.Time) ([]matching.CandidateScore, error) {
	week = registration.WeekStart(week)
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	reg, err := s.regs.GetActiveRegistration(ctx, userID, week)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, errs.Constraint(errs.RuleRegistrationInactive, "user "+userID+" is not registered for "+week.Format(time.DateOnly))
	}

	limit, maxPairs := s.resolveLimits(ctx)
	candidates, err := s.matcher.FindCandidates(ctx, userID, week, limit, maxPairs)
	if err != nil {
		return nil, err
	}

	if len(candidates) > 0 {
		ids := make([]string, 0, len(candidates))
		for _, c := range candidates {
			ids = append(ids, c.UserID)
		}
		record := offer{Week: week, CandidateIDs: ids, ExpiresAt: s.now().UTC().Add(s.offerTTL)}
		if err := flowstate.PutJSON(ctx, s.state, offerKey(userID), record, s.offerTTL); err != nil {
			return nil, err
		}
	} else if err := s.state.Delete(ctx, offerKey(userID)); err != nil {
		return nil, err
	}

	text, keyboard, err := ui.RenderCandidateOffer(week.Format(time.DateOnly), candidates)
	if err != nil {
		return nil, err
	}
	if _, err := s.queue.Enqueue(ctx, strconv.FormatInt(user.TelegramID, 10), text, keyboard); err != nil {
		return nil, err
	}
	logger.Info("candidates offered", "user_id", userID, "week", week.Format(time.DateOnly), "count", len(candidates))
	return candidates, nil
}

// Accept turns a pick from the last offer into a pair proposal. The offer is
// consumed on success; a failed proposal restores it for the rest of its TTL
// so the user can pick someone else.
func (s *Service) Accept(ctx context.Context, userID, candidateID string) (*db.Pair, error) {
	key := offerKey(userID)
	current, err := flowstate.GetJSON[offer](ctx, s.state, key)
	if err != nil {
		return nil, err
	}
	if !contains(current.CandidateIDs, candidateID) {
		return nil, errs.Constraint(errs.RuleNotOffered, "candidate "+candidateID)
	}
	taken, err := flowstate.TakeJSON[offer](ctx, s.state, key)
	if err != nil {
		return nil, err
	}
	if !contains(taken.CandidateIDs, candidateID) {
		s.restore(ctx, key, taken)
		return nil, errs.Constraint(errs.RuleNotOffered, "candidate "+candidateID)
	}

	reg, err := s.regs.GetActiveRegistration(ctx, userID, taken.Week)
	if err == nil && reg == nil {
		err = errs.Constraint(errs.RuleRegistrationInactive, "user "+userID)
	}
	if err != nil {
		s.restore(ctx, key, taken)
		return nil, err
	}

	pair, err := s.pairs.Create(ctx, userID, candidateID, reg.ID)
	if err != nil {
		if errors.Is(err, errs.ErrConstraintViolation) {
			s.restore(ctx, key, remove(taken, candidateID))
		}
		return nil, err
	}
	return pair, nil
}

func (s *Service) restore(ctx context.Context, key string, record offer) {
	ttl := record.ExpiresAt.Sub(s.now().UTC())
	if ttl <= 0 || len(record.CandidateIDs) == 0 {
		return
	}
	if err := flowstate.PutJSON(ctx, s.state, key, record, ttl); err != nil {
		logger.Warn("failed to restore offer", "key", key, "error", err)
	}
}

func (s *Service) loadUser(ctx context.Context, userID string) (db.User, error) {
	var user db.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return user, errs.NotFound("user", userID)
	}
	return user, errs.Storage("load user", err)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(record offer, id string) offer {
	kept := make([]string, 0, len(record.CandidateIDs))
	for _, v := range record.CandidateIDs {
		if v != id {
			kept = append(kept, v)
		}
	}
	record.CandidateIDs = kept
	return record
}
