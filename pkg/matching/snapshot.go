package matching

import (
	"context"
	"time"

	"github.com/as3contender/alex-orator-bot/pkg/db"
	"github.com/as3contender/alex-orator-bot/pkg/errs"
	"github.com/as3contender/alex-orator-bot/pkg/registration"
	"gorm.io/gorm"
)

// DBSnapshot reads matching input from the relational store.
type DBSnapshot struct {
	db   *gorm.DB
	regs registration.Store
}

var _ Snapshot = (*DBSnapshot)(nil)

func NewDBSnapshot(gdb *gorm.DB, regs registration.Store) *DBSnapshot {
	return &DBSnapshot{db: gdb, regs: regs}
}

func (s *DBSnapshot) Requester(ctx context.Context, userID string, week time.Time) (*Profile, error) {
	reg, err := s.regs.GetActiveRegistration(ctx, userID, week)
	if err != nil || reg == nil {
		return nil, err
	}
	users, err := s.activeUsers(ctx, []string{userID})
	if err != nil {
		return nil, err
	}
	user, ok := users[userID]
	if !ok {
		return nil, nil
	}
	p := profileOf(user, *reg)
	return &p, nil
}

func (s *DBSnapshot) Pool(ctx context.Context, userID string, week time.Time, maxPairsPerUser int) ([]Profile, error) {
	regs, err := s.regs.ListActiveRegistrations(ctx, week)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(regs))
	for _, reg := range regs {
		if reg.UserID != userID {
			ids = append(ids, reg.UserID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	users, err := s.activeUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	counts, partners, err := s.livePairs(ctx, userID, week)
	if err != nil {
		return nil, err
	}

	pool := make([]Profile, 0, len(ids))
	for _, reg := range regs {
		if reg.UserID == userID || partners[reg.UserID] || counts[reg.UserID] >= maxPairsPerUser {
			continue
		}
		user, ok := users[reg.UserID]
		if !ok {
			continue
		}
		pool = append(pool, profileOf(user, reg))
	}
	return pool, nil
}

func (s *DBSnapshot) Stats(ctx context.Context, week time.Time) (Stats, error) {
	var st Stats
	tx := s.db.WithContext(ctx)
	if err := tx.Model(&db.Registration{}).
		Where("week_start = ? AND status = ?", week, db.RegistrationActive).
		Count(&st.TotalRegistrations).Error; err != nil {
		return Stats{}, errs.Storage("count registrations", err)
	}
	if err := tx.Model(&db.Pair{}).
		Where("week_start = ?", week).
		Count(&st.TotalPairs).Error; err != nil {
		return Stats{}, errs.Storage("count pairs", err)
	}
	if err := tx.Model(&db.Pair{}).
		Where("week_start = ? AND status = ?", week, db.PairConfirmed).
		Count(&st.ConfirmedPairs).Error; err != nil {
		return Stats{}, errs.Storage("count confirmed pairs", err)
	}
	if st.TotalPairs > 0 {
		st.ConfirmationRate = float64(st.ConfirmedPairs) / float64(st.TotalPairs) * 100
	}
	return st, nil
}

func (s *DBSnapshot) activeUsers(ctx context.Context, ids []string) (map[string]db.User, error) {
	var users []db.User
	if err := s.db.WithContext(ctx).
		Where("id IN ? AND is_active = ?", ids, true).
		Find(&users).Error; err != nil {
		return nil, errs.Storage("load users", err)
	}
	out := make(map[string]db.User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// livePairs counts live pairs per user for the week and collects the users
// already paired with userID.
func (s *DBSnapshot) livePairs(ctx context.Context, userID string, week time.Time) (map[string]int, map[string]bool, error) {
	var pairs []db.Pair
	if err := s.db.WithContext(ctx).
		Select("user_a", "user_b").
		Where("week_start = ? AND status IN ?", week, db.LivePairStatuses).
		Find(&pairs).Error; err != nil {
		return nil, nil, errs.Storage("load live pairs", err)
	}
	counts := make(map[string]int)
	partners := make(map[string]bool)
	for _, p := range pairs {
		counts[p.UserA]++
		counts[p.UserB]++
		if other := p.Partner(userID); other != "" {
			partners[other] = true
		}
	}
	return counts, partners, nil
}

func profileOf(user db.User, reg db.Registration) Profile {
	return Profile{
		UserID:         user.ID,
		RegistrationID: reg.ID,
		Name:           user.DisplayName(),
		Gender:         user.Gender,
		TotalSessions:  user.TotalSessions,
		PreferredTime:  reg.PreferredTime,
		Topics:         reg.TopicPaths(),
	}
}
