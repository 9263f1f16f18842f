// Package pairing owns the pair lifecycle: pending -> confirmed -> cancelled.
// Every committed transition enqueues its notifications in the same
// transaction.
package pairing

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/as3contender/alex-orator-bot/pkg/db"
	"github.com/as3contender/alex-orator-bot/pkg/errs"
	"github.com/as3contender/alex-orator-bot/pkg/logger"
	"github.com/as3contender/alex-orator-bot/pkg/queue"
	"github.com/as3contender/alex-orator-bot/pkg/registration"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultMaxPairsPerUser = 3

// QuotaFunc returns the live-pair limit per user and week.
type QuotaFunc func(ctx context.Context) int

type Manager struct {
	db    *gorm.DB
	queue *queue.Queue
	quota QuotaFunc
	now   func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithQuota(quota QuotaFunc) Option {
	return func(m *Manager) { m.quota = quota }
}

func WithMaxPairsPerUser(n int) Option {
	return WithQuota(func(context.Context) int { return n })
}

func NewManager(gdb *gorm.DB, q *queue.Queue, opts ...Option) *Manager {
	m := &Manager{db: gdb, queue: q, now: time.Now}
	WithMaxPairsPerUser(DefaultMaxPairsPerUser)(m)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PairKey identifies the unordered couple within a week.
func PairKey(week time.Time, userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return registration.WeekStart(week).Format(time.DateOnly) + "|" + userA + "|" + userB
}

// Create proposes a pair between userA, the owner of registrationID, and
// userB. It fails with a constraint violation when either user is at the
// weekly quota or the two already share a live pair.
func (m *Manager) Create(ctx context.Context, userA, userB, registrationID string) (*db.Pair, error) {
	if userA == "" || userB == "" {
		return nil, errs.Constraint(errs.RuleInvalidInput, "empty user id")
	}
	if userA == userB {
		return nil, errs.Constraint(errs.RuleSelfPair, "user "+userA)
	}
	limit := m.quota(ctx)
	now := m.now().UTC()

	var pair db.Pair
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reg, err := loadRegistration(tx, registrationID)
		if err != nil {
			return err
		}
		if reg.UserID != userA {
			return errs.Constraint(errs.RuleInvalidInput, "registration "+registrationID+" does not belong to "+userA)
		}
		if reg.Status != db.RegistrationActive {
			return errs.Constraint(errs.RuleRegistrationInactive, "registration "+registrationID)
		}
		week := reg.WeekStart.UTC()
		if err := requireActiveRegistration(tx, userB, week); err != nil {
			return err
		}

		// Lock both users in id order so concurrent creates touching either
		// user queue up behind each other instead of deadlocking.
		users, err := lockUsers(tx, userA, userB)
		if err != nil {
			return err
		}

		key := PairKey(week, userA, userB)
		var existing int64
		if err := tx.Model(&db.Pair{}).
			Where("pair_key = ? AND status IN ?", key, db.LivePairStatuses).
			Count(&existing).Error; err != nil {
			return errs.Storage("check existing pair", err)
		}
		if existing > 0 {
			return errs.Constraint(errs.RuleDuplicatePair, key)
		}
		for _, userID := range []string{userA, userB} {
			count, err := livePairCount(tx, userID, week)
			if err != nil {
				return err
			}
			if count >= int64(limit) {
				return errs.Constraint(errs.RuleQuotaExceeded, "user "+userID+" has "+strconv.FormatInt(count, 10)+" pairs")
			}
		}

		pair = db.Pair{
			ID:             uuid.NewString(),
			UserA:          userA,
			UserB:          userB,
			RegistrationID: registrationID,
			WeekStart:      week,
			PairKey:        key,
			Status:         db.PairPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(&pair).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return errs.Constraint(errs.RuleDuplicatePair, key)
			}
			return errs.Storage("create pair", err)
		}
		return m.notifyCreated(tx, pair, users[userA], users[userB])
	})
	if err != nil {
		return nil, err
	}
	logger.Info("pair created", "pair_id", pair.ID, "user_a", userA, "user_b", userB, "week", pair.WeekStart.Format(time.DateOnly))
	return &pair, nil
}

// Confirm moves a pending pair to confirmed. Confirming an already confirmed
// pair returns it unchanged.
func (m *Manager) Confirm(ctx context.Context, pairID, actingUserID string) (*db.Pair, error) {
	now := m.now().UTC()
	var pair db.Pair
	transitioned := false
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		pair, err = lockPair(tx, pairID, actingUserID)
		if err != nil {
			return err
		}
		switch pair.Status {
		case db.PairConfirmed:
			return nil
		case db.PairCancelled:
			return errs.Constraint(errs.RulePairCancelled, "pair "+pairID)
		}

		res := tx.Model(&db.Pair{}).
			Where("id = ? AND status = ?", pairID, db.PairPending).
			Updates(map[string]any{"status": db.PairConfirmed, "confirmed_at": now, "updated_at": now})
		if res.Error != nil {
			return errs.Storage("confirm pair", res.Error)
		}
		if res.RowsAffected == 0 {
			// lost a race on a store without row locks; report current state
			return reloadPair(tx, &pair)
		}
		pair.Status = db.PairConfirmed
		pair.ConfirmedAt = &now
		pair.UpdatedAt = now
		transitioned = true
		return m.notifyConfirmed(tx, pair, actingUserID)
	})
	if err != nil {
		return nil, err
	}
	if transitioned {
		logger.Info("pair confirmed", "pair_id", pairID, "user_id", actingUserID)
	}
	return &pair, nil
}

// Cancel moves a pending or confirmed pair to cancelled and notifies the
// other participant. Cancelling a cancelled pair returns it unchanged.
func (m *Manager) Cancel(ctx context.Context, pairID, actingUserID string) (*db.Pair, error) {
	now := m.now().UTC()
	var pair db.Pair
	transitioned := false
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		pair, err = lockPair(tx, pairID, actingUserID)
		if err != nil {
			return err
		}
		if pair.Status == db.PairCancelled {
			return nil
		}

		res := tx.Model(&db.Pair{}).
			Where("id = ? AND status IN ?", pairID, db.LivePairStatuses).
			Updates(map[string]any{"status": db.PairCancelled, "cancelled_at": now, "updated_at": now})
		if res.Error != nil {
			return errs.Storage("cancel pair", res.Error)
		}
		if res.RowsAffected == 0 {
			return reloadPair(tx, &pair)
		}
		pair.Status = db.PairCancelled
		pair.CancelledAt = &now
		pair.UpdatedAt = now
		transitioned = true
		return m.notifyCancelled(tx, pair, actingUserID)
	})
	if err != nil {
		return nil, err
	}
	if transitioned {
		logger.Info("pair cancelled", "pair_id", pairID, "user_id", actingUserID)
	}
	return &pair, nil
}

func (m *Manager) Get(ctx context.Context, pairID string) (*db.Pair, error) {
	var pair db.Pair
	err := m.db.WithContext(ctx).Where("id = ?", pairID).First(&pair).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("pair", pairID)
	}
	if err != nil {
		return nil, errs.Storage("get pair", err)
	}
	return &pair, nil
}

// ListForUser returns the user's live pairs for the week, newest first.
func (m *Manager) ListForUser(ctx context.Context, userID string, week time.Time) ([]db.Pair, error) {
	var pairs []db.Pair
	err := m.db.WithContext(ctx).
		Where("(user_a = ? OR user_b = ?) AND week_start = ? AND status IN ?",
			userID, userID, registration.WeekStart(week), db.LivePairStatuses).
		Order("created_at DESC").
		Find(&pairs).Error
	if err != nil {
		return nil, errs.Storage("list pairs", err)
	}
	return pairs, nil
}

func loadRegistration(tx *gorm.DB, registrationID string) (db.Registration, error) {
	var reg db.Registration
	err := tx.Where("id = ?", registrationID).First(&reg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reg, errs.NotFound("registration", registrationID)
	}
	if err != nil {
		return reg, errs.Storage("load registration", err)
	}
	return reg, nil
}

func requireActiveRegistration(tx *gorm.DB, userID string, week time.Time) error {
	var n int64
	if err := tx.Model(&db.Registration{}).
		Where("user_id = ? AND week_start = ? AND status = ?", userID, week, db.RegistrationActive).
		Count(&n).Error; err != nil {
		return errs.Storage("check partner registration", err)
	}
	if n == 0 {
		return errs.Constraint(errs.RuleRegistrationInactive, "user "+userID+" is not registered for "+week.Format(time.DateOnly))
	}
	return nil
}

func lockUsers(tx *gorm.DB, ids ...string) (map[string]db.User, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	var users []db.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", sorted).
		Order("id ASC").
		Find(&users).Error; err != nil {
		return nil, errs.Storage("lock users", err)
	}
	byID := make(map[string]db.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, errs.NotFound("user", id)
		}
	}
	return byID, nil
}

func livePairCount(tx *gorm.DB, userID string, week time.Time) (int64, error) {
	var n int64
	if err := tx.Model(&db.Pair{}).
		Where("(user_a = ? OR user_b = ?) AND week_start = ? AND status IN ?", userID, userID, week, db.LivePairStatuses).
		Count(&n).Error; err != nil {
		return 0, errs.Storage("count live pairs", err)
	}
	return n, nil
}

func lockPair(tx *gorm.DB, pairID, actingUserID string) (db.Pair, error) {
	var pair db.Pair
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", pairID).First(&pair).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pair, errs.NotFound("pair", pairID)
	}
	if err != nil {
		return pair, errs.Storage("load pair", err)
	}
	if !pair.Involves(actingUserID) {
		return pair, errs.Constraint(errs.RuleNotParticipant, "user "+actingUserID+" is not part of pair "+pairID)
	}
	return pair, nil
}

func reloadPair(tx *gorm.DB, pair *db.Pair) error {
	return errs.Storage("reload pair", tx.Where("id = ?", pair.ID).First(pair).Error)
}
