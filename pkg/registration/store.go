// Package registration owns weekly sign-ups: who takes part in a week, at
// what preferred time and on which topics.
package registration

import (
	"context"
	"errors"
	"time"

	"github.com/as3contender/alex-orator-bot/pkg/db"
	"github.com/as3contender/alex-orator-bot/pkg/errs"
	"github.com/as3contender/alex-orator-bot/pkg/logger"
	"github.com/as3contender/alex-orator-bot/pkg/topics"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the read side used by matching and pairing.
type Store interface {
	// GetActiveRegistration returns nil without error when the user has no
	// active registration for the week.
	GetActiveRegistration(ctx context.Context, userID string, week time.Time) (*db.Registration, error)
	ListActiveRegistrations(ctx context.Context, week time.Time) ([]db.Registration, error)
}

type Service struct {
	db      *gorm.DB
	catalog topics.Catalog
	now     func() time.Time
}

var _ Store = (*Service)(nil)

// NewService builds a registration service. A nil catalog skips topic
// validation.
func NewService(gdb *gorm.DB, catalog topics.Catalog) *Service {
	return &Service{db: gdb, catalog: catalog, now: time.Now}
}

func preloadTopics(tx *gorm.DB) *gorm.DB {
	return tx.Order("position ASC")
}

func (s *Service) GetActiveRegistration(ctx context.Context, userID string, week time.Time) (*db.Registration, error) {
	var reg db.Registration
	err := s.db.WithContext(ctx).
		Preload("Topics", preloadTopics).
		Where("user_id = ? AND week_start = ? AND status = ?", userID, WeekStart(week), db.RegistrationActive).
		First(&reg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Storage("get active registration", err)
	}
	return &reg, nil
}

func (s *Service) ListActiveRegistrations(ctx context.Context, week time.Time) ([]db.Registration, error) {
	var regs []db.Registration
	err := s.db.WithContext(ctx).
		Preload("Topics", preloadTopics).
		Where("week_start = ? AND status = ?", WeekStart(week), db.RegistrationActive).
		Order("created_at ASC").
		Find(&regs).Error
	if err != nil {
		return nil, errs.Storage("list active registrations", err)
	}
	return regs, nil
}

// EnsureUser inserts the user or refreshes its Telegram profile fields,
// keyed by Telegram id.
func (s *Service) EnsureUser(ctx context.Context, user db.User) (*db.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.IsActive = true
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "first_name", "last_name", "updated_at"}),
	}).Create(&user).Error
	if err != nil {
		return nil, errs.Storage("ensure user", err)
	}
	var stored db.User
	if err := s.db.WithContext(ctx).Where("telegram_id = ?", user.TelegramID).First(&stored).Error; err != nil {
		return nil, errs.Storage("load user", err)
	}
	return &stored, nil
}

// Register signs the user up for the week containing week. A user holds at
// most one active registration per week.
func (s *Service) Register(ctx context.Context, userID string, week time.Time, preferredTime string, topicPaths []string) (*db.Registration, error) {
	if _, err := ParsePreferredTime(preferredTime); err != nil {
		return nil, errs.Constraint(errs.RuleInvalidInput, err.Error())
	}
	paths, err := s.validateTopics(ctx, topicPaths)
	if err != nil {
		return nil, err
	}

	w := WeekOf(week)
	reg := db.Registration{
		ID:            uuid.NewString(),
		UserID:        userID,
		WeekStart:     w.Start,
		WeekEnd:       w.End,
		PreferredTime: preferredTime,
		Status:        db.RegistrationActive,
		Topics:        topicRows(userID, paths),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&db.Registration{}).
			Where("user_id = ? AND week_start = ? AND status = ?", userID, w.Start, db.RegistrationActive).
			Count(&existing).Error; err != nil {
			return errs.Storage("check registration", err)
		}
		if existing > 0 {
			return errs.Constraint(errs.RuleAlreadyRegistered, "user "+userID+" week "+w.Key())
		}
		if err := tx.Create(&reg).Error; err != nil {
			// a concurrent Register won the race past the count
			if db.IsUniqueViolation(err) {
				return errs.Constraint(errs.RuleAlreadyRegistered, "user "+userID+" week "+w.Key())
			}
			return errs.Storage("create registration", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("week registration created", "user_id", userID, "week", w.Key(), "topics", len(paths))
	return &reg, nil
}

// Cancel moves the user's active registration for the week to cancelled.
// It reports false when there was nothing to cancel.
func (s *Service) Cancel(ctx context.Context, userID string, week time.Time) (bool, error) {
	now := s.now().UTC()
	res := s.db.WithContext(ctx).Model(&db.Registration{}).
		Where("user_id = ? AND week_start = ? AND status = ?", userID, WeekStart(week), db.RegistrationActive).
		Updates(map[string]any{"status": db.RegistrationCancelled, "cancelled_at": now, "updated_at": now})
	if res.Error != nil {
		return false, errs.Storage("cancel registration", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// UpdateTopics replaces the selected topics of an active registration.
func (s *Service) UpdateTopics(ctx context.Context, registrationID string, topicPaths []string) error {
	paths, err := s.validateTopics(ctx, topicPaths)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reg db.Registration
		err := tx.Where("id = ?", registrationID).First(&reg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.NotFound("registration", registrationID)
		}
		if err != nil {
			return errs.Storage("load registration", err)
		}
		if reg.Status != db.RegistrationActive {
			return errs.Constraint(errs.RuleRegistrationInactive, "registration "+registrationID)
		}
		if err := tx.Where("registration_id = ?", registrationID).Delete(&db.RegistrationTopic{}).Error; err != nil {
			return errs.Storage("clear topics", err)
		}
		rows := topicRows(reg.UserID, paths)
		if len(rows) == 0 {
			return nil
		}
		for i := range rows {
			rows[i].RegistrationID = registrationID
		}
		return errs.Storage("insert topics", tx.Create(&rows).Error)
	})
}

func (s *Service) validateTopics(ctx context.Context, paths []string) ([]string, error) {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		if s.catalog != nil {
			ok, err := s.catalog.Exists(ctx, p)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, errs.Constraint(errs.RuleInvalidInput, "unknown topic "+p)
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func topicRows(userID string, paths []string) []db.RegistrationTopic {
	rows := make([]db.RegistrationTopic, 0, len(paths))
	for i, p := range paths {
		rows = append(rows, db.RegistrationTopic{UserID: userID, TopicPath: p, Position: i})
	}
	return rows
}
