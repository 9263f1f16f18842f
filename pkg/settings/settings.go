// Package settings reads runtime tunables from the orator_settings table so
// operators can change limits without a redeploy.
package settings

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/as3contender/alex-orator-bot/pkg/db"
	"github.com/as3contender/alex-orator-bot/pkg/errs"
	"github.com/as3contender/alex-orator-bot/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	KeyMaxPairsPerUser         = "max_pairs_per_user"
	KeyMaxCandidatesPerRequest = "max_candidates_per_request"
)

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(gdb *gorm.DB) *Store {
	return &Store{db: gdb, now: time.Now}
}

// String returns the active value for key, or def when the key is absent or
// disabled.
func (s *Store) String(ctx context.Context, key, def string) (string, error) {
	var row db.Setting
	err := s.db.WithContext(ctx).Where("key = ? AND is_active = ?", key, true).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return def, nil
	}
	if err != nil {
		return def, errs.Storage("load setting", err)
	}
	return row.Value, nil
}

// Int is String parsed as a positive integer. Malformed values fall back to
// def and are logged.
func (s *Store) Int(ctx context.Context, key string, def int) (int, error) {
	raw, err := s.String(ctx, key, "")
	if err != nil || raw == "" {
		return def, err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(raw))
	if convErr != nil || n <= 0 {
		logger.Warn("ignoring malformed setting", "key", key, "value", raw)
		return def, nil
	}
	return n, nil
}

func (s *Store) Set(ctx context.Context, key, value, description string) error {
	now := s.now().UTC()
	row := db.Setting{Key: key, Value: value, Description: description, IsActive: true, CreatedAt: now, UpdatedAt: now}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "description", "is_active", "updated_at"}),
	}).Create(&row).Error
	return errs.Storage("save setting", err)
}

func (s *Store) Disable(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Model(&db.Setting{}).Where("key = ?", key).
		Updates(map[string]any{"is_active": false, "updated_at": s.now().UTC()}).Error
	return errs.Storage("disable setting", err)
}

// MaxPairsPerUser and MaxCandidatesPerRequest resolve the pairing limits,
// preferring stored values over the configured defaults.
func (s *Store) MaxPairsPerUser(ctx context.Context, def int) int {
	return s.intOr(ctx, KeyMaxPairsPerUser, def)
}

func (s *Store) MaxCandidatesPerRequest(ctx context.Context, def int) int {
	return s.intOr(ctx, KeyMaxCandidatesPerRequest, def)
}

func (s *Store) intOr(ctx context.Context, key string, def int) int {
	n, err := s.Int(ctx, key, def)
	if err != nil {
		logger.Error("failed to read setting", "key", key, "error", err)
	}
	return n
}
