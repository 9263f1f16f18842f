package flowstate

import (
	"context"
	"errors"
	"time"

	"github.com/as3contender/alex-orator-bot/pkg/db"
	"github.com/as3contender/alex-orator-bot/pkg/errs"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DBStore keeps state in the flow_states table. Expired rows are invisible
// to reads and removed by db.StartFlowStateCleanup.
type DBStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDBStore(gdb *gorm.DB) *DBStore {
	return &DBStore{db: gdb, now: time.Now}
}

func (s *DBStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now().UTC()
	row := db.FlowState{Key: key, Value: string(value), ExpiresAt: now.Add(ttl), CreatedAt: now, UpdatedAt: now}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&row).Error
	return errs.Storage("put flow state", err)
}

func (s *DBStore) Get(ctx context.Context, key string) ([]byte, error) {
	var row db.FlowState
	err := s.db.WithContext(ctx).
		Where("key = ? AND expires_at > ?", key, s.now().UTC()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, errs.Storage("get flow state", err)
	}
	return []byte(row.Value), nil
}

func (s *DBStore) Take(ctx context.Context, key string) ([]byte, error) {
	now := s.now().UTC()
	var row db.FlowState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("key = ? AND expires_at > ?", key, now).
			First(&row).Error; err != nil {
			return err
		}
		res := tx.Where("key = ? AND expires_at > ?", key, now).Delete(&db.FlowState{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, errs.Storage("take flow state", err)
	}
	return []byte(row.Value), nil
}

func (s *DBStore) Delete(ctx context.Context, key string) error {
	return errs.Storage("delete flow state", s.db.WithContext(ctx).Where("key = ?", key).Delete(&db.FlowState{}).Error)
}
