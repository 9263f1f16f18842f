package db

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	gdb, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	if err := Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to access underlying DB: %v", err)
	}
	t.Cleanup(func() {
		if err := sqlDB.Close(); err != nil {
			t.Fatalf("failed to close database: %v", err)
		}
	})
	return gdb
}

func TestMigrateRejectsSecondActiveRegistration(t *testing.T) {
	gdb := openTestDB(t)
	week := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	reg := func(id string, status RegistrationStatus) *Registration {
		return &Registration{ID: id, UserID: "u1", WeekStart: week, WeekEnd: week.AddDate(0, 0, 6), PreferredTime: "18:00", Status: status}
	}

	if err := gdb.Create(reg("r1", RegistrationActive)).Error; err != nil {
		t.Fatalf("failed to create registration: %v", err)
	}
	err := gdb.Create(reg("r2", RegistrationActive)).Error
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation for second active registration, got %v", err)
	}

	if err := gdb.Model(&Registration{}).Where("id = ?", "r1").Update("status", RegistrationCancelled).Error; err != nil {
		t.Fatalf("failed to cancel registration: %v", err)
	}
	if err := gdb.Create(reg("r3", RegistrationActive)).Error; err != nil {
		t.Fatalf("expected re-registration after cancellation, got %v", err)
	}
	if err := gdb.Create(reg("r4", RegistrationCancelled)).Error; err != nil {
		t.Fatalf("cancelled rows must not collide, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{err: nil, want: false},
		{err: gorm.ErrDuplicatedKey, want: true},
		{err: fmt.Errorf("create: %w", gorm.ErrDuplicatedKey), want: true},
		{err: errors.New("UNIQUE constraint failed: registrations.user_id"), want: true},
		{err: errors.New(`ERROR: duplicate key value violates unique constraint "ux_pairs_active_key"`), want: true},
		{err: gorm.ErrRecordNotFound, want: false},
	}
	for _, tt := range tests {
		if got := IsUniqueViolation(tt.err); got != tt.want {
			t.Fatalf("IsUniqueViolation(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestMigrateRejectsSecondLivePair(t *testing.T) {
	gdb := openTestDB(t)
	week := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	key := "2025-03-03|u1|u2"

	first := Pair{ID: "p1", UserA: "u1", UserB: "u2", RegistrationID: "r1", WeekStart: week, PairKey: key, Status: PairPending}
	if err := gdb.Create(&first).Error; err != nil {
		t.Fatalf("failed to create first pair: %v", err)
	}
	dup := Pair{ID: "p2", UserA: "u2", UserB: "u1", RegistrationID: "r2", WeekStart: week, PairKey: key, Status: PairConfirmed}
	if err := gdb.Create(&dup).Error; err == nil {
		t.Fatalf("expected unique violation for second live pair")
	}

	if err := gdb.Model(&Pair{}).Where("id = ?", "p1").Update("status", PairCancelled).Error; err != nil {
		t.Fatalf("failed to cancel first pair: %v", err)
	}
	again := Pair{ID: "p3", UserA: "u1", UserB: "u2", RegistrationID: "r1", WeekStart: week, PairKey: key, Status: PairPending}
	if err := gdb.Create(&again).Error; err != nil {
		t.Fatalf("expected new pair after cancellation, got %v", err)
	}
}

func TestMigrateIsRepeatable(t *testing.T) {
	gdb := openTestDB(t)
	if err := Migrate(gdb); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
}

func TestCleanupExpiredFlowStates(t *testing.T) {
	gdb := openTestDB(t)
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

	rows := []FlowState{
		{Key: "expired", Value: "{}", ExpiresAt: now.Add(-time.Minute)},
		{Key: "live", Value: "{}", ExpiresAt: now.Add(time.Hour)},
	}
	if err := gdb.Create(&rows).Error; err != nil {
		t.Fatalf("failed to seed flow state: %v", err)
	}

	deleted, err := CleanupExpiredFlowStates(gdb, now)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted row, got %d", deleted)
	}

	var remaining []FlowState
	if err := gdb.Find(&remaining).Error; err != nil {
		t.Fatalf("failed to load flow state: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Key != "live" {
		t.Fatalf("unexpected remaining rows: %+v", remaining)
	}
}

func TestCleanupExpiredFlowStatesNilDB(t *testing.T) {
	deleted, err := CleanupExpiredFlowStates(nil, time.Now())
	if err != nil || deleted != 0 {
		t.Fatalf("expected no-op for nil db, got %d, %v", deleted, err)
	}
}

func TestPairPartner(t *testing.T) {
	p := Pair{UserA: "a", UserB: "b"}
	cases := map[string]string{"a": "b", "b": "a", "c": ""}
	for user, want := range cases {
		if got := p.Partner(user); got != want {
			t.Fatalf("Partner(%q) = %q, want %q", user, got, want)
		}
	}
	if p.Involves("") {
		t.Fatal("empty user must not be involved")
	}
}
