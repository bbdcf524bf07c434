package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:      "test-secret",
		JWTExpiry:      time.Hour,
		GeminiAPIKey:   "test-key",
		GeminiModel:    "gemini-test",
		AITimeout:      5 * time.Second,
		DailyCredits:   5,
		QuotaTimezone:  "UTC",
		MaxUploadBytes: 1024,
	}
}

// newTestQuota returns a QuotaService whose clock is pinned to now.
func newTestQuota(db *gorm.DB, now time.Time) *QuotaService {
	q := NewQuotaService(db, testConfig())
	q.now = func() time.Time { return now }
	return q
}

func seedUser(t *testing.T, db *gorm.DB, credits *int, lastRefill *time.Time) uuid.UUID {
	t.Helper()

	user := models.User{
		Email:      uuid.NewString() + "@example.com",
		Password:   "x",
		Credits:    credits,
		LastRefill: lastRefill,
	}
	require.NoError(t, db.Create(&user).Error)
	return user.ID
}

func storedCredits(t *testing.T, db *gorm.DB, id uuid.UUID) *int {
	t.Helper()

	var user models.User
	require.NoError(t, db.First(&user, "id = ?", id).Error)
	return user.Credits
}

func countDocuments(t *testing.T, db *gorm.DB, id uuid.UUID) int64 {
	t.Helper()

	var n int64
	require.NoError(t, db.Model(&models.Document{}).Where("user_id = ?", id).Count(&n).Error)
	return n
}

// failUpdates makes every UPDATE issued through db fail.
func failUpdates(t *testing.T, db *gorm.DB) {
	t.Helper()

	err := db.Callback().Update().Before("gorm:update").Register("test:fail_update", func(tx *gorm.DB) {
		_ = tx.AddError(errors.New("store degraded"))
	})
	require.NoError(t, err)
}

// failAnalysisInserts makes every INSERT into the analyses table fail.
func failAnalysisInserts(t *testing.T, db *gorm.DB) {
	t.Helper()

	err := db.Callback().Create().Before("gorm:create").Register("test:fail_analysis_insert", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "analyses" {
			_ = tx.AddError(errors.New("analysis insert failed"))
		}
	})
	require.NoError(t, err)
}

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

type fakeGenerator struct {
	text  string
	err   error
	calls int
	last  GenerateRequest
}

func (f *fakeGenerator) Generate(_ context.Context, req GenerateRequest) (string, error) {
	f.calls++
	f.last = req
	return f.text, f.err
}
