package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RefillOutcome records what the ledger did while evaluating a balance.
type RefillOutcome int

const (
	RefillNone     RefillOutcome = iota // stored balance used as-is
	RefillWritten                       // allowance written back to the store
	RefillFallback                      // write failed, allowance granted for this request only
)

func (o RefillOutcome) String() string {
	switch o {
	case RefillWritten:
		return "written"
	case RefillFallback:
		return "fallback"
	default:
		return "none"
	}
}

// Balance is the usable credit count for one request.
type Balance struct {
	Credits int
	Outcome RefillOutcome
}

// QuotaService owns the per-user daily credit allowance. Refills are lazy:
// they happen on the first access of a new calendar day in the ledger's
// time zone.
type QuotaService struct {
	db        *gorm.DB
	allowance int
	loc       *time.Location
	now       func() time.Time
}

func NewQuotaService(db *gorm.DB, cfg *config.Config) *QuotaService {
	loc := time.Local
	if cfg.QuotaTimezone != "" {
		l, err := time.LoadLocation(cfg.QuotaTimezone)
		if err != nil {
			slog.Warn("invalid quota timezone, using server local time", "timezone", cfg.QuotaTimezone, "error", err)
		} else {
			loc = l
		}
	}

	allowance := cfg.DailyCredits
	if allowance <= 0 {
		allowance = 5
	}

	return &QuotaService{db: db, allowance: allowance, loc: loc, now: time.Now}
}

// DailyAllowance is the number of credits granted on each refill.
func (s *QuotaService) DailyAllowance() int {
	return s.allowance
}

// ShouldRefill reports whether now falls on a different calendar day than
// lastRefill in loc. A nil lastRefill counts as the zero epoch.
func ShouldRefill(now time.Time, lastRefill *time.Time, loc *time.Location) bool {
	last := time.Unix(0, 0)
	if lastRefill != nil {
		last = *lastRefill
	}
	ny, nm, nd := now.In(loc).Date()
	ly, lm, ld := last.In(loc).Date()
	return ny != ly || nm != lm || nd != ld
}

// Balance loads the user's credits, refilling or healing the stored state
// when due. A failed refill write is logged and the full allowance is granted
// for this request only.
func (s *QuotaService) Balance(ctx context.Context, userID uuid.UUID) (Balance, error) {
	var user models.User
	err := s.db.WithContext(ctx).Select("id", "credits", "last_refill").First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Balance{}, ErrUserNotFound
	}
	if err != nil {
		return Balance{}, fmt.Errorf("failed to load quota state: %w", err)
	}

	now := s.now()
	isNewDay := ShouldRefill(now, user.LastRefill, s.loc)
	needsHealing := user.Credits == nil

	if !isNewDay && !needsHealing {
		// A negative stored value is never reported; it reads as exhausted.
		return Balance{Credits: max(0, *user.Credits), Outcome: RefillNone}, nil
	}

	if err := s.refill(ctx, userID, now); err != nil {
		slog.Error("credit refill write failed, granting allowance for this request",
			"user_id", userID.String(),
			"action", "quota_refill",
			"new_day", isNewDay,
			"needs_healing", needsHealing,
			"error", err.Error(),
		)
		metrics.RefillsTotal.WithLabelValues(RefillFallback.String()).Inc()
		return Balance{Credits: s.allowance, Outcome: RefillFallback}, nil
	}

	slog.Info("credits refilled", "user_id", userID.String(), "new_day", isNewDay, "needs_healing", needsHealing)
	metrics.RefillsTotal.WithLabelValues(RefillWritten.String()).Inc()
	return Balance{Credits: s.allowance, Outcome: RefillWritten}, nil
}

func (s *QuotaService) refill(ctx context.Context, userID uuid.UUID, now time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"credits":     s.allowance,
			"last_refill": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Check returns the usable balance or ErrQuotaExhausted when it is not positive.
func (s *QuotaService) Check(ctx context.Context, userID uuid.UUID) (Balance, error) {
	bal, err := s.Balance(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	if bal.Credits <= 0 {
		metrics.QuotaRejectionsTotal.Inc()
		return bal, ErrQuotaExhausted
	}
	return bal, nil
}

// Deduct removes one credit with a conditional update and returns the stored
// balance afterwards. The guard keeps the stored value from going negative;
// applied is false when no credit could be taken.
func (s *QuotaService) Deduct(ctx context.Context, userID uuid.UUID) (remaining int, applied bool, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.User{}).
			Where("id = ? AND credits > 0", userID).
			UpdateColumn("credits", gorm.Expr("credits - ?", 1))
		if result.Error != nil {
			return result.Error
		}
		applied = result.RowsAffected > 0

		var user models.User
		if err := tx.Select("id", "credits").First(&user, "id = ?", userID).Error; err != nil {
			return err
		}
		if user.Credits != nil {
			remaining = *user.Credits
		}
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to deduct credit: %w", err)
	}
	return remaining, applied, nil
}
