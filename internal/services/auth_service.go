package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 6

type AuthService struct {
	db    *gorm.DB
	cfg   *config.Config
	quota *QuotaService
	now   func() time.Time
}

func NewAuthService(db *gorm.DB, cfg *config.Config, quota *QuotaService) *AuthService {
	return &AuthService{
		db:    db,
		cfg:   cfg,
		quota: quota,
		now:   time.Now,
	}
}

// Register creates a user holding a full day's allowance and returns a
// bearer token for it.
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	var existing models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	credits := s.quota.DailyAllowance()
	refilledAt := s.now()
	user := models.User{
		ID:         uuid.New(),
		Email:      email,
		Password:   string(hash),
		Credits:    &credits,
		LastRefill: &refilledAt,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		// A concurrent registration can win between the lookup and the insert.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.authResponse(&user, credits)
}

// Login verifies the password and reports the user's balance after any
// pending daily refill.
func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(req.Email)).First(&user).Error; err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	bal, err := s.quota.Balance(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return s.authResponse(&user, bal.Credits)
}

// DeleteAccount removes the user with every document and analysis they own.
func (s *AuthService) DeleteAccount(ctx context.Context, userID uuid.UUID, password string) error {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return ErrUserNotFound
	}

	if password == "" {
		return ErrPasswordRequired
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		docIDs := tx.Model(&models.Document{}).Select("id").Where("user_id = ?", userID)
		if err := tx.Where("document_id IN (?)", docIDs).Delete(&models.Analysis{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Document{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
}

// IssueToken signs a bearer token bound to the user's id.
func (s *AuthService) IssueToken(user *models.User) (string, error) {
	now := s.now()
	expiry := s.cfg.JWTExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(expiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *AuthService) authResponse(user *models.User, credits int) (*dto.AuthResponse, error) {
	token, err := s.IssueToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &dto.AuthResponse{
		Token: token,
		User: dto.UserResponse{
			ID:      user.ID,
			Email:   user.Email,
			Credits: credits,
		},
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
