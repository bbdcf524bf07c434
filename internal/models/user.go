package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User owns a daily credit allowance. Credits and LastRefill are nullable so
// legacy or partially written rows can be detected and healed by the quota ledger.
type User struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Email      string     `gorm:"not null;size:255;uniqueIndex" json:"email"`
	Password   string     `gorm:"not null" json:"-"`
	Credits    *int       `json:"credits"`
	LastRefill *time.Time `json:"last_refill"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Documents  []Document `gorm:"foreignKey:UserID" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (User) TableName() string {
	return "users"
}
