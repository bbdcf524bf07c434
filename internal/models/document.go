package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Risk levels an Analysis may carry.
const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
)

// Document is a single submission. It is written once, together with its
// Analysis, and never updated.
type Document struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Filename  string    `gorm:"size:255;not null" json:"filename"`
	Type      string    `gorm:"size:100;not null" json:"type"`
	Size      int       `gorm:"not null" json:"size"`
	Content   string    `gorm:"type:text" json:"content"`
	Analysis  Analysis  `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"analysis"`
	CreatedAt time.Time `json:"created_at"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

func (Document) TableName() string {
	return "documents"
}

// Analysis is the normalized AI explanation owned by exactly one Document.
type Analysis struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"document_id"`
	Meaning    string    `gorm:"type:text;not null" json:"meaning"`
	Actions    []string  `gorm:"type:jsonb;serializer:json;not null" json:"actions"`
	RiskLevel  string    `gorm:"size:10;not null" json:"riskLevel"`
	RiskReason string    `gorm:"type:text;not null" json:"riskReason"`
	CreatedAt  time.Time `json:"created_at"`
}

func (a *Analysis) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (Analysis) TableName() string {
	return "analyses"
}
