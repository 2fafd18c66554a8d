package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ProviderConfig holds an organizer's credentials for one provider. Config
// is the encrypted envelope, never plaintext.
type ProviderConfig struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrganizerID uuid.UUID      `json:"organizer_id" gorm:"type:uuid;not null"`
	Provider    string         `json:"provider" gorm:"type:text;not null"`
	Config      datatypes.JSON `json:"-" gorm:"type:jsonb;not null"`
	IsActive    bool           `json:"is_active" gorm:"not null"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"not null"`
}

func (ProviderConfig) TableName() string { return "payment_provider_configs" }

// DecryptedConfig is an active configuration ready for an adapter.
type DecryptedConfig struct {
	OrganizerID uuid.UUID
	Provider    string
	Config      map[string]any
}
