package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeSystem    ActorType = "system"
	ActorTypeAdmin     ActorType = "admin"
	ActorTypeOrganizer ActorType = "organizer"
	ActorTypeScanner   ActorType = "scanner"
	ActorTypeProvider  ActorType = "provider"
)

type AuditLog struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrganizerID *uuid.UUID        `gorm:"type:uuid" json:"organizer_id,omitempty"`
	ActorType   string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID     *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action      string            `gorm:"type:text;not null" json:"action"`
	TargetType  string            `gorm:"type:text;not null" json:"target_type"`
	TargetID    *string           `gorm:"type:text" json:"target_id,omitempty"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Entry is a single audit record as requested by callers.
type Entry struct {
	OrganizerID *uuid.UUID
	ActorType   string
	ActorID     *string
	Action      string
	TargetType  string
	TargetID    *string
	Metadata    map[string]any
}

type ListFilter struct {
	OrganizerID *uuid.UUID
	Action      string
	TargetType  string
	TargetID    string
	Limit       int
}
