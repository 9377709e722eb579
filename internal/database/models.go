package database

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Config is the generic key/value table backing the registry's
// get<K>/set<K>/reset contract and the encrypted api_key.<provider> entries.
type Config struct {
	Key       string `gorm:"primaryKey;size:255" json:"key"`
	Value     string `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName satisfies gorm.Tabler.
func (Config) TableName() string { return "config" }

// ModelConfig is the runtime-mutable model catalog row the registry
// hydrates ModelInfo entries from.
type ModelConfig struct {
	ID           string         `gorm:"primaryKey;size:100" json:"id"`
	Name         string         `gorm:"size:200;not null" json:"name"`
	Provider     string         `gorm:"size:50;not null;index" json:"provider"`
	Enabled      bool           `gorm:"default:true" json:"enabled"`
	Priority     int            `gorm:"default:100" json:"priority"`
	Capabilities pq.StringArray `gorm:"type:text[]" json:"capabilities"`
	Config       datatypes.JSON `gorm:"type:jsonb" json:"config"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName satisfies gorm.Tabler.
func (ModelConfig) TableName() string { return "model_config" }

// AuditLog supplements the registry with a read-only trail of
// ConfigChangeEvents, grounded on the teacher's llm.AuditLog.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"size:255;index" json:"key"`
	OldValue  string    `gorm:"type:text" json:"old_value"`
	NewValue  string    `gorm:"type:text" json:"new_value"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName satisfies gorm.Tabler.
func (AuditLog) TableName() string { return "audit_log" }
