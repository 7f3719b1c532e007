package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncType identifies what a sync operation carried.
type SyncType string

const (
	SyncTypeInventory     SyncType = "inventory"
	SyncTypeRates         SyncType = "rates"
	SyncTypeAvailability  SyncType = "availability"
	SyncTypeBookingImport SyncType = "booking_import"
)

// SyncDirection is push (local state to channel) or pull (channel to local).
type SyncDirection string

const (
	SyncDirectionPush SyncDirection = "push"
	SyncDirectionPull SyncDirection = "pull"
)

// SyncLog is the append-only audit record of one sync operation. Rows are
// never mutated after completion; retries create new rows.
//
// Raw request/response payloads live in the object-storage archive; the row
// stores only their object keys.
type SyncLog struct {
	ID        string        `gorm:"size:36;primaryKey" json:"id"`
	ChannelID string        `gorm:"size:36;index:idx_sync_logs_channel_created,priority:1;not null" json:"channel_id"`
	SyncType  SyncType      `gorm:"size:20;not null" json:"sync_type"`
	Direction SyncDirection `gorm:"size:10;not null" json:"direction"`
	Status    SyncStatus    `gorm:"size:20;not null" json:"status"`

	RecordsProcessed  int `gorm:"default:0" json:"records_processed"`
	RecordsSuccessful int `gorm:"default:0" json:"records_successful"`
	RecordsFailed     int `gorm:"default:0" json:"records_failed"`

	// RequestKey/ResponseKey are object keys in the payload archive bucket.
	// Empty when the archive was unavailable; the sync itself still counts.
	RequestKey  string `gorm:"size:255" json:"request_key,omitempty"`
	ResponseKey string `gorm:"size:255" json:"response_key,omitempty"`

	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`

	CreatedAt time.Time `gorm:"index:idx_sync_logs_channel_created,priority:2" json:"created_at"`
}

func (l *SyncLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// TableName keeps the historical table name used by the dashboard queries.
func (SyncLog) TableName() string {
	return "channel_sync_logs"
}
