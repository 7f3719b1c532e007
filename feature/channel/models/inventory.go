package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SyncStatus is the push state of an inventory record or the outcome of a
// sync batch.
type SyncStatus string

const (
	// SyncStatusPending marks a record changed locally and not yet pushed.
	SyncStatusPending SyncStatus = "pending"
	// SyncStatusSuccess marks a record (or batch) fully synced.
	SyncStatusSuccess SyncStatus = "success"
	// SyncStatusFailed marks a record (or batch) where nothing synced.
	SyncStatusFailed SyncStatus = "failed"
	// SyncStatusPartial marks a batch with mixed per-record outcomes.
	SyncStatusPartial SyncStatus = "partial"
)

// InventoryRecord is the authoritative per-channel, per-room-type, per-date
// inventory row.
//
// TotalRooms is the stock currently offered to this channel: physical rooms
// minus all active buffers minus rooms sold through other channels. When any
// channel sells a room, every sibling record is rebalanced so that
// AvailableRooms reflects the shared physical pool, keeping the
// available+sold==total invariant per row.
type InventoryRecord struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ChannelID  string `gorm:"size:36;uniqueIndex:idx_inventory_key,priority:1;not null" json:"channel_id"`
	RatePlanID string `gorm:"size:36;uniqueIndex:idx_inventory_key,priority:2;not null" json:"rate_plan_id"`
	RoomTypeID string `gorm:"size:36;uniqueIndex:idx_inventory_key,priority:3;index:idx_inventory_room_date,priority:1;not null" json:"room_type_id"`
	Date       time.Time `gorm:"uniqueIndex:idx_inventory_key,priority:4;index:idx_inventory_room_date,priority:2;not null" json:"date"`

	TotalRooms     int `gorm:"not null" json:"total_rooms"`
	AvailableRooms int `gorm:"not null" json:"available_rooms"`
	SoldRooms      int `gorm:"not null;default:0" json:"sold_rooms"`

	SellRate decimal.Decimal `gorm:"type:decimal(10,2)" json:"sell_rate"`

	// Per-date stay restrictions pushed alongside availability.
	ClosedToArrival   bool `gorm:"default:false" json:"closed_to_arrival"`
	ClosedToDeparture bool `gorm:"default:false" json:"closed_to_departure"`
	MinStay           int  `gorm:"default:1" json:"min_stay"`
	MaxStay           int  `gorm:"default:0" json:"max_stay"`

	SyncStatus   SyncStatus `gorm:"size:20;default:pending" json:"sync_status"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`

	// Version is a monotonic counter bumped on every mutation, so pushes
	// can detect whether a record changed while a batch was in flight.
	Version int64 `gorm:"not null;default:0" json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DateOf normalizes a timestamp to the UTC calendar date used as inventory
// key. All per-date rows store midnight UTC.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsWeekend reports whether the date is a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
