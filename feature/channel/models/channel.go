package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ChannelStatus is the lifecycle state of a channel connection.
type ChannelStatus string

const (
	// ChannelStatusInactive marks a disconnected channel. Historical logs
	// and bookings are kept.
	ChannelStatusInactive ChannelStatus = "inactive"
	// ChannelStatusTesting is the initial state after registration, before
	// the first successful verification sync.
	ChannelStatusTesting ChannelStatus = "testing"
	// ChannelStatusActive marks a verified channel eligible for scheduling.
	ChannelStatusActive ChannelStatus = "active"
	// ChannelStatusError marks a channel stopped after repeated sync
	// failures or an authentication failure. Requires reconnection.
	ChannelStatusError ChannelStatus = "error"
)

// ConnectorDirect is the reserved connector name for the hotel's own
// direct channel. It is the rate-parity reference and is never scheduled
// for pushes.
const ConnectorDirect = "direct"

// Channel is one OTA connection for one hotel.
type Channel struct {
	ID      string `gorm:"size:36;primaryKey" json:"id"`
	HotelID string `gorm:"size:36;uniqueIndex:idx_channels_hotel_name,priority:1;not null" json:"hotel_id"`
	// Name identifies the connector implementation (e.g. booking_com).
	// Unique per hotel together with HotelID.
	Name        string        `gorm:"size:50;uniqueIndex:idx_channels_hotel_name,priority:2;not null" json:"name"`
	DisplayName string        `gorm:"size:100" json:"display_name"`
	Status      ChannelStatus `gorm:"size:20;not null;default:testing" json:"status"`

	// Endpoint and Credentials are stored opaquely; only the connector
	// implementation interprets them.
	Endpoint           string `gorm:"size:255" json:"endpoint"`
	Credentials        string `gorm:"type:text" json:"-"`
	ExternalPropertyID string `gorm:"size:100" json:"external_property_id"`

	// Settings. AutoSync carries no column default on purpose: gorm omits
	// zero-value fields with a default tag on INSERT, which would silently
	// turn an explicit false back into true. The registry applies the
	// default instead.
	AutoSync           bool            `json:"auto_sync"`
	RateParity         bool            `gorm:"default:false" json:"rate_parity"`
	InventoryBuffer    int             `gorm:"default:0" json:"inventory_buffer"`
	MinStay            int             `gorm:"default:1" json:"min_stay"`
	MaxStay            int             `gorm:"default:0" json:"max_stay"`
	AdvanceBookingDays int             `gorm:"default:365" json:"advance_booking_days"`
	CutoffTime         string          `gorm:"size:5" json:"cutoff_time"`
	CommissionRate     decimal.Decimal `gorm:"type:decimal(5,2)" json:"commission_rate"`

	// SyncFrequencyMinutes is the scheduling cadence; zero falls back to
	// the orchestrator default.
	SyncFrequencyMinutes int `gorm:"default:0" json:"sync_frequency_minutes"`

	// FailureStreak counts consecutive failed syncs; reset on any success.
	FailureStreak int        `gorm:"default:0" json:"failure_streak"`
	LastSyncAt    *time.Time `json:"last_sync_at"`
	NextSyncAt    *time.Time `json:"next_sync_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns a uuid when none is provided.
func (c *Channel) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// IsDirect reports whether this is the hotel's own direct channel.
func (c *Channel) IsDirect() bool {
	return c.Name == ConnectorDirect
}

// SyncInterval returns the configured cadence, falling back to def.
func (c *Channel) SyncInterval(def time.Duration) time.Duration {
	if c.SyncFrequencyMinutes > 0 {
		return time.Duration(c.SyncFrequencyMinutes) * time.Minute
	}
	return def
}
