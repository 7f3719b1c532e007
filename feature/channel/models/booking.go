package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BookingStatus is the lifecycle state of a channel booking.
type BookingStatus string

const (
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusCancelled  BookingStatus = "cancelled"
	BookingStatusNoShow     BookingStatus = "no_show"
	BookingStatusCheckedIn  BookingStatus = "checked_in"
	BookingStatusCheckedOut BookingStatus = "checked_out"
	// BookingStatusConflict marks a booking that failed the oversell check.
	// It is kept for manual resolution with the OTA, never discarded.
	BookingStatusConflict BookingStatus = "conflict"
)

// ChannelBooking is a reservation that originated on an OTA (or the hotel's
// own direct channel). Rows are never deleted, only status-transitioned.
type ChannelBooking struct {
	ID        string `gorm:"size:36;primaryKey" json:"id"`
	ChannelID string `gorm:"size:36;uniqueIndex:idx_bookings_channel_ref,priority:1;not null" json:"channel_id"`
	// ExternalRef is the OTA's booking reference; unique per channel and
	// the deduplication key for ingestion.
	ExternalRef string `gorm:"size:100;uniqueIndex:idx_bookings_channel_ref,priority:2;not null" json:"external_ref"`

	GuestName  string `gorm:"size:255;not null" json:"guest_name"`
	GuestEmail string `gorm:"size:255" json:"guest_email"`
	GuestPhone string `gorm:"size:30" json:"guest_phone"`

	RoomTypeID string `gorm:"size:36;index;not null" json:"room_type_id"`
	Rooms      int    `gorm:"not null;default:1" json:"rooms"`
	Adults     int    `gorm:"default:1" json:"adults"`
	Children   int    `gorm:"default:0" json:"children"`

	CheckIn  time.Time `gorm:"not null" json:"check_in"`
	CheckOut time.Time `gorm:"not null" json:"check_out"`

	// RoomRate is the per-night sell rate at ingestion time.
	RoomRate decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"room_rate"`
	// CommissionPercent is the channel's commission captured at ingestion;
	// later commission edits do not recalculate past bookings.
	CommissionPercent decimal.Decimal `gorm:"type:decimal(5,2)" json:"commission_percent"`
	NetRate           decimal.Decimal `gorm:"type:decimal(10,2)" json:"net_rate"`

	Status            BookingStatus `gorm:"size:20;not null;default:confirmed" json:"status"`
	Modified          bool          `gorm:"default:false" json:"modified"`
	ModificationNotes string        `gorm:"type:text" json:"modification_notes,omitempty"`
	ConflictReason    string        `gorm:"type:text" json:"conflict_reason,omitempty"`

	LastSyncedAt *time.Time `json:"last_synced_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *ChannelBooking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// Nights returns the stay dates [CheckIn, CheckOut) as normalized UTC dates.
func (b *ChannelBooking) Nights() []time.Time {
	var nights []time.Time
	for d := DateOf(b.CheckIn); d.Before(DateOf(b.CheckOut)); d = d.AddDate(0, 0, 1) {
		nights = append(nights, d)
	}
	return nights
}

// NetRateFor computes the net rate after commission, rounded to the INR
// minor unit.
func NetRateFor(roomRate, commissionPct decimal.Decimal) decimal.Decimal {
	commission := roomRate.Mul(commissionPct).Div(decimal.NewFromInt(100))
	return roomRate.Sub(commission).Round(2)
}
