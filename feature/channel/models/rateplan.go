package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RatePlan is a named pricing strategy scoped to one channel and one room
// type. Edits apply forward only; no history is kept.
type RatePlan struct {
	ID         string `gorm:"size:36;primaryKey" json:"id"`
	ChannelID  string `gorm:"size:36;index;not null" json:"channel_id"`
	RoomTypeID string `gorm:"size:36;index;not null" json:"room_type_id"`
	Name       string `gorm:"size:100;not null" json:"name"`

	BaseRate         decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"base_rate"`
	WeekendSurcharge decimal.Decimal `gorm:"type:decimal(10,2)" json:"weekend_surcharge"`
	// DiscountPercent is applied multiplicatively as (1 + pct/100).
	// Negative values are a channel discount, positive a markup.
	DiscountPercent decimal.Decimal `gorm:"type:decimal(5,2)" json:"discount_percent"`

	MinStay            int `gorm:"default:1" json:"min_stay"`
	MaxStay            int `gorm:"default:0" json:"max_stay"`
	AdvanceBookingDays int `gorm:"default:365" json:"advance_booking_days"`

	SeasonalRates []SeasonalRate `gorm:"foreignKey:RatePlanID" json:"seasonal_rates"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *RatePlan) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// SeasonalRate overrides the base rate entirely for a date range.
// It takes precedence over the weekend surcharge and does not stack with it.
type SeasonalRate struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	RatePlanID string `gorm:"size:36;index;not null" json:"rate_plan_id"`
	Name       string `gorm:"size:100" json:"name"`

	// StartDate and EndDate are inclusive date bounds (time component zero).
	StartDate time.Time       `gorm:"not null" json:"start_date"`
	EndDate   time.Time       `gorm:"not null" json:"end_date"`
	Rate      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"rate"`

	CreatedAt time.Time `json:"created_at"`
}

// Covers reports whether date falls inside the seasonal range.
func (s *SeasonalRate) Covers(date time.Time) bool {
	d := date.Truncate(24 * time.Hour)
	return !d.Before(s.StartDate) && !d.After(s.EndDate)
}
