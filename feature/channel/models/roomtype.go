package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HotelRoomType is the hotel's internal room type with its physical stock.
// The front-desk subsystem owns these rows; the channel manager reads
// TotalRooms as the physical ceiling for oversell checks.
type HotelRoomType struct {
	ID      string `gorm:"size:36;primaryKey" json:"id"`
	HotelID string `gorm:"size:36;uniqueIndex:idx_room_types_hotel_name,priority:1;not null" json:"hotel_id"`
	Name    string `gorm:"size:100;uniqueIndex:idx_room_types_hotel_name,priority:2;not null" json:"name"`
	// TotalRooms is the physical room count for this type.
	TotalRooms int `gorm:"not null" json:"total_rooms"`
	MaxGuests  int `gorm:"default:2" json:"max_guests"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *HotelRoomType) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// RoomTypeMapping bridges one internal room type to one channel's external
// room-type identifier, plus the descriptive metadata the channel displays.
type RoomTypeMapping struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ChannelID  string `gorm:"size:36;uniqueIndex:idx_mappings_channel_room,priority:1;not null" json:"channel_id"`
	RoomTypeID string `gorm:"size:36;uniqueIndex:idx_mappings_channel_room,priority:2;not null" json:"room_type_id"`

	ExternalRoomTypeID   string `gorm:"size:100;not null" json:"external_room_type_id"`
	ExternalRoomTypeName string `gorm:"size:255" json:"external_room_type_name"`

	MaxOccupancy int    `gorm:"default:2" json:"max_occupancy"`
	BedType      string `gorm:"size:50" json:"bed_type"`
	Amenities    string `gorm:"type:text" json:"amenities"`
	SizeSqm      int    `gorm:"default:0" json:"size_sqm"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
