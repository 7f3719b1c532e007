package models

// All returns every model for schema migration, parents before children.
func All() []any {
	return []any{
		&HotelRoomType{},
		&Channel{},
		&RatePlan{},
		&SeasonalRate{},
		&RoomTypeMapping{},
		&InventoryRecord{},
		&SyncLog{},
		&ChannelBooking{},
	}
}
