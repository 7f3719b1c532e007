package channel

import (
	"context"
	"errors"
	"fmt"

	"channel-manager/feature/channel/models"

	"gorm.io/gorm"
)

// Mapper maintains the bridge between the hotel's internal room types and
// each channel's external room-type identifiers.
type Mapper struct {
	db *gorm.DB
}

// NewMapper creates a mapper.
func NewMapper(db *gorm.DB) *Mapper {
	return &Mapper{db: db}
}

// Upsert creates or replaces the mapping for (channel, room type).
func (m *Mapper) Upsert(ctx context.Context, mapping *models.RoomTypeMapping) (*models.RoomTypeMapping, error) {
	if mapping.ChannelID == "" {
		return nil, &ValidationError{Field: "channel_id", Reason: "required"}
	}
	if mapping.RoomTypeID == "" {
		return nil, &ValidationError{Field: "room_type_id", Reason: "required"}
	}
	if mapping.ExternalRoomTypeID == "" {
		return nil, &ValidationError{Field: "external_room_type_id", Reason: "required"}
	}

	var existing models.RoomTypeMapping
	err := m.db.WithContext(ctx).
		Where("channel_id = ? AND room_type_id = ?", mapping.ChannelID, mapping.RoomTypeID).
		First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := m.db.WithContext(ctx).Create(mapping).Error; err != nil {
			return nil, fmt.Errorf("create mapping: %w", err)
		}
		return mapping, nil
	case err != nil:
		return nil, fmt.Errorf("lookup mapping: %w", err)
	}

	mapping.ID = existing.ID
	mapping.CreatedAt = existing.CreatedAt
	if err := m.db.WithContext(ctx).Save(mapping).Error; err != nil {
		return nil, fmt.Errorf("update mapping: %w", err)
	}
	return mapping, nil
}

// ForChannel lists a channel's mappings.
func (m *Mapper) ForChannel(ctx context.Context, channelID string) ([]models.RoomTypeMapping, error) {
	var mappings []models.RoomTypeMapping
	if err := m.db.WithContext(ctx).Where("channel_id = ?", channelID).Find(&mappings).Error; err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	return mappings, nil
}

// External resolves the channel's external id for an internal room type.
func (m *Mapper) External(ctx context.Context, channelID, roomTypeID string) (*models.RoomTypeMapping, error) {
	var mapping models.RoomTypeMapping
	err := m.db.WithContext(ctx).
		Where("channel_id = ? AND room_type_id = ?", channelID, roomTypeID).
		First(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMappingNotFound
		}
		return nil, fmt.Errorf("lookup mapping: %w", err)
	}
	return &mapping, nil
}
