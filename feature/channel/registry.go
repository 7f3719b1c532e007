package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"channel-manager/core/logger"
	"channel-manager/feature/channel/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// scheduler is the slice of the orchestrator the registry needs for
// lifecycle transitions.
type scheduler interface {
	StartChannel(ctx context.Context, ch *models.Channel)
	StopChannel(channelID string)
}

// Registry manages channel connection records and their lifecycle:
// testing on registration, active after a successful verification, error
// after repeated failures, inactive on disconnect.
type Registry struct {
	db         *gorm.DB
	logger     *zap.Logger
	connectors ConnectorSet
	sched      scheduler
}

// NewRegistry creates a registry. sched may be nil in one-shot CLI use.
func NewRegistry(db *gorm.DB, log *zap.Logger, connectors ConnectorSet, sched scheduler) *Registry {
	return &Registry{db: db, logger: log, connectors: connectors, sched: sched}
}

// RegisterInput carries the connection settings for a new channel.
type RegisterInput struct {
	Name               string          `json:"name"`
	DisplayName        string          `json:"display_name"`
	Endpoint           string          `json:"endpoint"`
	Credentials        string          `json:"credentials"`
	ExternalPropertyID string          `json:"external_property_id"`
	AutoSync           *bool           `json:"auto_sync"`
	RateParity         bool            `json:"rate_parity"`
	InventoryBuffer    int             `json:"inventory_buffer"`
	MinStay            int             `json:"min_stay"`
	MaxStay            int             `json:"max_stay"`
	AdvanceBookingDays int             `json:"advance_booking_days"`
	CutoffTime         string          `json:"cutoff_time"`
	CommissionRate     decimal.Decimal `json:"commission_rate"`
	SyncFrequencyMins  int             `json:"sync_frequency_minutes"`
}

// Register creates a channel connection in testing state. The (hotel, name)
// pair must be unique and the connector must be known.
func (r *Registry) Register(ctx context.Context, hotelID string, in RegisterInput) (*models.Channel, error) {
	if hotelID == "" {
		return nil, &ValidationError{Field: "hotel_id", Reason: "required"}
	}
	if in.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	if in.InventoryBuffer < 0 {
		return nil, &ValidationError{Field: "inventory_buffer", Reason: "must not be negative"}
	}
	if _, err := r.connectors.Get(in.Name); err != nil && in.Name != models.ConnectorDirect {
		return nil, err
	}

	var count int64
	err := r.db.WithContext(ctx).Model(&models.Channel{}).
		Where("hotel_id = ? AND name = ?", hotelID, in.Name).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("check channel uniqueness: %w", err)
	}
	if count > 0 {
		return nil, ErrChannelExists
	}

	autoSync := true
	if in.AutoSync != nil {
		autoSync = *in.AutoSync
	}

	ch := &models.Channel{
		HotelID:              hotelID,
		Name:                 in.Name,
		DisplayName:          in.DisplayName,
		Status:               models.ChannelStatusTesting,
		Endpoint:             in.Endpoint,
		Credentials:          in.Credentials,
		ExternalPropertyID:   in.ExternalPropertyID,
		AutoSync:             autoSync,
		RateParity:           in.RateParity,
		InventoryBuffer:      in.InventoryBuffer,
		MinStay:              in.MinStay,
		MaxStay:              in.MaxStay,
		AdvanceBookingDays:   in.AdvanceBookingDays,
		CutoffTime:           in.CutoffTime,
		CommissionRate:       in.CommissionRate,
		SyncFrequencyMinutes: in.SyncFrequencyMins,
	}

	// The direct channel is born active: it holds the hotel's own rates
	// and never talks to a connector.
	if ch.IsDirect() {
		ch.Status = models.ChannelStatusActive
		ch.AutoSync = false
	}

	if err := r.db.WithContext(ctx).Create(ch).Error; err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}

	r.logger.Info("Channel registered",
		zap.String("channel_id", ch.ID),
		zap.String("hotel_id", hotelID),
		zap.String("channel", ch.Name),
	)
	return ch, nil
}

// Verify performs the connector handshake. On success the channel becomes
// active and its scheduling loop starts; on failure it stays in testing and
// the connector's error is surfaced.
func (r *Registry) Verify(ctx context.Context, channelID string) (*models.Channel, error) {
	ch, err := r.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch.IsDirect() {
		return ch, nil
	}

	conn, err := r.connectors.Get(ch.Name)
	if err != nil {
		return nil, err
	}

	if err := conn.Verify(ctx, ch.Endpoint, ch.Credentials, ch.ExternalPropertyID); err != nil {
		l := logger.WithChannel(r.logger, ch.ID, ch.Name)
		l.Warn("Channel verification failed", zap.Error(err))
		return nil, fmt.Errorf("verify channel %s: %w", ch.Name, err)
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"status":         models.ChannelStatusActive,
		"failure_streak": 0,
		"next_sync_at":   &now,
	}
	if err := r.db.WithContext(ctx).Model(ch).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("activate channel: %w", err)
	}

	if r.sched != nil {
		r.sched.StartChannel(ctx, ch)
	}

	r.logger.Info("Channel verified and activated",
		zap.String("channel_id", ch.ID),
		zap.String("channel", ch.Name),
	)
	return ch, nil
}

// Deactivate stops future scheduling and marks the channel inactive.
// Historical sync logs and bookings are kept.
func (r *Registry) Deactivate(ctx context.Context, channelID string) error {
	ch, err := r.Get(ctx, channelID)
	if err != nil {
		return err
	}

	if r.sched != nil {
		r.sched.StopChannel(ch.ID)
	}

	if err := r.db.WithContext(ctx).Model(ch).
		Update("status", models.ChannelStatusInactive).Error; err != nil {
		return fmt.Errorf("deactivate channel: %w", err)
	}

	r.logger.Info("Channel deactivated",
		zap.String("channel_id", ch.ID),
		zap.String("channel", ch.Name),
	)
	return nil
}

// Get loads one channel by id.
func (r *Registry) Get(ctx context.Context, channelID string) (*models.Channel, error) {
	var ch models.Channel
	if err := r.db.WithContext(ctx).First(&ch, "id = ?", channelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("load channel: %w", err)
	}
	return &ch, nil
}

// List returns a hotel's channels, newest first.
func (r *Registry) List(ctx context.Context, hotelID string) ([]models.Channel, error) {
	var channels []models.Channel
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if hotelID != "" {
		q = q.Where("hotel_id = ?", hotelID)
	}
	if err := q.Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}
