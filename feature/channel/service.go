package channel

import (
	"context"
	"fmt"
	"time"

	"channel-manager/core/storage"
	"channel-manager/feature/channel/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service bundles the channel manager components behind one facade for the
// HTTP handlers and CLI commands.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger

	Registry     *Registry
	Mapper       *Mapper
	Ledger       *Ledger
	Logs         *SyncLogStore
	Reconciler   *Reconciler
	Orchestrator *Orchestrator
}

// NewService wires all components over one database connection.
func NewService(db *gorm.DB, log *zap.Logger, client storage.Client, bucket string, connectors ConnectorSet, cfg OrchestratorConfig) *Service {
	ledger := NewLedger(db, log)
	logs := NewSyncLogStore(db, client, bucket, log)
	reconciler := NewReconciler(db, ledger, log)
	orch := NewOrchestrator(db, log, ledger, logs, reconciler, connectors, cfg)
	registry := NewRegistry(db, log, connectors, orch)

	return &Service{
		db:           db,
		logger:       log,
		Registry:     registry,
		Mapper:       NewMapper(db),
		Ledger:       ledger,
		Logs:         logs,
		Reconciler:   reconciler,
		Orchestrator: orch,
	}
}

// InventoryUpdate is a hotel-side stock or restriction change for a room
// type over a date range.
type InventoryUpdate struct {
	RoomTypeID string    `json:"room_type_id"`
	TotalRooms *int      `json:"total_rooms,omitempty"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`

	ClosedToArrival   *bool `json:"closed_to_arrival,omitempty"`
	ClosedToDeparture *bool `json:"closed_to_departure,omitempty"`
	MinStay           *int  `json:"min_stay,omitempty"`
	MaxStay           *int  `json:"max_stay,omitempty"`
}

// ApplyInventoryUpdate applies a hotel-side change. A physical total change
// triggers the recompute-and-repush cycle for every channel sharing the room
// type; restriction changes mark the affected records pending.
func (s *Service) ApplyInventoryUpdate(ctx context.Context, upd InventoryUpdate) error {
	if upd.RoomTypeID == "" {
		return &ValidationError{Field: "room_type_id", Reason: "required"}
	}

	if upd.TotalRooms != nil {
		if err := s.Ledger.SetPhysicalTotal(ctx, upd.RoomTypeID, *upd.TotalRooms); err != nil {
			return err
		}
	}

	restrictions := map[string]any{}
	if upd.ClosedToArrival != nil {
		restrictions["closed_to_arrival"] = *upd.ClosedToArrival
	}
	if upd.ClosedToDeparture != nil {
		restrictions["closed_to_departure"] = *upd.ClosedToDeparture
	}
	if upd.MinStay != nil {
		restrictions["min_stay"] = *upd.MinStay
	}
	if upd.MaxStay != nil {
		restrictions["max_stay"] = *upd.MaxStay
	}
	if len(restrictions) == 0 {
		return nil
	}
	if upd.From.IsZero() || upd.To.IsZero() {
		return &ValidationError{Field: "from/to", Reason: "required for restriction updates"}
	}

	restrictions["sync_status"] = models.SyncStatusPending
	restrictions["version"] = gorm.Expr("version + 1")

	err := s.db.WithContext(ctx).Model(&models.InventoryRecord{}).
		Where("room_type_id = ? AND date >= ? AND date <= ?",
			upd.RoomTypeID, models.DateOf(upd.From), models.DateOf(upd.To)).
		Updates(restrictions).Error
	if err != nil {
		return fmt.Errorf("apply restrictions: %w", err)
	}
	return nil
}

// ConfirmedBookings returns reconciled bookings for the billing subsystem;
// once confirmed they are indistinguishable from direct bookings downstream.
func (s *Service) ConfirmedBookings(ctx context.Context, hotelID string, since time.Time) ([]models.ChannelBooking, error) {
	var bookings []models.ChannelBooking
	q := s.db.WithContext(ctx).
		Joins("JOIN channels ON channels.id = channel_bookings.channel_id").
		Where("channel_bookings.status = ?", models.BookingStatusConfirmed)
	if hotelID != "" {
		q = q.Where("channels.hotel_id = ?", hotelID)
	}
	if !since.IsZero() {
		q = q.Where("channel_bookings.created_at >= ?", since)
	}
	if err := q.Order("channel_bookings.created_at").Find(&bookings).Error; err != nil {
		return nil, fmt.Errorf("list confirmed bookings: %w", err)
	}
	return bookings, nil
}
