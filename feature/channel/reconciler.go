package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"channel-manager/feature/channel/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reconciler ingests externally-created bookings, converts them into room
// commitments against the ledger, and routes oversell conflicts to a
// human-resolvable queue. Bookings are never silently discarded.
type Reconciler struct {
	db     *gorm.DB
	ledger *Ledger
	logger *zap.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(db *gorm.DB, ledger *Ledger, logger *zap.Logger) *Reconciler {
	return &Reconciler{db: db, ledger: ledger, logger: logger}
}

// Ingest processes one booking payload pulled from a channel.
//
// Payloads are deduplicated on (channel, external reference): a known
// reference is treated as a modification and updates the existing row.
// New confirmed bookings reserve inventory night by night; an oversell
// rejection keeps the booking in conflict status with the reason recorded.
// The net rate is computed from the channel's commission at ingestion time
// and never recalculated.
func (r *Reconciler) Ingest(ctx context.Context, ch *models.Channel, p BookingPayload) (*models.ChannelBooking, error) {
	if err := validatePayload(p); err != nil {
		return nil, err
	}

	roomTypeID, err := r.internalRoomType(ctx, ch.ID, p.ExternalRoomTypeID)
	if err != nil {
		return nil, err
	}

	var existing models.ChannelBooking
	err = r.db.WithContext(ctx).
		Where("channel_id = ? AND external_ref = ?", ch.ID, p.ExternalRef).
		First(&existing).Error
	switch {
	case err == nil:
		return r.applyModification(ctx, &existing, p)
	case errors.Is(err, gorm.ErrRecordNotFound):
		// fall through to creation
	default:
		return nil, fmt.Errorf("lookup booking: %w", err)
	}

	now := time.Now().UTC()
	booking := &models.ChannelBooking{
		ChannelID:         ch.ID,
		ExternalRef:       p.ExternalRef,
		GuestName:         p.GuestName,
		GuestEmail:        p.GuestEmail,
		GuestPhone:        p.GuestPhone,
		RoomTypeID:        roomTypeID,
		Rooms:             p.Rooms,
		Adults:            p.Adults,
		Children:          p.Children,
		CheckIn:           models.DateOf(p.CheckIn),
		CheckOut:          models.DateOf(p.CheckOut),
		RoomRate:          p.RoomRate,
		CommissionPercent: ch.CommissionRate,
		NetRate:           models.NetRateFor(p.RoomRate, ch.CommissionRate),
		Status:            models.BookingStatus(p.Status),
		ModificationNotes: p.Notes,
		LastSyncedAt:      &now,
	}
	if booking.Status == "" {
		booking.Status = models.BookingStatusConfirmed
	}

	if booking.Status == models.BookingStatusConfirmed {
		if err := r.reserveNights(ctx, booking); err != nil {
			if !errors.Is(err, ErrOversellRejected) {
				return nil, err
			}
			booking.Status = models.BookingStatusConflict
			booking.ConflictReason = err.Error()
			r.logger.Warn("Booking conflicts with inventory ledger",
				zap.String("channel_id", ch.ID),
				zap.String("external_ref", p.ExternalRef),
				zap.String("reason", err.Error()),
			)
		}
	}

	if err := r.db.WithContext(ctx).Create(booking).Error; err != nil {
		// The reservation must not outlive the booking row it backs.
		if booking.Status == models.BookingStatusConfirmed {
			r.releaseNights(ctx, booking)
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}
	return booking, nil
}

// applyModification updates an existing booking from a re-pulled payload.
// A transition to cancelled releases the ledger allocation; a stay change
// (rooms or dates) releases the old nights and reserves the new ones,
// falling to conflict status when the new stay oversells.
func (r *Reconciler) applyModification(ctx context.Context, b *models.ChannelBooking, p BookingPayload) (*models.ChannelBooking, error) {
	now := time.Now().UTC()
	incoming := models.BookingStatus(p.Status)
	if incoming == "" {
		incoming = b.Status
	}

	if incoming == models.BookingStatusCancelled && b.Status != models.BookingStatusCancelled {
		return r.cancel(ctx, b, p.Notes)
	}

	updates := map[string]any{
		"guest_name":     p.GuestName,
		"guest_email":    p.GuestEmail,
		"guest_phone":    p.GuestPhone,
		"adults":         p.Adults,
		"children":       p.Children,
		"modified":       true,
		"last_synced_at": &now,
	}
	if p.Notes != "" {
		updates["modification_notes"] = p.Notes
	}

	checkIn, checkOut := models.DateOf(p.CheckIn), models.DateOf(p.CheckOut)
	stayChanged := p.Rooms != b.Rooms ||
		!checkIn.Equal(models.DateOf(b.CheckIn)) ||
		!checkOut.Equal(models.DateOf(b.CheckOut))

	if stayChanged {
		// Conflicted and cancelled bookings hold no allocation.
		if b.Status == models.BookingStatusConfirmed || b.Status == models.BookingStatusCheckedIn {
			r.releaseNights(ctx, b)
		}
		b.Rooms, b.CheckIn, b.CheckOut = p.Rooms, checkIn, checkOut
		updates["rooms"] = p.Rooms
		updates["check_in"] = checkIn
		updates["check_out"] = checkOut
		updates["conflict_reason"] = ""

		if incoming != models.BookingStatusCancelled {
			switch err := r.reserveNights(ctx, b); {
			case err == nil:
				if incoming == models.BookingStatusConflict {
					incoming = models.BookingStatusConfirmed
				}
			case errors.Is(err, ErrOversellRejected):
				incoming = models.BookingStatusConflict
				updates["conflict_reason"] = err.Error()
				r.logger.Warn("Booking modification conflicts with inventory ledger",
					zap.String("channel_id", b.ChannelID),
					zap.String("external_ref", b.ExternalRef),
					zap.String("reason", err.Error()),
				)
			default:
				return nil, err
			}
		}
	}
	updates["status"] = incoming

	if err := r.db.WithContext(ctx).Model(b).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update booking: %w", err)
	}
	return b, nil
}

// Cancel transitions a booking to cancelled and releases its allocation.
func (r *Reconciler) Cancel(ctx context.Context, bookingID, notes string) (*models.ChannelBooking, error) {
	var b models.ChannelBooking
	if err := r.db.WithContext(ctx).First(&b, "id = ?", bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("load booking: %w", err)
	}
	if b.Status == models.BookingStatusCancelled {
		return &b, nil
	}
	return r.cancel(ctx, &b, notes)
}

func (r *Reconciler) cancel(ctx context.Context, b *models.ChannelBooking, notes string) (*models.ChannelBooking, error) {
	// Conflicted bookings never held inventory, nothing to release.
	if b.Status != models.BookingStatusConflict {
		for _, night := range b.Nights() {
			if err := r.ledger.Release(ctx, b.ChannelID, b.RoomTypeID, night, b.Rooms); err != nil {
				return nil, fmt.Errorf("release night %s: %w", night.Format("2006-01-02"), err)
			}
		}
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"status":         models.BookingStatusCancelled,
		"modified":       true,
		"last_synced_at": &now,
	}
	if notes != "" {
		updates["modification_notes"] = notes
	}
	if err := r.db.WithContext(ctx).Model(b).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("cancel booking: %w", err)
	}
	return b, nil
}

// Conflicts returns the queue of bookings awaiting manual resolution.
func (r *Reconciler) Conflicts(ctx context.Context, hotelID string) ([]models.ChannelBooking, error) {
	var bookings []models.ChannelBooking
	q := r.db.WithContext(ctx).
		Joins("JOIN channels ON channels.id = channel_bookings.channel_id").
		Where("channel_bookings.status = ?", models.BookingStatusConflict)
	if hotelID != "" {
		q = q.Where("channels.hotel_id = ?", hotelID)
	}
	if err := q.Order("channel_bookings.created_at").Find(&bookings).Error; err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	return bookings, nil
}

// Resolve closes a conflicted booking after the hotel settled it with the
// OTA. action "confirm" retries the reservation against current inventory;
// action "cancel" marks the booking cancelled.
func (r *Reconciler) Resolve(ctx context.Context, bookingID, action, notes string) (*models.ChannelBooking, error) {
	var b models.ChannelBooking
	if err := r.db.WithContext(ctx).First(&b, "id = ?", bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("load booking: %w", err)
	}
	if b.Status != models.BookingStatusConflict {
		return nil, &ValidationError{Field: "status", Reason: "booking is not in conflict"}
	}

	switch action {
	case "confirm":
		if err := r.reserveNights(ctx, &b); err != nil {
			if errors.Is(err, ErrOversellRejected) {
				return nil, err
			}
			return nil, fmt.Errorf("reserve on resolve: %w", err)
		}
		updates := map[string]any{
			"status":          models.BookingStatusConfirmed,
			"conflict_reason": "",
			"modified":        true,
		}
		if notes != "" {
			updates["modification_notes"] = notes
		}
		if err := r.db.WithContext(ctx).Model(&b).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("resolve booking: %w", err)
		}
		return &b, nil
	case "cancel":
		return r.cancel(ctx, &b, notes)
	default:
		return nil, &ValidationError{Field: "action", Reason: "must be confirm or cancel"}
	}
}

// reserveNights reserves every night of the stay, rolling back the nights
// already taken when a later one is rejected.
func (r *Reconciler) reserveNights(ctx context.Context, b *models.ChannelBooking) error {
	nights := b.Nights()
	for i, night := range nights {
		if err := r.ledger.Reserve(ctx, b.ChannelID, b.RoomTypeID, night, b.Rooms); err != nil {
			for _, taken := range nights[:i] {
				if rerr := r.ledger.Release(ctx, b.ChannelID, b.RoomTypeID, taken, b.Rooms); rerr != nil {
					r.logger.Error("Failed to roll back partial reservation",
						zap.String("booking_ref", b.ExternalRef),
						zap.Time("date", taken),
						zap.Error(rerr),
					)
				}
			}
			return err
		}
	}
	return nil
}

// releaseNights returns the booking's full allocation to the pool. Release
// failures are logged and skipped so the remaining nights still free up.
func (r *Reconciler) releaseNights(ctx context.Context, b *models.ChannelBooking) {
	for _, night := range b.Nights() {
		if err := r.ledger.Release(ctx, b.ChannelID, b.RoomTypeID, night, b.Rooms); err != nil {
			r.logger.Error("Failed to release reserved night",
				zap.String("booking_ref", b.ExternalRef),
				zap.Time("date", night),
				zap.Error(err),
			)
		}
	}
}

func (r *Reconciler) internalRoomType(ctx context.Context, channelID, externalID string) (string, error) {
	var mapping models.RoomTypeMapping
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND external_room_type_id = ?", channelID, externalID).
		First(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", &ValidationError{Field: "external_room_type_id", Reason: "no mapping for " + externalID}
		}
		return "", fmt.Errorf("lookup mapping: %w", err)
	}
	return mapping.RoomTypeID, nil
}

func validatePayload(p BookingPayload) error {
	switch {
	case strings.TrimSpace(p.ExternalRef) == "":
		return &ValidationError{Field: "external_ref", Reason: "required"}
	case strings.TrimSpace(p.GuestName) == "":
		return &ValidationError{Field: "guest_name", Reason: "required"}
	case p.Rooms <= 0:
		return &ValidationError{Field: "rooms", Reason: "must be positive"}
	case !models.DateOf(p.CheckIn).Before(models.DateOf(p.CheckOut)):
		return &ValidationError{Field: "check_out", Reason: "must be after check_in"}
	}
	return nil
}
