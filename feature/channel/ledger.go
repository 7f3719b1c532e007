package channel

import (
	"context"
	"fmt"
	"time"

	"channel-manager/feature/channel/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Ledger is the authoritative inventory store. It enforces the anti-oversell
// invariant across all channels sharing a physical room type.
//
// All mutations for one (room type, date) pair run under a lock keyed by that
// pair, never by channel: the oversell ceiling spans channels, so the pair is
// the only cross-channel synchronization point.
type Ledger struct {
	db     *gorm.DB
	logger *zap.Logger
	locks  *keyedMutex
}

// NewLedger creates a ledger over the given database.
func NewLedger(db *gorm.DB, logger *zap.Logger) *Ledger {
	return &Ledger{
		db:     db,
		logger: logger,
		locks:  newKeyedMutex(),
	}
}

func lockKey(roomTypeID string, date time.Time) string {
	return roomTypeID + "|" + date.Format("2006-01-02")
}

// Reserve commits count rooms sold through the given channel for one night.
// It returns ErrOversellRejected when the sale would exceed the physical
// ceiling (physical rooms minus the buffers of every active channel sharing
// the room type). On acceptance every sibling channel's record is rebalanced
// and marked pending, scheduling the compensating availability push.
func (l *Ledger) Reserve(ctx context.Context, channelID, roomTypeID string, date time.Time, count int) error {
	if count <= 0 {
		return &ValidationError{Field: "count", Reason: "must be positive"}
	}
	date = models.DateOf(date)

	key := lockKey(roomTypeID, date)
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ceiling, err := l.ceiling(tx, roomTypeID)
		if err != nil {
			return err
		}

		sold, err := l.totalSold(tx, roomTypeID, date)
		if err != nil {
			return err
		}

		if sold+count > ceiling {
			l.logger.Warn("Reservation exceeds physical ceiling",
				zap.String("room_type_id", roomTypeID),
				zap.Time("date", date),
				zap.Int("ceiling", ceiling),
				zap.Int("sold", sold),
				zap.Int("requested", count),
			)
			return fmt.Errorf("%w: %d sold of %d ceiling, %d requested", ErrOversellRejected, sold, ceiling, count)
		}

		owner, err := l.ownerRecord(tx, channelID, roomTypeID, date)
		if err != nil {
			return err
		}

		owner.SoldRooms += count
		if err := tx.Model(owner).Updates(map[string]any{
			"sold_rooms": owner.SoldRooms,
			"version":    gorm.Expr("version + 1"),
		}).Error; err != nil {
			return fmt.Errorf("update sold count: %w", err)
		}

		return l.rebalance(tx, roomTypeID, date, ceiling)
	})
}

// Release returns count rooms to the shared pool, e.g. on cancellation.
func (l *Ledger) Release(ctx context.Context, channelID, roomTypeID string, date time.Time, count int) error {
	if count <= 0 {
		return &ValidationError{Field: "count", Reason: "must be positive"}
	}
	date = models.DateOf(date)

	key := lockKey(roomTypeID, date)
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owner, err := l.ownerRecord(tx, channelID, roomTypeID, date)
		if err != nil {
			return err
		}

		owner.SoldRooms -= count
		if owner.SoldRooms < 0 {
			owner.SoldRooms = 0
		}
		if err := tx.Model(owner).Updates(map[string]any{
			"sold_rooms": owner.SoldRooms,
			"version":    gorm.Expr("version + 1"),
		}).Error; err != nil {
			return fmt.Errorf("update sold count: %w", err)
		}

		ceiling, err := l.ceiling(tx, roomTypeID)
		if err != nil {
			return err
		}
		return l.rebalance(tx, roomTypeID, date, ceiling)
	})
}

// Rebalance recomputes every channel's record for one (room type, date) from
// the current physical stock. Used after hotel-side edits to room counts.
func (l *Ledger) Rebalance(ctx context.Context, roomTypeID string, date time.Time) error {
	date = models.DateOf(date)

	key := lockKey(roomTypeID, date)
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ceiling, err := l.ceiling(tx, roomTypeID)
		if err != nil {
			return err
		}
		return l.rebalance(tx, roomTypeID, date, ceiling)
	})
}

// SetPhysicalTotal updates the hotel's physical room count for a type and
// rebalances every date that has inventory records, marking them pending so
// the next sync repushes the new availability to every channel.
func (l *Ledger) SetPhysicalTotal(ctx context.Context, roomTypeID string, total int) error {
	if total < 0 {
		return &ValidationError{Field: "total_rooms", Reason: "must not be negative"}
	}

	if err := l.db.WithContext(ctx).Model(&models.HotelRoomType{}).
		Where("id = ?", roomTypeID).
		Update("total_rooms", total).Error; err != nil {
		return fmt.Errorf("update physical total: %w", err)
	}

	var dates []time.Time
	if err := l.db.WithContext(ctx).Model(&models.InventoryRecord{}).
		Where("room_type_id = ?", roomTypeID).
		Distinct("date").
		Pluck("date", &dates).Error; err != nil {
		return fmt.Errorf("list inventory dates: %w", err)
	}

	for _, d := range dates {
		if err := l.Rebalance(ctx, roomTypeID, d); err != nil {
			return err
		}
	}

	l.logger.Info("Physical stock updated",
		zap.String("room_type_id", roomTypeID),
		zap.Int("total_rooms", total),
		zap.Int("dates_rebalanced", len(dates)),
	)
	return nil
}

// EnsureRecords creates or refreshes the inventory grid for a channel over a
// date range, one record per (rate plan, date) with the computed sell rate.
// A record whose rate changed is bumped and marked pending.
func (l *Ledger) EnsureRecords(ctx context.Context, ch *models.Channel, plans []models.RatePlan, from, to time.Time) error {
	from, to = models.DateOf(from), models.DateOf(to)

	for i := range plans {
		plan := &plans[i]
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			if err := l.ensureRecord(ctx, ch, plan, d); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Ledger) ensureRecord(ctx context.Context, ch *models.Channel, plan *models.RatePlan, date time.Time) error {
	rate := ComputeSellRate(plan, date)

	key := lockKey(plan.RoomTypeID, date)
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.InventoryRecord
		err := tx.Where("channel_id = ? AND rate_plan_id = ? AND room_type_id = ? AND date = ?",
			ch.ID, plan.ID, plan.RoomTypeID, date).First(&rec).Error

		switch {
		case err == gorm.ErrRecordNotFound:
			ceiling, cerr := l.ceiling(tx, plan.RoomTypeID)
			if cerr != nil {
				return cerr
			}
			sold, serr := l.totalSold(tx, plan.RoomTypeID, date)
			if serr != nil {
				return serr
			}
			avail := ceiling - sold
			if avail < 0 {
				avail = 0
			}
			rec = models.InventoryRecord{
				ChannelID:      ch.ID,
				RatePlanID:     plan.ID,
				RoomTypeID:     plan.RoomTypeID,
				Date:           date,
				TotalRooms:     avail,
				AvailableRooms: avail,
				SoldRooms:      0,
				SellRate:       rate,
				MinStay:        plan.MinStay,
				MaxStay:        plan.MaxStay,
				SyncStatus:     models.SyncStatusPending,
				Version:        1,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return fmt.Errorf("create inventory record: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("load inventory record: %w", err)
		}

		if rec.SellRate.Equal(rate) {
			return nil
		}
		return tx.Model(&rec).Updates(map[string]any{
			"sell_rate":   rate,
			"sync_status": models.SyncStatusPending,
			"version":     gorm.Expr("version + 1"),
		}).Error
	})
}

// Grid returns the per-date inventory/rate grid for a channel.
func (l *Ledger) Grid(ctx context.Context, channelID string, from, to time.Time) ([]models.InventoryRecord, error) {
	var records []models.InventoryRecord
	err := l.db.WithContext(ctx).
		Where("channel_id = ? AND date >= ? AND date <= ?", channelID, models.DateOf(from), models.DateOf(to)).
		Order("date, room_type_id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load inventory grid: %w", err)
	}
	return records, nil
}

// Pending returns records awaiting a push for the channel.
func (l *Ledger) Pending(ctx context.Context, channelID string) ([]models.InventoryRecord, error) {
	var records []models.InventoryRecord
	err := l.db.WithContext(ctx).
		Where("channel_id = ? AND sync_status IN ?", channelID,
			[]models.SyncStatus{models.SyncStatusPending, models.SyncStatusFailed}).
		Order("date").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load pending records: %w", err)
	}
	return records, nil
}

// MarkPushOutcome records the per-record result of a push. The success mark
// carries the version the batch was built from: a record mutated while the
// push was in flight stays pending and goes out on the next tick.
func (l *Ledger) MarkPushOutcome(ctx context.Context, recordID uint, version int64, ok bool, msg string) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"last_synced_at": &now,
		"error_message":  msg,
	}
	q := l.db.WithContext(ctx).Model(&models.InventoryRecord{}).Where("id = ?", recordID)
	if ok {
		updates["sync_status"] = models.SyncStatusSuccess
		q = q.Where("version = ?", version)
	} else {
		updates["sync_status"] = models.SyncStatusFailed
	}
	return q.Updates(updates).Error
}

// ceiling computes the physical-stock ceiling for a room type: total
// physical rooms minus the buffer of every active channel sharing it.
// Buffers are additive and subtracted once from the shared pool.
func (l *Ledger) ceiling(tx *gorm.DB, roomTypeID string) (int, error) {
	var roomType models.HotelRoomType
	if err := tx.First(&roomType, "id = ?", roomTypeID).Error; err != nil {
		return 0, fmt.Errorf("load room type: %w", err)
	}

	var buffers []int
	err := tx.Model(&models.Channel{}).
		Joins("JOIN room_type_mappings ON room_type_mappings.channel_id = channels.id").
		Where("room_type_mappings.room_type_id = ? AND channels.status = ?", roomTypeID, models.ChannelStatusActive).
		Pluck("channels.inventory_buffer", &buffers).Error
	if err != nil {
		return 0, fmt.Errorf("sum channel buffers: %w", err)
	}

	ceiling := roomType.TotalRooms
	for _, b := range buffers {
		ceiling -= b
	}
	if ceiling < 0 {
		ceiling = 0
	}
	return ceiling, nil
}

// totalSold sums sold rooms across every channel's records for the pair.
func (l *Ledger) totalSold(tx *gorm.DB, roomTypeID string, date time.Time) (int, error) {
	var sold int
	err := tx.Model(&models.InventoryRecord{}).
		Where("room_type_id = ? AND date = ?", roomTypeID, date).
		Select("COALESCE(SUM(sold_rooms), 0)").
		Scan(&sold).Error
	if err != nil {
		return 0, fmt.Errorf("sum sold rooms: %w", err)
	}
	return sold, nil
}

// ownerRecord finds the channel's inventory record for the pair, creating it
// from the channel's rate plan when a booking arrives before the grid was
// built.
func (l *Ledger) ownerRecord(tx *gorm.DB, channelID, roomTypeID string, date time.Time) (*models.InventoryRecord, error) {
	var rec models.InventoryRecord
	err := tx.Where("channel_id = ? AND room_type_id = ? AND date = ?", channelID, roomTypeID, date).
		Order("created_at").
		First(&rec).Error
	if err == nil {
		return &rec, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("load inventory record: %w", err)
	}

	var plan models.RatePlan
	if err := tx.Preload("SeasonalRates").
		Where("channel_id = ? AND room_type_id = ?", channelID, roomTypeID).
		Order("created_at").
		First(&plan).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &ValidationError{Field: "rate_plan", Reason: "channel has no rate plan for room type"}
		}
		return nil, fmt.Errorf("load rate plan: %w", err)
	}

	ceiling, err := l.ceiling(tx, roomTypeID)
	if err != nil {
		return nil, err
	}
	sold, err := l.totalSold(tx, roomTypeID, date)
	if err != nil {
		return nil, err
	}
	avail := ceiling - sold
	if avail < 0 {
		avail = 0
	}

	rec = models.InventoryRecord{
		ChannelID:      channelID,
		RatePlanID:     plan.ID,
		RoomTypeID:     roomTypeID,
		Date:           date,
		TotalRooms:     avail,
		AvailableRooms: avail,
		SellRate:       ComputeSellRate(&plan, date),
		MinStay:        plan.MinStay,
		MaxStay:        plan.MaxStay,
		SyncStatus:     models.SyncStatusPending,
		Version:        1,
	}
	if err := tx.Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("create inventory record: %w", err)
	}
	return &rec, nil
}

// rebalance recomputes available/total on every record of the pair so each
// channel sees the shared pool: available = ceiling - total sold across
// channels, total = available + that record's own sold count. This keeps the
// per-record invariant while propagating every sale to sibling channels.
func (l *Ledger) rebalance(tx *gorm.DB, roomTypeID string, date time.Time, ceiling int) error {
	sold, err := l.totalSold(tx, roomTypeID, date)
	if err != nil {
		return err
	}
	avail := ceiling - sold
	if avail < 0 {
		avail = 0
	}

	var records []models.InventoryRecord
	if err := tx.Where("room_type_id = ? AND date = ?", roomTypeID, date).Find(&records).Error; err != nil {
		return fmt.Errorf("load sibling records: %w", err)
	}

	for i := range records {
		rec := &records[i]
		newTotal := avail + rec.SoldRooms
		if rec.AvailableRooms == avail && rec.TotalRooms == newTotal {
			continue
		}
		err := tx.Model(rec).Updates(map[string]any{
			"available_rooms": avail,
			"total_rooms":     newTotal,
			"sync_status":     models.SyncStatusPending,
			"version":         gorm.Expr("version + 1"),
		}).Error
		if err != nil {
			return fmt.Errorf("rebalance record %d: %w", rec.ID, err)
		}
	}
	return nil
}
