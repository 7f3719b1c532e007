package channel_test

import (
	"context"
	"sync"
	"testing"

	"channel-manager/feature/channel"
	"channel-manager/feature/channel/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func loadRecord(t *testing.T, db *gorm.DB, channelID, roomTypeID string) models.InventoryRecord {
	t.Helper()
	var rec models.InventoryRecord
	require.NoError(t, db.Where("channel_id = ? AND room_type_id = ?", channelID, roomTypeID).First(&rec).Error)
	return rec
}

// assertInvariant checks available + sold == total on every record of the
// room type.
func assertInvariant(t *testing.T, db *gorm.DB, roomTypeID string) {
	t.Helper()
	var records []models.InventoryRecord
	require.NoError(t, db.Where("room_type_id = ?", roomTypeID).Find(&records).Error)
	for _, rec := range records {
		assert.Equal(t, rec.TotalRooms, rec.AvailableRooms+rec.SoldRooms,
			"record %d for channel %s violates available+sold==total", rec.ID, rec.ChannelID)
	}
}

func TestLedgerReservePropagatesToSiblings(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	ledger := channel.NewLedger(db, zap.NewNop())
	ctx := context.Background()
	night := date(2026, 9, 10)

	require.NoError(t, ledger.Reserve(ctx, f.ChanA.ID, f.RoomType.ID, night, 3))

	recA := loadRecord(t, db, f.ChanA.ID, f.RoomType.ID)
	assert.Equal(t, 3, recA.SoldRooms)
	assert.Equal(t, 7, recA.AvailableRooms)
	assert.Equal(t, 10, recA.TotalRooms)
	assert.Equal(t, models.SyncStatusPending, recA.SyncStatus)

	// A sale on channel A must shrink what channel B can offer.
	require.NoError(t, ledger.Reserve(ctx, f.ChanB.ID, f.RoomType.ID, night, 1))
	recB := loadRecord(t, db, f.ChanB.ID, f.RoomType.ID)
	assert.Equal(t, 1, recB.SoldRooms)
	assert.Equal(t, 6, recB.AvailableRooms)

	assertInvariant(t, db, f.RoomType.ID)
}

func TestLedgerRejectsOversell(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	ledger := channel.NewLedger(db, zap.NewNop())
	ctx := context.Background()
	night := date(2026, 9, 10)

	require.NoError(t, ledger.Reserve(ctx, f.ChanA.ID, f.RoomType.ID, night, 10))

	err := ledger.Reserve(ctx, f.ChanB.ID, f.RoomType.ID, night, 1)
	assert.ErrorIs(t, err, channel.ErrOversellRejected)

	// The rejected sale must not leave partial state behind.
	var count int64
	require.NoError(t, db.Model(&models.InventoryRecord{}).
		Where("channel_id = ?", f.ChanB.ID).Count(&count).Error)
	assert.Zero(t, count)
	assertInvariant(t, db, f.RoomType.ID)
}

func TestLedgerConcurrentLastRoom(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	require.NoError(t, db.Model(&f.RoomType).Update("total_rooms", 1).Error)

	ledger := channel.NewLedger(db, zap.NewNop())
	ctx := context.Background()
	night := date(2026, 9, 10)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = ledger.Reserve(ctx, f.ChanA.ID, f.RoomType.ID, night, 1)
	}()
	go func() {
		defer wg.Done()
		errs[1] = ledger.Reserve(ctx, f.ChanB.ID, f.RoomType.ID, night, 1)
	}()
	wg.Wait()

	// Exactly one booking wins the last room, the other is rejected.
	won, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		default:
			assert.ErrorIs(t, err, channel.ErrOversellRejected)
			rejected++
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, rejected)
	assertInvariant(t, db, f.RoomType.ID)
}

func TestLedgerReleaseRestoresAvailability(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	ledger := channel.NewLedger(db, zap.NewNop())
	ctx := context.Background()
	night := date(2026, 9, 10)

	require.NoError(t, ledger.Reserve(ctx, f.ChanA.ID, f.RoomType.ID, night, 4))
	require.NoError(t, ledger.Release(ctx, f.ChanA.ID, f.RoomType.ID, night, 4))

	rec := loadRecord(t, db, f.ChanA.ID, f.RoomType.ID)
	assert.Equal(t, 0, rec.SoldRooms)
	assert.Equal(t, 10, rec.AvailableRooms)
	assertInvariant(t, db, f.RoomType.ID)
}

func TestLedgerBufferLowersCeiling(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	// Channel B keeps 2 rooms back; the ceiling drops for everyone.
	require.NoError(t, db.Model(&f.ChanB).Update("inventory_buffer", 2).Error)

	ledger := channel.NewLedger(db, zap.NewNop())
	ctx := context.Background()
	night := date(2026, 9, 10)

	require.NoError(t, ledger.Reserve(ctx, f.ChanA.ID, f.RoomType.ID, night, 8))
	err := ledger.Reserve(ctx, f.ChanA.ID, f.RoomType.ID, night, 1)
	assert.ErrorIs(t, err, channel.ErrOversellRejected)
}

func TestLedgerSetPhysicalTotalRebalances(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	ledger := channel.NewLedger(db, zap.NewNop())
	ctx := context.Background()
	night := date(2026, 9, 10)

	require.NoError(t, ledger.Reserve(ctx, f.ChanA.ID, f.RoomType.ID, night, 3))

	// Hotel takes 4 rooms out of service.
	require.NoError(t, ledger.SetPhysicalTotal(ctx, f.RoomType.ID, 6))

	rec := loadRecord(t, db, f.ChanA.ID, f.RoomType.ID)
	assert.Equal(t, 3, rec.SoldRooms)
	assert.Equal(t, 3, rec.AvailableRooms)
	assert.Equal(t, models.SyncStatusPending, rec.SyncStatus, "shrunk stock must be repushed")
	assertInvariant(t, db, f.RoomType.ID)
}

func TestLedgerEnsureRecordsMarksRateChanges(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	ledger := channel.NewLedger(db, zap.NewNop())
	ctx := context.Background()
	night := date(2026, 9, 10)

	require.NoError(t, ledger.EnsureRecords(ctx, &f.ChanA, []models.RatePlan{f.PlanA}, night, night))

	rec := loadRecord(t, db, f.ChanA.ID, f.RoomType.ID)
	require.NoError(t, db.Model(&rec).Updates(map[string]any{
		"sync_status": models.SyncStatusSuccess,
	}).Error)
	priorVersion := rec.Version

	// Unchanged rates leave the record alone.
	require.NoError(t, ledger.EnsureRecords(ctx, &f.ChanA, []models.RatePlan{f.PlanA}, night, night))
	rec = loadRecord(t, db, f.ChanA.ID, f.RoomType.ID)
	assert.Equal(t, models.SyncStatusSuccess, rec.SyncStatus)
	assert.Equal(t, priorVersion, rec.Version)

	// A changed base rate bumps the version and schedules a repush.
	f.PlanA.BaseRate = decimal.NewFromInt(2400)
	require.NoError(t, ledger.EnsureRecords(ctx, &f.ChanA, []models.RatePlan{f.PlanA}, night, night))
	rec = loadRecord(t, db, f.ChanA.ID, f.RoomType.ID)
	assert.Equal(t, models.SyncStatusPending, rec.SyncStatus)
	assert.True(t, rec.SellRate.Equal(decimal.NewFromInt(2400)), "got %s", rec.SellRate)
	assert.Greater(t, rec.Version, priorVersion)
}

func TestLedgerMarkPushOutcomeVersionGuard(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	ledger := channel.NewLedger(db, zap.NewNop())
	ctx := context.Background()
	night := date(2026, 9, 10)

	require.NoError(t, ledger.EnsureRecords(ctx, &f.ChanA, []models.RatePlan{f.PlanA}, night, night))
	rec := loadRecord(t, db, f.ChanA.ID, f.RoomType.ID)

	// The record mutates while the push is in flight.
	require.NoError(t, ledger.Reserve(ctx, f.ChanA.ID, f.RoomType.ID, night, 1))

	// A success mark built from the stale version must not apply.
	require.NoError(t, ledger.MarkPushOutcome(ctx, rec.ID, rec.Version, true, ""))
	rec = loadRecord(t, db, f.ChanA.ID, f.RoomType.ID)
	assert.Equal(t, models.SyncStatusPending, rec.SyncStatus)

	// The current version applies normally.
	require.NoError(t, ledger.MarkPushOutcome(ctx, rec.ID, rec.Version, true, ""))
	rec = loadRecord(t, db, f.ChanA.ID, f.RoomType.ID)
	assert.Equal(t, models.SyncStatusSuccess, rec.SyncStatus)
	assert.NotNil(t, rec.LastSyncedAt)
}
