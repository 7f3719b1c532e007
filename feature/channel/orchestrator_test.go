package channel_test

import (
	"context"
	"testing"
	"time"

	"channel-manager/feature/channel"
	"channel-manager/feature/channel/connectors/sandbox"
	"channel-manager/feature/channel/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// newOrchestrator wires an orchestrator over a sandbox connector with a
// three-day horizon and fast retries.
func newOrchestrator(db *gorm.DB, conn *sandbox.Connector) *channel.Orchestrator {
	log := zap.NewNop()
	ledger := channel.NewLedger(db, log)
	logs := channel.NewSyncLogStore(db, nil, "", log)
	reconciler := channel.NewReconciler(db, ledger, log)
	connectors := channel.ConnectorSet{"sandbox": conn}
	return channel.NewOrchestrator(db, log, ledger, logs, reconciler, connectors, channel.OrchestratorConfig{
		HorizonDays:   3,
		RetryAttempts: 2,
		RetryBackoff:  time.Millisecond,
		MaxFailures:   2,
	})
}

func reloadChannel(t *testing.T, db *gorm.DB, id string) models.Channel {
	t.Helper()
	var ch models.Channel
	require.NoError(t, db.First(&ch, "id = ?", id).Error)
	return ch
}

func TestOrchestratorFullCycle(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	conn := sandbox.New("sandbox")
	o := newOrchestrator(db, conn)

	report, err := o.TriggerSync(context.Background(), f.ChanA.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SyncStatusSuccess, report.Status())
	require.Len(t, report.Batches, 3)
	assert.Equal(t, models.SyncTypeRates, report.Batches[0].Type)
	assert.Equal(t, models.SyncTypeAvailability, report.Batches[1].Type)
	assert.Equal(t, models.SyncTypeBookingImport, report.Batches[2].Type)
	assert.Equal(t, 3, report.Batches[0].Processed)
	assert.Equal(t, 3, report.Batches[0].Successful)

	// The connector holds the pushed snapshot.
	day0 := models.DateOf(time.Now().UTC())
	rate, ok := conn.Rate("ext-deluxe-sandbox", day0)
	require.True(t, ok)
	assert.True(t, rate.Equal(decimal.NewFromInt(2000)), "got %s", rate)
	avail, ok := conn.Availability("ext-deluxe-sandbox", day0)
	require.True(t, ok)
	assert.Equal(t, 10, avail)

	// Every record is marked synced.
	var pending int64
	require.NoError(t, db.Model(&models.InventoryRecord{}).
		Where("channel_id = ? AND sync_status != ?", f.ChanA.ID, models.SyncStatusSuccess).
		Count(&pending).Error)
	assert.Zero(t, pending)

	// One audit row per batch.
	var logCount int64
	require.NoError(t, db.Model(&models.SyncLog{}).
		Where("channel_id = ?", f.ChanA.ID).Count(&logCount).Error)
	assert.EqualValues(t, 3, logCount)

	ch := reloadChannel(t, db, f.ChanA.ID)
	assert.Equal(t, models.ChannelStatusActive, ch.Status)
	assert.Equal(t, 0, ch.FailureStreak)
	assert.NotNil(t, ch.LastSyncAt)
	assert.NotNil(t, ch.NextSyncAt)
}

func TestOrchestratorRepushesOnlyChangedRecords(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	conn := sandbox.New("sandbox")
	o := newOrchestrator(db, conn)
	ctx := context.Background()

	_, err := o.TriggerSync(ctx, f.ChanA.ID)
	require.NoError(t, err)
	callsAfterFirst := conn.PushCalls()

	// Nothing changed: the second run has no pending records and skips the
	// connector entirely.
	report, err := o.TriggerSync(ctx, f.ChanA.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Batches[0].Processed)
	assert.Equal(t, callsAfterFirst, conn.PushCalls())
}

func TestOrchestratorPartialBatch(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	conn := sandbox.New("sandbox")

	// Ten-day horizon, three scripted record failures.
	log := zap.NewNop()
	ledger := channel.NewLedger(db, log)
	o := channel.NewOrchestrator(db, log, ledger,
		channel.NewSyncLogStore(db, nil, "", log),
		channel.NewReconciler(db, ledger, log),
		channel.ConnectorSet{"sandbox": conn},
		channel.OrchestratorConfig{HorizonDays: 10, RetryBackoff: time.Millisecond},
	)

	day0 := models.DateOf(time.Now().UTC())
	for _, offset := range []int{1, 4, 7} {
		conn.FailRecord("ext-deluxe-sandbox", day0.AddDate(0, 0, offset), "room closed on channel")
	}

	report, err := o.TriggerSync(context.Background(), f.ChanA.ID)
	require.NoError(t, err)

	rates := report.Batches[0]
	assert.Equal(t, models.SyncStatusPartial, rates.Status)
	assert.Equal(t, 10, rates.Processed)
	assert.Equal(t, 7, rates.Successful)
	assert.Equal(t, 3, rates.Failed)
	assert.Equal(t, models.SyncStatusPartial, report.Status())

	// The failed records stay queued for the next run with the reason kept.
	var failed models.InventoryRecord
	require.NoError(t, db.Where("channel_id = ? AND date = ?", f.ChanA.ID, day0.AddDate(0, 0, 1)).
		First(&failed).Error)
	assert.Equal(t, models.SyncStatusFailed, failed.SyncStatus)
	assert.Equal(t, "room closed on channel", failed.ErrorMessage)

	// A record-level failure is not a channel failure.
	ch := reloadChannel(t, db, f.ChanA.ID)
	assert.Equal(t, models.ChannelStatusActive, ch.Status)

	// The next run retries only the failed records.
	second, err := o.TriggerSync(context.Background(), f.ChanA.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Batches[0].Processed)
}

func TestOrchestratorRetriesTransientFailures(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	conn := sandbox.New("sandbox")
	o := newOrchestrator(db, conn)

	conn.FailTransiently(1)

	report, err := o.TriggerSync(context.Background(), f.ChanA.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSuccess, report.Status())

	ch := reloadChannel(t, db, f.ChanA.ID)
	assert.Equal(t, 0, ch.FailureStreak)
}

func TestOrchestratorAuthFailureStopsChannel(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	conn := sandbox.New("sandbox")
	o := newOrchestrator(db, conn)

	conn.FailAuth()

	report, err := o.TriggerSync(context.Background(), f.ChanA.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusFailed, report.Status())

	// Auth failures are terminal: no retry budget, straight to error state.
	ch := reloadChannel(t, db, f.ChanA.ID)
	assert.Equal(t, models.ChannelStatusError, ch.Status)
}

func TestOrchestratorFailureStreakDisablesChannel(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	conn := sandbox.New("sandbox")
	o := newOrchestrator(db, conn)
	ctx := context.Background()

	// Enough scripted outages to exhaust the retry budget of every call.
	conn.FailTransiently(100)

	_, err := o.TriggerSync(ctx, f.ChanA.ID)
	require.NoError(t, err)
	ch := reloadChannel(t, db, f.ChanA.ID)
	assert.Equal(t, models.ChannelStatusActive, ch.Status)
	assert.Equal(t, 1, ch.FailureStreak)

	// The second consecutive failure crosses the threshold.
	_, err = o.TriggerSync(ctx, f.ChanA.ID)
	require.NoError(t, err)
	ch = reloadChannel(t, db, f.ChanA.ID)
	assert.Equal(t, models.ChannelStatusError, ch.Status)
	assert.Equal(t, 2, ch.FailureStreak)
}

func TestOrchestratorPullIngestsBookings(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	conn := sandbox.New("sandbox")
	o := newOrchestrator(db, conn)

	day0 := models.DateOf(time.Now().UTC())
	conn.QueueBooking(channel.BookingPayload{
		ExternalRef:        "OTA-77",
		ExternalRoomTypeID: "ext-deluxe-sandbox",
		GuestName:          "Meera Iyer",
		Rooms:              2,
		CheckIn:            day0,
		CheckOut:           day0.AddDate(0, 0, 1),
		RoomRate:           decimal.NewFromInt(2000),
	})

	report, err := o.TriggerSync(context.Background(), f.ChanA.ID)
	require.NoError(t, err)

	pull := report.Batches[2]
	assert.Equal(t, 1, pull.Processed)
	assert.Equal(t, 1, pull.Successful)

	var booking models.ChannelBooking
	require.NoError(t, db.First(&booking, "external_ref = ?", "OTA-77").Error)
	assert.Equal(t, models.BookingStatusConfirmed, booking.Status)

	// The sale dirties the record, scheduling the availability repush.
	var rec models.InventoryRecord
	require.NoError(t, db.Where("channel_id = ? AND date = ?", f.ChanA.ID, day0).First(&rec).Error)
	assert.Equal(t, 2, rec.SoldRooms)
	assert.Equal(t, models.SyncStatusPending, rec.SyncStatus)
}

func TestOrchestratorSubtractsInventoryBuffer(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	require.NoError(t, db.Model(&f.ChanA).Update("inventory_buffer", 2).Error)
	conn := sandbox.New("sandbox")
	o := newOrchestrator(db, conn)

	_, err := o.TriggerSync(context.Background(), f.ChanA.ID)
	require.NoError(t, err)

	// Ceiling is 10 - 2 = 8; the push holds back the buffer again from the
	// channel-visible count.
	day0 := models.DateOf(time.Now().UTC())
	avail, ok := conn.Availability("ext-deluxe-sandbox", day0)
	require.True(t, ok)
	assert.Equal(t, 6, avail)
}

func TestOrchestratorWithholdsParityViolations(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	require.NoError(t, db.Model(&f.ChanA).Update("rate_parity", true).Error)

	// The hotel's direct channel sells day0 at a different price.
	direct := models.Channel{
		HotelID: "hotel-1",
		Name:    models.ConnectorDirect,
		Status:  models.ChannelStatusActive,
	}
	require.NoError(t, db.Create(&direct).Error)
	day0 := models.DateOf(time.Now().UTC())
	require.NoError(t, db.Create(&models.InventoryRecord{
		ChannelID:  direct.ID,
		RatePlanID: "direct-plan",
		RoomTypeID: f.RoomType.ID,
		Date:       day0,
		SellRate:   decimal.NewFromInt(1800),
		SyncStatus: models.SyncStatusSuccess,
	}).Error)

	conn := sandbox.New("sandbox")
	o := newOrchestrator(db, conn)

	report, err := o.TriggerSync(context.Background(), f.ChanA.ID)
	require.NoError(t, err)

	rates := report.Batches[0]
	assert.Equal(t, models.SyncStatusPartial, rates.Status)
	assert.Equal(t, 1, rates.Failed)

	// The divergent rate never reached the connector.
	_, pushed := conn.Rate("ext-deluxe-sandbox", day0)
	assert.False(t, pushed)

	var withheld models.InventoryRecord
	require.NoError(t, db.Where("channel_id = ? AND date = ?", f.ChanA.ID, day0).First(&withheld).Error)
	assert.Equal(t, models.SyncStatusFailed, withheld.SyncStatus)
	assert.Contains(t, withheld.ErrorMessage, "parity")
}

func TestOrchestratorRefusesDirectChannel(t *testing.T) {
	db := newTestDB(t)
	direct := models.Channel{
		HotelID: "hotel-1",
		Name:    models.ConnectorDirect,
		Status:  models.ChannelStatusActive,
	}
	require.NoError(t, db.Create(&direct).Error)

	o := newOrchestrator(db, sandbox.New("sandbox"))
	_, err := o.TriggerSync(context.Background(), direct.ID)

	var validation *channel.ValidationError
	assert.ErrorAs(t, err, &validation)
}
