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

func newService(db *gorm.DB) *channel.Service {
	connectors := channel.ConnectorSet{"sandbox": sandbox.New("sandbox")}
	return channel.NewService(db, zap.NewNop(), nil, "", connectors, channel.OrchestratorConfig{
		HorizonDays:  3,
		RetryBackoff: time.Millisecond,
	})
}

func TestServiceInventoryUpdateChangesPhysicalTotal(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	svc := newService(db)
	ctx := context.Background()
	night := date(2026, 9, 10)

	require.NoError(t, svc.Ledger.EnsureRecords(ctx, &f.ChanA, []models.RatePlan{f.PlanA}, night, night))

	total := 4
	require.NoError(t, svc.ApplyInventoryUpdate(ctx, channel.InventoryUpdate{
		RoomTypeID: f.RoomType.ID,
		TotalRooms: &total,
	}))

	rec := loadRecord(t, db, f.ChanA.ID, f.RoomType.ID)
	assert.Equal(t, 4, rec.AvailableRooms)
	assert.Equal(t, models.SyncStatusPending, rec.SyncStatus)
}

func TestServiceInventoryUpdateAppliesRestrictions(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	svc := newService(db)
	ctx := context.Background()
	night := date(2026, 9, 10)

	require.NoError(t, svc.Ledger.EnsureRecords(ctx, &f.ChanA, []models.RatePlan{f.PlanA}, night, night))
	rec := loadRecord(t, db, f.ChanA.ID, f.RoomType.ID)
	require.NoError(t, db.Model(&rec).Update("sync_status", models.SyncStatusSuccess).Error)

	closed := true
	minStay := 2
	require.NoError(t, svc.ApplyInventoryUpdate(ctx, channel.InventoryUpdate{
		RoomTypeID:      f.RoomType.ID,
		From:            night,
		To:              night,
		ClosedToArrival: &closed,
		MinStay:         &minStay,
	}))

	rec = loadRecord(t, db, f.ChanA.ID, f.RoomType.ID)
	assert.True(t, rec.ClosedToArrival)
	assert.Equal(t, 2, rec.MinStay)
	assert.Equal(t, models.SyncStatusPending, rec.SyncStatus, "restriction changes must be repushed")
}

func TestServiceInventoryUpdateValidates(t *testing.T) {
	db := newTestDB(t)
	svc := newService(db)

	var validation *channel.ValidationError

	err := svc.ApplyInventoryUpdate(context.Background(), channel.InventoryUpdate{})
	assert.ErrorAs(t, err, &validation)

	// Restrictions without a date range are rejected.
	closed := true
	err = svc.ApplyInventoryUpdate(context.Background(), channel.InventoryUpdate{
		RoomTypeID:      "room-1",
		ClosedToArrival: &closed,
	})
	assert.ErrorAs(t, err, &validation)
}

func TestServiceConfirmedBookings(t *testing.T) {
	db := newTestDB(t)
	f := seedHotel(t, db)
	svc := newService(db)
	ctx := context.Background()

	_, err := svc.Reconciler.Ingest(ctx, &f.ChanA, channel.BookingPayload{
		ExternalRef:        "BK-1",
		ExternalRoomTypeID: "ext-deluxe-sandbox",
		GuestName:          "Asha Rao",
		Rooms:              1,
		CheckIn:            date(2026, 9, 10),
		CheckOut:           date(2026, 9, 11),
		RoomRate:           decimal.NewFromInt(2000),
	})
	require.NoError(t, err)

	// A conflicted booking does not surface to billing.
	require.NoError(t, db.Create(&models.ChannelBooking{
		ChannelID:   f.ChanA.ID,
		ExternalRef: "BK-2",
		GuestName:   "Vikram Shetty",
		RoomTypeID:  f.RoomType.ID,
		Rooms:       1,
		CheckIn:     date(2026, 9, 10),
		CheckOut:    date(2026, 9, 11),
		Status:      models.BookingStatusConflict,
	}).Error)

	bookings, err := svc.ConfirmedBookings(ctx, "hotel-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, "BK-1", bookings[0].ExternalRef)
}
