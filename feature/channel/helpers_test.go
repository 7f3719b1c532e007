package channel_test

import (
	"testing"

	"channel-manager/core/database"
	"channel-manager/feature/channel/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newTestDB opens an in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Connect(database.Config{
		Driver: "sqlite",
		Name:   ":memory:",
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// fixture is a seeded hotel with one room type shared by two active
// channels, each with a mapping and a rate plan.
type fixture struct {
	RoomType models.HotelRoomType
	ChanA    models.Channel
	ChanB    models.Channel
	PlanA    models.RatePlan
	PlanB    models.RatePlan
}

// seedHotel creates the shared two-channel setup most ledger and
// reconciliation tests start from. The room type has 10 physical rooms and
// neither channel holds back a buffer.
func seedHotel(t *testing.T, db *gorm.DB) fixture {
	t.Helper()

	f := fixture{
		RoomType: models.HotelRoomType{
			HotelID:    "hotel-1",
			Name:       "Deluxe",
			TotalRooms: 10,
		},
	}
	require.NoError(t, db.Create(&f.RoomType).Error)

	f.ChanA = models.Channel{
		HotelID:            "hotel-1",
		Name:               "sandbox",
		DisplayName:        "Sandbox OTA",
		Status:             models.ChannelStatusActive,
		AutoSync:           true,
		ExternalPropertyID: "prop-1",
		CommissionRate:     decimal.NewFromInt(15),
	}
	require.NoError(t, db.Create(&f.ChanA).Error)

	f.ChanB = models.Channel{
		HotelID:            "hotel-1",
		Name:               "sandbox_b",
		DisplayName:        "Second OTA",
		Status:             models.ChannelStatusActive,
		AutoSync:           true,
		ExternalPropertyID: "prop-2",
		CommissionRate:     decimal.NewFromInt(20),
	}
	require.NoError(t, db.Create(&f.ChanB).Error)

	for _, ch := range []*models.Channel{&f.ChanA, &f.ChanB} {
		require.NoError(t, db.Create(&models.RoomTypeMapping{
			ChannelID:          ch.ID,
			RoomTypeID:         f.RoomType.ID,
			ExternalRoomTypeID: "ext-deluxe-" + ch.Name,
		}).Error)
	}

	f.PlanA = models.RatePlan{
		ChannelID:  f.ChanA.ID,
		RoomTypeID: f.RoomType.ID,
		Name:       "Standard",
		BaseRate:   decimal.NewFromInt(2000),
	}
	require.NoError(t, db.Create(&f.PlanA).Error)

	f.PlanB = models.RatePlan{
		ChannelID:  f.ChanB.ID,
		RoomTypeID: f.RoomType.ID,
		Name:       "Standard",
		BaseRate:   decimal.NewFromInt(2100),
	}
	require.NoError(t, db.Create(&f.PlanB).Error)

	return f
}
