package channel_test

import (
	"context"
	"errors"
	"testing"

	"channel-manager/feature/channel"
	"channel-manager/feature/channel/connectors/sandbox"
	"channel-manager/feature/channel/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newRegistry(db *gorm.DB, conn *sandbox.Connector) *channel.Registry {
	connectors := channel.ConnectorSet{"sandbox": conn}
	return channel.NewRegistry(db, zap.NewNop(), connectors, nil)
}

func TestRegistryRegisterStartsInTesting(t *testing.T) {
	db := newTestDB(t)
	r := newRegistry(db, sandbox.New("sandbox"))

	ch, err := r.Register(context.Background(), "hotel-1", channel.RegisterInput{
		Name:        "sandbox",
		DisplayName: "Sandbox OTA",
		Endpoint:    "https://sandbox.example.com",
		Credentials: "user:pass",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, ch.ID)
	assert.Equal(t, models.ChannelStatusTesting, ch.Status)
	assert.True(t, ch.AutoSync)
}

func TestRegistryAutoSyncOptOutPersists(t *testing.T) {
	db := newTestDB(t)
	r := newRegistry(db, sandbox.New("sandbox"))
	off := false

	ch, err := r.Register(context.Background(), "hotel-1", channel.RegisterInput{
		Name:     "sandbox",
		AutoSync: &off,
	})
	require.NoError(t, err)
	assert.False(t, ch.AutoSync)

	// The stored row keeps the opt-out, not just the returned struct.
	var stored models.Channel
	require.NoError(t, db.First(&stored, "id = ?", ch.ID).Error)
	assert.False(t, stored.AutoSync)
}

func TestRegistryRejectsDuplicateAndUnknown(t *testing.T) {
	db := newTestDB(t)
	r := newRegistry(db, sandbox.New("sandbox"))
	ctx := context.Background()

	_, err := r.Register(ctx, "hotel-1", channel.RegisterInput{Name: "sandbox"})
	require.NoError(t, err)

	// Same (hotel, name) pair again.
	_, err = r.Register(ctx, "hotel-1", channel.RegisterInput{Name: "sandbox"})
	assert.ErrorIs(t, err, channel.ErrChannelExists)

	// Another hotel may use the same channel.
	_, err = r.Register(ctx, "hotel-2", channel.RegisterInput{Name: "sandbox"})
	assert.NoError(t, err)

	// A name with no connector implementation is rejected up front.
	_, err = r.Register(ctx, "hotel-1", channel.RegisterInput{Name: "no_such_ota"})
	assert.ErrorIs(t, err, channel.ErrConnectorUnknown)
}

func TestRegistryDirectChannelBornActive(t *testing.T) {
	db := newTestDB(t)
	r := newRegistry(db, sandbox.New("sandbox"))

	ch, err := r.Register(context.Background(), "hotel-1", channel.RegisterInput{
		Name: models.ConnectorDirect,
	})
	require.NoError(t, err)

	assert.Equal(t, models.ChannelStatusActive, ch.Status)
	assert.False(t, ch.AutoSync)
	assert.True(t, ch.IsDirect())

	var stored models.Channel
	require.NoError(t, db.First(&stored, "id = ?", ch.ID).Error)
	assert.False(t, stored.AutoSync)
}

func TestRegistryVerifyActivates(t *testing.T) {
	db := newTestDB(t)
	conn := sandbox.New("sandbox")
	r := newRegistry(db, conn)
	ctx := context.Background()

	ch, err := r.Register(ctx, "hotel-1", channel.RegisterInput{Name: "sandbox"})
	require.NoError(t, err)

	verified, err := r.Verify(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelStatusActive, verified.Status)

	stored, err := r.Get(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelStatusActive, stored.Status)
	assert.Equal(t, 0, stored.FailureStreak)
}

func TestRegistryVerifyFailureKeepsTesting(t *testing.T) {
	db := newTestDB(t)
	conn := sandbox.New("sandbox")
	conn.FailVerify(errors.New("invalid credentials"))
	r := newRegistry(db, conn)
	ctx := context.Background()

	ch, err := r.Register(ctx, "hotel-1", channel.RegisterInput{Name: "sandbox"})
	require.NoError(t, err)

	_, err = r.Verify(ctx, ch.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")

	stored, err := r.Get(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelStatusTesting, stored.Status)
}

func TestRegistryDeactivateKeepsHistory(t *testing.T) {
	db := newTestDB(t)
	r := newRegistry(db, sandbox.New("sandbox"))
	ctx := context.Background()

	ch, err := r.Register(ctx, "hotel-1", channel.RegisterInput{Name: "sandbox"})
	require.NoError(t, err)

	// Some history exists before disconnecting.
	require.NoError(t, db.Create(&models.SyncLog{
		ChannelID: ch.ID,
		SyncType:  models.SyncTypeRates,
		Direction: models.SyncDirectionPush,
		Status:    models.SyncStatusSuccess,
	}).Error)

	require.NoError(t, r.Deactivate(ctx, ch.ID))

	stored, err := r.Get(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelStatusInactive, stored.Status)

	var logCount int64
	require.NoError(t, db.Model(&models.SyncLog{}).Where("channel_id = ?", ch.ID).Count(&logCount).Error)
	assert.EqualValues(t, 1, logCount)
}

func TestRegistryGetUnknown(t *testing.T) {
	db := newTestDB(t)
	r := newRegistry(db, sandbox.New("sandbox"))

	_, err := r.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, channel.ErrChannelNotFound)
}
