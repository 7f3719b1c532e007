package database_test

import (
	"testing"

	"channel-manager/core/database"

	"github.com/stretchr/testify/assert"
)

func TestConnectSQLiteMemory(t *testing.T) {
	db, err := database.Connect(database.Config{
		Driver: "sqlite",
		Name:   ":memory:",
	})
	assert.NoError(t, err)
	assert.NotNil(t, db)

	// The connection must be usable immediately.
	var one int
	err = db.Raw("SELECT 1").Scan(&one).Error
	assert.NoError(t, err)
	assert.Equal(t, 1, one)
}

func TestConnectMySQLUnreachable(t *testing.T) {
	_, err := database.Connect(database.Config{
		Driver:         "mysql",
		Host:           "127.0.0.1",
		Port:           1, // nothing listens here
		User:           "root",
		Name:           "hotel",
		TimeoutSeconds: 1,
	})
	assert.Error(t, err)
}
