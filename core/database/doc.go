// Package database provides the GORM database connection.
//
// Production deployments run against MySQL; tests connect to an in-memory
// SQLite database through the same Connect helper so that behavioral tests
// exercise the real persistence path.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil { ... }
//
// Connection pooling and timeouts are configured inside Connect; callers
// receive a ready-to-use *gorm.DB.
package database
