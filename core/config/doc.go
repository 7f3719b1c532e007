// Package config loads the application configuration.
//
// Configuration comes from environment variables, optionally seeded from a
// .env file. Defaults are declared as struct tags on the partial Config
// structs owned by each core package and bound into Viper by reflection, so
// adding a setting never requires touching this package.
//
// Environment variables map to nested keys with underscores, e.g.
// SERVER_PORT -> server.port, SYNC_INTERVAL_MINUTES -> sync.interval_minutes.
package config
