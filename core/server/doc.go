// Package server holds configuration for the HTTP server.
//
// The actual Fiber application is assembled in cmd/start.go; this package
// only carries the settings (listen port, API key) so that core/config can
// compose them into the top-level configuration.
package server
