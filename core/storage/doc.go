// Package storage provides the object storage client used for the sync
// payload archive.
//
// Sync log rows keep counts and status in the database; the raw connector
// request/response payloads are offloaded to an S3-compatible bucket so
// large OTA payloads never bloat the relational store. The Client interface
// wraps the Minio SDK and is mocked in storage/mocks for tests.
package storage
