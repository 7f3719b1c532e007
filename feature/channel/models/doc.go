// Package models defines the channel manager's persistence schema.
//
// The entities mirror the relational layout of the property-management
// system: one hotel owns room types and channel connections; each channel
// owns rate plans, room-type mappings, per-date inventory records, sync
// logs, and the bookings it produced.
//
// Inventory records are the authoritative unit. For a given
// (channel, rate plan, room type, date) row the invariant
//
//	AvailableRooms + SoldRooms == TotalRooms
//
// holds after every operation, and the sum of SoldRooms across all channels
// sharing a physical room type never exceeds the hotel's physical stock
// minus the configured per-channel buffers.
package models
