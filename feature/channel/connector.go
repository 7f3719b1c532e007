package channel

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RateRecord is one (external room type, date, rate) cell of a rates push.
type RateRecord struct {
	ExternalRoomTypeID string          `json:"external_room_type_id"`
	Date               time.Time       `json:"date"`
	Rate               decimal.Decimal `json:"rate"`
}

// AvailabilityRecord is one availability cell of an availability push.
// Pushes are set-operations: the record carries the absolute count, never a
// delta, so re-pushing an unchanged snapshot is idempotent by construction.
type AvailabilityRecord struct {
	ExternalRoomTypeID string    `json:"external_room_type_id"`
	Date               time.Time `json:"date"`
	Available          int       `json:"available"`
	ClosedToArrival    bool      `json:"closed_to_arrival"`
	ClosedToDeparture  bool      `json:"closed_to_departure"`
	MinStay            int       `json:"min_stay"`
	MaxStay            int       `json:"max_stay"`
}

// BookingPayload is a reservation event pulled from a channel.
type BookingPayload struct {
	ExternalRef        string          `json:"external_ref"`
	ExternalRoomTypeID string          `json:"external_room_type_id"`
	GuestName          string          `json:"guest_name"`
	GuestEmail         string          `json:"guest_email"`
	GuestPhone         string          `json:"guest_phone"`
	Rooms              int             `json:"rooms"`
	Adults             int             `json:"adults"`
	Children           int             `json:"children"`
	CheckIn            time.Time       `json:"check_in"`
	CheckOut           time.Time       `json:"check_out"`
	RoomRate           decimal.Decimal `json:"room_rate"`
	// Status is the OTA-side status: confirmed, cancelled, no_show.
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// RecordResult is the per-record outcome inside a SyncResult.
type RecordResult struct {
	Key   string `json:"key"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// SyncResult carries per-record success/failure for one connector call.
type SyncResult struct {
	Results []RecordResult `json:"results"`
}

// Successful counts records that synced.
func (r *SyncResult) Successful() int {
	n := 0
	for _, res := range r.Results {
		if res.OK {
			n++
		}
	}
	return n
}

// Failed counts records that did not sync.
func (r *SyncResult) Failed() int {
	return len(r.Results) - r.Successful()
}

// Connector is the uniform contract each OTA integration implements.
//
// Implementations translate these calls to the OTA's own wire protocol and
// must be idempotent: pushing the same snapshot twice must not decrement
// external availability twice. Failures are classified through the error
// taxonomy (TransientError is retried with backoff, AuthError moves the
// channel to error), while per-record problems are reported inside
// SyncResult without failing the call.
type Connector interface {
	// Name returns the connector name channels reference (e.g. booking_com).
	Name() string
	// Verify performs a credential handshake against the channel endpoint.
	Verify(ctx context.Context, endpoint, credentials, propertyID string) error
	// PushRates uploads sell rates for the property.
	PushRates(ctx context.Context, propertyID string, records []RateRecord) (*SyncResult, error)
	// PushAvailability uploads availability and stay restrictions.
	PushAvailability(ctx context.Context, propertyID string, records []AvailabilityRecord) (*SyncResult, error)
	// PullBookings fetches bookings created or modified since the given time.
	PullBookings(ctx context.Context, propertyID string, since time.Time) ([]BookingPayload, error)
}

// ConnectorSet is the registry of connector implementations by name.
type ConnectorSet map[string]Connector

// Get returns the connector for a channel name.
func (s ConnectorSet) Get(name string) (Connector, error) {
	c, ok := s[name]
	if !ok {
		return nil, ErrConnectorUnknown
	}
	return c, nil
}
