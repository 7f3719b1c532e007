// Package sandbox provides an in-memory connector implementation.
//
// It simulates an OTA endpoint that remembers the last pushed snapshot and
// serves a scriptable queue of booking events. Channels in the testing
// lifecycle state run against it, and the sync pipeline tests use it to
// script per-record failures and transient outages.
package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"channel-manager/feature/channel"

	"github.com/shopspring/decimal"
)

// Connector is an in-memory channel.Connector.
type Connector struct {
	name string

	mu sync.Mutex

	// rates and availability hold the last pushed snapshot, keyed by
	// external room type id and date. Pushes are set-operations, so
	// re-pushing a snapshot overwrites rather than accumulates.
	rates        map[string]decimal.Decimal
	availability map[string]int

	pushCalls int

	bookings []channel.BookingPayload

	// verifyErr fails Verify when set.
	verifyErr error
	// transientLeft makes the next N connector calls fail transiently.
	transientLeft int
	// authErr fails every call with an auth error when set.
	authErr error
	// recordErrs scripts per-record failures by record key.
	recordErrs map[string]string
}

// New creates a sandbox connector registered under the given name.
func New(name string) *Connector {
	return &Connector{
		name:         name,
		rates:        make(map[string]decimal.Decimal),
		availability: make(map[string]int),
		recordErrs:   make(map[string]string),
	}
}

func (c *Connector) Name() string { return c.name }

// Verify succeeds unless a verification failure was scripted.
func (c *Connector) Verify(ctx context.Context, endpoint, credentials, propertyID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verifyErr
}

// PushRates stores the pushed rates and reports per-record results.
func (c *Connector) PushRates(ctx context.Context, propertyID string, records []channel.RateRecord) (*channel.SyncResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.callErr("push rates"); err != nil {
		return nil, err
	}
	c.pushCalls++

	result := &channel.SyncResult{}
	for _, r := range records {
		key := recordKey(r.ExternalRoomTypeID, r.Date)
		if msg, failed := c.recordErrs[key]; failed {
			result.Results = append(result.Results, channel.RecordResult{Key: key, Error: msg})
			continue
		}
		c.rates[key] = r.Rate
		result.Results = append(result.Results, channel.RecordResult{Key: key, OK: true})
	}
	return result, nil
}

// PushAvailability stores the pushed availability and reports per-record
// results.
func (c *Connector) PushAvailability(ctx context.Context, propertyID string, records []channel.AvailabilityRecord) (*channel.SyncResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.callErr("push availability"); err != nil {
		return nil, err
	}
	c.pushCalls++

	result := &channel.SyncResult{}
	for _, r := range records {
		key := recordKey(r.ExternalRoomTypeID, r.Date)
		if msg, failed := c.recordErrs[key]; failed {
			result.Results = append(result.Results, channel.RecordResult{Key: key, Error: msg})
			continue
		}
		c.availability[key] = r.Available
		result.Results = append(result.Results, channel.RecordResult{Key: key, OK: true})
	}
	return result, nil
}

// PullBookings drains the scripted booking queue.
func (c *Connector) PullBookings(ctx context.Context, propertyID string, since time.Time) ([]channel.BookingPayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.callErr("pull bookings"); err != nil {
		return nil, err
	}

	pulled := c.bookings
	c.bookings = nil
	return pulled, nil
}

// QueueBooking adds a booking event for the next pull.
func (c *Connector) QueueBooking(p channel.BookingPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bookings = append(c.bookings, p)
}

// FailVerify scripts a verification failure.
func (c *Connector) FailVerify(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verifyErr = err
}

// FailTransiently makes the next n calls fail with a transient error.
func (c *Connector) FailTransiently(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transientLeft = n
}

// FailAuth makes every call fail with an authentication error.
func (c *Connector) FailAuth() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authErr = errors.New("credentials rejected")
}

// FailRecord scripts a per-record failure.
func (c *Connector) FailRecord(externalRoomTypeID string, date time.Time, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordErrs[recordKey(externalRoomTypeID, date)] = msg
}

// Rate returns the last pushed rate for a record key.
func (c *Connector) Rate(externalRoomTypeID string, date time.Time) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rates[recordKey(externalRoomTypeID, date)]
	return r, ok
}

// Availability returns the last pushed availability for a record key.
func (c *Connector) Availability(externalRoomTypeID string, date time.Time) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.availability[recordKey(externalRoomTypeID, date)]
	return a, ok
}

// PushCalls returns how many push calls reached the connector.
func (c *Connector) PushCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushCalls
}

func (c *Connector) callErr(op string) error {
	if c.authErr != nil {
		return &channel.AuthError{Op: op, Err: c.authErr}
	}
	if c.transientLeft > 0 {
		c.transientLeft--
		return &channel.TransientError{Op: op, Err: errors.New("simulated outage")}
	}
	return nil
}

func recordKey(externalRoomTypeID string, date time.Time) string {
	return externalRoomTypeID + "|" + date.Format("2006-01-02")
}
