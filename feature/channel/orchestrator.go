package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"channel-manager/core/logger"
	"channel-manager/feature/channel/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// OrchestratorConfig holds the orchestrator tuning knobs.
type OrchestratorConfig struct {
	// DefaultInterval is the cadence for channels without their own.
	DefaultInterval time.Duration
	// HorizonDays is how far ahead the inventory grid is maintained.
	HorizonDays int
	// RetryAttempts bounds retries of transient connector failures.
	RetryAttempts int
	// RetryBackoff is the initial backoff; it doubles per attempt.
	RetryBackoff time.Duration
	// MaxFailures is the consecutive-failure count that moves a channel
	// from active to error.
	MaxFailures int
}

func (c *OrchestratorConfig) withDefaults() {
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = 15 * time.Minute
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 90
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 3
	}
}

// BatchOutcome is the result of one sync batch (one sync type).
type BatchOutcome struct {
	Type       models.SyncType      `json:"type"`
	Direction  models.SyncDirection `json:"direction"`
	Status     models.SyncStatus    `json:"status"`
	Processed  int                  `json:"processed"`
	Successful int                  `json:"successful"`
	Failed     int                  `json:"failed"`
	Error      string               `json:"error,omitempty"`
}

// SyncReport summarizes one full sync run for a channel.
type SyncReport struct {
	ChannelID   string         `json:"channel_id"`
	ChannelName string         `json:"channel_name"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Batches     []BatchOutcome `json:"batches"`
}

// Status aggregates the worst batch outcome.
func (r *SyncReport) Status() models.SyncStatus {
	status := models.SyncStatusSuccess
	for _, b := range r.Batches {
		switch b.Status {
		case models.SyncStatusFailed:
			return models.SyncStatusFailed
		case models.SyncStatusPartial:
			status = models.SyncStatusPartial
		}
	}
	return status
}

// Orchestrator schedules and executes sync operations against each channel's
// connector. One scheduling loop runs per channel; runs for the same channel
// are serialized and concurrent triggers are coalesced into the in-flight
// run through a singleflight group keyed by channel id.
type Orchestrator struct {
	db         *gorm.DB
	log        *zap.Logger
	ledger     *Ledger
	logs       *SyncLogStore
	reconciler *Reconciler
	connectors ConnectorSet
	cfg        OrchestratorConfig

	group singleflight.Group

	mu    sync.Mutex
	loops map[string]chan struct{}
	wg    sync.WaitGroup
}

// NewOrchestrator wires the orchestrator.
func NewOrchestrator(db *gorm.DB, log *zap.Logger, ledger *Ledger, logs *SyncLogStore, reconciler *Reconciler, connectors ConnectorSet, cfg OrchestratorConfig) *Orchestrator {
	cfg.withDefaults()
	return &Orchestrator{
		db:         db,
		log:        log,
		ledger:     ledger,
		logs:       logs,
		reconciler: reconciler,
		connectors: connectors,
		cfg:        cfg,
		loops:      make(map[string]chan struct{}),
	}
}

// Start spawns a scheduling loop for every active auto-sync channel.
func (o *Orchestrator) Start(ctx context.Context) error {
	var channels []models.Channel
	err := o.db.WithContext(ctx).
		Where("status = ? AND auto_sync = ? AND name != ?", models.ChannelStatusActive, true, models.ConnectorDirect).
		Find(&channels).Error
	if err != nil {
		return fmt.Errorf("load active channels: %w", err)
	}

	for i := range channels {
		o.StartChannel(ctx, &channels[i])
	}
	o.log.Info("Sync orchestrator started", zap.Int("channels", len(channels)))
	return nil
}

// StartChannel launches the scheduling loop for one channel. Starting an
// already-running channel is a no-op.
func (o *Orchestrator) StartChannel(ctx context.Context, ch *models.Channel) {
	if ch.IsDirect() || !ch.AutoSync {
		return
	}

	o.mu.Lock()
	if _, running := o.loops[ch.ID]; running {
		o.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	o.loops[ch.ID] = stop
	o.mu.Unlock()

	interval := ch.SyncInterval(o.cfg.DefaultInterval)
	l := logger.WithChannel(o.log, ch.ID, ch.Name)
	l.Info("Starting channel sync loop", zap.Duration("interval", interval))

	o.wg.Add(1)
	go func(channelID string) {
		defer o.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				// Deactivation cancels pending scheduling only; an
				// in-flight run owns its own completion.
				l.Info("Channel sync loop stopped")
				return
			case <-ticker.C:
				if _, err := o.TriggerSync(ctx, channelID); err != nil {
					l.Warn("Scheduled sync failed", zap.Error(err))
				}
			}
		}
	}(ch.ID)
}

// StopChannel cancels the channel's pending scheduling. An in-flight sync
// completes and logs normally.
func (o *Orchestrator) StopChannel(channelID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if stop, ok := o.loops[channelID]; ok {
		close(stop)
		delete(o.loops, channelID)
	}
}

// Stop cancels all scheduling loops and waits for in-flight runs.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	for id, stop := range o.loops {
		close(stop)
		delete(o.loops, id)
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// TriggerSync runs a full sync for the channel. Concurrent triggers for the
// same channel join the in-flight run instead of running in parallel.
func (o *Orchestrator) TriggerSync(ctx context.Context, channelID string) (*SyncReport, error) {
	v, err, _ := o.group.Do(channelID, func() (any, error) {
		return o.runSync(ctx, channelID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*SyncReport), nil
}

// runSync executes one push-then-pull cycle: rates push, availability push,
// booking import. Pushes go first so availability reflects the latest local
// state before new external bookings are evaluated against it.
func (o *Orchestrator) runSync(ctx context.Context, channelID string) (*SyncReport, error) {
	var ch models.Channel
	if err := o.db.WithContext(ctx).First(&ch, "id = ?", channelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("load channel: %w", err)
	}
	if ch.Status != models.ChannelStatusActive && ch.Status != models.ChannelStatusTesting {
		return nil, fmt.Errorf("channel %s is %s, not syncable", ch.Name, ch.Status)
	}
	if ch.IsDirect() {
		return nil, &ValidationError{Field: "channel", Reason: "direct channel is not synced"}
	}

	conn, err := o.connectors.Get(ch.Name)
	if err != nil {
		return nil, err
	}

	l := logger.WithChannel(o.log, ch.ID, ch.Name)
	report := &SyncReport{ChannelID: ch.ID, ChannelName: ch.Name, StartedAt: time.Now().UTC()}
	l.Info("Sync run started")

	if err := o.refreshGrid(ctx, &ch); err != nil {
		return nil, fmt.Errorf("refresh inventory grid: %w", err)
	}

	pending, err := o.ledger.Pending(ctx, ch.ID)
	if err != nil {
		return nil, err
	}

	mappings, err := o.mappingIndex(ctx, ch.ID)
	if err != nil {
		return nil, err
	}

	pushErrs := make(map[uint]string, len(pending))
	var transportErrs []error

	ratesOutcome, err := o.pushRates(ctx, &ch, conn, pending, mappings, pushErrs)
	if err != nil {
		transportErrs = append(transportErrs, err)
	}
	report.Batches = append(report.Batches, ratesOutcome)

	availOutcome, err := o.pushAvailability(ctx, &ch, conn, pending, mappings, pushErrs)
	if err != nil {
		transportErrs = append(transportErrs, err)
	}
	report.Batches = append(report.Batches, availOutcome)

	// Per-record outcomes are marked once both pushes ran: a record is
	// synced only when its rate and availability both reached the channel.
	for i := range pending {
		rec := &pending[i]
		msg, failed := pushErrs[rec.ID]
		if err := o.ledger.MarkPushOutcome(ctx, rec.ID, rec.Version, !failed, msg); err != nil {
			l.Error("Failed to mark push outcome", zap.Uint("record_id", rec.ID), zap.Error(err))
		}
	}

	pullOutcome, err := o.pullBookings(ctx, &ch, conn)
	if err != nil {
		transportErrs = append(transportErrs, err)
	}
	report.Batches = append(report.Batches, pullOutcome)

	report.FinishedAt = time.Now().UTC()
	o.finishRun(ctx, &ch, report, transportErrs, l)
	return report, nil
}

// refreshGrid recomputes sell rates over the horizon so pushes always carry
// current prices.
func (o *Orchestrator) refreshGrid(ctx context.Context, ch *models.Channel) error {
	var plans []models.RatePlan
	err := o.db.WithContext(ctx).Preload("SeasonalRates").
		Where("channel_id = ?", ch.ID).
		Find(&plans).Error
	if err != nil {
		return fmt.Errorf("load rate plans: %w", err)
	}
	if len(plans) == 0 {
		return nil
	}

	from := time.Now().UTC()
	to := from.AddDate(0, 0, o.cfg.HorizonDays-1)
	return o.ledger.EnsureRecords(ctx, ch, plans, from, to)
}

func (o *Orchestrator) pushRates(ctx context.Context, ch *models.Channel, conn Connector, pending []models.InventoryRecord, mappings map[string]string, pushErrs map[uint]string) (BatchOutcome, error) {
	outcome := BatchOutcome{Type: models.SyncTypeRates, Direction: models.SyncDirectionPush}

	var records []RateRecord
	index := make(map[string]uint, len(pending))
	for i := range pending {
		rec := &pending[i]
		outcome.Processed++

		external, ok := mappings[rec.RoomTypeID]
		if !ok {
			outcome.Failed++
			pushErrs[rec.ID] = ErrMappingNotFound.Error()
			continue
		}

		if ch.RateParity {
			if direct, ok := o.directRate(ctx, ch.HotelID, rec.RoomTypeID, rec.Date); ok && !direct.Equal(rec.SellRate) {
				outcome.Failed++
				pushErrs[rec.ID] = fmt.Sprintf("%v: sell rate %s differs from direct rate %s",
					ErrParityViolation, rec.SellRate, direct)
				continue
			}
		}

		records = append(records, RateRecord{
			ExternalRoomTypeID: external,
			Date:               rec.Date,
			Rate:               rec.SellRate,
		})
		index[recordKey(external, rec.Date)] = rec.ID
	}

	result, err := o.pushBatch(ctx, len(records), string(models.SyncTypeRates), func() (*SyncResult, error) {
		return conn.PushRates(ctx, ch.ExternalPropertyID, records)
	})
	o.applyResult(result, err, index, pushErrs, &outcome)
	o.logBatch(ctx, ch, &outcome, records, result)
	return outcome, err
}

func (o *Orchestrator) pushAvailability(ctx context.Context, ch *models.Channel, conn Connector, pending []models.InventoryRecord, mappings map[string]string, pushErrs map[uint]string) (BatchOutcome, error) {
	outcome := BatchOutcome{Type: models.SyncTypeAvailability, Direction: models.SyncDirectionPush}

	var records []AvailabilityRecord
	index := make(map[string]uint, len(pending))
	for i := range pending {
		rec := &pending[i]
		outcome.Processed++

		external, ok := mappings[rec.RoomTypeID]
		if !ok {
			outcome.Failed++
			pushErrs[rec.ID] = ErrMappingNotFound.Error()
			continue
		}

		available := rec.AvailableRooms - ch.InventoryBuffer
		if available < 0 {
			available = 0
		}
		records = append(records, AvailabilityRecord{
			ExternalRoomTypeID: external,
			Date:               rec.Date,
			Available:          available,
			ClosedToArrival:    rec.ClosedToArrival,
			ClosedToDeparture:  rec.ClosedToDeparture,
			MinStay:            rec.MinStay,
			MaxStay:            rec.MaxStay,
		})
		index[recordKey(external, rec.Date)] = rec.ID
	}

	result, err := o.pushBatch(ctx, len(records), string(models.SyncTypeAvailability), func() (*SyncResult, error) {
		return conn.PushAvailability(ctx, ch.ExternalPropertyID, records)
	})
	o.applyResult(result, err, index, pushErrs, &outcome)
	o.logBatch(ctx, ch, &outcome, records, result)
	return outcome, err
}

// pushBatch runs one connector push under the retry policy. Empty batches
// are skipped without a connector call.
func (o *Orchestrator) pushBatch(ctx context.Context, count int, op string, fn func() (*SyncResult, error)) (*SyncResult, error) {
	if count == 0 {
		return &SyncResult{}, nil
	}
	var result *SyncResult
	err := o.withRetry(ctx, op, func() error {
		var callErr error
		result, callErr = fn()
		return callErr
	})
	return result, err
}

// applyResult folds a connector result (or transport error) into the batch
// outcome and the per-record error map.
func (o *Orchestrator) applyResult(result *SyncResult, err error, index map[string]uint, pushErrs map[uint]string, outcome *BatchOutcome) {
	if err != nil {
		// Transport-level failure: every record in the call failed.
		outcome.Error = err.Error()
		outcome.Failed += len(index)
		for _, id := range index {
			pushErrs[id] = err.Error()
		}
		outcome.Status = batchStatus(outcome.Processed, outcome.Successful)
		return
	}

	for _, res := range result.Results {
		id, ok := index[res.Key]
		if !ok {
			continue
		}
		delete(index, res.Key)
		if res.OK {
			outcome.Successful++
		} else {
			outcome.Failed++
			pushErrs[id] = res.Error
		}
	}
	// Records the connector did not report on are assumed synced; the
	// contract requires per-record results, this is belt and braces for
	// connectors that only report failures.
	outcome.Successful += len(index)
	outcome.Status = batchStatus(outcome.Processed, outcome.Successful)
}

func (o *Orchestrator) pullBookings(ctx context.Context, ch *models.Channel, conn Connector) (BatchOutcome, error) {
	outcome := BatchOutcome{Type: models.SyncTypeBookingImport, Direction: models.SyncDirectionPull}

	since := time.Time{}
	if ch.LastSyncAt != nil {
		since = *ch.LastSyncAt
	}

	var payloads []BookingPayload
	err := o.withRetry(ctx, string(models.SyncTypeBookingImport), func() error {
		var callErr error
		payloads, callErr = conn.PullBookings(ctx, ch.ExternalPropertyID, since)
		return callErr
	})
	if err != nil {
		outcome.Error = err.Error()
		outcome.Status = models.SyncStatusFailed
		o.logBatch(ctx, ch, &outcome, nil, nil)
		return outcome, err
	}

	results := make([]RecordResult, 0, len(payloads))
	for _, p := range payloads {
		outcome.Processed++
		if _, ingestErr := o.reconciler.Ingest(ctx, ch, p); ingestErr != nil {
			// Record-level failure; the batch continues.
			outcome.Failed++
			results = append(results, RecordResult{Key: p.ExternalRef, Error: ingestErr.Error()})
			continue
		}
		outcome.Successful++
		results = append(results, RecordResult{Key: p.ExternalRef, OK: true})
	}

	outcome.Status = batchStatus(outcome.Processed, outcome.Successful)
	o.logBatch(ctx, ch, &outcome, payloads, &SyncResult{Results: results})
	return outcome, nil
}

// finishRun updates the channel's bookkeeping after a sync: timestamps,
// failure streak, and the active -> error transition on repeated failures
// or an authentication error.
func (o *Orchestrator) finishRun(ctx context.Context, ch *models.Channel, report *SyncReport, transportErrs []error, l *zap.Logger) {
	now := time.Now().UTC()
	next := now.Add(ch.SyncInterval(o.cfg.DefaultInterval))
	updates := map[string]any{
		"last_sync_at": &now,
		"next_sync_at": &next,
	}

	authFailed := false
	for _, e := range transportErrs {
		if IsAuth(e) {
			authFailed = true
			break
		}
	}
	transportFailed := len(transportErrs) > 0

	switch {
	case authFailed:
		updates["status"] = models.ChannelStatusError
		updates["failure_streak"] = ch.FailureStreak + 1
		l.Error("Channel authentication failed, moving to error state")
		o.StopChannel(ch.ID)
	case transportFailed || report.Status() == models.SyncStatusFailed:
		streak := ch.FailureStreak + 1
		updates["failure_streak"] = streak
		if streak >= o.cfg.MaxFailures && ch.Status == models.ChannelStatusActive {
			updates["status"] = models.ChannelStatusError
			l.Error("Channel exceeded failure threshold, moving to error state",
				zap.Int("streak", streak))
			o.StopChannel(ch.ID)
		}
	default:
		updates["failure_streak"] = 0
	}

	if err := o.db.WithContext(ctx).Model(ch).Updates(updates).Error; err != nil {
		l.Error("Failed to update channel after sync", zap.Error(err))
	}

	l.Info("Sync run finished",
		zap.String("status", string(report.Status())),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
}

// withRetry retries transient connector failures with exponential backoff.
// Auth and validation failures surface immediately.
func (o *Orchestrator) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := o.cfg.RetryBackoff
	var err error
	for attempt := 0; attempt <= o.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err = fn(); err == nil || !IsTransient(err) {
			return err
		}
		o.log.Warn("Transient connector failure, will retry",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return err
}

func (o *Orchestrator) logBatch(ctx context.Context, ch *models.Channel, outcome *BatchOutcome, request, response any) {
	entry := &models.SyncLog{
		ChannelID:         ch.ID,
		SyncType:          outcome.Type,
		Direction:         outcome.Direction,
		Status:            outcome.Status,
		RecordsProcessed:  outcome.Processed,
		RecordsSuccessful: outcome.Successful,
		RecordsFailed:     outcome.Failed,
		ErrorMessage:      outcome.Error,
		StartedAt:         time.Now().UTC(),
	}
	if err := o.logs.Append(ctx, entry, request, response); err != nil {
		o.log.Error("Failed to append sync log",
			zap.String("channel_id", ch.ID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) mappingIndex(ctx context.Context, channelID string) (map[string]string, error) {
	var mappings []models.RoomTypeMapping
	if err := o.db.WithContext(ctx).Where("channel_id = ?", channelID).Find(&mappings).Error; err != nil {
		return nil, fmt.Errorf("load room type mappings: %w", err)
	}
	index := make(map[string]string, len(mappings))
	for _, m := range mappings {
		index[m.RoomTypeID] = m.ExternalRoomTypeID
	}
	return index, nil
}

// directRate looks up the hotel's own rate for the pair, the reference for
// rate-parity checks.
func (o *Orchestrator) directRate(ctx context.Context, hotelID, roomTypeID string, date time.Time) (decimal.Decimal, bool) {
	var rate decimal.Decimal
	err := o.db.WithContext(ctx).Model(&models.InventoryRecord{}).
		Joins("JOIN channels ON channels.id = inventory_records.channel_id").
		Where("channels.hotel_id = ? AND channels.name = ?", hotelID, models.ConnectorDirect).
		Where("inventory_records.room_type_id = ? AND inventory_records.date = ?", roomTypeID, models.DateOf(date)).
		Select("inventory_records.sell_rate").
		Limit(1).
		Scan(&rate).Error
	if err != nil || rate.IsZero() {
		return decimal.Zero, false
	}
	return rate, true
}

// batchStatus derives the batch outcome from its counts: success (all ok),
// failed (none ok), partial (mixed). Empty batches count as success.
func batchStatus(processed, successful int) models.SyncStatus {
	switch {
	case processed == 0 || successful == processed:
		return models.SyncStatusSuccess
	case successful == 0:
		return models.SyncStatusFailed
	default:
		return models.SyncStatusPartial
	}
}

func recordKey(externalRoomTypeID string, date time.Time) string {
	return externalRoomTypeID + "|" + date.Format("2006-01-02")
}
