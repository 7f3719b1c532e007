package channel

import (
	"errors"
	"time"

	"channel-manager/core/logger"
	"channel-manager/feature/channel/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for channel management.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the channel routes. Static paths go first so
// fiber does not capture them with the :id parameter.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/channels")
	group.Get("/conflicts", h.HandleListConflicts)
	group.Put("/inventory", h.HandleUpdateInventory)
	group.Post("/bookings/:id/resolve", h.HandleResolveBooking)
	group.Post("/", h.HandleRegister)
	group.Get("/", h.HandleList)
	group.Get("/:id", h.HandleGet)
	group.Post("/:id/verify", h.HandleVerify)
	group.Delete("/:id", h.HandleDeactivate)
	group.Post("/:id/sync", h.HandleTriggerSync)
	group.Get("/:id/inventory", h.HandleGetInventory)
	group.Get("/:id/logs", h.HandleListLogs)
	group.Post("/:id/mappings", h.HandleUpsertMapping)
	group.Get("/:id/mappings", h.HandleListMappings)
	group.Post("/:id/bookings", h.HandleIngestBooking)
}

type registerRequest struct {
	HotelID string `json:"hotel_id"`
	RegisterInput
}

// HandleRegister creates a new channel connection in testing state.
// @Summary Register Channel
// @Description Register a new OTA channel connection for a hotel. The channel starts in testing state.
// @Tags channels
// @Accept json
// @Produce json
// @Param request body registerRequest true "Channel connection settings"
// @Success 201 {object} models.Channel "Created Channel"
// @Failure 400 {object} map[string]string "Validation Error"
// @Failure 409 {object} map[string]string "Duplicate Channel"
// @Router /channels [post]
func (h *Handler) HandleRegister(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	ch, err := h.service.Registry.Register(c.Context(), req.HotelID, req.RegisterInput)
	if err != nil {
		l.Error("Channel registration failed", zap.String("hotel_id", req.HotelID), zap.Error(err))
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(ch)
}

// HandleList lists channels, optionally filtered by hotel.
// @Summary List Channels
// @Description List registered channel connections.
// @Tags channels
// @Produce json
// @Param hotel_id query string false "Filter by hotel"
// @Success 200 {array} models.Channel "Channels"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /channels [get]
func (h *Handler) HandleList(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	channels, err := h.service.Registry.List(c.Context(), c.Query("hotel_id"))
	if err != nil {
		l.Error("Channel listing failed", zap.Error(err))
		return errorResponse(c, err)
	}

	return c.JSON(channels)
}

// HandleGet returns a single channel.
// @Summary Get Channel
// @Description Get a registered channel connection by id.
// @Tags channels
// @Produce json
// @Param id path string true "Channel ID"
// @Success 200 {object} models.Channel "Channel"
// @Failure 404 {object} map[string]string "Not Found"
// @Router /channels/{id} [get]
func (h *Handler) HandleGet(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	ch, err := h.service.Registry.Get(c.Context(), c.Params("id"))
	if err != nil {
		l.Error("Channel lookup failed", zap.String("channel_id", c.Params("id")), zap.Error(err))
		return errorResponse(c, err)
	}

	return c.JSON(ch)
}

// HandleVerify runs the credential check and activates the channel on success.
// @Summary Verify Channel
// @Description Verify the channel's credentials against the OTA. On success the channel becomes active and is scheduled for sync.
// @Tags channels
// @Produce json
// @Param id path string true "Channel ID"
// @Success 200 {object} models.Channel "Verified Channel"
// @Failure 404 {object} map[string]string "Not Found"
// @Failure 502 {object} map[string]string "Verification Failed"
// @Router /channels/{id}/verify [post]
func (h *Handler) HandleVerify(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	ch, err := h.service.Registry.Verify(c.Context(), c.Params("id"))
	if err != nil {
		l.Error("Channel verification failed", zap.String("channel_id", c.Params("id")), zap.Error(err))
		if errors.Is(err, ErrChannelNotFound) {
			return errorResponse(c, err)
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(ch)
}

// HandleDeactivate disconnects a channel. Historical data is retained.
// @Summary Deactivate Channel
// @Description Deactivate a channel connection and stop its sync loop. Sync logs and bookings are retained.
// @Tags channels
// @Produce json
// @Param id path string true "Channel ID"
// @Success 204 "Deactivated"
// @Failure 404 {object} map[string]string "Not Found"
// @Router /channels/{id} [delete]
func (h *Handler) HandleDeactivate(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	if err := h.service.Registry.Deactivate(c.Context(), c.Params("id")); err != nil {
		l.Error("Channel deactivation failed", zap.String("channel_id", c.Params("id")), zap.Error(err))
		return errorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// HandleTriggerSync starts a manual sync cycle for the channel.
// @Summary Trigger Sync
// @Description Run a full sync cycle for the channel now. Concurrent triggers for the same channel are coalesced.
// @Tags channels
// @Produce json
// @Param id path string true "Channel ID"
// @Success 200 {object} SyncReport "Sync Report"
// @Failure 404 {object} map[string]string "Not Found"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /channels/{id}/sync [post]
func (h *Handler) HandleTriggerSync(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	report, err := h.service.Orchestrator.TriggerSync(c.Context(), c.Params("id"))
	if err != nil {
		l.Error("Manual sync failed", zap.String("channel_id", c.Params("id")), zap.Error(err))
		return errorResponse(c, err)
	}

	return c.JSON(report)
}

// HandleGetInventory returns the channel's inventory grid for a date range.
// @Summary Get Inventory Grid
// @Description Get the per-date inventory and rate records pushed to this channel.
// @Tags channels
// @Produce json
// @Param id path string true "Channel ID"
// @Param from query string false "Range start (YYYY-MM-DD), defaults to today"
// @Param to query string false "Range end (YYYY-MM-DD), defaults to from+30d"
// @Success 200 {array} models.InventoryRecord "Inventory Records"
// @Failure 400 {object} map[string]string "Invalid Date"
// @Router /channels/{id}/inventory [get]
func (h *Handler) HandleGetInventory(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	from, to, err := dateRange(c.Query("from"), c.Query("to"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	records, err := h.service.Ledger.Grid(c.Context(), c.Params("id"), from, to)
	if err != nil {
		l.Error("Inventory grid lookup failed", zap.String("channel_id", c.Params("id")), zap.Error(err))
		return errorResponse(c, err)
	}

	return c.JSON(records)
}

// HandleUpdateInventory applies a hotel-side stock or restriction change.
// @Summary Update Inventory
// @Description Apply a hotel-side inventory change. A physical room count change rebalances every channel sharing the room type.
// @Tags channels
// @Accept json
// @Produce json
// @Param request body InventoryUpdate true "Inventory update"
// @Success 204 "Applied"
// @Failure 400 {object} map[string]string "Validation Error"
// @Router /channels/inventory [put]
func (h *Handler) HandleUpdateInventory(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var upd InventoryUpdate
	if err := c.BodyParser(&upd); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := h.service.ApplyInventoryUpdate(c.Context(), upd); err != nil {
		l.Error("Inventory update failed", zap.String("room_type_id", upd.RoomTypeID), zap.Error(err))
		return errorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// HandleListLogs returns the channel's sync history, newest first.
// @Summary List Sync Logs
// @Description List sync log entries for a channel.
// @Tags channels
// @Produce json
// @Param id path string true "Channel ID"
// @Param limit query int false "Page size (max 200, default 50)"
// @Param offset query int false "Page offset"
// @Success 200 {array} models.SyncLog "Sync Logs"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /channels/{id}/logs [get]
func (h *Handler) HandleListLogs(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	entries, err := h.service.Logs.List(c.Context(), c.Params("id"), c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		l.Error("Sync log listing failed", zap.String("channel_id", c.Params("id")), zap.Error(err))
		return errorResponse(c, err)
	}

	return c.JSON(entries)
}

// HandleUpsertMapping links an internal room type to the channel's room type id.
// @Summary Upsert Room-Type Mapping
// @Description Create or update the mapping between an internal room type and the channel's external room type id.
// @Tags channels
// @Accept json
// @Produce json
// @Param id path string true "Channel ID"
// @Param request body models.RoomTypeMapping true "Mapping"
// @Success 200 {object} models.RoomTypeMapping "Mapping"
// @Failure 400 {object} map[string]string "Validation Error"
// @Router /channels/{id}/mappings [post]
func (h *Handler) HandleUpsertMapping(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var mapping models.RoomTypeMapping
	if err := c.BodyParser(&mapping); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	mapping.ChannelID = c.Params("id")

	saved, err := h.service.Mapper.Upsert(c.Context(), &mapping)
	if err != nil {
		l.Error("Mapping upsert failed", zap.String("channel_id", mapping.ChannelID), zap.Error(err))
		return errorResponse(c, err)
	}

	return c.JSON(saved)
}

// HandleListMappings lists the channel's room-type mappings.
// @Summary List Room-Type Mappings
// @Description List the room-type mappings configured for a channel.
// @Tags channels
// @Produce json
// @Param id path string true "Channel ID"
// @Success 200 {array} models.RoomTypeMapping "Mappings"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /channels/{id}/mappings [get]
func (h *Handler) HandleListMappings(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	mappings, err := h.service.Mapper.ForChannel(c.Context(), c.Params("id"))
	if err != nil {
		l.Error("Mapping listing failed", zap.String("channel_id", c.Params("id")), zap.Error(err))
		return errorResponse(c, err)
	}

	return c.JSON(mappings)
}

// HandleIngestBooking accepts a booking pushed by the channel.
// @Summary Ingest Booking
// @Description Ingest a booking notification from the channel. Duplicates by external reference are treated as modifications.
// @Tags channels
// @Accept json
// @Produce json
// @Param id path string true "Channel ID"
// @Param request body BookingPayload true "Booking payload"
// @Success 201 {object} models.ChannelBooking "Reconciled Booking"
// @Failure 400 {object} map[string]string "Validation Error"
// @Failure 404 {object} map[string]string "Not Found"
// @Router /channels/{id}/bookings [post]
func (h *Handler) HandleIngestBooking(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var payload BookingPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	ch, err := h.service.Registry.Get(c.Context(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}

	booking, err := h.service.Reconciler.Ingest(c.Context(), ch, payload)
	if err != nil {
		l.Error("Booking ingestion failed",
			zap.String("channel_id", ch.ID),
			zap.String("external_ref", payload.ExternalRef),
			zap.Error(err))
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(booking)
}

// HandleListConflicts lists bookings parked in the conflict queue.
// @Summary List Conflict Bookings
// @Description List bookings that could not be reconciled automatically and need manual resolution.
// @Tags channels
// @Produce json
// @Param hotel_id query string false "Filter by hotel"
// @Success 200 {array} models.ChannelBooking "Conflict Bookings"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /channels/conflicts [get]
func (h *Handler) HandleListConflicts(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	conflicts, err := h.service.Reconciler.Conflicts(c.Context(), c.Query("hotel_id"))
	if err != nil {
		l.Error("Conflict listing failed", zap.Error(err))
		return errorResponse(c, err)
	}

	return c.JSON(conflicts)
}

type resolveRequest struct {
	Action string `json:"action"`
	Notes  string `json:"notes"`
}

// HandleResolveBooking resolves a conflict booking by confirming or cancelling it.
// @Summary Resolve Conflict Booking
// @Description Resolve a conflict booking. Action "confirm" retries the inventory reservation, "cancel" rejects the booking.
// @Tags channels
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body resolveRequest true "Resolution"
// @Success 200 {object} models.ChannelBooking "Resolved Booking"
// @Failure 400 {object} map[string]string "Validation Error"
// @Failure 404 {object} map[string]string "Not Found"
// @Failure 409 {object} map[string]string "Still Oversold"
// @Router /channels/bookings/{id}/resolve [post]
func (h *Handler) HandleResolveBooking(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	booking, err := h.service.Reconciler.Resolve(c.Context(), c.Params("id"), req.Action, req.Notes)
	if err != nil {
		l.Error("Conflict resolution failed", zap.String("booking_id", c.Params("id")), zap.Error(err))
		return errorResponse(c, err)
	}

	return c.JSON(booking)
}

// errorResponse maps domain errors to HTTP status codes.
func errorResponse(c *fiber.Ctx, err error) error {
	var validation *ValidationError
	switch {
	case errors.As(err, &validation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrConnectorUnknown):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrChannelNotFound),
		errors.Is(err, ErrBookingNotFound),
		errors.Is(err, ErrMappingNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrChannelExists),
		errors.Is(err, ErrOversellRejected):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

// dateRange parses optional from/to query values. Defaults cover the next
// thirty days starting today.
func dateRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	from := models.DateOf(time.Now().UTC())
	if fromRaw != "" {
		parsed, err := time.Parse("2006-01-02", fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, &ValidationError{Field: "from", Reason: "must be YYYY-MM-DD"}
		}
		from = parsed
	}
	to := from.AddDate(0, 0, 30)
	if toRaw != "" {
		parsed, err := time.Parse("2006-01-02", toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, &ValidationError{Field: "to", Reason: "must be YYYY-MM-DD"}
		}
		to = parsed
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, &ValidationError{Field: "to", Reason: "must not precede from"}
	}
	return from, to, nil
}
