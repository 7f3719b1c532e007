package channel

import (
	"channel-manager/core/storage"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
}

// NewFeature creates the channel management feature.
func NewFeature(db *gorm.DB, logger *zap.Logger, client storage.Client, bucket string, connectors ConnectorSet, cfg OrchestratorConfig) *Feature {
	svc := NewService(db, logger, client, bucket, connectors, cfg)
	h := NewHandler(svc)
	return &Feature{service: svc, handler: h}
}

// Service exposes the wired service for the process lifecycle hooks.
func (f *Feature) Service() *Service {
	return f.service
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "channel"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return true
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}
