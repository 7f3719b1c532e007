package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"channel-manager/core/storage"
	"channel-manager/feature/channel/models"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SyncLogStore appends audit records for sync operations. Rows are immutable
// once written; raw request/response payloads are archived to object storage
// and referenced by key.
type SyncLogStore struct {
	db     *gorm.DB
	client storage.Client
	bucket string
	logger *zap.Logger
}

// NewSyncLogStore creates a store. client may be nil when no archive is
// configured; payloads are then dropped and only counts are kept.
func NewSyncLogStore(db *gorm.DB, client storage.Client, bucket string, logger *zap.Logger) *SyncLogStore {
	return &SyncLogStore{db: db, client: client, bucket: bucket, logger: logger}
}

// Append writes one sync log row, archiving the payloads first. An archive
// failure downgrades to a warning: losing a payload blob must not turn a
// successful sync into a failed one.
func (s *SyncLogStore) Append(ctx context.Context, entry *models.SyncLog, request, response any) error {
	if entry.ID == "" {
		// Assigned here rather than in the BeforeCreate hook because the
		// archive keys embed the id.
		entry.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if entry.FinishedAt == nil {
		entry.FinishedAt = &now
	}

	if s.client != nil && request != nil {
		if key, err := s.archive(ctx, entry, "request", request); err != nil {
			s.logger.Warn("Failed to archive request payload", zap.Error(err))
		} else {
			entry.RequestKey = key
		}
	}
	if s.client != nil && response != nil {
		if key, err := s.archive(ctx, entry, "response", response); err != nil {
			s.logger.Warn("Failed to archive response payload", zap.Error(err))
		} else {
			entry.ResponseKey = key
		}
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append sync log: %w", err)
	}
	return nil
}

// List returns the most recent sync logs for a channel.
func (s *SyncLogStore) List(ctx context.Context, channelID string, limit, offset int) ([]models.SyncLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var logs []models.SyncLog
	err := s.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("list sync logs: %w", err)
	}
	return logs, nil
}

func (s *SyncLogStore) archive(ctx context.Context, entry *models.SyncLog, kind string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", kind, err)
	}

	key := fmt.Sprintf("synclogs/%s/%s/%s.json", entry.ChannelID, entry.ID, kind)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("upload %s payload: %w", kind, err)
	}
	return key, nil
}
