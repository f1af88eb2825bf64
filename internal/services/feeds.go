package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/store"
)

// FeedControlStore is the slice of the feed store the admin surface uses.
type FeedControlStore interface {
	ListStatuses(ctx context.Context) ([]*store.FeedStatus, error)
	RecentLogs(ctx context.Context, feedName string, limit int) ([]*store.IngestionLog, error)
	SetEnabled(ctx context.Context, feedName string, enabled bool) error
}

// FeedHealthService exposes per-feed health and ingestion history.
type FeedHealthService struct {
	feeds  FeedControlStore
	logger *zap.Logger
}

func NewFeedHealthService(feeds FeedControlStore, logger *zap.Logger) *FeedHealthService {
	return &FeedHealthService{feeds: feeds, logger: logger}
}

// Statuses returns the latest status row per feed.
func (s *FeedHealthService) Statuses(ctx context.Context) ([]*store.FeedStatus, error) {
	statuses, err := s.feeds.ListStatuses(ctx)
	if err != nil {
		return nil, errcode.Wrap(errcode.Internal, "listing feed statuses", err)
	}
	if statuses == nil {
		statuses = []*store.FeedStatus{}
	}
	return statuses, nil
}

// Logs returns recent ingestion runs, newest first. An empty feedName
// covers all feeds.
func (s *FeedHealthService) Logs(ctx context.Context, feedName string, limit int) ([]*store.IngestionLog, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	logs, err := s.feeds.RecentLogs(ctx, feedName, limit)
	if err != nil {
		return nil, errcode.Wrap(errcode.Internal, "listing ingestion logs", err)
	}
	if logs == nil {
		logs = []*store.IngestionLog{}
	}
	return logs, nil
}

// SetEnabled flips one feed on or off. Disabled feeds are skipped by the
// next ingestion run; their rows stay put.
func (s *FeedHealthService) SetEnabled(ctx context.Context, feedName string, enabled bool) error {
	if feedName == "" {
		return errcode.New(errcode.MissingFields, "feed name is required").
			WithDetails(map[string]any{"field": "feed"})
	}
	if err := s.feeds.SetEnabled(ctx, feedName, enabled); err != nil {
		return errcode.Wrap(errcode.Internal, "updating feed", err)
	}
	s.logger.Info("feed toggled", zap.String("feed", feedName), zap.Bool("enabled", enabled))
	return nil
}
