package decisionlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pulsefit/pulsefit-iam/internal/authz"
)

const (
	recentKey  = "decisionlog:recent"
	recentCap  = 100
	queryLimit = 50
)

// Service records authorization decisions and answers history queries. It
// satisfies the façade's DecisionRecorder contract; every write lands in
// Postgres and is mirrored into a capped Redis list for cheap recent-history
// reads.
type Service struct {
	repo   Repository
	cache  *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service. The cache is optional.
func NewService(repo Repository, cache *redis.Client, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// RecordAccess records one access decision.
func (s *Service) RecordAccess(ctx context.Context, decision authz.AccessDecision) error {
	entry := Entry{
		ID:       uuid.NewString(),
		Kind:     KindAccess,
		ActorID:  decision.Request.Actor.ID,
		Resource: decision.Request.Resource,
		Action:   decision.Request.Action,
		Granted:  decision.Granted,
		Reason:   decision.Reason,
		Strategy: decision.Strategy,
	}
	entry.Timestamp = decision.Timestamp
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}
	return s.append(ctx, entry)
}

// RecordShare records one sharing decision.
func (s *Service) RecordShare(ctx context.Context, actorID, targetID, resource string, granted bool, reason string) error {
	return s.append(ctx, Entry{
		ID:        uuid.NewString(),
		Kind:      KindShare,
		ActorID:   actorID,
		TargetID:  targetID,
		Resource:  resource,
		Granted:   granted,
		Reason:    reason,
		Timestamp: s.now().UTC(),
	})
}

// RecordEvent records a generic security event.
func (s *Service) RecordEvent(ctx context.Context, event string, detail map[string]any) error {
	return s.append(ctx, Entry{
		ID:        uuid.NewString(),
		Kind:      KindEvent,
		Reason:    event,
		Detail:    detail,
		Timestamp: s.now().UTC(),
	})
}

// Recent returns the newest entries. The Redis mirror answers when it can;
// Postgres is the source of truth.
func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	limit = clampLimit(limit)
	if s.cache != nil {
		raw, err := s.cache.LRange(ctx, recentKey, 0, int64(limit-1)).Result()
		if err == nil && len(raw) > 0 {
			entries := make([]Entry, 0, len(raw))
			for _, item := range raw {
				var entry Entry
				if err := json.Unmarshal([]byte(item), &entry); err != nil {
					entries = nil
					break
				}
				entries = append(entries, entry)
			}
			if entries != nil {
				return entries, nil
			}
		}
		if err != nil && s.logger != nil {
			s.logger.Warn("decision log cache read", slog.Any("error", err))
		}
	}
	return s.repo.Recent(ctx, limit)
}

// ByActor returns the newest entries for one actor.
func (s *Service) ByActor(ctx context.Context, actorID string, limit int) ([]Entry, error) {
	return s.repo.ByActor(ctx, actorID, clampLimit(limit))
}

// Prune deletes entries older than the retention window and reports how many
// rows were removed.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.DeleteOlderThan(ctx, s.now().Add(-retention))
}

func (s *Service) append(ctx context.Context, entry Entry) error {
	if err := s.repo.Insert(ctx, entry); err != nil {
		return err
	}
	if s.cache != nil {
		raw, err := json.Marshal(entry)
		if err == nil {
			pipe := s.cache.TxPipeline()
			pipe.LPush(ctx, recentKey, raw)
			pipe.LTrim(ctx, recentKey, 0, recentCap-1)
			if _, err := pipe.Exec(ctx); err != nil && s.logger != nil {
				s.logger.Warn("decision log cache write", slog.Any("error", err))
			}
		}
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > queryLimit {
		return queryLimit
	}
	return limit
}
