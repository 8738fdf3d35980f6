package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

const importReportPrefix = "import:"

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// ImportReportRepository stores import reports in Redis. Without a Redis client
// reports are kept in process memory, which is enough for a single instance.
type ImportReportRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	mu     sync.Mutex
	memory map[string]memoryEntry
	now    func() time.Time
}

// NewImportReportRepository constructs the report store. client may be nil.
func NewImportReportRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ImportReportRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if client == nil {
		logger.Info("redis disabled, import reports kept in memory", zap.Duration("ttl", ttl))
	}
	return &ImportReportRepository{
		client: client,
		ttl:    ttl,
		logger: logger,
		memory: make(map[string]memoryEntry),
		now:    time.Now,
	}
}

// Save writes the report, replacing any previous version and resetting its TTL.
func (r *ImportReportRepository) Save(ctx context.Context, report *models.ImportReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal import report %s: %w", report.ID, err)
	}
	key := importReportPrefix + report.ID

	if r.client == nil {
		r.mu.Lock()
		r.memory[key] = memoryEntry{payload: payload, expiresAt: r.now().Add(r.ttl)}
		r.mu.Unlock()
		return nil
	}

	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Find loads a report. appErrors.ErrCacheMiss is returned for unknown or expired ids.
func (r *ImportReportRepository) Find(ctx context.Context, id string) (*models.ImportReport, error) {
	key := importReportPrefix + id

	var raw []byte
	if r.client == nil {
		r.mu.Lock()
		entry, ok := r.memory[key]
		if ok && r.now().After(entry.expiresAt) {
			delete(r.memory, key)
			ok = false
		}
		r.mu.Unlock()
		if !ok {
			return nil, appErrors.ErrCacheMiss
		}
		raw = entry.payload
	} else {
		var err error
		raw, err = r.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, appErrors.ErrCacheMiss
			}
			return nil, fmt.Errorf("redis get %s: %w", key, err)
		}
	}

	var report models.ImportReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("unmarshal import report %s: %w", id, err)
	}
	return &report, nil
}

// Close releases the underlying Redis connection if present.
func (r *ImportReportRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
