package state

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateManager keeps crawl progress that should survive a restart
type StateManager interface {
	WasExtracted(ctx context.Context, pageURL string) (bool, error)
	MarkExtracted(ctx context.Context, pageURL string, products int) error
	SaveSessionStats(ctx context.Context, sessionID string, stats any) error
	LastSessionStats(ctx context.Context, dest any) (string, error)
}

type redisStateManager struct {
	redisClient *redis.Client
	keyPrefix   string
	ttl         time.Duration
}

// NewRedisStateManager creates a state manager. Extraction marks expire after ttl;
// a zero ttl keeps them forever.
func NewRedisStateManager(redisClient *redis.Client, keyPrefix string, ttl time.Duration) StateManager {
	return &redisStateManager{
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
		ttl:         ttl,
	}
}

func (s *redisStateManager) extractedKey(pageURL string) string {
	sum := sha1.Sum([]byte(pageURL))
	return s.keyPrefix + "extracted:" + hex.EncodeToString(sum[:])
}

func (s *redisStateManager) WasExtracted(ctx context.Context, pageURL string) (bool, error) {
	n, err := s.redisClient.Exists(ctx, s.extractedKey(pageURL)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check extraction cache for %s: %w", pageURL, err)
	}
	return n > 0, nil
}

func (s *redisStateManager) MarkExtracted(ctx context.Context, pageURL string, products int) error {
	err := s.redisClient.Set(ctx, s.extractedKey(pageURL), products, s.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to mark %s as extracted: %w", pageURL, err)
	}
	return nil
}

func (s *redisStateManager) SaveSessionStats(ctx context.Context, sessionID string, stats any) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to serialize stats for session %s: %w", sessionID, err)
	}

	pipe := s.redisClient.TxPipeline()
	pipe.Set(ctx, s.keyPrefix+"session:"+sessionID, data, 0) // No expiration
	pipe.Set(ctx, s.keyPrefix+"session:last", sessionID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save stats for session %s: %w", sessionID, err)
	}
	return nil
}

// LastSessionStats decodes the stats of the most recent session into dest and returns
// its id. An empty id means no session was saved yet.
func (s *redisStateManager) LastSessionStats(ctx context.Context, dest any) (string, error) {
	sessionID, err := s.redisClient.Get(ctx, s.keyPrefix+"session:last").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil // No session saved yet
		}
		return "", fmt.Errorf("failed to get last session id: %w", err)
	}

	data, err := s.redisClient.Get(ctx, s.keyPrefix+"session:"+sessionID).Bytes()
	if err != nil {
		return "", fmt.Errorf("failed to get stats for session %s: %w", sessionID, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return "", fmt.Errorf("failed to parse stats for session %s: %w", sessionID, err)
	}
	return sessionID, nil
}
