// Package cache provides Redis-based caching of license snapshots in
// front of the license store. When Redis is unavailable it degrades to
// misses, so validation falls back to the store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"rstudio-ai-chat/config"
	"rstudio-ai-chat/internal/license"
)

// License snapshots are short-lived: every mutation invalidates, the
// TTL only bounds staleness if an invalidation is lost.
const (
	licenseKeyPrefix  = "license:%s"
	DefaultLicenseTTL = 30 * time.Second
)

// Service provides Redis-based caching with graceful degradation.
type Service struct {
	client       *redis.Client
	config       config.RedisConfig
	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
	ttl           time.Duration
	ping          func(ctx context.Context) error
}

// NewService creates a cache service and verifies connectivity. A
// failed initial connection returns the service in degraded mode, not
// an error.
func NewService(cfg config.RedisConfig) (*Service, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	s := &Service{
		client:        client,
		config:        cfg,
		maxFailures:   3,
		checkInterval: 15 * time.Second,
		ttl:           DefaultLicenseTTL,
		ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.ping(ctx); err != nil {
		return s, nil
	}
	s.healthy = true
	s.lastCheck = time.Now()
	return s, nil
}

// IsHealthy returns whether Redis is currently available
func (s *Service) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

// GetLicense returns a cached snapshot, or a miss when absent or when
// Redis is degraded.
func (s *Service) GetLicense(ctx context.Context, key string) (*license.License, bool) {
	s.checkHealth()
	if !s.IsHealthy() {
		return nil, false
	}

	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.recordFailure()
		}
		return nil, false
	}
	s.recordSuccess()

	var lic license.License
	if err := json.Unmarshal(data, &lic); err != nil {
		return nil, false
	}
	return &lic, true
}

// SetLicense caches a license snapshot. Failures are absorbed.
func (s *Service) SetLicense(ctx context.Context, lic *license.License) {
	s.checkHealth()
	if !s.IsHealthy() {
		return
	}

	data, err := json.Marshal(lic)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, s.key(lic.Key), data, s.ttl).Err(); err != nil {
		s.recordFailure()
		return
	}
	s.recordSuccess()
}

// InvalidateLicense drops the cached snapshot for a key
func (s *Service) InvalidateLicense(ctx context.Context, key string) {
	s.checkHealth()
	if !s.IsHealthy() {
		return
	}
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		s.recordFailure()
		return
	}
	s.recordSuccess()
}

// Close closes the Redis connection
func (s *Service) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *Service) key(licenseKey string) string {
	return fmt.Sprintf(licenseKeyPrefix, licenseKey)
}

// recordFailure tracks a Redis operation failure for the circuit breaker
func (s *Service) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failureCount++
	if s.failureCount >= s.maxFailures {
		s.healthy = false
	}
}

// recordSuccess resets the failure counter on successful operation
func (s *Service) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCount = 0
	s.healthy = true
	s.lastCheck = time.Now()
}

// checkHealth re-probes Redis in the background once per interval
// while the breaker is open, so a recovered Redis closes it again.
func (s *Service) checkHealth() {
	s.mu.RLock()
	shouldCheck := !s.healthy && time.Since(s.lastCheck) >= s.checkInterval
	s.mu.RUnlock()

	if !shouldCheck {
		return
	}

	s.mu.Lock()
	s.lastCheck = time.Now()
	s.mu.Unlock()

	go func() {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := s.ping(pingCtx); err == nil {
			s.recordSuccess()
		}
	}()
}
