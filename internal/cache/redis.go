package cache

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/transcaribe/tracking_core/internal/models"
)

var (
	client     *redis.Client
	clientOnce sync.Once
	clientErr  error
)

// Config holds Redis configuration
type Config struct {
	Host        string
	Port        int
	Password    string
	DB          int
	PlanTTL     time.Duration
	SnapshotTTL time.Duration
	MutexTTL    time.Duration
}

// LoadConfigFromEnv loads Redis configuration from environment variables
func LoadConfigFromEnv() *Config {
	port, _ := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	db, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	planTTL, _ := time.ParseDuration(getEnv("CACHE_PLAN_TTL", "10m"))
	snapshotTTL, _ := time.ParseDuration(getEnv("CACHE_SNAPSHOT_TTL", "2s"))
	mutexTTL, _ := time.ParseDuration(getEnv("CACHE_MUTEX_TTL", "5s"))

	return &Config{
		Host:        getEnv("REDIS_HOST", "localhost"),
		Port:        port,
		Password:    getEnv("REDIS_PASSWORD", ""),
		DB:          db,
		PlanTTL:     planTTL,
		SnapshotTTL: snapshotTTL,
		MutexTTL:    mutexTTL,
	}
}

// GetClient returns the global Redis client (singleton pattern)
func GetClient() (*redis.Client, error) {
	clientOnce.Do(func() {
		config := LoadConfigFromEnv()

		opts := &redis.Options{
			Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
			Password:     config.Password,
			DB:           config.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			MinIdleConns: 2,
		}

		if getEnv("REDIS_TLS_ENABLED", "false") == "true" {
			opts.TLSConfig = &tls.Config{
				MinVersion: tls.VersionTLS12,
			}
		}

		client = redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			clientErr = fmt.Errorf("failed to connect to Redis: %w", err)
			return
		}
	})

	return client, clientErr
}

// Close closes the Redis client
func Close() {
	if client != nil {
		client.Close()
	}
}

// PlanKey generates a cache key for a trip-plan query
func PlanKey(originLat, originLon, destLat, destLon float64) string {
	// Deterministic hash of the rounded coordinates
	data := fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", originLat, originLon, destLat, destLon)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("plan:%x", hash[:8])
}

// BusSnapshotKey generates a cache key for an active-bus snapshot.
// routeID 0 means the unfiltered snapshot.
func BusSnapshotKey(routeID int64) string {
	return fmt.Sprintf("buses:route:%d", routeID)
}

// LockKey generates a mutex lock key
func LockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

// GetPlan retrieves a cached trip plan
func GetPlan(ctx context.Context, key string) (*models.TripPlan, error) {
	client, err := GetClient()
	if err != nil {
		return nil, err
	}

	data, err := client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil // cache miss
	}
	if err != nil {
		return nil, err
	}

	var plan models.TripPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached plan: %w", err)
	}

	return &plan, nil
}

// SetPlan caches a trip plan
func SetPlan(ctx context.Context, key string, plan *models.TripPlan, ttl time.Duration) error {
	client, err := GetClient()
	if err != nil {
		return err
	}

	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	return client.Set(ctx, key, data, ttl).Err()
}

// GetBusSnapshot retrieves a cached active-bus list. A nil slice with a nil
// error is a cache miss.
func GetBusSnapshot(ctx context.Context, key string) ([]models.VirtualBus, error) {
	client, err := GetClient()
	if err != nil {
		return nil, err
	}

	data, err := client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var buses []models.VirtualBus
	if err := json.Unmarshal(data, &buses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached snapshot: %w", err)
	}
	if buses == nil {
		buses = []models.VirtualBus{}
	}

	return buses, nil
}

// SetBusSnapshot caches an active-bus list. The TTL is short; the snapshot
// only has to absorb read bursts between engine ticks.
func SetBusSnapshot(ctx context.Context, key string, buses []models.VirtualBus, ttl time.Duration) error {
	client, err := GetClient()
	if err != nil {
		return err
	}

	data, err := json.Marshal(buses)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return client.Set(ctx, key, data, ttl).Err()
}

// AcquireLock attempts to acquire a distributed lock
// Returns true if lock was acquired, false if already locked
func AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	client, err := GetClient()
	if err != nil {
		return false, err
	}

	ok, err := client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// ReleaseLock releases a distributed lock
func ReleaseLock(ctx context.Context, key string) error {
	client, err := GetClient()
	if err != nil {
		return err
	}

	return client.Del(ctx, key).Err()
}

// WaitForPlan waits for another request's plan computation to finish and
// then retrieves the cached result. Avoids a thundering herd on popular
// origin/destination pairs.
func WaitForPlan(ctx context.Context, planKey string, maxWait time.Duration) (*models.TripPlan, error) {
	client, err := GetClient()
	if err != nil {
		return nil, err
	}

	lockKey := LockKey(planKey)
	deadline := time.Now().Add(maxWait)

	for time.Now().Before(deadline) {
		exists, err := client.Exists(ctx, lockKey).Result()
		if err != nil {
			return nil, err
		}

		if exists == 0 {
			return GetPlan(ctx, planKey)
		}

		time.Sleep(100 * time.Millisecond)
	}

	return nil, fmt.Errorf("timeout waiting for lock")
}

// HealthCheck performs a health check on the Redis connection
func HealthCheck(ctx context.Context) error {
	client, err := GetClient()
	if err != nil {
		return fmt.Errorf("Redis client not initialized: %w", err)
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis ping failed: %w", err)
	}

	return nil
}

// Stats returns Redis stats
func Stats(ctx context.Context) (map[string]interface{}, error) {
	client, err := GetClient()
	if err != nil {
		return nil, err
	}

	info, err := client.Info(ctx, "stats").Result()
	if err != nil {
		return nil, err
	}

	poolStats := client.PoolStats()

	return map[string]interface{}{
		"info":        info,
		"hits":        poolStats.Hits,
		"misses":      poolStats.Misses,
		"timeouts":    poolStats.Timeouts,
		"total_conns": poolStats.TotalConns,
		"idle_conns":  poolStats.IdleConns,
		"stale_conns": poolStats.StaleConns,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
