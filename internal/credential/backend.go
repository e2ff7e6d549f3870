package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"memberconsole/internal/config"

	"github.com/gofiber/storage/postgres/v3"
	"github.com/natefinch/atomic"
	"github.com/redis/go-redis/v9"
)

// Backend is the durable side of a Store. It has the shape of fiber.Storage:
// Get returns nil, nil for a missing key.
type Backend interface {
	Get(key string) ([]byte, error)
	Set(key string, val []byte, exp time.Duration) error
	Delete(key string) error
	Close() error
}

type BackendType string

const (
	BackendMemory   BackendType = "memory"
	BackendFile     BackendType = "file"
	BackendRedis    BackendType = "redis"
	BackendPostgres BackendType = "postgres"
)

// NewBackend selects a backend from the credentials config.
func NewBackend(cfg config.CredentialsConfig) (Backend, error) {
	switch BackendType(cfg.Backend) {
	case BackendMemory, "":
		return NewMemoryBackend(), nil

	case BackendFile:
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file credentials backend requires a path")
		}
		return NewFileBackend(cfg.FilePath)

	case BackendRedis:
		return NewRedisBackend(redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})), nil

	case BackendPostgres:
		return postgres.New(postgres.Config{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			Database: cfg.PostgresDatabase,
			Username: cfg.PostgresUser,
			Password: cfg.PostgresPassword,
			Table:    cfg.PostgresTable,
			SSLMode:  cfg.PostgresSSLMode,
			Reset:    false,
		}), nil

	default:
		return nil, fmt.Errorf("unknown credentials backend: %s", cfg.Backend)
	}
}

// MemoryBackend keeps values for the life of the process.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(v), nil
}

func (m *MemoryBackend) Set(key string, val []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = bytes.Clone(val)
	return nil
}

func (m *MemoryBackend) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// FileBackend keeps all keys in one JSON document, rewritten atomically on
// every change so a crash never leaves a torn file.
type FileBackend struct {
	mu   sync.Mutex
	path string
	data map[string][]byte
}

func NewFileBackend(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}
	f := &FileBackend{path: path, data: make(map[string][]byte)}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &f.data); err != nil {
			return nil, fmt.Errorf("failed to decode credentials file %s: %w", path, err)
		}
	}
	return f, nil
}

func (f *FileBackend) Get(key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(v), nil
}

func (f *FileBackend) Set(key string, val []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = bytes.Clone(val)
	return f.flush()
}

func (f *FileBackend) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; !ok {
		return nil
	}
	delete(f.data, key)
	return f.flush()
}

func (f *FileBackend) Close() error { return nil }

func (f *FileBackend) flush() error {
	raw, err := json.Marshal(f.data)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := atomic.WriteFile(f.path, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return os.Chmod(f.path, 0o600)
}

// RedisBackend stores credentials in Redis, so several console processes on
// one workstation share a session.
type RedisBackend struct {
	client  redis.UniversalClient
	timeout time.Duration
}

func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client, timeout: 3 * time.Second}
}

func (r *RedisBackend) Get(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (r *RedisBackend) Set(key string, val []byte, exp time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, key, val, exp).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisBackend) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
