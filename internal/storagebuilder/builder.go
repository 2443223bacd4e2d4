package storagebuilder

import (
	"context"
	"fmt"
	"time"

	"github.com/LinkovichChomofski/calendaragent/internal/locker"
	redislocker "github.com/LinkovichChomofski/calendaragent/internal/locker/redis"
	"github.com/LinkovichChomofski/calendaragent/internal/storage"
	memorystorage "github.com/LinkovichChomofski/calendaragent/internal/storage/memory"
	sqlstorage "github.com/LinkovichChomofski/calendaragent/internal/storage/sql"
)

const connectTimeout = 15 * time.Second

type Config struct {
	StorageType string
	Database    sqlstorage.Config
}

type LockConfig struct {
	// Type is one of memory, redis or storage. Empty means memory.
	Type  string
	Redis redislocker.Config
}

func New(config Config) (storage.Storage, error) {
	switch config.StorageType {
	case "memory":
		return memorystorage.New(), nil
	case "sql":
		s := sqlstorage.New(config.Database)
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		err := s.Connect(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database %s %d: %w", config.Database.Host, config.Database.Port, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type %s", config.StorageType)
	}
}

// NewLocker builds the per-calendar sync lock. The storage type uses
// database advisory locks and needs sql storage.
func NewLocker(config LockConfig, s storage.Storage) (locker.Locker, error) {
	switch config.Type {
	case "", "memory":
		return locker.NewMemory(), nil
	case "redis":
		l := redislocker.New(config.Redis)
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		if err := l.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to redis %s: %w", config.Redis.Addr, err)
		}
		return l, nil
	case "storage":
		l, ok := s.(locker.Locker)
		if !ok {
			return nil, fmt.Errorf("storage %T does not support locking", s)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown lock type %s", config.Type)
	}
}
