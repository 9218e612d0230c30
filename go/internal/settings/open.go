package settings

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendPgx      = "pgx"
	BackendRedis    = "redis"
)

// Options selects and configures a settings backend.
type Options struct {
	Backend        string
	Path           string
	DSN            string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisNamespace string
}

// Open builds the Store named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	log.Info().Str("backend", opts.Backend).Msg("opening settings store")

	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		return OpenFileStore(opts.Path)
	case BackendSQLite:
		return OpenSQLite(ctx, opts.Path)
	case BackendPostgres:
		return OpenPostgres(ctx, opts.DSN)
	case BackendPgx:
		return OpenPgx(ctx, opts.DSN)
	case BackendRedis:
		return NewRedisStore(ctx, &redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		}, opts.RedisNamespace)
	default:
		return nil, fmt.Errorf("unknown settings backend %q", opts.Backend)
	}
}
