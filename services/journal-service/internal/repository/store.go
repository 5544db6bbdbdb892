package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/config"
)

// Store bundles the repositories of one storage backend with its lifecycle.
type Store struct {
	Users   UserRepository
	Entries HealthEntryRepository

	driver string
	ping   func(ctx context.Context) error
	close  func(ctx context.Context) error
}

func (s *Store) Driver() string {
	return s.driver
}

// Ping reports whether the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// NewMemoryStore returns a Store that keeps everything in process memory.
func NewMemoryStore() *Store {
	return &Store{
		Users:   NewUserMemoryRepository(),
		Entries: NewHealthEntryMemoryRepository(),
		driver:  config.StoreDriverMemory,
	}
}

// Open connects to the backend selected by cfg.Driver, retrying the initial
// ping with exponential backoff.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zerolog.Logger) (*Store, error) {
	switch cfg.Driver {
	case config.StoreDriverMemory:
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		return NewMemoryStore(), nil
	case config.StoreDriverMongo:
		return openMongo(ctx, cfg, logger)
	case config.StoreDriverPostgres:
		return openPostgres(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func openMongo(ctx context.Context, cfg config.StoreConfig, logger *zerolog.Logger) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	ping := func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	}
	closeFn := func(ctx context.Context) error {
		return client.Disconnect(ctx)
	}

	if err := pingWithRetry(ctx, ping, cfg.ConnectRetries, logger); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	db := client.Database(cfg.MongoDatabase)

	users, err := NewUserMongoRepository(ctx, db)
	if err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	entries, err := NewHealthEntryMongoRepository(ctx, db)
	if err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}

	logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongo")

	return &Store{
		Users:   users,
		Entries: entries,
		driver:  config.StoreDriverMongo,
		ping:    ping,
		close:   closeFn,
	}, nil
}

func openPostgres(ctx context.Context, cfg config.StoreConfig, logger *zerolog.Logger) (*Store, error) {
	db, err := OpenPostgresDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info().Msg("connected to postgres")

	return newPostgresStore(db), nil
}

func newPostgresStore(db *sql.DB) *Store {
	return &Store{
		Users:   NewUserPostgresRepository(db),
		Entries: NewHealthEntryPostgresRepository(db),
		driver:  config.StoreDriverPostgres,
		ping:    db.PingContext,
		close: func(context.Context) error {
			return db.Close()
		},
	}
}

// OpenPostgresDB opens the pgx-backed *sql.DB and waits until it answers.
func OpenPostgresDB(ctx context.Context, cfg config.StoreConfig, logger *zerolog.Logger) (*sql.DB, error) {
	if cfg.PostgresDSN == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := pingWithRetry(ctx, db.PingContext, cfg.ConnectRetries, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return db, nil
}

const (
	connectBaseBackoff = 500 * time.Millisecond
	connectMaxBackoff  = 10 * time.Second
	pingTimeout        = 5 * time.Second
)

func pingWithRetry(
	ctx context.Context,
	ping func(context.Context) error,
	retries uint64,
	logger *zerolog.Logger,
) error {
	backoff := retry.NewExponential(connectBaseBackoff)
	backoff = retry.WithCappedDuration(connectMaxBackoff, backoff)
	backoff = retry.WithMaxRetries(retries, backoff)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()

		if err := ping(pingCtx); err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("store not reachable yet")
			return retry.RetryableError(err)
		}
		return nil
	})
}
