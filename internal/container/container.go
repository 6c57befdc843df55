package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sitestats/internal/config"
	"sitestats/internal/handler"
	"sitestats/internal/repository"
	"sitestats/internal/service"
	"sitestats/pkg/database"
	"sitestats/pkg/logger"
	"sitestats/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	RedisClient *redis.Client
	PostgresDB  *database.PostgresDB
	Store       repository.DocumentStore
	Locker      repository.Locker
	Settings    config.SettingsStore
	Visitor     service.VisitorService
	Location    *time.Location
}

// New creates a new dependency injection container. Resources opened before a
// failure are closed again.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (c *Container, err error) {
	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	c = &Container{Config: cfg, Logger: log, Location: location}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	if cfg.NeedsRedis() {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Named("redis").Logger)
		if err != nil {
			return c, fmt.Errorf("failed to initialize Redis client: %w", err)
		}
		c.RedisClient = client
		log.WithField("key_prefix", client.KeyBuilder.GetPrefix()).Info("Redis client initialized successfully")
	}

	if err := c.initStorage(ctx); err != nil {
		return c, err
	}

	c.initSettings()

	c.Visitor = service.NewVisitorService(
		repository.NewRepositories(c.Store, log),
		c.Locker,
		c.Settings,
		location,
		log,
	)

	log.WithFields(map[string]interface{}{
		"storage_driver":  cfg.StorageDriver,
		"settings_source": cfg.SettingsSource,
		"timezone":        location.String(),
	}).Info("Container initialized")

	return c, nil
}

// initStorage opens the document store and the matching lock
func (c *Container) initStorage(ctx context.Context) error {
	cfg := c.Config

	switch cfg.StorageDriver {
	case config.DriverMemory:
		c.Store = repository.NewMemoryStore()
		c.Locker = repository.NewMutexLocker(cfg.LockTimeout)

	case config.DriverFile:
		store, err := repository.NewFileStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open file store: %w", err)
		}
		c.Store = store
		c.Locker = repository.NewMutexLocker(cfg.LockTimeout)

	case config.DriverSQLite:
		db, err := database.NewSQLiteDB(ctx, cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open sqlite database: %w", err)
		}
		c.Store = repository.NewSQLiteStore(db)
		c.Locker = repository.NewMutexLocker(cfg.LockTimeout)

	case config.DriverRedis:
		c.Store = repository.NewRedisStore(c.RedisClient)
		c.Locker = repository.NewRedisLocker(c.RedisClient, cfg.LockTimeout, c.Logger)

	case config.DriverPostgres:
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		c.PostgresDB = db
		if err := db.CreateDocumentTable(ctx); err != nil {
			return fmt.Errorf("failed to prepare documents table: %w", err)
		}
		c.Store = repository.NewPostgresStore(db)
		c.Locker = repository.NewPostgresLocker(db, cfg.LockTimeout, c.Logger)

	default:
		return fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	return nil
}

func (c *Container) initSettings() {
	cfg := c.Config

	switch cfg.SettingsSource {
	case config.SettingsSourceFile:
		c.Settings = config.NewFileSettings(cfg.SettingsFile, cfg.Stats, c.Logger)
	case config.SettingsSourceRedis:
		c.Settings = config.NewRedisSettings(c.RedisClient, cfg.Stats, c.Logger)
	default:
		c.Settings = config.NewStaticSettings(cfg.Stats)
	}
}

// HealthChecks returns the dependencies /health should probe
func (c *Container) HealthChecks() map[string]handler.HealthChecker {
	checks := map[string]handler.HealthChecker{}
	if c.Store != nil {
		checks["storage"] = c.Store
	}
	if c.RedisClient != nil {
		checks["redis"] = c.RedisClient
	}
	return checks
}

// Close releases every resource the container opened
func (c *Container) Close() error {
	var errs []error

	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c.PostgresDB != nil {
		c.PostgresDB.Close()
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}

	return errors.Join(errs...)
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}
