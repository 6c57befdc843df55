package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"sitestats/internal/domain"
	"sitestats/pkg/logger"
	"sitestats/pkg/redis"
)

// SettingsProvider supplies the stats settings in force right now.
// Current never fails: sources that cannot be read fall back to base values.
type SettingsProvider interface {
	Current(ctx context.Context) domain.Settings
}

// SettingsStore is a SettingsProvider that can also persist new settings
type SettingsStore interface {
	SettingsProvider
	Update(ctx context.Context, settings domain.Settings) error
}

// StaticSettings holds settings in memory, seeded from the environment
type StaticSettings struct {
	mu       sync.RWMutex
	settings domain.Settings
}

// NewStaticSettings creates an in-memory settings store
func NewStaticSettings(settings domain.Settings) *StaticSettings {
	return &StaticSettings{settings: settings.Normalize(domain.DefaultSettings())}
}

func (s *StaticSettings) Current(ctx context.Context) domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *StaticSettings) Update(ctx context.Context, settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return nil
}

// settingsFile is the on-disk layout. Absent keys keep their base value.
type settingsFile struct {
	Stats settingsOverrides `toml:"stats"`
}

type settingsOverrides struct {
	AntiSpamInterval  *int    `toml:"anti_spam_interval,omitempty"`
	SessionInterval   *int    `toml:"session_interval,omitempty"`
	OnlineUserTimeout *int    `toml:"online_user_timeout,omitempty"`
	UpdateIntervalMs  *int    `toml:"update_interval_ms,omitempty"`
	AnimationSpeed    *string `toml:"animation_speed,omitempty"`
}

func (o settingsOverrides) apply(base domain.Settings) domain.Settings {
	s := base
	if o.AntiSpamInterval != nil {
		s.AntiSpamInterval = *o.AntiSpamInterval
	}
	if o.SessionInterval != nil {
		s.SessionInterval = *o.SessionInterval
	}
	if o.OnlineUserTimeout != nil {
		s.OnlineUserTimeout = *o.OnlineUserTimeout
	}
	if o.UpdateIntervalMs != nil {
		s.UpdateIntervalMs = *o.UpdateIntervalMs
	}
	if o.AnimationSpeed != nil {
		s.AnimationSpeed = *o.AnimationSpeed
	}
	return s.Normalize(base)
}

// FileSettings reads settings from a TOML file and re-reads it whenever
// its modification time or size changes
type FileSettings struct {
	path   string
	base   domain.Settings
	logger *logger.Logger

	mu      sync.Mutex
	cached  domain.Settings
	modTime time.Time
	size    int64
	loaded  bool
}

// NewFileSettings creates a file-backed settings store. A missing file is not an error.
func NewFileSettings(path string, base domain.Settings, log *logger.Logger) *FileSettings {
	return &FileSettings{
		path:   path,
		base:   base.Normalize(domain.DefaultSettings()),
		logger: log.WithField("settings_file", path),
	}
}

func (f *FileSettings) Current(ctx context.Context) domain.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.logger.Warn("Failed to stat settings file, using base settings", zap.Error(err))
		}
		f.loaded = false
		return f.base
	}

	if f.loaded && info.ModTime().Equal(f.modTime) && info.Size() == f.size {
		return f.cached
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		f.logger.Warn("Failed to read settings file, using base settings", zap.Error(err))
		return f.base
	}

	var doc settingsFile
	if err := toml.Unmarshal(data, &doc); err != nil {
		f.logger.Warn("Failed to parse settings file, using base settings", zap.Error(err))
		return f.base
	}

	f.cached = doc.Stats.apply(f.base)
	f.modTime = info.ModTime()
	f.size = info.Size()
	f.loaded = true

	f.logger.Debug("Settings file reloaded",
		zap.Int("anti_spam_interval", f.cached.AntiSpamInterval),
		zap.Int("session_interval", f.cached.SessionInterval),
		zap.Int("online_user_timeout", f.cached.OnlineUserTimeout),
	)

	return f.cached
}

// Update rewrites the whole file atomically
func (f *FileSettings) Update(ctx context.Context, settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	doc := settingsFile{Stats: settingsOverrides{
		AntiSpamInterval:  &settings.AntiSpamInterval,
		SessionInterval:   &settings.SessionInterval,
		OnlineUserTimeout: &settings.OnlineUserTimeout,
		UpdateIntervalMs:  &settings.UpdateIntervalMs,
		AnimationSpeed:    &settings.AnimationSpeed,
	}}

	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}

	f.loaded = false
	return nil
}

// Redis hash fields
const (
	fieldAntiSpamInterval  = "anti_spam_interval"
	fieldSessionInterval   = "session_interval"
	fieldOnlineUserTimeout = "online_user_timeout"
	fieldUpdateIntervalMs  = "update_interval_ms"
	fieldAnimationSpeed    = "animation_speed"
)

// RedisSettings reads settings from a Redis hash on every call, so every
// instance sharing the hash sees an update immediately
type RedisSettings struct {
	client *redis.Client
	base   domain.Settings
	logger *logger.Logger
}

// NewRedisSettings creates a Redis-backed settings store
func NewRedisSettings(client *redis.Client, base domain.Settings, log *logger.Logger) *RedisSettings {
	return &RedisSettings{
		client: client,
		base:   base.Normalize(domain.DefaultSettings()),
		logger: log.Named("settings"),
	}
}

func (r *RedisSettings) Current(ctx context.Context) domain.Settings {
	fields, err := r.client.HGetAll(ctx, r.client.KeyBuilder.KeySettings())
	if err != nil {
		r.logger.Warn("Failed to read settings hash, using base settings", zap.Error(err))
		return r.base
	}

	s := r.base
	for field, value := range fields {
		if field == fieldAnimationSpeed {
			s.AnimationSpeed = value
			continue
		}

		n, err := strconv.Atoi(value)
		if err != nil {
			r.logger.Warn("Ignoring malformed settings field", zap.String("field", field), zap.String("value", value))
			continue
		}

		switch field {
		case fieldAntiSpamInterval:
			s.AntiSpamInterval = n
		case fieldSessionInterval:
			s.SessionInterval = n
		case fieldOnlineUserTimeout:
			s.OnlineUserTimeout = n
		case fieldUpdateIntervalMs:
			s.UpdateIntervalMs = n
		}
	}

	return s.Normalize(r.base)
}

func (r *RedisSettings) Update(ctx context.Context, settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	return r.client.HSet(ctx, r.client.KeyBuilder.KeySettings(),
		fieldAntiSpamInterval, settings.AntiSpamInterval,
		fieldSessionInterval, settings.SessionInterval,
		fieldOnlineUserTimeout, settings.OnlineUserTimeout,
		fieldUpdateIntervalMs, settings.UpdateIntervalMs,
		fieldAnimationSpeed, settings.AnimationSpeed,
	)
}
