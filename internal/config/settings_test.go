package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitestats/internal/domain"
	"sitestats/pkg/logger"
	"sitestats/pkg/redis"
)

func TestStaticSettings(t *testing.T) {
	ctx := context.Background()
	s := NewStaticSettings(domain.DefaultSettings())

	assert.Equal(t, domain.DefaultSettings(), s.Current(ctx))

	updated := domain.DefaultSettings()
	updated.AntiSpamInterval = 10
	require.NoError(t, s.Update(ctx, updated))
	assert.Equal(t, 10, s.Current(ctx).AntiSpamInterval)

	invalid := updated
	invalid.OnlineUserTimeout = 0
	assert.Error(t, s.Update(ctx, invalid))
	assert.Equal(t, updated, s.Current(ctx))
}

func TestFileSettings_MissingFileUsesBase(t *testing.T) {
	base := domain.DefaultSettings()
	base.SessionInterval = 900

	s := NewFileSettings(filepath.Join(t.TempDir(), "settings.toml"), base, logger.NewNop())
	assert.Equal(t, base, s.Current(context.Background()))
}

func TestFileSettings_PartialOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte("[stats]\nanti_spam_interval = 60\nanimation_speed = \"slow\"\n"), 0o600))

	s := NewFileSettings(path, domain.DefaultSettings(), logger.NewNop())
	got := s.Current(context.Background())

	assert.Equal(t, 60, got.AntiSpamInterval)
	assert.Equal(t, "slow", got.AnimationSpeed)
	assert.Equal(t, domain.DefaultSessionInterval, got.SessionInterval)
}

func TestFileSettings_ReloadsOnChange(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte("[stats]\nanti_spam_interval = 60\n"), 0o600))

	s := NewFileSettings(path, domain.DefaultSettings(), logger.NewNop())
	assert.Equal(t, 60, s.Current(ctx).AntiSpamInterval)

	require.NoError(t, os.WriteFile(path, []byte("[stats]\nanti_spam_interval = 7200\n"), 0o600))
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	assert.Equal(t, 7200, s.Current(ctx).AntiSpamInterval)
}

func TestFileSettings_InvalidValuesFallBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte("[stats]\nupdate_interval_ms = 10\nanimation_speed = \"warp\"\nsession_interval = 60\n"), 0o600))

	s := NewFileSettings(path, domain.DefaultSettings(), logger.NewNop())
	got := s.Current(context.Background())

	assert.Equal(t, domain.DefaultUpdateIntervalMs, got.UpdateIntervalMs)
	assert.Equal(t, domain.DefaultAnimationSpeed, got.AnimationSpeed)
	assert.Equal(t, 60, got.SessionInterval)
}

func TestFileSettings_MalformedFileUsesBase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte("[stats\nnot toml"), 0o600))

	s := NewFileSettings(path, domain.DefaultSettings(), logger.NewNop())
	assert.Equal(t, domain.DefaultSettings(), s.Current(context.Background()))
}

func TestFileSettings_Update(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "settings.toml")
	s := NewFileSettings(path, domain.DefaultSettings(), logger.NewNop())

	updated := domain.Settings{
		AntiSpamInterval:  30,
		SessionInterval:   600,
		OnlineUserTimeout: 120,
		UpdateIntervalMs:  1000,
		AnimationSpeed:    "none",
	}
	require.NoError(t, s.Update(ctx, updated))
	assert.Equal(t, updated, s.Current(ctx))

	// A fresh reader sees the persisted values
	fresh := NewFileSettings(path, domain.DefaultSettings(), logger.NewNop())
	assert.Equal(t, updated, fresh.Current(ctx))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	updated.UpdateIntervalMs = 1
	assert.Error(t, s.Update(ctx, updated))
}

func newSettingsRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.NewClient("redis://"+mr.Addr(), "test", nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisSettings(t *testing.T) {
	ctx := context.Background()
	mr, client := newSettingsRedis(t)
	s := NewRedisSettings(client, domain.DefaultSettings(), logger.NewNop())

	assert.Equal(t, domain.DefaultSettings(), s.Current(ctx))

	key := client.KeyBuilder.KeySettings()
	mr.HSet(key, "anti_spam_interval", "45")
	mr.HSet(key, "session_interval", "not-a-number")
	mr.HSet(key, "animation_speed", "fast")

	got := s.Current(ctx)
	assert.Equal(t, 45, got.AntiSpamInterval)
	assert.Equal(t, domain.DefaultSessionInterval, got.SessionInterval)
	assert.Equal(t, "fast", got.AnimationSpeed)

	updated := domain.DefaultSettings()
	updated.OnlineUserTimeout = 300
	require.NoError(t, s.Update(ctx, updated))
	assert.Equal(t, "300", mr.HGet(key, "online_user_timeout"))
	assert.Equal(t, updated, s.Current(ctx))
}

func TestRedisSettings_UnavailableUsesBase(t *testing.T) {
	mr, client := newSettingsRedis(t)
	base := domain.DefaultSettings()
	base.AntiSpamInterval = 5
	s := NewRedisSettings(client, base, logger.NewNop())

	mr.SetError("LOADING")
	assert.Equal(t, base, s.Current(context.Background()))
}
