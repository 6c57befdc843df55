package domain

import (
	"fmt"
	"time"
)

// Default stats settings
const (
	DefaultAntiSpamInterval  = 300
	DefaultSessionInterval   = 1800
	DefaultOnlineUserTimeout = 60
	DefaultUpdateIntervalMs  = 3000
	DefaultAnimationSpeed    = "normal"

	// MinUpdateIntervalMs is the smallest accepted polling interval
	MinUpdateIntervalMs = 500
)

// OnlinePresenceWindow is the fixed window used when counting online users for a stats read.
// It is intentionally separate from Settings.OnlineUserTimeout.
const OnlinePresenceWindow = 60 * time.Second

// AnimationSpeeds lists the accepted animation speed values
var AnimationSpeeds = []string{"slow", "normal", "fast", "none"}

// Settings are the hot-reloadable stats settings. Intervals are in seconds.
type Settings struct {
	AntiSpamInterval  int    `json:"anti_spam_interval" toml:"anti_spam_interval"`
	SessionInterval   int    `json:"session_interval" toml:"session_interval"`
	OnlineUserTimeout int    `json:"online_user_timeout" toml:"online_user_timeout"`
	UpdateIntervalMs  int    `json:"update_interval_ms" toml:"update_interval_ms"`
	AnimationSpeed    string `json:"animation_speed" toml:"animation_speed"`
}

// DefaultSettings returns the built-in settings
func DefaultSettings() Settings {
	return Settings{
		AntiSpamInterval:  DefaultAntiSpamInterval,
		SessionInterval:   DefaultSessionInterval,
		OnlineUserTimeout: DefaultOnlineUserTimeout,
		UpdateIntervalMs:  DefaultUpdateIntervalMs,
		AnimationSpeed:    DefaultAnimationSpeed,
	}
}

// AntiSpamWindow returns the anti-spam interval as a duration
func (s Settings) AntiSpamWindow() time.Duration {
	return time.Duration(s.AntiSpamInterval) * time.Second
}

// SessionWindow returns the session interval as a duration
func (s Settings) SessionWindow() time.Duration {
	return time.Duration(s.SessionInterval) * time.Second
}

// OnlineTimeout returns the online user timeout as a duration
func (s Settings) OnlineTimeout() time.Duration {
	return time.Duration(s.OnlineUserTimeout) * time.Second
}

// Display returns the display-facing part of the settings
func (s Settings) Display() DisplayConfig {
	return DisplayConfig{
		UpdateIntervalMs: s.UpdateIntervalMs,
		AnimationSpeed:   s.AnimationSpeed,
	}
}

// Validate checks that every field is within its accepted range
func (s Settings) Validate() error {
	if s.AntiSpamInterval < 0 {
		return fmt.Errorf("anti_spam_interval must not be negative")
	}
	if s.SessionInterval < 0 {
		return fmt.Errorf("session_interval must not be negative")
	}
	if s.OnlineUserTimeout <= 0 {
		return fmt.Errorf("online_user_timeout must be positive")
	}
	if s.UpdateIntervalMs < MinUpdateIntervalMs {
		return fmt.Errorf("update_interval_ms must be at least %d", MinUpdateIntervalMs)
	}
	for _, speed := range AnimationSpeeds {
		if s.AnimationSpeed == speed {
			return nil
		}
	}
	return fmt.Errorf("animation_speed must be one of %v", AnimationSpeeds)
}

// Normalize replaces out-of-range fields with the matching field from fallback
func (s Settings) Normalize(fallback Settings) Settings {
	if s.AntiSpamInterval < 0 {
		s.AntiSpamInterval = fallback.AntiSpamInterval
	}
	if s.SessionInterval < 0 {
		s.SessionInterval = fallback.SessionInterval
	}
	if s.OnlineUserTimeout <= 0 {
		s.OnlineUserTimeout = fallback.OnlineUserTimeout
	}
	if s.UpdateIntervalMs < MinUpdateIntervalMs {
		s.UpdateIntervalMs = fallback.UpdateIntervalMs
	}
	valid := false
	for _, speed := range AnimationSpeeds {
		if s.AnimationSpeed == speed {
			valid = true
			break
		}
	}
	if !valid {
		s.AnimationSpeed = fallback.AnimationSpeed
	}
	return s
}
