package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the full server configuration.
type Config struct {
	// Server settings
	ServerPort string
	DBPath     string
	AdminToken string

	// CORS settings
	AllowedOrigins []string

	// Room policy settings
	MessageRetention        time.Duration
	AutoDeleteInactiveRooms bool
	InactiveThreshold       time.Duration
	MaxRoomSize             int
	MaxMessageLength        int
	AllowAnonymous          bool
	RequireModeration       bool

	// Realtime tuning
	TypingWindow  time.Duration
	SweepInterval time.Duration
}

// Recognized retention periods, in hours (matches the admin settings choices).
var retentionChoices = map[int]bool{1: true, 6: true, 12: true, 24: true, 48: true, 168: true}

// Load reads configuration from environment variables, applying defaults
// for anything unset.
func Load() Config {
	allowedOrigins := envOr("ALLOWED_ORIGINS", "*")
	origins := strings.Split(allowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	retentionHours := envInt("MESSAGE_RETENTION_HOURS", 24)
	if !retentionChoices[retentionHours] {
		retentionHours = 24
	}

	return Config{
		ServerPort:              envOr("SERVER_PORT", "8080"),
		DBPath:                  envOr("DB_PATH", "talkdrop.db"),
		AdminToken:              os.Getenv("ADMIN_TOKEN"),
		AllowedOrigins:          origins,
		MessageRetention:        time.Duration(retentionHours) * time.Hour,
		AutoDeleteInactiveRooms: envBool("AUTO_DELETE_INACTIVE_ROOMS", false),
		InactiveThreshold:       time.Duration(envInt("INACTIVE_THRESHOLD_DAYS", 7)) * 24 * time.Hour,
		MaxRoomSize:             envInt("MAX_ROOM_SIZE", 50),
		MaxMessageLength:        envInt("MAX_MESSAGE_LENGTH", 2000),
		AllowAnonymous:          envBool("ALLOW_ANONYMOUS", true),
		RequireModeration:       envBool("REQUIRE_MODERATION", false),
		TypingWindow:            3 * time.Second,
		SweepInterval:           time.Duration(envInt("SWEEP_INTERVAL_MINUTES", 5)) * time.Minute,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
