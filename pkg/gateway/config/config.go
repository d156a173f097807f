package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	MaxBodyBytes int64

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Answer backend (retrieval + generation HTTP API).
	BackendBaseURL     string
	BackendAPIKey      string
	BackendCallTimeout time.Duration
	RetrievalTopK      int

	// Transcription WebSocket endpoint for /v1/voice. Empty disables voice.
	TranscribeWSURL string

	// Handoff notification webhook. Empty disables notifications.
	HandoffWebhookURL string

	// Agent directory TOML file mapping agent ids to knowledge scopes.
	AgentDirectoryPath string

	MaxInputLen int

	// Response cache.
	CacheTTL        time.Duration
	CacheMaxEntries int

	// Conversation sessions.
	SessionMaxTurns      int
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration

	// Phrase chunking for voice responses.
	PhraseMinWords int
	PhraseMaxWords int

	// SSE
	SSEPingInterval time.Duration

	// Live WebSocket mode (/v1/voice).
	LiveMaxTextFrameBytes  int64
	LiveMaxAudioFrameBytes int
	LiveQueueDepth         int
	LiveWSPingInterval     time.Duration
	LiveWSWriteTimeout     time.Duration
	LiveHandshakeTimeout   time.Duration

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                   envOr("AGW_ADDR", ":8080"),
		AuthMode:               AuthMode(envOr("AGW_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:                make(map[string]struct{}),
		MaxBodyBytes:           envInt64Or("AGW_MAX_BODY_BYTES", 1<<20), // 1 MiB
		CORSAllowedOrigins:     make(map[string]struct{}),
		BackendBaseURL:         envOr("AGW_BACKEND_URL", ""),
		BackendAPIKey:          envOr("AGW_BACKEND_API_KEY", ""),
		BackendCallTimeout:     envDurationOr("AGW_BACKEND_TIMEOUT", 30*time.Second),
		RetrievalTopK:          envIntOr("AGW_RETRIEVAL_TOP_K", 5),
		TranscribeWSURL:        envOr("AGW_TRANSCRIBE_WS_URL", ""),
		HandoffWebhookURL:      envOr("AGW_HANDOFF_WEBHOOK_URL", ""),
		AgentDirectoryPath:     envOr("AGW_AGENT_DIRECTORY", "agents.toml"),
		MaxInputLen:            envIntOr("AGW_MAX_INPUT_LEN", 1000),
		CacheTTL:               envDurationOr("AGW_CACHE_TTL", 10*time.Minute),
		CacheMaxEntries:        envIntOr("AGW_CACHE_MAX_ENTRIES", 1024),
		SessionMaxTurns:        envIntOr("AGW_SESSION_MAX_TURNS", 20),
		SessionTTL:             envDurationOr("AGW_SESSION_TTL", 30*time.Minute),
		SessionSweepInterval:   envDurationOr("AGW_SESSION_SWEEP_INTERVAL", 5*time.Minute),
		PhraseMinWords:         envIntOr("AGW_PHRASE_MIN_WORDS", 10),
		PhraseMaxWords:         envIntOr("AGW_PHRASE_MAX_WORDS", 20),
		SSEPingInterval:        envDurationOr("AGW_SSE_PING_INTERVAL", 15*time.Second),
		LiveMaxTextFrameBytes:  envInt64Or("AGW_LIVE_MAX_TEXT_FRAME_BYTES", 64*1024),
		LiveMaxAudioFrameBytes: envIntOr("AGW_LIVE_MAX_AUDIO_FRAME_BYTES", 8192),
		LiveQueueDepth:         envIntOr("AGW_LIVE_QUEUE_DEPTH", 32),
		LiveWSPingInterval:     envDurationOr("AGW_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:     envDurationOr("AGW_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveHandshakeTimeout:   envDurationOr("AGW_LIVE_HANDSHAKE_TIMEOUT", 5*time.Second),
		ReadHeaderTimeout:      envDurationOr("AGW_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:            envDurationOr("AGW_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:    envDurationOr("AGW_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("AGW_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("AGW_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("AGW_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if strings.TrimSpace(cfg.BackendBaseURL) == "" {
		return Config{}, fmt.Errorf("AGW_BACKEND_URL must be set")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("AGW_MAX_BODY_BYTES must be > 0")
	}
	if cfg.BackendCallTimeout <= 0 {
		return Config{}, fmt.Errorf("AGW_BACKEND_TIMEOUT must be > 0")
	}
	if cfg.RetrievalTopK <= 0 {
		return Config{}, fmt.Errorf("AGW_RETRIEVAL_TOP_K must be > 0")
	}
	if cfg.MaxInputLen <= 0 {
		return Config{}, fmt.Errorf("AGW_MAX_INPUT_LEN must be > 0")
	}
	if cfg.CacheTTL <= 0 {
		return Config{}, fmt.Errorf("AGW_CACHE_TTL must be > 0")
	}
	if cfg.CacheMaxEntries <= 0 {
		return Config{}, fmt.Errorf("AGW_CACHE_MAX_ENTRIES must be > 0")
	}
	if cfg.SessionMaxTurns <= 0 {
		return Config{}, fmt.Errorf("AGW_SESSION_MAX_TURNS must be > 0")
	}
	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("AGW_SESSION_TTL must be > 0")
	}
	if cfg.SessionSweepInterval <= 0 {
		return Config{}, fmt.Errorf("AGW_SESSION_SWEEP_INTERVAL must be > 0")
	}
	if cfg.PhraseMinWords <= 0 {
		return Config{}, fmt.Errorf("AGW_PHRASE_MIN_WORDS must be > 0")
	}
	if cfg.PhraseMaxWords < cfg.PhraseMinWords {
		return Config{}, fmt.Errorf("AGW_PHRASE_MAX_WORDS must be >= AGW_PHRASE_MIN_WORDS")
	}
	if cfg.SSEPingInterval <= 0 {
		return Config{}, fmt.Errorf("AGW_SSE_PING_INTERVAL must be > 0")
	}
	if cfg.LiveMaxTextFrameBytes <= 0 {
		return Config{}, fmt.Errorf("AGW_LIVE_MAX_TEXT_FRAME_BYTES must be > 0")
	}
	if cfg.LiveMaxAudioFrameBytes <= 0 {
		return Config{}, fmt.Errorf("AGW_LIVE_MAX_AUDIO_FRAME_BYTES must be > 0")
	}
	if cfg.LiveQueueDepth <= 0 {
		return Config{}, fmt.Errorf("AGW_LIVE_QUEUE_DEPTH must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("AGW_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("AGW_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("AGW_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("AGW_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("AGW_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("AGW_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("AGW_API_KEYS must be set when AGW_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
