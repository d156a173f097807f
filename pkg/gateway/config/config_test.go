package config

import (
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AGW_BACKEND_URL", "http://backend.internal")
	t.Setenv("AGW_AUTH_MODE", "disabled")
	t.Setenv("AGW_API_KEYS", "")
	t.Setenv("AGW_CORS_ORIGINS", "")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("Addr=%q", cfg.Addr)
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Errorf("MaxBodyBytes=%d", cfg.MaxBodyBytes)
	}
	if cfg.BackendCallTimeout != 30*time.Second {
		t.Errorf("BackendCallTimeout=%v", cfg.BackendCallTimeout)
	}
	if cfg.RetrievalTopK != 5 {
		t.Errorf("RetrievalTopK=%d", cfg.RetrievalTopK)
	}
	if cfg.CacheTTL != 10*time.Minute || cfg.CacheMaxEntries != 1024 {
		t.Errorf("cache: ttl=%v max=%d", cfg.CacheTTL, cfg.CacheMaxEntries)
	}
	if cfg.SessionMaxTurns != 20 || cfg.SessionTTL != 30*time.Minute {
		t.Errorf("session: turns=%d ttl=%v", cfg.SessionMaxTurns, cfg.SessionTTL)
	}
	if cfg.PhraseMinWords != 10 || cfg.PhraseMaxWords != 20 {
		t.Errorf("phrase: min=%d max=%d", cfg.PhraseMinWords, cfg.PhraseMaxWords)
	}
	if cfg.TranscribeWSURL != "" {
		t.Errorf("TranscribeWSURL=%q, want voice disabled by default", cfg.TranscribeWSURL)
	}
	if cfg.AgentDirectoryPath != "agents.toml" {
		t.Errorf("AgentDirectoryPath=%q", cfg.AgentDirectoryPath)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AGW_ADDR", ":9090")
	t.Setenv("AGW_CACHE_TTL", "90s")
	t.Setenv("AGW_SESSION_MAX_TURNS", "4")
	t.Setenv("AGW_CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9090" || cfg.CacheTTL != 90*time.Second || cfg.SessionMaxTurns != 4 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("origins=%v", cfg.CORSAllowedOrigins)
	}
	if _, ok := cfg.CORSAllowedOrigins["https://b.example.com"]; !ok {
		t.Fatalf("origins=%v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadFromEnv_RequiresBackendURL(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AGW_BACKEND_URL", "")

	if _, err := LoadFromEnv(); err == nil || !strings.Contains(err.Error(), "AGW_BACKEND_URL") {
		t.Fatalf("err=%v", err)
	}
}

func TestLoadFromEnv_RequiredAuthNeedsKeys(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AGW_AUTH_MODE", "required")

	if _, err := LoadFromEnv(); err == nil || !strings.Contains(err.Error(), "AGW_API_KEYS") {
		t.Fatalf("err=%v", err)
	}

	t.Setenv("AGW_API_KEYS", "key-a,key-b")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.APIKeys) != 2 {
		t.Fatalf("APIKeys=%v", cfg.APIKeys)
	}
}

func TestLoadFromEnv_RejectsInvalidAuthMode(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AGW_AUTH_MODE", "sometimes")

	if _, err := LoadFromEnv(); err == nil || !strings.Contains(err.Error(), "AGW_AUTH_MODE") {
		t.Fatalf("err=%v", err)
	}
}

func TestLoadFromEnv_PhraseBoundsValidated(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AGW_PHRASE_MIN_WORDS", "15")
	t.Setenv("AGW_PHRASE_MAX_WORDS", "5")

	if _, err := LoadFromEnv(); err == nil || !strings.Contains(err.Error(), "AGW_PHRASE_MAX_WORDS") {
		t.Fatalf("err=%v", err)
	}
}
