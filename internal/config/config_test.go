package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.CompactionThreshold != 30 {
		t.Fatalf("CompactionThreshold = %d, want 30", cfg.CompactionThreshold)
	}
	if cfg.SessionIdleTimeout != 2*time.Minute {
		t.Fatalf("SessionIdleTimeout = %v, want 2m", cfg.SessionIdleTimeout)
	}
	if cfg.RateLimitMaxRequests != 120 {
		t.Fatalf("RateLimitMaxRequests = %d, want 120", cfg.RateLimitMaxRequests)
	}
	if cfg.CompletionProvider != "auto" {
		t.Fatalf("CompletionProvider = %q, want %q", cfg.CompletionProvider, "auto")
	}
	if len(cfg.TriggerTable) == 0 {
		t.Fatal("TriggerTable is empty, want defaults")
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")
	t.Setenv("COMPACTION_THRESHOLD", "10")
	t.Setenv("SESSION_IDLE_TIMEOUT", "30s")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.CompactionThreshold != 10 {
		t.Fatalf("CompactionThreshold = %d, want 10", cfg.CompactionThreshold)
	}
	if cfg.SessionIdleTimeout != 30*time.Second {
		t.Fatalf("SessionIdleTimeout = %v, want 30s", cfg.SessionIdleTimeout)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatal("AllowAnyOrigin = false, want true")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"zero compaction threshold", "COMPACTION_THRESHOLD", "0"},
		{"negative rate limit", "RATE_LIMIT_MAX_REQUESTS", "-1"},
		{"idle timeout too short", "SESSION_IDLE_TIMEOUT", "1s"},
		{"malformed duration", "RATE_LIMIT_WINDOW", "soon"},
		{"malformed bool", "APP_ALLOW_ANY_ORIGIN", "maybe"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%s succeeded, want error", tc.key, tc.value)
			}
		})
	}
}

func TestParseTriggerTable(t *testing.T) {
	raw := `[{"keywords":["too pricey"],"event":"objection_detected"},{"keywords":["great"],"event":"sentiment_update","weight":5}]`

	rules, err := ParseTriggerTable(raw)
	if err != nil {
		t.Fatalf("ParseTriggerTable() error = %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(rules))
	}
	if rules[0].Event != "objection_detected" {
		t.Fatalf("rules[0].Event = %q, want objection_detected", rules[0].Event)
	}
	if rules[1].Weight != 5 {
		t.Fatalf("rules[1].Weight = %d, want 5", rules[1].Weight)
	}
}

func TestParseTriggerTableRejectsUnknownEvent(t *testing.T) {
	if _, err := ParseTriggerTable(`[{"keywords":["x"],"event":"page_sales_manager"}]`); err == nil {
		t.Fatal("ParseTriggerTable() with unknown event succeeded, want error")
	}
	if _, err := ParseTriggerTable(`[{"keywords":[],"event":"tip"}]`); err == nil {
		t.Fatal("ParseTriggerTable() with no keywords succeeded, want error")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"AUTH_SHARED_SECRET",
		"AUTH_IDP_URL",
		"RATE_LIMIT_MAX_REQUESTS",
		"RATE_LIMIT_WINDOW",
		"COMPACTION_THRESHOLD",
		"SESSION_IDLE_TIMEOUT",
		"SILENCE_ALERT_GAP",
		"SUMMARIZE_TIMEOUT",
		"ANALYSIS_TIMEOUT",
		"COMPLETION_PROVIDER",
		"OPENAI_API_KEY",
		"OPENAI_MODEL",
		"ANTHROPIC_API_KEY",
		"ANTHROPIC_MODEL",
		"DATABASE_URL",
		"TRIGGER_TABLE",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
