package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// TriggerRule maps spoken keywords to the coaching event kind they raise.
// Rules are evaluated in declaration order.
type TriggerRule struct {
	Keywords []string `json:"keywords"`
	Event    string   `json:"event"`
	// Weight shifts the running sentiment score for sentiment rules.
	Weight int `json:"weight,omitempty"`
}

// Config contains all runtime settings for the coaching gateway.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	AuthSharedSecret string
	AuthIDPURL       string

	RateLimitMaxRequests int
	RateLimitWindow      time.Duration

	CompactionThreshold int
	SessionIdleTimeout  time.Duration
	SilenceAlertGap     time.Duration

	SummarizeTimeout time.Duration
	AnalysisTimeout  time.Duration

	CompletionProvider string
	OpenAIAPIKey       string
	OpenAIModel        string
	AnthropicAPIKey    string
	AnthropicModel     string

	DatabaseURL string

	TriggerTable []TriggerRule
}

// DefaultTriggerTable covers the objection and sentiment phrases the
// coaching pilot shipped with. Overridable via TRIGGER_TABLE.
func DefaultTriggerTable() []TriggerRule {
	return []TriggerRule{
		{Keywords: []string{"too expensive", "can't afford", "over budget"}, Event: "objection_detected"},
		{Keywords: []string{"not interested", "no thanks", "stop calling"}, Event: "objection_detected"},
		{Keywords: []string{"need to think", "call me back", "talk to my"}, Event: "objection_detected"},
		{Keywords: []string{"already have", "existing provider", "under contract"}, Event: "objection_detected"},
		{Keywords: []string{"sounds good", "love that", "exactly what"}, Event: "sentiment_update", Weight: 15},
		{Keywords: []string{"interesting", "tell me more", "how does that"}, Event: "sentiment_update", Weight: 10},
		{Keywords: []string{"not sure", "hesitant", "worried"}, Event: "sentiment_update", Weight: -10},
		{Keywords: []string{"frustrated", "annoyed", "waste of time"}, Event: "sentiment_update", Weight: -20},
	}
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:             envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:     envOrDefault("APP_METRICS_NAMESPACE", "salescoach"),
		AllowAnyOrigin:       false,
		AuthSharedSecret:     stringsTrimSpace("AUTH_SHARED_SECRET"),
		AuthIDPURL:           stringsTrimSpace("AUTH_IDP_URL"),
		CompletionProvider:   envOrDefault("COMPLETION_PROVIDER", "auto"),
		OpenAIAPIKey:         stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIModel:          envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey:      stringsTrimSpace("ANTHROPIC_API_KEY"),
		AnthropicModel:       envOrDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		DatabaseURL:          stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:      15 * time.Second,
		RateLimitMaxRequests: 120,
		RateLimitWindow:      time.Minute,
		CompactionThreshold:  30,
		SessionIdleTimeout:   2 * time.Minute,
		SilenceAlertGap:      12 * time.Second,
		SummarizeTimeout:     8 * time.Second,
		AnalysisTimeout:      10 * time.Second,
		TriggerTable:         DefaultTriggerTable(),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitWindow, err = durationFromEnv("RATE_LIMIT_WINDOW", cfg.RateLimitWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionIdleTimeout, err = durationFromEnv("SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SilenceAlertGap, err = durationFromEnv("SILENCE_ALERT_GAP", cfg.SilenceAlertGap)
	if err != nil {
		return Config{}, err
	}
	cfg.SummarizeTimeout, err = durationFromEnv("SUMMARIZE_TIMEOUT", cfg.SummarizeTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AnalysisTimeout, err = durationFromEnv("ANALYSIS_TIMEOUT", cfg.AnalysisTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitMaxRequests, err = intFromEnv("RATE_LIMIT_MAX_REQUESTS", cfg.RateLimitMaxRequests)
	if err != nil {
		return Config{}, err
	}
	cfg.CompactionThreshold, err = intFromEnv("COMPACTION_THRESHOLD", cfg.CompactionThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if raw := stringsTrimSpace("TRIGGER_TABLE"); raw != "" {
		rules, err := ParseTriggerTable(raw)
		if err != nil {
			return Config{}, err
		}
		cfg.TriggerTable = rules
	}

	if cfg.RateLimitMaxRequests <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_MAX_REQUESTS must be positive")
	}
	if cfg.RateLimitWindow <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if cfg.CompactionThreshold <= 0 {
		return Config{}, fmt.Errorf("COMPACTION_THRESHOLD must be positive")
	}
	if cfg.SessionIdleTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("SESSION_IDLE_TIMEOUT must be at least 5s")
	}
	if cfg.SilenceAlertGap <= 0 {
		return Config{}, fmt.Errorf("SILENCE_ALERT_GAP must be positive")
	}

	return cfg, nil
}

// ParseTriggerTable decodes and validates an ordered trigger rule list.
func ParseTriggerTable(raw string) ([]TriggerRule, error) {
	var rules []TriggerRule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, fmt.Errorf("TRIGGER_TABLE parse error: %w", err)
	}
	for i, r := range rules {
		if len(r.Keywords) == 0 {
			return nil, fmt.Errorf("TRIGGER_TABLE rule %d has no keywords", i)
		}
		switch r.Event {
		case "tip", "objection_detected", "sentiment_update":
		default:
			return nil, fmt.Errorf("TRIGGER_TABLE rule %d has unknown event %q", i, r.Event)
		}
	}
	return rules, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
