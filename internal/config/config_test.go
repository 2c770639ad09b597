package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr() != "0.0.0.0:8080" {
		t.Fatalf("BindAddr = %q, want 0.0.0.0:8080", cfg.BindAddr())
	}
	if cfg.CallingHoursStart != 10 || cfg.CallingHoursEnd != 19 {
		t.Fatalf("calling hours = [%d,%d), want [10,19)", cfg.CallingHoursStart, cfg.CallingHoursEnd)
	}
	if cfg.MaxConcurrentCalls != 3 {
		t.Fatalf("MaxConcurrentCalls = %d, want 3", cfg.MaxConcurrentCalls)
	}
	if cfg.HasLiveProviderKeys() {
		t.Fatalf("HasLiveProviderKeys should be false with no keys set")
	}
}

func TestLoadRejectsInvertedCallingHours(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("CALLING_HOURS_START", "19")
	t.Setenv("CALLING_HOURS_END", "10")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() should reject start >= end")
	}
}

func TestLoadRejectsBadProviderMode(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("PROVIDER_MODE", "sometimes")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() should reject unknown PROVIDER_MODE")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_CALL_DURATION_MINUTES", "5")
	t.Setenv("DEEPGRAM_API_KEY", "dg")
	t.Setenv("OPENAI_API_KEY", "oa")
	t.Setenv("ELEVENLABS_API_KEY", "el")
	t.Setenv("ELEVENLABS_VOICE_ID", "voice")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.MaxCallDuration.Minutes() != 5 {
		t.Fatalf("MaxCallDuration = %v, want 5m", cfg.MaxCallDuration)
	}
	if !cfg.HasLiveProviderKeys() {
		t.Fatalf("HasLiveProviderKeys should be true")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"HOST",
		"PORT",
		"SHUTDOWN_TIMEOUT",
		"METRICS_NAMESPACE",
		"LOG_LEVEL",
		"OUR_BASE_URL",
		"DATABASE_URL",
		"REDIS_URL",
		"CALLING_HOURS_START",
		"CALLING_HOURS_END",
		"MAX_CONCURRENT_CALLS",
		"MAX_CALL_DURATION_MINUTES",
		"WORKER_INTERVAL",
		"EXOTEL_ACCOUNT_SID",
		"EXOTEL_API_KEY",
		"EXOTEL_API_TOKEN",
		"EXOTEL_VIRTUAL_NUMBER",
		"EXOTEL_FLOW_ID",
		"EXOTEL_SUBDOMAIN",
		"DEEPGRAM_API_KEY",
		"OPENAI_API_KEY",
		"OPENAI_MODEL",
		"ELEVENLABS_API_KEY",
		"ELEVENLABS_VOICE_ID",
		"PROVIDER_MODE",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
