package config

import "testing"

func validBase() Config {
	return Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Driver: "memory"},
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validBase()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validBase()
	cfg.Database.Driver = "cassandra"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown database driver")
	}
}

func TestValidate_MissingRedisAddrs(t *testing.T) {
	cfg := validBase()
	cfg.Database.Driver = "redis"
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for redis driver without addrs")
	}
}

func TestValidate_MemoryDriverNeedsNoAddrs(t *testing.T) {
	cfg := validBase()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_ThresholdOrdering(t *testing.T) {
	cfg := validBase()
	cfg.Pipeline.MatchThreshold = 90
	cfg.Pipeline.UrgentThreshold = 80

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when urgent threshold is below match threshold")
	}
}

func TestValidate_PriceDropPctRange(t *testing.T) {
	cfg := validBase()
	cfg.Pipeline.PriceDropPct = 5 // percent, not fraction

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for price_drop_pct >= 1")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("expected Driver='memory', got %q", cfg.Database.Driver)
	}
	if cfg.Pipeline.SweepIntervalSec != 30 {
		t.Errorf("expected SweepIntervalSec=30, got %d", cfg.Pipeline.SweepIntervalSec)
	}
	if cfg.Pipeline.DrainIntervalSec != 5 {
		t.Errorf("expected DrainIntervalSec=5, got %d", cfg.Pipeline.DrainIntervalSec)
	}
	if cfg.Pipeline.MaxConcurrentSearches != 8 {
		t.Errorf("expected MaxConcurrentSearches=8, got %d", cfg.Pipeline.MaxConcurrentSearches)
	}
	if cfg.Pipeline.MatchThreshold != 80 || cfg.Pipeline.UrgentThreshold != 92 {
		t.Errorf("expected thresholds 80/92, got %v/%v",
			cfg.Pipeline.MatchThreshold, cfg.Pipeline.UrgentThreshold)
	}
	if cfg.Pipeline.PriceDropPct != 0.05 || cfg.Pipeline.PriceDropFloor != 5000 {
		t.Errorf("expected price drop 0.05/5000, got %v/%v",
			cfg.Pipeline.PriceDropPct, cfg.Pipeline.PriceDropFloor)
	}
	if cfg.Cache.TTLSec != 900 {
		t.Errorf("expected cache TTLSec=900, got %d", cfg.Cache.TTLSec)
	}
	if cfg.Cache.KeyPrefix != "homewatch:cache:" {
		t.Errorf("expected KeyPrefix='homewatch:cache:', got %q", cfg.Cache.KeyPrefix)
	}
	if cfg.WS.SendBuffer != 64 {
		t.Errorf("expected SendBuffer=64, got %d", cfg.WS.SendBuffer)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database: DatabaseConfig{Driver: "redis", ReadinessTimeout: 15},
		Pipeline: PipelineConfig{SweepIntervalSec: 60, MaxConcurrentSearches: 4},
		Cache:    CacheConfig{TTLSec: 300, KeyPrefix: "custom:"},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Database.Driver != "redis" {
		t.Errorf("expected Driver='redis', got %q", cfg.Database.Driver)
	}
	if cfg.Pipeline.SweepIntervalSec != 60 {
		t.Errorf("expected SweepIntervalSec=60, got %d", cfg.Pipeline.SweepIntervalSec)
	}
	if cfg.Pipeline.MaxConcurrentSearches != 4 {
		t.Errorf("expected MaxConcurrentSearches=4, got %d", cfg.Pipeline.MaxConcurrentSearches)
	}
	if cfg.Cache.TTLSec != 300 || cfg.Cache.KeyPrefix != "custom:" {
		t.Errorf("cache overrides lost: %+v", cfg.Cache)
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Pipeline.SweepInterval().Seconds() != 30 {
		t.Errorf("sweep interval = %v, want 30s", cfg.Pipeline.SweepInterval())
	}
	if cfg.Pipeline.DrainInterval().Seconds() != 5 {
		t.Errorf("drain interval = %v, want 5s", cfg.Pipeline.DrainInterval())
	}
	if cfg.Cache.TTL().Minutes() != 15 {
		t.Errorf("cache ttl = %v, want 15m", cfg.Cache.TTL())
	}
}
