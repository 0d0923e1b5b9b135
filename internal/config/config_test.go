package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 || cfg.Store.Driver != "memory" || cfg.Feed.Driver != "memory" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	s := cfg.Session
	if s.ThumbnailWarmup != 3*time.Second || s.ThumbnailPeriod != 30*time.Second ||
		s.LevelInterval != 100*time.Millisecond || s.ClockTick != time.Second ||
		s.HistoryLimit != 100 || s.TransportIDRange != 1_000_000 {
		t.Fatalf("unexpected session defaults: %+v", s)
	}
	if cfg.Blob.Enabled() {
		t.Fatal("blob enabled without credentials")
	}
}

func TestLoadFileYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	yaml := `
port: 9090
store:
  driver: postgres
  dsn: postgres://from-file
feed:
  driver: redis
  redis_url: redis://localhost:6379/0
session:
  thumbnail_period: 10s
participant:
  room: library
  goal_minutes: 45
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STORE_DSN", "postgres://from-env")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("port = %d", cfg.Port)
	}
	if cfg.Store.DSN != "postgres://from-env" {
		t.Fatalf("dsn = %q, env should win", cfg.Store.DSN)
	}
	if cfg.Session.ThumbnailPeriod != 10*time.Second {
		t.Fatalf("period = %s", cfg.Session.ThumbnailPeriod)
	}
	if cfg.Participant.Room != "library" || cfg.Participant.GoalMinutes != 45 {
		t.Fatalf("participant = %+v", cfg.Participant)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"memory", Config{Store: StoreConfig{Driver: "memory"}, Feed: FeedConfig{Driver: "memory"}}, true},
		{"postgres without dsn", Config{Store: StoreConfig{Driver: "postgres"}, Feed: FeedConfig{Driver: "memory"}}, false},
		{"pg feed on memory store", Config{Store: StoreConfig{Driver: "memory"}, Feed: FeedConfig{Driver: "postgres"}}, false},
		{"redis without url", Config{Store: StoreConfig{Driver: "memory"}, Feed: FeedConfig{Driver: "redis"}}, false},
		{"unknown store", Config{Store: StoreConfig{Driver: "sqlite"}, Feed: FeedConfig{Driver: "memory"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.validate(); (err == nil) != tt.ok {
				t.Fatalf("validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestApplyLogLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ApplyLogLevel("debug")
	if got := zerolog.GlobalLevel(); got != zerolog.DebugLevel {
		t.Fatalf("level = %v", got)
	}
	ApplyLogLevel("loud")
	if got := zerolog.GlobalLevel(); got != zerolog.InfoLevel {
		t.Fatalf("unknown level = %v, want info", got)
	}
}
