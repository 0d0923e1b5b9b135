package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	LogLevel    string        `mapstructure:"log_level"`
	StaticPath  string        `mapstructure:"static_path"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	Secret      string        `mapstructure:"secret"`
	CORSOrigins []string      `mapstructure:"cors_origins"`

	Store       StoreConfig       `mapstructure:"store"`
	Feed        FeedConfig        `mapstructure:"feed"`
	Blob        BlobConfig        `mapstructure:"blob"`
	Session     SessionConfig     `mapstructure:"session"`
	Signal      SignalConfig      `mapstructure:"signal"`
	Participant ParticipantConfig `mapstructure:"participant"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	LogSQL bool   `mapstructure:"log_sql"`
}

type FeedConfig struct {
	Driver   string `mapstructure:"driver"`
	RedisURL string `mapstructure:"redis_url"`
}

type BlobConfig struct {
	SupabaseURL string `mapstructure:"supabase_url"`
	SupabaseKey string `mapstructure:"supabase_key"`
	Bucket      string `mapstructure:"bucket"`
}

// Enabled reports whether thumbnail uploads are configured.
func (b BlobConfig) Enabled() bool {
	return b.SupabaseURL != "" && b.SupabaseKey != "" && b.Bucket != ""
}

type SessionConfig struct {
	ThumbnailWarmup        time.Duration `mapstructure:"thumbnail_warmup"`
	ThumbnailPeriod        time.Duration `mapstructure:"thumbnail_period"`
	ThumbnailUploadTimeout time.Duration `mapstructure:"thumbnail_upload_timeout"`
	LevelInterval          time.Duration `mapstructure:"level_interval"`
	ClockTick              time.Duration `mapstructure:"clock_tick"`
	HistoryLimit           int           `mapstructure:"history_limit"`
	TransportIDRange       uint32        `mapstructure:"transport_id_range"`
}

type SignalConfig struct {
	URL        string   `mapstructure:"url"`
	JoinRate   int      `mapstructure:"join_rate"`
	JoinBurst  int      `mapstructure:"join_burst"`
	ICEServers []string `mapstructure:"ice_servers"`
}

type ParticipantConfig struct {
	Room        string `mapstructure:"room"`
	User        string `mapstructure:"user"`
	Name        string `mapstructure:"name"`
	Seat        int    `mapstructure:"seat"`
	GoalMinutes int    `mapstructure:"goal_minutes"`
	Camera      bool   `mapstructure:"camera"`
	Mic         bool   `mapstructure:"mic"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("cors_origins", []string{})

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.log_sql", false)
	v.SetDefault("feed.driver", "memory")
	v.SetDefault("feed.redis_url", "")
	v.SetDefault("blob.supabase_url", "")
	v.SetDefault("blob.supabase_key", "")
	v.SetDefault("blob.bucket", "thumbnails")

	v.SetDefault("session.thumbnail_warmup", "3s")
	v.SetDefault("session.thumbnail_period", "30s")
	v.SetDefault("session.thumbnail_upload_timeout", "15s")
	v.SetDefault("session.level_interval", "100ms")
	v.SetDefault("session.clock_tick", "1s")
	v.SetDefault("session.history_limit", 100)
	v.SetDefault("session.transport_id_range", 1_000_000)

	v.SetDefault("signal.url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("signal.join_rate", 20)
	v.SetDefault("signal.join_burst", 5)
	v.SetDefault("signal.ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("participant.room", "")
	v.SetDefault("participant.user", "")
	v.SetDefault("participant.name", "")
	v.SetDefault("participant.seat", 0)
	v.SetDefault("participant.goal_minutes", 60)
	v.SetDefault("participant.camera", true)
	v.SetDefault("participant.mic", false)
}

// Load reads .env, then config/config.<CONFIG_ENV>.yaml, then environment overrides
// (STORE_DSN overrides store.dsn and so on).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("could not read .env")
	}
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile is Load without the .env step and with an explicit yaml path.
// A missing file falls back to defaults.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("store", cfg.Store.Driver).Str("feed", cfg.Feed.Driver).Bool("blob", cfg.Blob.Enabled()).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("config: store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	switch c.Feed.Driver {
	case "memory":
	case "postgres":
		if c.Store.Driver != "postgres" {
			return errors.New("config: feed.driver postgres needs store.driver postgres")
		}
	case "redis":
		if c.Feed.RedisURL == "" {
			return errors.New("config: feed.redis_url is required for the redis feed")
		}
	default:
		return fmt.Errorf("config: unknown feed.driver %q", c.Feed.Driver)
	}
	return nil
}
