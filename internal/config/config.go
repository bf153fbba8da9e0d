package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"pantau/internal/logging"
	"pantau/internal/models"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Streams  StreamsConfig  `mapstructure:"streams"`
	History  HistoryConfig  `mapstructure:"history"`
	Watchdog WatchdogConfig `mapstructure:"watchdog"`
	NATS     NATSConfig     `mapstructure:"nats"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Timezone    string `mapstructure:"timezone"`
}

// Location resolves the civil-day timezone. Hosts without tzdata fall back to
// a fixed UTC+7 zone.
func (a AppConfig) Location() *time.Location {
	if loc, err := time.LoadLocation(a.Timezone); err == nil && a.Timezone != "" {
		return loc
	}
	return time.FixedZone("WIB", 7*60*60)
}

// ServerConfig covers the HTTP and WebSocket listener.
type ServerConfig struct {
	Addr            string          `mapstructure:"addr"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration   `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string        `mapstructure:"allowed_origins"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	WS              WSConfig        `mapstructure:"ws"`
}

// RateLimitConfig is the per-IP token bucket on /api.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// WSConfig tunes the WebSocket pumps.
type WSConfig struct {
	ReadLimit  int64         `mapstructure:"read_limit"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
}

// PingPeriod must stay below PongWait.
func (w WSConfig) PingPeriod() time.Duration {
	return w.PongWait * 9 / 10
}

// DatabaseConfig selects and tunes the sample store.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// StreamsConfig holds the per-stream refresh cadences. Shorter intervals make
// dashboards more responsive at the cost of one store round trip per client and tick.
type StreamsConfig struct {
	LatestInterval      time.Duration `mapstructure:"latest_interval"`
	PzemHistoryInterval time.Duration `mapstructure:"pzem_history_interval"`
	SnapshotLimit       int           `mapstructure:"snapshot_limit"`
	MaxSnapshotLimit    int           `mapstructure:"max_snapshot_limit"`
	RPMPeakWindow       time.Duration `mapstructure:"rpm_peak_window"`
	SnapshotCacheTTL    time.Duration `mapstructure:"snapshot_cache_ttl"`
}

// ClampLimit maps a requested snapshot size onto [1, MaxSnapshotLimit].
func (s StreamsConfig) ClampLimit(requested int) int {
	if requested <= 0 {
		return s.SnapshotLimit
	}
	if s.MaxSnapshotLimit > 0 && requested > s.MaxSnapshotLimit {
		return s.MaxSnapshotLimit
	}
	return requested
}

// HistoryConfig lists the chart windows.
type HistoryConfig struct {
	DefaultWindow string              `mapstructure:"default_window"`
	Windows       []models.WindowSpec `mapstructure:"windows"`
}

// Lookup finds a window by key.
func (h HistoryConfig) Lookup(key string) (models.WindowSpec, bool) {
	for _, w := range h.Windows {
		if w.Key == key {
			return w, true
		}
	}
	return models.WindowSpec{}, false
}

// Resolve returns the named window, or the default window for unknown keys.
func (h HistoryConfig) Resolve(key string) models.WindowSpec {
	if w, ok := h.Lookup(key); ok {
		return w
	}
	w, _ := h.Lookup(h.DefaultWindow)
	return w
}

// WatchdogConfig governs synthetic zero injection.
type WatchdogConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	Threshold time.Duration `mapstructure:"threshold"`
	Metrics   []string      `mapstructure:"metrics"`
}

// WatchedMetrics parses the configured metric names.
func (w WatchdogConfig) WatchedMetrics() ([]models.Metric, error) {
	out := make([]models.Metric, 0, len(w.Metrics))
	for _, name := range w.Metrics {
		m, err := models.ParseMetric(name)
		if err != nil {
			return nil, fmt.Errorf("watchdog.metrics: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// NATSConfig enables broker ingestion when URL is set.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	QueueGroup    string `mapstructure:"queue_group"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PANTAU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}
	return build(v)
}

// Default returns the built-in configuration without consulting files or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := build(v)
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

func build(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.History.Windows) == 0 {
		cfg.History.Windows = append([]models.WindowSpec(nil), models.DefaultWindows...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pantau")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.timezone", "Asia/Jakarta")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit.rps", 20.0)
	v.SetDefault("server.rate_limit.burst", 40)
	v.SetDefault("server.ws.read_limit", int64(4096))
	v.SetDefault("server.ws.write_wait", "10s")
	v.SetDefault("server.ws.pong_wait", "60s")
	v.SetDefault("server.ws.send_buffer", 64)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.query_timeout", "3s")

	v.SetDefault("streams.latest_interval", "1s")
	v.SetDefault("streams.pzem_history_interval", "2s")
	v.SetDefault("streams.snapshot_limit", 50)
	v.SetDefault("streams.max_snapshot_limit", 500)
	v.SetDefault("streams.rpm_peak_window", "10s")
	v.SetDefault("streams.snapshot_cache_ttl", "500ms")

	v.SetDefault("history.default_window", "1h")

	v.SetDefault("watchdog.enabled", true)
	v.SetDefault("watchdog.interval", "1s")
	v.SetDefault("watchdog.threshold", "10s")
	v.SetDefault("watchdog.metrics", []string{"pzem", "suhu", "rpm"})

	v.SetDefault("nats.subject_prefix", "pantau.ingest")
	v.SetDefault("nats.queue_group", "pantau")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be memory or postgres, got %q", c.Database.Driver)
	}
	if c.Server.WS.PongWait <= 0 || c.Server.WS.WriteWait <= 0 {
		return fmt.Errorf("server.ws.pong_wait and server.ws.write_wait must be greater than zero")
	}
	if c.Server.WS.SendBuffer <= 0 {
		return fmt.Errorf("server.ws.send_buffer must be greater than zero")
	}
	if c.Streams.LatestInterval <= 0 || c.Streams.PzemHistoryInterval <= 0 {
		return fmt.Errorf("streams intervals must be greater than zero")
	}
	if c.Streams.SnapshotLimit <= 0 {
		return fmt.Errorf("streams.snapshot_limit must be greater than zero")
	}
	if c.Streams.MaxSnapshotLimit < c.Streams.SnapshotLimit {
		return fmt.Errorf("streams.max_snapshot_limit cannot be below streams.snapshot_limit")
	}
	if c.Streams.RPMPeakWindow <= 0 {
		return fmt.Errorf("streams.rpm_peak_window must be greater than zero")
	}

	seen := make(map[string]bool, len(c.History.Windows))
	for _, w := range c.History.Windows {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("history.windows: %w", err)
		}
		if seen[w.Key] {
			return fmt.Errorf("history.windows: duplicate key %q", w.Key)
		}
		seen[w.Key] = true
	}
	if !seen[c.History.DefaultWindow] {
		return fmt.Errorf("history.default_window %q is not among history.windows", c.History.DefaultWindow)
	}

	if c.Watchdog.Enabled {
		if c.Watchdog.Interval <= 0 || c.Watchdog.Threshold <= 0 {
			return fmt.Errorf("watchdog.interval and watchdog.threshold must be greater than zero")
		}
		if _, err := c.Watchdog.WatchedMetrics(); err != nil {
			return err
		}
	}
	return nil
}
