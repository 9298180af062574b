package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
)

// Key-value backend selection for rate-limit counters, result cache,
// and device presence.
const (
	KVBackendMemory = "memory" // in-process map, single-node dev and tests
	KVBackendRedis  = "redis"  // shared counters across daemon replicas
	KVBackendNATS   = "nats"   // JetStream KV when Redis is not deployed
)

// Inference engine selection.
const (
	EngineModeHTTP  = "http"  // JSON POST to the inference sidecar
	EngineModeLocal = "local" // built-in heuristic engine, no sidecar
)

// Config represents the complete daemon configuration. Durations in JSON
// files may be written as Go duration strings ("30s", "5m") or with a day
// suffix ("14d"); the Loader converts them before unmarshaling.
type Config struct {
	Instance   InstanceConfig   `json:"instance"`
	Log        LogConfig        `json:"log"`
	NATS       NATSConfig       `json:"nats"`
	KVStore    KVStoreConfig    `json:"kvstore"`
	Redis      RedisConfig      `json:"redis"`
	Postgres   PostgresConfig   `json:"postgres"`
	ClickHouse ClickHouseConfig `json:"clickhouse"`
	MQTT       MQTTConfig       `json:"mqtt"`
	Realtime   RealtimeConfig   `json:"realtime"`
	Metrics    MetricsConfig    `json:"metrics"`
	Inference  InferenceConfig  `json:"inference"`
	RateLimit  RateLimitConfig  `json:"rate_limit"`
	Cache      CacheConfig      `json:"cache"`
	Topics     TopicsConfig     `json:"topics"`
	Push       PushConfig       `json:"push"`
}

// InstanceConfig identifies this daemon instance.
type InstanceConfig struct {
	ID          string `json:"id"`                    // e.g. "cradle-1", "nursery-east"
	Environment string `json:"environment,omitempty"` // "prod", "dev", "test"
}

// LogConfig controls the slog handler built at startup.
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// NATSConfig defines NATS connection settings.
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
	KVBucket      BucketConfig  `json:"kv_bucket,omitempty"`
}

// BucketConfig defines the JetStream KV bucket used by the nats kvstore
// backend. Per-key expiry is handled by the store itself, so TTL here is
// a bucket-level bound, not the cache TTL.
type BucketConfig struct {
	Name     string        `json:"name,omitempty"`
	TTL      time.Duration `json:"ttl"` // 0 = no bucket-level expiration
	History  int           `json:"history"`
	MaxBytes int64         `json:"max_bytes,omitempty"`
	Replicas int           `json:"replicas,omitempty"`
}

// KVStoreConfig selects the counter/TTL store backend.
type KVStoreConfig struct {
	Backend string `json:"backend"` // memory, redis, nats
}

// RedisConfig defines the Redis connection for the redis kvstore backend.
type RedisConfig struct {
	Addr         string        `json:"addr"`
	Password     string        `json:"password,omitempty"`
	DB           int           `json:"db,omitempty"`
	DialTimeout  time.Duration `json:"dial_timeout,omitempty"`
	ReadTimeout  time.Duration `json:"read_timeout,omitempty"`
	WriteTimeout time.Duration `json:"write_timeout,omitempty"`
	PoolSize     int           `json:"pool_size,omitempty"`
}

// PostgresConfig defines the durable session/alert/device store. When
// disabled the daemon falls back to the in-memory store.
type PostgresConfig struct {
	Enabled         bool          `json:"enabled"`
	Host            string        `json:"host,omitempty"`
	Port            int           `json:"port,omitempty"`
	User            string        `json:"user,omitempty"`
	Password        string        `json:"password,omitempty"`
	Database        string        `json:"database,omitempty"`
	SSLMode         string        `json:"ssl_mode,omitempty"`
	MaxOpenConns    int           `json:"max_open_conns,omitempty"`
	MaxIdleConns    int           `json:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime,omitempty"`
}

// DSN builds a lib/pq connection string from the discrete fields.
func (p PostgresConfig) DSN() string {
	parts := []string{
		"host=" + p.Host,
		"port=" + strconv.Itoa(p.Port),
		"user=" + p.User,
		"dbname=" + p.Database,
	}
	if p.Password != "" {
		parts = append(parts, "password="+p.Password)
	}
	if p.SSLMode != "" {
		parts = append(parts, "sslmode="+p.SSLMode)
	}
	return strings.Join(parts, " ")
}

// ClickHouseConfig defines the inference telemetry sink.
type ClickHouseConfig struct {
	Enabled       bool          `json:"enabled"`
	Addrs         []string      `json:"addrs,omitempty"`
	Database      string        `json:"database,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	BatchSize     int           `json:"batch_size,omitempty"`
	FlushInterval time.Duration `json:"flush_interval,omitempty"`
	QueueSize     int           `json:"queue_size,omitempty"`
}

// MQTTConfig defines the ingest bridge for constrained devices that
// publish chunks over MQTT instead of WebSocket.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	QoS         byte   `json:"qos,omitempty"`
	TopicPrefix string `json:"topic_prefix,omitempty"` // subscribes {prefix}/+/audio and {prefix}/+/video
}

// RealtimeConfig defines the WebSocket server.
type RealtimeConfig struct {
	Port            int           `json:"port"`
	ReadBufferSize  int           `json:"read_buffer_size,omitempty"`
	WriteBufferSize int           `json:"write_buffer_size,omitempty"`
	MaxMessageBytes int64         `json:"max_message_bytes,omitempty"`
	PingInterval    time.Duration `json:"ping_interval,omitempty"`
	PongWait        time.Duration `json:"pong_wait,omitempty"`
	WriteWait       time.Duration `json:"write_wait,omitempty"`
	InboundBuffer   int           `json:"inbound_buffer,omitempty"` // device chunk buffer capacity
}

// MetricsConfig defines the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// InferenceConfig defines the engine and the coordinator worker pool.
type InferenceConfig struct {
	Mode           string        `json:"mode"` // http, local
	URL            string        `json:"url,omitempty"`
	RequestTimeout time.Duration `json:"request_timeout,omitempty"`
	Workers        int           `json:"workers,omitempty"`
	QueueSize      int           `json:"queue_size,omitempty"`
}

// RateLimitConfig defines the fixed-window inference gates per modality.
type RateLimitConfig struct {
	AudioPerWindow int           `json:"audio_per_window"`
	VideoPerWindow int           `json:"video_per_window"`
	Window         time.Duration `json:"window"`
}

// CacheConfig defines TTLs for cached inference results and device
// presence keys.
type CacheConfig struct {
	ResultTTL   time.Duration `json:"result_ttl"`
	PresenceTTL time.Duration `json:"presence_ttl"`
}

// TopicsConfig names the bus subjects for the pipeline.
type TopicsConfig struct {
	Audio  string `json:"audio"`
	Video  string `json:"video"`
	Alerts string `json:"alerts"`
}

// PushConfig defines push notification delivery and its retry policy.
type PushConfig struct {
	Enabled     bool          `json:"enabled"`
	MaxAttempts int           `json:"max_attempts,omitempty"`
	Backoff     time.Duration `json:"backoff,omitempty"`
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{
		config: cfg,
	}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically updates the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	// Use JSON marshaling/unmarshaling for deep copy
	data, err := json.Marshal(c)
	if err != nil {
		// Fallback to shallow copy if marshaling fails
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}

	return &clone
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Log.Level != "" {
		switch c.Log.Level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
		}
	}
	if c.Log.Format != "" && c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("log.format %q is not one of json, text", c.Log.Format)
	}

	if len(c.NATS.URLs) == 0 {
		return errors.New("nats.urls is required")
	}

	switch c.KVStore.Backend {
	case KVBackendMemory, KVBackendNATS:
	case KVBackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required for the redis kvstore backend")
		}
	default:
		return fmt.Errorf("kvstore.backend %q is not one of memory, redis, nats", c.KVStore.Backend)
	}

	if c.Postgres.Enabled {
		if c.Postgres.Host == "" {
			return errors.New("postgres.host is required when postgres is enabled")
		}
		if c.Postgres.Database == "" {
			return errors.New("postgres.database is required when postgres is enabled")
		}
		if c.Postgres.User == "" {
			return errors.New("postgres.user is required when postgres is enabled")
		}
	}

	if c.ClickHouse.Enabled {
		if len(c.ClickHouse.Addrs) == 0 {
			return errors.New("clickhouse.addrs is required when clickhouse is enabled")
		}
		if c.ClickHouse.Database == "" {
			return errors.New("clickhouse.database is required when clickhouse is enabled")
		}
	}

	if c.MQTT.Enabled && c.MQTT.BrokerURL == "" {
		return errors.New("mqtt.broker_url is required when mqtt is enabled")
	}

	if err := validatePort("realtime.port", c.Realtime.Port); err != nil {
		return err
	}
	if c.Metrics.Enabled {
		if err := validatePort("metrics.port", c.Metrics.Port); err != nil {
			return err
		}
	}

	switch c.Inference.Mode {
	case EngineModeLocal:
	case EngineModeHTTP:
		if c.Inference.URL == "" {
			return errors.New("inference.url is required for the http engine")
		}
	default:
		return fmt.Errorf("inference.mode %q is not one of http, local", c.Inference.Mode)
	}

	if c.RateLimit.AudioPerWindow < 1 {
		return errors.New("rate_limit.audio_per_window must be at least 1")
	}
	if c.RateLimit.VideoPerWindow < 1 {
		return errors.New("rate_limit.video_per_window must be at least 1")
	}
	if c.RateLimit.Window < time.Second {
		return errors.New("rate_limit.window must be at least 1s")
	}

	if c.Cache.ResultTTL <= 0 {
		return errors.New("cache.result_ttl must be positive")
	}
	if c.Cache.PresenceTTL <= 0 {
		return errors.New("cache.presence_ttl must be positive")
	}

	for name, topic := range map[string]string{
		"topics.audio":  c.Topics.Audio,
		"topics.video":  c.Topics.Video,
		"topics.alerts": c.Topics.Alerts,
	} {
		if topic == "" {
			return fmt.Errorf("%s is required", name)
		}
		if !isValidSubject(topic) {
			return fmt.Errorf(
				"%s '%s' is not a valid bus subject (must be alphanumeric with dots, dashes, underscores)",
				name, topic,
			)
		}
	}

	return nil
}

// validatePort checks a listener port is in the valid range.
func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s %d is outside 1-65535", name, port)
	}
	return nil
}

// isValidSubject checks if a string is valid for use as a NATS subject.
// Valid characters are alphanumeric, dots, dashes, and underscores.
func isValidSubject(s string) bool {
	if len(s) == 0 {
		return false
	}

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) &&
			r != '-' && r != '_' && r != '.' {
			return false
		}
	}
	return true
}

// DefaultConfig returns the configuration used when no file or override
// supplies a value. Defaults target localhost services with the memory
// kvstore and the local engine so a bare daemon run works without
// external dependencies.
func DefaultConfig() *Config {
	return &Config{
		Instance: InstanceConfig{
			ID:          "cradle-1",
			Environment: "dev",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			KVBucket: BucketConfig{
				Name:    "cradle-kv",
				History: 1,
			},
		},
		KVStore: KVStoreConfig{
			Backend: KVBackendMemory,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "cradle",
			Database:        "cradle",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		ClickHouse: ClickHouseConfig{
			Addrs:         []string{"localhost:9000"},
			Database:      "cradle",
			BatchSize:     100,
			FlushInterval: 5 * time.Second,
			QueueSize:     1000,
		},
		MQTT: MQTTConfig{
			BrokerURL:   "tcp://localhost:1883",
			ClientID:    "cradle-ingest",
			TopicPrefix: "cradle",
		},
		Realtime: RealtimeConfig{
			Port:            8000,
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			MaxMessageBytes: 1 << 20,
			PingInterval:    30 * time.Second,
			PongWait:        60 * time.Second,
			WriteWait:       10 * time.Second,
			InboundBuffer:   256,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Inference: InferenceConfig{
			Mode:           EngineModeLocal,
			URL:            "http://localhost:8001",
			RequestTimeout: 10 * time.Second,
			Workers:        8,
			QueueSize:      256,
		},
		RateLimit: RateLimitConfig{
			AudioPerWindow: 10,
			VideoPerWindow: 5,
			Window:         60 * time.Second,
		},
		Cache: CacheConfig{
			ResultTTL:   time.Hour,
			PresenceTTL: 5 * time.Minute,
		},
		Topics: TopicsConfig{
			Audio:  "audio-stream",
			Video:  "video-stream",
			Alerts: "alerts",
		},
		Push: PushConfig{
			MaxAttempts: 3,
			Backoff:     500 * time.Millisecond,
		},
	}
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: false,
		envPrefix:  "CRADLE",
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Load each layer and merge using map-based approach
	for _, path := range l.layers {
		rawConfig, err := l.loadRawJSON(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg = l.mergeFromMap(cfg, rawConfig)
	}

	// Apply environment overrides
	l.applyEnvOverrides(cfg)

	// Validate if enabled
	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadRawJSON loads configuration from a JSON file as a map
func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	// Use secure file reading with validation
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	// Validate JSON depth to prevent DoS
	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}

	// Unmarshal into map
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return nil, err
	}

	// Convert duration strings
	l.parseDurations(rawConfig)

	return rawConfig, nil
}

// durationPaths lists the config fields whose JSON value may be written
// as a duration string instead of nanoseconds.
var durationPaths = [][]string{
	{"nats", "reconnect_wait"},
	{"nats", "kv_bucket", "ttl"},
	{"redis", "dial_timeout"},
	{"redis", "read_timeout"},
	{"redis", "write_timeout"},
	{"postgres", "conn_max_lifetime"},
	{"clickhouse", "flush_interval"},
	{"realtime", "ping_interval"},
	{"realtime", "pong_wait"},
	{"realtime", "write_wait"},
	{"inference", "request_timeout"},
	{"rate_limit", "window"},
	{"cache", "result_ttl"},
	{"cache", "presence_ttl"},
	{"push", "backoff"},
}

// parseDurations converts duration strings to nanoseconds for json
// unmarshaling into time.Duration fields.
func (l *Loader) parseDurations(data map[string]any) {
	for _, path := range durationPaths {
		convertDurationAt(data, path)
	}
}

// convertDurationAt rewrites the string at path into nanoseconds,
// leaving the map untouched when the path is absent or already numeric.
func convertDurationAt(data map[string]any, path []string) {
	current := data
	for _, key := range path[:len(path)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			return
		}
		current = next
	}

	leaf := path[len(path)-1]
	if s, ok := current[leaf].(string); ok {
		if d, err := parseDurationWithDays(s); err == nil {
			current[leaf] = d.Nanoseconds()
		}
	}
}

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days := strings.TrimSuffix(s, "d")
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// mergeFromMap merges configuration from a raw map, only overriding fields present in the map
func (l *Loader) mergeFromMap(base *Config, override map[string]any) *Config {
	if override == nil {
		return base
	}

	// Marshal the base config to JSON then to map
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return base
	}

	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return base
	}

	// Deep merge the maps
	mergedMap := l.deepMergeMaps(baseMap, override)

	// Convert back to Config
	mergedJSON, err := json.Marshal(mergedMap)
	if err != nil {
		return base
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return base
	}

	return &merged
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func (l *Loader) deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any)

	// Copy base values
	for k, v := range base {
		result[k] = v
	}

	// Override with values from override map
	for k, v := range override {
		if v == nil {
			continue
		}

		// If both base and override have maps at this key, merge them
		if baseMap, baseOk := base[k].(map[string]any); baseOk {
			if overrideMap, overrideOk := v.(map[string]any); overrideOk {
				result[k] = l.deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}

		// Otherwise, override takes precedence
		result[k] = v
	}

	return result
}

// mergeConfigs merges configuration layers
// This is primarily used for testing - the main Load() uses mergeFromMap
func (l *Loader) mergeConfigs(base, override *Config) *Config {
	if override == nil {
		return base
	}

	// Convert both to maps and use the map-based merge
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return base
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return base
	}

	overrideJSON, err := json.Marshal(override)
	if err != nil {
		return base
	}
	var overrideMap map[string]any
	if err := json.Unmarshal(overrideJSON, &overrideMap); err != nil {
		return base
	}

	// Remove nil values from override map (these are zero values in Go structs)
	l.removeNilValues(overrideMap)

	// Merge and convert back
	mergedMap := l.deepMergeMaps(baseMap, overrideMap)
	mergedJSON, err := json.Marshal(mergedMap)
	if err != nil {
		return base
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return base
	}

	return &merged
}

// removeNilValues recursively removes nil values from a map
func (l *Loader) removeNilValues(m map[string]any) {
	for k, v := range m {
		if v == nil {
			delete(m, k)
		} else if nested, ok := v.(map[string]any); ok {
			l.removeNilValues(nested)
		}
	}
}

// applyEnvOverrides applies CRADLE_* environment variable overrides.
// Values that fail basic validation are ignored.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	setString := func(target *string, key string) {
		if val, ok := l.envValue(key); ok {
			*target = val
		}
	}
	setInt := func(target *int, key string) {
		if val, ok := l.envValue(key); ok {
			if n, err := strconv.Atoi(val); err == nil {
				*target = n
			}
		}
	}
	setBool := func(target *bool, key string) {
		if val, ok := l.envValue(key); ok {
			if b, err := strconv.ParseBool(val); err == nil {
				*target = b
			}
		}
	}
	setStrings := func(target *[]string, key string) {
		if val, ok := l.envValue(key); ok {
			*target = strings.Split(val, ",")
		}
	}

	setString(&cfg.Instance.ID, "INSTANCE_ID")
	setString(&cfg.Instance.Environment, "ENVIRONMENT")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")

	setStrings(&cfg.NATS.URLs, "NATS_URLS")
	setString(&cfg.NATS.Username, "NATS_USERNAME")
	setString(&cfg.NATS.Password, "NATS_PASSWORD")
	setString(&cfg.NATS.Token, "NATS_TOKEN")

	setString(&cfg.KVStore.Backend, "KVSTORE_BACKEND")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")

	setBool(&cfg.Postgres.Enabled, "POSTGRES_ENABLED")
	setString(&cfg.Postgres.Host, "POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POSTGRES_PORT")
	setString(&cfg.Postgres.User, "POSTGRES_USER")
	setString(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	setString(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	setString(&cfg.Postgres.SSLMode, "POSTGRES_SSLMODE")

	setBool(&cfg.ClickHouse.Enabled, "CLICKHOUSE_ENABLED")
	setStrings(&cfg.ClickHouse.Addrs, "CLICKHOUSE_ADDRS")
	setString(&cfg.ClickHouse.Database, "CLICKHOUSE_DATABASE")
	setString(&cfg.ClickHouse.Username, "CLICKHOUSE_USERNAME")
	setString(&cfg.ClickHouse.Password, "CLICKHOUSE_PASSWORD")

	setBool(&cfg.MQTT.Enabled, "MQTT_ENABLED")
	setString(&cfg.MQTT.BrokerURL, "MQTT_BROKER_URL")
	setString(&cfg.MQTT.Username, "MQTT_USERNAME")
	setString(&cfg.MQTT.Password, "MQTT_PASSWORD")

	setInt(&cfg.Realtime.Port, "REALTIME_PORT")
	setInt(&cfg.Metrics.Port, "METRICS_PORT")

	setString(&cfg.Inference.Mode, "INFERENCE_MODE")
	setString(&cfg.Inference.URL, "INFERENCE_URL")
}

// envValue reads a prefixed environment variable, applying basic
// validation before use.
func (l *Loader) envValue(suffix string) (string, bool) {
	key := l.envPrefix + "_" + suffix
	val := os.Getenv(key)
	if val == "" {
		return "", false
	}
	if err := validateEnvVar(key, val); err != nil {
		return "", false
	}
	return val, true
}

// SaveToFile saves the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	// Use secure file writing with validation
	return safeWriteFile(path, data)
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
