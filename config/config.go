// Package config loads the annotator configuration from YAML files and
// ANNOTATOR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mrjvadi/go-lbbroker/codec"
)

const (
	DefaultPort    = 1984
	DefaultBackend = "ipc://annotbackend.ipc"
	DefaultPrefix  = "xlime_"

	EnvPrefix = "ANNOTATOR"
	fileName  = "annotator.yaml"

	WorkerModeProcess   = "process"
	WorkerModeInProcess = "inprocess"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Service  ServiceConfig  `mapstructure:"service" yaml:"service"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Annotate AnnotateConfig `mapstructure:"annotate" yaml:"annotate"`
	Gateway  GatewayConfig  `mapstructure:"gateway" yaml:"gateway"`
}

type ServiceConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
	// Frontend overrides the tcp://*:<port> default.
	Frontend string `mapstructure:"frontend" yaml:"frontend,omitempty"`
	Backend  string `mapstructure:"backend" yaml:"backend"`
	Workers  int    `mapstructure:"workers" yaml:"workers"`
	// WorkerMode is "process" (one child per worker) or "inprocess".
	WorkerMode      string `mapstructure:"worker_mode" yaml:"worker_mode"`
	Codec           string `mapstructure:"codec" yaml:"codec"`
	ShutdownGraceMS int    `mapstructure:"shutdown_grace_ms" yaml:"shutdown_grace_ms"`
}

// FrontendAddr is the endpoint clients connect to.
func (s ServiceConfig) FrontendAddr() string {
	if s.Frontend != "" {
		return s.Frontend
	}
	return fmt.Sprintf("tcp://*:%d", s.Port)
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// Format: console or json
	Format string `mapstructure:"format" yaml:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `mapstructure:"outputs" yaml:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation" yaml:"rotation"`
	Development bool           `mapstructure:"development" yaml:"development"`
}

type RotationConfig struct {
	Enable     bool   `mapstructure:"enable" yaml:"enable"`
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type AnnotateConfig struct {
	// Prefix namespaces every field the annotator adds to a job.
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	// LexiconDB is the sqlite file behind sqlite:<lang> lexicons.
	LexiconDB string                    `mapstructure:"lexicon_db" yaml:"lexicon_db,omitempty"`
	Languages map[string]LanguageConfig `mapstructure:"languages" yaml:"languages"`
}

type LanguageConfig struct {
	// Lexicon is builtin:<lang>, sqlite:<lang> or a YAML file path.
	Lexicon string `mapstructure:"lexicon" yaml:"lexicon"`
	// Tokenizer overrides the lexicon's tokenizer.
	Tokenizer string `mapstructure:"tokenizer" yaml:"tokenizer,omitempty"`
	// Stages limits annotation to a subset of sentiment, pos, ne.
	Stages []string `mapstructure:"stages" yaml:"stages,omitempty"`
}

type GatewayConfig struct {
	HTTP  HTTPConfig  `mapstructure:"http" yaml:"http"`
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
	MQTT  MQTTConfig  `mapstructure:"mqtt" yaml:"mqtt"`
}

type HTTPConfig struct {
	Enable           bool   `mapstructure:"enable" yaml:"enable"`
	Listen           string `mapstructure:"listen" yaml:"listen"`
	RequestTimeoutMS int    `mapstructure:"request_timeout_ms" yaml:"request_timeout_ms"`
	PoolSize         int    `mapstructure:"pool_size" yaml:"pool_size"`
}

type RedisConfig struct {
	Enable       bool   `mapstructure:"enable" yaml:"enable"`
	Addr         string `mapstructure:"addr" yaml:"addr"`
	Password     string `mapstructure:"password" yaml:"password,omitempty"`
	DB           int    `mapstructure:"db" yaml:"db"`
	Stream       string `mapstructure:"stream" yaml:"stream"`
	Group        string `mapstructure:"group" yaml:"group"`
	MaxJobs      int    `mapstructure:"max_jobs" yaml:"max_jobs"`
	StreamMaxLen int64  `mapstructure:"stream_max_len" yaml:"stream_max_len"`
}

type MQTTConfig struct {
	Enable      bool   `mapstructure:"enable" yaml:"enable"`
	Broker      string `mapstructure:"broker" yaml:"broker"`
	ClientID    string `mapstructure:"client_id" yaml:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix" yaml:"topic_prefix"`
	QoS         int    `mapstructure:"qos" yaml:"qos"`
	Username    string `mapstructure:"username" yaml:"username,omitempty"`
	Password    string `mapstructure:"password" yaml:"password,omitempty"`
}

// DefaultLanguages mirrors the built-in lexicons.
func DefaultLanguages() map[string]LanguageConfig {
	return map[string]LanguageConfig{
		"en": {Lexicon: "builtin:en"},
		"de": {Lexicon: "builtin:de"},
		"es": {Lexicon: "builtin:es"},
		"it": {Lexicon: "builtin:it"},
	}
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Port:            DefaultPort,
			Backend:         DefaultBackend,
			Workers:         runtime.NumCPU(),
			WorkerMode:      WorkerModeProcess,
			Codec:           "json",
			ShutdownGraceMS: 2000,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				Filename:   "/tmp/annotator.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Annotate: AnnotateConfig{
			Prefix:    DefaultPrefix,
			Languages: DefaultLanguages(),
		},
		Gateway: GatewayConfig{
			HTTP: HTTPConfig{Listen: ":8080", RequestTimeoutMS: 10000, PoolSize: 8},
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Stream:  "annotator:jobs",
				Group:   "annotators",
				MaxJobs: 16,
			},
			MQTT: MQTTConfig{
				Broker:      "tcp://localhost:1883",
				ClientID:    "annotator",
				TopicPrefix: "annotator",
				QoS:         1,
			},
		},
	}
}

// SearchPaths lists the files tried when no path is given, in order.
func SearchPaths() []string {
	paths := []string{filepath.Join("/etc/annotator", fileName)}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "."+fileName))
	}
	return append(paths, filepath.Join(".", fileName))
}

// Load reads configuration from path, or from $ANNOTATOR_CONFIG, or from the
// first of SearchPaths that exists. With no file at all the defaults and
// environment apply. Environment variables use the ANNOTATOR prefix with
// `.` and `-` replaced by `_`, e.g. ANNOTATOR_SERVICE_WORKERS=8.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if path = Used(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// languages come wholesale from the file or from the defaults, never merged
	cfg.Annotate.Languages = nil
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Annotate.Languages) == 0 {
		cfg.Annotate.Languages = DefaultLanguages()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Used reports the file Load would read for path, or "" when none.
func Used(path string) string {
	if path != "" {
		return path
	}
	if p := os.Getenv(EnvPrefix + "_CONFIG"); p != "" {
		return p
	}
	for _, p := range SearchPaths() {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.port", cfg.Service.Port)
	v.SetDefault("service.frontend", cfg.Service.Frontend)
	v.SetDefault("service.backend", cfg.Service.Backend)
	v.SetDefault("service.workers", cfg.Service.Workers)
	v.SetDefault("service.worker_mode", cfg.Service.WorkerMode)
	v.SetDefault("service.codec", cfg.Service.Codec)
	v.SetDefault("service.shutdown_grace_ms", cfg.Service.ShutdownGraceMS)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	v.SetDefault("annotate.prefix", cfg.Annotate.Prefix)
	v.SetDefault("annotate.lexicon_db", cfg.Annotate.LexiconDB)

	v.SetDefault("gateway.http.enable", cfg.Gateway.HTTP.Enable)
	v.SetDefault("gateway.http.listen", cfg.Gateway.HTTP.Listen)
	v.SetDefault("gateway.http.request_timeout_ms", cfg.Gateway.HTTP.RequestTimeoutMS)
	v.SetDefault("gateway.http.pool_size", cfg.Gateway.HTTP.PoolSize)
	v.SetDefault("gateway.redis.enable", cfg.Gateway.Redis.Enable)
	v.SetDefault("gateway.redis.addr", cfg.Gateway.Redis.Addr)
	v.SetDefault("gateway.redis.password", cfg.Gateway.Redis.Password)
	v.SetDefault("gateway.redis.db", cfg.Gateway.Redis.DB)
	v.SetDefault("gateway.redis.stream", cfg.Gateway.Redis.Stream)
	v.SetDefault("gateway.redis.group", cfg.Gateway.Redis.Group)
	v.SetDefault("gateway.redis.max_jobs", cfg.Gateway.Redis.MaxJobs)
	v.SetDefault("gateway.redis.stream_max_len", cfg.Gateway.Redis.StreamMaxLen)
	v.SetDefault("gateway.mqtt.enable", cfg.Gateway.MQTT.Enable)
	v.SetDefault("gateway.mqtt.broker", cfg.Gateway.MQTT.Broker)
	v.SetDefault("gateway.mqtt.client_id", cfg.Gateway.MQTT.ClientID)
	v.SetDefault("gateway.mqtt.topic_prefix", cfg.Gateway.MQTT.TopicPrefix)
	v.SetDefault("gateway.mqtt.qos", cfg.Gateway.MQTT.QoS)
	v.SetDefault("gateway.mqtt.username", cfg.Gateway.MQTT.Username)
	v.SetDefault("gateway.mqtt.password", cfg.Gateway.MQTT.Password)
}

// Validate normalizes c in place and reports the first invalid setting.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}

	s := &c.Service
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("%w: service.port %d", ErrInvalid, s.Port)
	}
	if s.Workers <= 0 {
		s.Workers = runtime.NumCPU()
	}
	if strings.TrimSpace(s.Backend) == "" {
		return fmt.Errorf("%w: service.backend is empty", ErrInvalid)
	}
	s.WorkerMode = strings.ToLower(strings.TrimSpace(s.WorkerMode))
	switch s.WorkerMode {
	case WorkerModeProcess, WorkerModeInProcess:
	default:
		return fmt.Errorf("%w: service.worker_mode %q (want process or inprocess)", ErrInvalid, s.WorkerMode)
	}
	if s.WorkerMode == WorkerModeProcess && (strings.HasPrefix(s.Backend, "mem://") || strings.HasPrefix(s.Backend, "inproc://")) {
		return fmt.Errorf("%w: backend %s is not reachable from worker processes", ErrInvalid, s.Backend)
	}
	if _, err := codec.Lookup(s.Codec); err != nil {
		return fmt.Errorf("%w: service.codec: %v", ErrInvalid, err)
	}
	if s.ShutdownGraceMS <= 0 {
		s.ShutdownGraceMS = 2000
	}

	if c.Annotate.Prefix == "" {
		c.Annotate.Prefix = DefaultPrefix
	}
	for lang, lc := range c.Annotate.Languages {
		if strings.TrimSpace(lc.Lexicon) == "" {
			return fmt.Errorf("%w: annotate.languages.%s.lexicon is empty", ErrInvalid, lang)
		}
		if strings.HasPrefix(lc.Lexicon, "sqlite:") && c.Annotate.LexiconDB == "" {
			return fmt.Errorf("%w: annotate.languages.%s uses sqlite but annotate.lexicon_db is not set", ErrInvalid, lang)
		}
		for _, st := range lc.Stages {
			switch st {
			case "sentiment", "pos", "ne":
			default:
				return fmt.Errorf("%w: annotate.languages.%s.stages: unknown stage %q", ErrInvalid, lang, st)
			}
		}
	}

	if c.Gateway.HTTP.Enable && c.Gateway.HTTP.PoolSize <= 0 {
		c.Gateway.HTTP.PoolSize = 8
	}
	if c.Gateway.MQTT.QoS < 0 || c.Gateway.MQTT.QoS > 2 {
		return fmt.Errorf("%w: gateway.mqtt.qos %d", ErrInvalid, c.Gateway.MQTT.QoS)
	}
	return nil
}

// Save writes c to path as YAML.
func Save(c *Config, path string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
