package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigRelPath = ".tradesim/config.yaml"

type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout of zero leaves requests unbounded.
	Timeout time.Duration `yaml:"timeout"`
}

type SchedulerConfig struct {
	Debounce     time.Duration `yaml:"debounce"`
	MinIndicator time.Duration `yaml:"min_indicator"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type LedgerConfig struct {
	Capacity int         `yaml:"capacity"`
	Kafka    KafkaConfig `yaml:"kafka"`
}

type OutputConfig struct {
	Dir     string   `yaml:"dir"`
	Formats []string `yaml:"formats"`
}

type Config struct {
	API       APIConfig       `yaml:"api"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Output    OutputConfig    `yaml:"output"`
}

// Load loads YAML config, then applies env overrides.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}
	cfg.SetDefaults()

	if configPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// DefaultPath returns ~/.tradesim/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, defaultConfigRelPath), nil
}

func (c *Config) SetDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:8000"
	}
	if c.Scheduler.Debounce == 0 {
		c.Scheduler.Debounce = time.Second
	}
	if c.Scheduler.MinIndicator == 0 {
		c.Scheduler.MinIndicator = 600 * time.Millisecond
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = defaultDBPath()
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "stdout"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "tradesim"
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1
	}
	if c.Ledger.Capacity == 0 {
		c.Ledger.Capacity = 30
	}
	if c.Ledger.Kafka.Topic == "" {
		c.Ledger.Kafka.Topic = "tradesim.geo-actions"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if len(c.Output.Formats) == 0 {
		c.Output.Formats = []string{"markdown", "yaml"}
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tradesim.db"
	}
	return filepath.Join(home, ".tradesim", "tradesim.db")
}

func (c *Config) Validate() error {
	u, err := url.Parse(strings.TrimSpace(c.API.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return errors.New("api.timeout cannot be negative")
	}
	if c.Scheduler.Debounce <= 0 {
		return errors.New("scheduler.debounce must be positive")
	}
	if c.Scheduler.MinIndicator < 0 {
		return errors.New("scheduler.min_indicator cannot be negative")
	}
	if strings.TrimSpace(c.Storage.DBPath) == "" {
		return errors.New("storage.db_path cannot be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return errors.New("tracing.sample_ratio must be within [0,1]")
	}
	if c.Ledger.Capacity <= 0 {
		return errors.New("ledger.capacity must be positive")
	}
	for _, f := range c.Output.Formats {
		switch f {
		case "markdown", "yaml":
		default:
			return fmt.Errorf("unknown output format %q", f)
		}
	}
	return nil
}

// ValidateExport enforces report-export requirements.
func (c *Config) ValidateExport() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return errors.New("output.dir cannot be empty")
	}
	if err := ensureWritableDir(c.Output.Dir); err != nil {
		return fmt.Errorf("output.dir not writable: %w", err)
	}
	return nil
}

func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func applyEnvOverrides(c *Config) {
	setString(&c.API.BaseURL, "TRADESIM_API_BASE_URL")
	setDuration(&c.API.Timeout, "TRADESIM_API_TIMEOUT")
	setDuration(&c.Scheduler.Debounce, "TRADESIM_SCHEDULER_DEBOUNCE")
	setDuration(&c.Scheduler.MinIndicator, "TRADESIM_SCHEDULER_MIN_INDICATOR")
	setString(&c.Storage.DBPath, "TRADESIM_DB_PATH")
	setString(&c.Server.Host, "TRADESIM_SERVER_HOST")
	setInt(&c.Server.Port, "TRADESIM_SERVER_PORT")
	setString(&c.Log.Level, "TRADESIM_LOG_LEVEL")
	setString(&c.Log.Format, "TRADESIM_LOG_FORMAT")
	setBool(&c.Metrics.Enabled, "TRADESIM_METRICS_ENABLED")
	setBool(&c.Tracing.Enabled, "TRADESIM_TRACING_ENABLED")
	setFloat(&c.Tracing.SampleRatio, "TRADESIM_TRACING_SAMPLE_RATIO")
	setList(&c.Ledger.Kafka.Brokers, "TRADESIM_KAFKA_BROKERS")
	setString(&c.Ledger.Kafka.Topic, "TRADESIM_KAFKA_TOPIC")
	setString(&c.Output.Dir, "TRADESIM_OUTPUT_DIR")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setList(dst *[]string, key string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
