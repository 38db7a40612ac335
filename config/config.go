package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cablewatch/cablewatch/internal/errors"
	"github.com/cablewatch/cablewatch/internal/logging"
)

// Config is the resolved daemon configuration. Resolution order is
// defaults, then the optional YAML file, then environment variables.
type Config struct {
	Modem      ModemConfig      `yaml:"modem"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Scrape     ScrapeConfig     `yaml:"scrape"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ModemConfig identifies the modem and how to reach it.
type ModemConfig struct {
	// Name labels readings in the datastore.
	Name string `yaml:"name"`

	// Backend selects the scrape protocol: hnap, snmp or html.
	Backend string `yaml:"backend"`

	// URL is the modem address. For snmp only the host part is used.
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// SNMPCommunity is the v2c community for the snmp backend.
	SNMPCommunity string `yaml:"snmp_community"`
}

// ClickHouseConfig holds datastore connection settings.
type ClickHouseConfig struct {
	// URL is the native protocol address, host:port.
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`

	// QueueLimit bounds the in-memory reading queue.
	QueueLimit int `yaml:"queue_limit"`
}

// ScrapeConfig controls the sampling loop.
type ScrapeConfig struct {
	// IntervalSec is the delay between scrape cycle starts.
	IntervalSec int `yaml:"interval_sec"`
}

// LogConfig controls logging output.
type LogConfig struct {
	// Level is one of DEBUG, INFO, WARNING, ERROR, CRITICAL.
	Level string `yaml:"level"`

	// JSON switches to structured JSON output.
	JSON bool `yaml:"json"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	// Listen is the metrics address, e.g. ":9143". Empty disables the
	// listener.
	Listen string `yaml:"listen"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		Modem: ModemConfig{
			Name:          DefaultModemName,
			Backend:       DefaultModemBackend,
			SNMPCommunity: DefaultSNMPCommunity,
		},
		ClickHouse: ClickHouseConfig{
			Table:      DefaultClickHouseTable,
			QueueLimit: DefaultQueueLimit,
		},
		Scrape: ScrapeConfig{
			IntervalSec: DefaultScrapeIntervalSec,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Load resolves the configuration. path may be empty to skip the file
// layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Configf("read config file: %v", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Configf("parse config file: %v", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file and default values from the environment.
func (c *Config) applyEnv() error {
	envString(&c.Modem.Name, "MODEM_NAME")
	envString(&c.Modem.Backend, "MODEM_BACKEND")
	envString(&c.Modem.URL, "MODEM_URL")
	envString(&c.Modem.Username, "MODEM_USERNAME")
	envString(&c.Modem.Password, "MODEM_PASSWORD")
	envString(&c.Modem.SNMPCommunity, "MODEM_SNMP_COMMUNITY")

	envString(&c.ClickHouse.URL, "CLICKHOUSE_URL")
	envString(&c.ClickHouse.Username, "CLICKHOUSE_USERNAME")
	envString(&c.ClickHouse.Password, "CLICKHOUSE_PASSWORD")
	envString(&c.ClickHouse.Database, "CLICKHOUSE_DATABASE")
	envString(&c.ClickHouse.Table, "CLICKHOUSE_TABLE")

	envString(&c.Log.Level, "LOG_LEVEL")
	envString(&c.Metrics.Listen, "METRICS_LISTEN")

	if err := envInt(&c.Scrape.IntervalSec, "SCRAPE_INTERVAL"); err != nil {
		return err
	}
	// SCRAPE_DELAY is the historical name for the same setting.
	if os.Getenv("SCRAPE_INTERVAL") == "" {
		if err := envInt(&c.Scrape.IntervalSec, "SCRAPE_DELAY"); err != nil {
			return err
		}
	}
	return envInt(&c.ClickHouse.QueueLimit, "CLICKHOUSE_QUEUE_LIMIT")
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return errors.Configf("invalid %s %q: must be a number", key, v)
	}
	*dst = n
	return nil
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	switch c.Modem.Backend {
	case "hnap", "html":
		if c.Modem.Username == "" || c.Modem.Password == "" {
			return errors.Configf("%s backend requires modem username and password", c.Modem.Backend)
		}
	case "snmp":
		if c.Modem.SNMPCommunity == "" {
			return errors.Configf("snmp backend requires a community string")
		}
	default:
		return errors.Configf("unknown modem backend %q", c.Modem.Backend)
	}

	if c.Modem.URL == "" {
		return errors.Configf("modem url is required")
	}
	if c.ClickHouse.URL == "" {
		return errors.Configf("clickhouse url is required")
	}
	if c.ClickHouse.Username == "" {
		return errors.Configf("clickhouse username is required")
	}
	if c.ClickHouse.Password == "" {
		return errors.Configf("clickhouse password is required")
	}
	if c.ClickHouse.Database == "" {
		return errors.Configf("clickhouse database is required")
	}
	if c.ClickHouse.Table == "" {
		return errors.Configf("clickhouse table is required")
	}

	if c.Scrape.IntervalSec < MinScrapeIntervalSec {
		return errors.Configf("scrape interval must be at least %d second", MinScrapeIntervalSec)
	}
	if c.ClickHouse.QueueLimit < MinQueueLimit {
		return errors.Configf("queue limit must be at least %d", MinQueueLimit)
	}
	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		return errors.Configf("invalid log level %q", c.Log.Level)
	}
	return nil
}

// ScrapeInterval returns the scrape interval as a duration.
func (c *Config) ScrapeInterval() time.Duration {
	return time.Duration(c.Scrape.IntervalSec) * time.Second
}

// WriterPollInterval returns the writer's queue poll interval, capped
// at the scrape interval so the queue drains at least as often as
// readings arrive.
func (c *Config) WriterPollInterval() time.Duration {
	poll := DefaultWriterPollInterval
	if s := c.ScrapeInterval(); s < poll {
		return s
	}
	return poll
}

// SlogLevel returns the configured log level for logging.Init. Validate
// has already checked the name.
func (c *Config) SlogLevel() slog.Level {
	level, _ := logging.ParseLevel(c.Log.Level)
	return level
}
