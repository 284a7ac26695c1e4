package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Bus        BusConfig        `mapstructure:"bus"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	NATS       NATSConfig       `mapstructure:"nats"`
	DeadLetter DeadLetterConfig `mapstructure:"dead_letter"`
	Relay      RelayConfig      `mapstructure:"relay"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr       string `mapstructure:"addr"`
	AdminToken string `mapstructure:"admin_token"` // guards /v1; empty disables /v1
}

type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

// ConnString returns DSN when set, otherwise a postgres:// URL built from the
// discrete connection parameters.
func (c PostgresConfig) ConnString() string {
	if strings.TrimSpace(c.DSN) != "" {
		return c.DSN
	}

	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port <= 0 {
		port = 5432
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + c.Database,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.SSLMode != "" {
		q := url.Values{}
		q.Set("sslmode", c.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type BusConfig struct {
	Driver      string `mapstructure:"driver"` // kafka | nats
	TopicPrefix string `mapstructure:"topic_prefix"`
	UpsertTopic string `mapstructure:"upsert_topic"`
}

type KafkaConfig struct {
	Brokers          []string      `mapstructure:"brokers"`
	GroupID          string        `mapstructure:"group_id"`
	MinBytes         int           `mapstructure:"min_bytes"`
	MaxBytes         int           `mapstructure:"max_bytes"`
	CommitInterval   int           `mapstructure:"commit_interval_ms"`
	BatchTimeout     time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	RequiredAcks     int           `mapstructure:"required_acks"`
	AutoCreateTopics bool          `mapstructure:"auto_create_topics"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnect  int           `mapstructure:"max_reconnect"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type DeadLetterConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Key     string `mapstructure:"key"`
}

type RelayConfig struct {
	TriggerInterval    time.Duration `mapstructure:"trigger_interval"`
	UpsertInterval     time.Duration `mapstructure:"upsert_interval"`
	PublishConcurrency int           `mapstructure:"publish_concurrency"`
	QueueCapacity      int           `mapstructure:"queue_capacity"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	ChangesTable       string        `mapstructure:"changes_table"`
	UIDColumn          string        `mapstructure:"uid_column"`
	ParentColumn       string        `mapstructure:"parent_column"`
}

type DispatcherConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	Breaker     BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type LedgerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Network        string        `mapstructure:"network"`
	TimeoutMs      int           `mapstructure:"timeout_ms"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	AlertOnTimeout bool          `mapstructure:"alert_on_timeout"`
}

// TransactionsTable is the milestone transaction table for the configured network.
func (c LedgerConfig) TransactionsTable() string {
	return strings.ToLower(strings.TrimSpace(c.Network)) + "_transactions"
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (DBRELAY_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// env override (DBRELAY_RELAY_TRIGGER_INTERVAL -> relay.trigger_interval)
	v.SetEnvPrefix("DBRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the relays cannot run with.
func (c Config) Validate() error {
	switch c.Bus.Driver {
	case "kafka", "nats":
	default:
		return fmt.Errorf("invalid bus driver %q (want kafka|nats)", c.Bus.Driver)
	}
	if c.Relay.TriggerInterval <= 0 || c.Relay.UpsertInterval <= 0 {
		return fmt.Errorf("invalid relay intervals: trigger=%s upsert=%s", c.Relay.TriggerInterval, c.Relay.UpsertInterval)
	}
	if c.Ledger.PollInterval <= 0 || c.Ledger.MaxAttempts <= 0 {
		return fmt.Errorf("invalid ledger polling: interval=%s attempts=%d", c.Ledger.PollInterval, c.Ledger.MaxAttempts)
	}
	if strings.TrimSpace(c.Ledger.Network) == "" {
		return fmt.Errorf("ledger network must be set")
	}
	return nil
}
