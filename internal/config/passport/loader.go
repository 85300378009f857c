package passport_config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads the optional YAML file at path, then applies defaults and
// PASSPORT_* environment overrides (auth.secret -> PASSPORT_AUTH_SECRET).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetDefault("app.name", "passport")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.version", "dev")

	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.grpc_addr", ":9090")
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "15s")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.static_dir", "")

	v.SetDefault("db.driver", DriverPostgres)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 20)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.max_conn_idle_time", "10m")
	v.SetDefault("db.health_check_period", "30s")
	v.SetDefault("db.query_timeout", "2s")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "passport")

	v.SetDefault("hash.memory_kb", 64*1024)
	v.SetDefault("hash.time", 3)
	v.SetDefault("hash.parallelism", 2)
	v.SetDefault("hash.salt_len", 16)
	v.SetDefault("hash.key_len", 32)

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.service_name", "passport")
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("otel.otlp_endpoint", "localhost:4317")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("events.enable", false)
	v.SetDefault("events.brokers", []string{"localhost:9092"})
	v.SetDefault("events.topic", "passport.accounts")
	v.SetDefault("events.workers", 1)
	v.SetDefault("events.batch_size", 100)
	v.SetDefault("events.wait_time", "1s")
	v.SetDefault("events.in_progress_ttl", "1m")

	v.SetEnvPrefix("PASSPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Auth.Secret == "" {
		return ErrConfig("auth.secret is required")
	}
	if len(c.Auth.Secret) < MinSecretLen {
		return ErrConfig(fmt.Sprintf("auth.secret must be at least %d bytes", MinSecretLen))
	}

	switch c.DB.Driver {
	case DriverPostgres, DriverSQLite:
		if c.DB.DSN == "" {
			return ErrConfig("db.dsn is required for driver " + c.DB.Driver)
		}
	case DriverMemory:
	default:
		return ErrConfig("unknown db.driver " + c.DB.Driver)
	}

	if err := c.Hash.Validate(); err != nil {
		return ErrConfig(err.Error())
	}

	if c.Events.Enable {
		if c.DB.Driver != DriverPostgres {
			return ErrConfig("events require db.driver=postgres")
		}
		if len(c.Events.Brokers) == 0 || c.Events.Topic == "" {
			return ErrConfig("events.brokers and events.topic are required")
		}
	}
	return nil
}
