// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package config

import (
	"fmt"
	"time"

	validator "github.com/AccelByte/justice-input-validation-go"
	"github.com/caarlos0/env"
)

const (
	OnProxyTimeoutFold = "fold"
	OnProxyTimeoutExit = "exit"
)

type Config struct {
	RedisAddr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379" envDocs:"address of the redis server carrying requests and proxy channels"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""               envDocs:"redis password"                                                    optional:"true"`
	RedisDB       int    `env:"REDIS_DB"       envDefault:"0"              envDocs:"redis database index"                                              optional:"true" valid:"range(0|15)"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite"           envDocs:"match store driver: memory, sqlite or postgres" valid:"in(memory|sqlite|postgres)"`
	StoreDSN    string `env:"STORE_DSN"    envDefault:"table_manager.db" envDocs:"match store data source name"                   optional:"true"`

	ExhibitionFile    string `env:"EXHIBITION_CONFIG_FILE" envDefault:"exhibition.yml" envDocs:"games, opponents and special ports"`
	DataDirectory     string `env:"DATA_DIRECTORY"         envDefault:"data"           envDocs:"directory holding per game queue state"`
	LogDirectory      string `env:"LOG_DIRECTORY"          envDefault:"log"            envDocs:"directory for proxy and opponent logs"`
	MatchLogDirectory string `env:"MATCH_LOG_DIRECTORY"    envDefault:"log/matches"    envDocs:"directory for dealer logs"`

	DealerHost    string `env:"DEALER_HOST"    envDefault:"localhost" envDocs:"host the dealer binds to and players connect to"`
	DealerCommand string `env:"DEALER_COMMAND" envDefault:"dealer"    envDocs:"path of the dealer executable"`
	ProxyCommand  string `env:"PROXY_COMMAND"  envDefault:"acpcproxy" envDocs:"path of the proxy executable"`
	MustSendReady bool   `env:"MUST_SEND_READY" envDefault:"false"    envDocs:"proxies send READY before each hand"            optional:"true"`

	MaintenanceIntervalSecond int    `env:"MAINTENANCE_INTERVAL_SECOND" envDefault:"10"   envDocs:"maintainer tick interval, also the proxy receive timeout" valid:"range(1|3600)"`
	ProxyTimeoutSecond        int    `env:"PROXY_TIMEOUT_SECOND"        envDefault:"0"    envDocs:"idle seconds before a proxy acts for its player (0 disables)" optional:"true" valid:"range(0|86400)"`
	OnProxyTimeout            string `env:"ON_PROXY_TIMEOUT"            envDefault:"fold" envDocs:"fold: check or fold for the player, exit: stop the proxy" valid:"in(fold|exit)"`

	SpawnTimeoutMs      int `env:"SPAWN_TIMEOUT_MS"       envDefault:"3000" envDocs:"process creation timeout"                          valid:"range(1|60000)"`
	KillGraceMs         int `env:"KILL_GRACE_MS"          envDefault:"1000" envDocs:"wait after each termination signal"                valid:"range(1|60000)"`
	PortRetryDelayMs    int `env:"PORT_RETRY_DELAY_MS"    envDefault:"1000" envDocs:"delay before re-sampling the special port pool"   valid:"range(0|60000)" optional:"true"`
	MatchLifespanSecond int `env:"MATCH_LIFESPAN_SECOND"  envDefault:"0"    envDocs:"running matches older than this are killed (0 disables)" valid:"range(0|604800)" optional:"true"`
	MatchRetentionHour  int `env:"MATCH_RETENTION_HOUR"   envDefault:"24"   envDocs:"matches not updated for this long are deleted"    valid:"range(1|8760)"`

	MetricsAddr string `env:"METRICS_ADDR" envDefault:":8080" envDocs:"prometheus listen address"`
	GatewayAddr string `env:"GATEWAY_ADDR" envDefault:":8081" envDocs:"websocket gateway listen address"`
	ZipkinURL   string `env:"ZIPKIN_URL"   envDefault:""      envDocs:"zipkin collector endpoint, tracing disabled when empty" optional:"true"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"  envDocs:"logrus level"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := validator.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

func (c *Config) MaintenanceInterval() time.Duration {
	return time.Duration(c.MaintenanceIntervalSecond) * time.Second
}

// ProxyTimeout is zero when proxies never act for their player.
func (c *Config) ProxyTimeout() time.Duration {
	return time.Duration(c.ProxyTimeoutSecond) * time.Second
}

func (c *Config) SpawnTimeout() time.Duration {
	return time.Duration(c.SpawnTimeoutMs) * time.Millisecond
}

func (c *Config) KillGrace() time.Duration {
	return time.Duration(c.KillGraceMs) * time.Millisecond
}

func (c *Config) PortRetryDelay() time.Duration {
	return time.Duration(c.PortRetryDelayMs) * time.Millisecond
}

func (c *Config) MatchLifespan() time.Duration {
	return time.Duration(c.MatchLifespanSecond) * time.Second
}

func (c *Config) MatchRetention() time.Duration {
	return time.Duration(c.MatchRetentionHour) * time.Hour
}
