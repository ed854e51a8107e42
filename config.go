// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package honeycomb holds the configuration of the honeycomb decoy service.
package honeycomb

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/absmach/honeycomb/pkg/errors"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix is the prefix of every configuration variable.
const EnvPrefix = "HONEYCOMB_"

// Config is the service configuration. A port of 0 disables that decoy.
type Config struct {
	Host     string `env:"HOST"      envDefault:"0.0.0.0"`
	FTPPort  int    `env:"FTP_PORT"  envDefault:"2121"`
	MQTTPort int    `env:"MQTT_PORT" envDefault:"1883"`
	SSHPort  int    `env:"SSH_PORT"  envDefault:"22"`
	HTTPPort int    `env:"HTTP_PORT" envDefault:"80"`

	// Audit log
	LogPath        string `env:"LOG_FILE"         envDefault:"honeycomb_multi.log"`
	LogMaxBytes    int64  `env:"LOG_MAX_BYTES"    envDefault:"10485760"`
	LogBackupCount int    `env:"LOG_BACKUP_COUNT" envDefault:"5"`

	// Operational log
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT"     envDefault:"5m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// HTTP decoy
	MaxBodyBytes int64  `env:"HTTP_MAX_BODY" envDefault:"1048576"`
	Firmware     string `env:"HTTP_FIRMWARE" envDefault:"v1.0.0"`

	// Ops listener serving /metrics, /health, /ready and /live
	OpsEnabled bool   `env:"OPS_ENABLED" envDefault:"true"`
	OpsAddress string `env:"OPS_ADDRESS" envDefault:"127.0.0.1:9090"`

	// Per source host connection budget. A zero capacity disables limiting.
	RateLimitCapacity int64 `env:"RATE_LIMIT_CAPACITY" envDefault:"0"`
	RateLimitRefill   int64 `env:"RATE_LIMIT_REFILL"   envDefault:"0"`
}

// NewConfig parses the configuration from the environment and validates it.
func NewConfig(opts env.Options) (Config, error) {
	if opts.Prefix == "" {
		opts.Prefix = EnvPrefix
	}

	c := Config{}
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the configuration for values no listener could run with.
func (c Config) Validate() error {
	var errs []error
	enabled := 0
	for _, p := range c.ports() {
		if p.port < 0 || p.port > 65535 {
			errs = append(errs, fmt.Errorf("invalid %s port %d", p.name, p.port))
			continue
		}
		if p.port > 0 {
			enabled++
		}
	}
	if enabled == 0 && len(errs) == 0 {
		errs = append(errs, fmt.Errorf("no decoy listener enabled"))
	}
	if c.OpsEnabled && c.OpsAddress == "" {
		errs = append(errs, fmt.Errorf("ops address must not be empty"))
	}
	if c.LogPath == "" {
		errs = append(errs, fmt.Errorf("log path must not be empty"))
	}
	if c.LogMaxBytes < 0 {
		errs = append(errs, fmt.Errorf("invalid log max bytes %d", c.LogMaxBytes))
	}
	if c.LogBackupCount < 0 {
		errs = append(errs, fmt.Errorf("invalid log backup count %d", c.LogBackupCount))
	}
	if c.RateLimitCapacity < 0 || c.RateLimitRefill < 0 {
		errs = append(errs, fmt.Errorf("invalid rate limit %d/%d", c.RateLimitCapacity, c.RateLimitRefill))
	}
	return errors.Join(errs...)
}

// Address returns the listen address for port on the configured host.
func (c Config) Address(port int) string {
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

type namedPort struct {
	name string
	port int
}

func (c Config) ports() []namedPort {
	return []namedPort{
		{"FTP", c.FTPPort},
		{"MQTT", c.MQTTPort},
		{"SSH", c.SSHPort},
		{"HTTP", c.HTTPPort},
	}
}
