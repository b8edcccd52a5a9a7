// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Registers RegistersConfig `mapstructure:"registers"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig defines the Modbus TCP listener
type ServerConfig struct {
	Address     string        `mapstructure:"address"`      // e.g. "0.0.0.0:502"
	MaxConns    int           `mapstructure:"max_conns"`    // 0 means unbounded
	IdleTimeout time.Duration `mapstructure:"idle_timeout"` // 0 means no deadline
}

// RegistersConfig defines the initial value of each register
type RegistersConfig struct {
	Coil            uint16 `mapstructure:"coil"`
	DiscreteInput   uint16 `mapstructure:"discrete_input"`
	HoldingRegister uint16 `mapstructure:"holding_register"`
	InputRegister   uint16 `mapstructure:"input_register"`
}

// MetricsConfig defines the Prometheus endpoint
type MetricsConfig struct {
	Address string `mapstructure:"address"` // empty disables the endpoint
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// Flags returns the command-line flags understood by LoadConfig.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("modbus-server", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "Configuration file path.")
	fs.StringP("address", "A", "0.0.0.0:502", "TCP server address to bind.")
	fs.IntP("max_conns", "C", 0, "Maximum number of simultaneous TCP connections (0 for unbounded).")
	fs.DurationP("idle_timeout", "W", 0, "Time a connection may wait for its request (0 for no limit).")
	fs.StringP("metrics", "M", "", "Prometheus metrics address, e.g. 127.0.0.1:9502.")
	fs.StringP("log_level", "v", "info", "Log verbosity level (debug, info, warn, error).")
	fs.StringP("log_file", "L", "", "Log file name ('-' for logging to STDOUT only).")
	return fs
}

// LoadConfig loads configuration from defaults, an optional file and the
// flags in fs. Flags that were set explicitly win over the file.
func LoadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.address", "0.0.0.0:502")
	v.SetDefault("server.max_conns", 0)
	v.SetDefault("server.idle_timeout", time.Duration(0))
	v.SetDefault("registers.coil", 0)
	v.SetDefault("registers.discrete_input", 0)
	v.SetDefault("registers.holding_register", 0)
	v.SetDefault("registers.input_register", 0)
	v.SetDefault("metrics.address", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	bindings := map[string]string{
		"server.address":      "address",
		"server.max_conns":    "max_conns",
		"server.idle_timeout": "idle_timeout",
		"metrics.address":     "metrics",
		"log.level":           "log_level",
		"log.file":            "log_file",
	}
	for key, name := range bindings {
		if f := fs.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	configFile, _ := fs.GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbus-server/")
		v.AddConfigPath("$HOME/.modbus-server")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// Configuration can come from flags and defaults alone.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Server.Address == "" {
		return nil, fmt.Errorf("server.address must not be empty")
	}
	if config.Server.MaxConns < 0 {
		return nil, fmt.Errorf("server.max_conns must not be negative, got %d", config.Server.MaxConns)
	}

	return &config, nil
}
