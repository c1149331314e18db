// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	Routers []RouterConfig `mapstructure:"routers"`
	Log     LogConfig      `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// RouterConfig defines a single server instance: the transports it
// listens on and the units requests are routed to.
type RouterConfig struct {
	Name      string           `mapstructure:"name"`
	Upstreams []UpstreamConfig `mapstructure:"upstreams"`
	Units     []UnitConfig     `mapstructure:"units"`
}

// UpstreamConfig defines a master connecting to the server
type UpstreamConfig struct {
	Type   string       `mapstructure:"type"`   // "tcp", "rtu", "rtu-over-tcp"
	Tcp    TcpConfig    `mapstructure:"tcp"`    // Used if Type is "tcp" or "rtu-over-tcp"
	Serial SerialConfig `mapstructure:"serial"` // Used if Type is "rtu"
}

// UnitConfig defines one route table rule and the slave data model
// behind it. Set fields left empty mean "match any value"; rules are
// matched in listed order, first match wins.
type UnitConfig struct {
	Name          string            `mapstructure:"name"`
	SlaveIDs      string            `mapstructure:"slave_ids"`      // "1", "1,2", "1-10"; "" matches any
	FunctionCodes string            `mapstructure:"function_codes"` // "3,4"; "" matches any
	Addresses     string            `mapstructure:"addresses"`      // "0-99,200"; "" matches any
	Persistence   PersistenceConfig `mapstructure:"persistence"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap", "sql"
	Path string `mapstructure:"path"` // File path or DSN
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address string `mapstructure:"address"` // e.g. "0.0.0.0:502"
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device    string        `mapstructure:"device"`
	BaudRate  int           `mapstructure:"baud_rate"`
	DataBits  int           `mapstructure:"data_bits"`
	Parity    string        `mapstructure:"parity"`
	StopBits  int           `mapstructure:"stop_bits"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RqstPause time.Duration `mapstructure:"rqst_pause"` // Pause between requests

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// LoadConfig loads configuration from file, with pflag overrides for
// the logging settings.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbusrouter/")
		v.AddConfigPath("$HOME/.modbusrouter")
		v.AddConfigPath(".")
	}

	// Set defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	// Command line overrides, when the binary registered them.
	if f := pflag.Lookup("log_level"); f != nil {
		if err := v.BindPFlag("log.level", f); err != nil {
			return nil, fmt.Errorf("failed to bind pflags: %w", err)
		}
	}
	if f := pflag.Lookup("log_file"); f != nil {
		if err := v.BindPFlag("log.file", f); err != nil {
			return nil, fmt.Errorf("failed to bind pflags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to found config file: %w", err)
		}

		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate / Fixups
	for i := range config.Routers {
		r := &config.Routers[i]

		for j := range r.Upstreams {
			fixupSerial(&r.Upstreams[j].Serial)
		}
	}

	return &config, nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
	if s.RqstPause == 0 {
		s.RqstPause = 100 * time.Millisecond
	}
}

// ParseSet parses a constraint string (e.g. "1,2,5-10") into a slice
// of values. Values must lie in [0, max]. An empty string yields an
// empty slice, meaning "unconstrained".
func ParseSet(input string, max int) ([]uint16, error) {
	var values []uint16
	parts := strings.Split(input, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			// Range
			ranges := strings.Split(part, "-")
			if len(ranges) != 2 {
				return nil, fmt.Errorf("invalid range: %s", part)
			}
			start, err := strconv.Atoi(strings.TrimSpace(ranges[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid start of range: %w", err)
			}
			end, err := strconv.Atoi(strings.TrimSpace(ranges[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid end of range: %w", err)
			}
			if start > end {
				return nil, fmt.Errorf("start of range %d is greater than end %d", start, end)
			}
			for i := start; i <= end; i++ {
				if i < 0 || i > max {
					return nil, fmt.Errorf("value out of range: %d", i)
				}
				values = append(values, uint16(i))
			}
		} else {
			// Single
			val, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid value: %w", err)
			}
			if val < 0 || val > max {
				return nil, fmt.Errorf("value out of range: %d", val)
			}
			values = append(values, uint16(val))
		}
	}
	return values, nil
}
