// Copyright 2024 Roxy Light
// SPDX-License-Identifier: ISC

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"zombiezen.com/go/sqlite3"
)

const (
	configFileName = "sqlite3bridge"
	configFileType = "yaml"
	envPrefix      = "SQLITE3BRIDGE"

	cfgKeyDatabase    = "database"
	cfgKeyFlags       = "flags"
	cfgKeyVFS         = "vfs"
	cfgKeyCharset     = "charset"
	cfgKeyWide        = "wide"
	cfgKeyBusyTimeout = "busy_timeout"
	cfgKeyLogLevel    = "log_level"
	cfgKeySlowQuery   = "slow_query"

	defaultDatabase    = ":memory:"
	defaultBusyTimeout = 5 * time.Second
	defaultLogLevel    = "info"
)

// config is the resolved configuration of one invocation.
type config struct {
	Database    string
	Flags       sqlite3.OpenFlags
	VFS         string
	Encoding    sqlite3.Encoding
	BusyTimeout time.Duration
	LogLevel    string
	SlowQuery   time.Duration
}

// loadConfig resolves the configuration with the precedence
// flag > SQLITE3BRIDGE_* environment > config file > default.
// An explicit configPath must exist; otherwise a missing
// sqlite3bridge.yaml in the working directory is not an error.
func loadConfig(configPath string, flags *pflag.FlagSet) (*config, error) {
	v := viper.New()
	v.SetDefault(cfgKeyDatabase, defaultDatabase)
	v.SetDefault(cfgKeyBusyTimeout, defaultBusyTimeout)
	v.SetDefault(cfgKeyLogLevel, defaultLogLevel)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	for _, key := range []string{cfgKeyDatabase, cfgKeyFlags, cfgKeyVFS, cfgKeyCharset, cfgKeyWide, cfgKeyBusyTimeout, cfgKeyLogLevel, cfgKeySlowQuery} {
		if f := flags.Lookup(strings.ReplaceAll(key, "_", "-")); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	cfg := &config{
		Database:    v.GetString(cfgKeyDatabase),
		VFS:         v.GetString(cfgKeyVFS),
		BusyTimeout: v.GetDuration(cfgKeyBusyTimeout),
		LogLevel:    v.GetString(cfgKeyLogLevel),
		SlowQuery:   v.GetDuration(cfgKeySlowQuery),
		Encoding: sqlite3.Encoding{
			Wide:    v.GetBool(cfgKeyWide),
			Charset: v.GetString(cfgKeyCharset),
		},
	}
	if s := v.GetString(cfgKeyFlags); s != "" {
		var err error
		cfg.Flags, err = sqlite3.ParseOpenFlags(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cfgKeyFlags, err)
		}
	}
	return cfg, nil
}

// open opens the configured database.
func (cfg *config) open() (*sqlite3.Conn, error) {
	conn, err := sqlite3.Open(cfg.Database, &sqlite3.OpenOptions{
		Flags:    cfg.Flags,
		VFS:      cfg.VFS,
		Encoding: cfg.Encoding,
	})
	if err != nil {
		return nil, err
	}
	if cfg.BusyTimeout > 0 {
		if err := conn.SetBusyTimeout(cfg.BusyTimeout); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}
