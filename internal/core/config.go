package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

const (
	DefaultAPIURL          = "http://localhost:8081"
	DefaultRealtimeURL     = "ws://localhost:8081/ws-chat/websocket"
	DefaultSubscribePrefix = "/sub/chat/room/"
	DefaultSendDestination = "/pub/chat/send"
	DefaultHistorySize     = 100
	DefaultReconnectDelay  = 5 * time.Second
	DefaultRequestTimeout  = 20 * time.Second
)

// Config holds the resolved client settings.
type Config struct {
	APIURL          string
	RealtimeURL     string
	SubscribePrefix string
	SendDestination string
	HistorySize     int
	ReconnectDelay  time.Duration
	RequestTimeout  time.Duration
	StateDir        string

	// reconnectSet marks an explicit reconnect_delay so a layer can turn
	// retries off with 0.
	reconnectSet bool
}

// configFile is the on-disk form; durations are kept as strings like "5s".
type configFile struct {
	APIURL          string `yaml:"api_url,omitempty"`
	RealtimeURL     string `yaml:"realtime_url,omitempty"`
	SubscribePrefix string `yaml:"subscribe_prefix,omitempty"`
	SendDestination string `yaml:"send_destination,omitempty"`
	HistorySize     int    `yaml:"history_size,omitempty"`
	ReconnectDelay  string `yaml:"reconnect_delay,omitempty"`
	RequestTimeout  string `yaml:"request_timeout,omitempty"`
	StateDir        string `yaml:"state_dir,omitempty"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		APIURL:          DefaultAPIURL,
		RealtimeURL:     DefaultRealtimeURL,
		SubscribePrefix: DefaultSubscribePrefix,
		SendDestination: DefaultSendDestination,
		HistorySize:     DefaultHistorySize,
		ReconnectDelay:  DefaultReconnectDelay,
		RequestTimeout:  DefaultRequestTimeout,
	}
}

// ConfigKeys lists the keys accepted by Config.Set.
var ConfigKeys = []string{
	"api_url",
	"realtime_url",
	"subscribe_prefix",
	"send_destination",
	"history_size",
	"reconnect_delay",
	"request_timeout",
	"state_dir",
}

var envKeys = map[string]string{
	"DESK_API_URL":          "api_url",
	"DESK_REALTIME_URL":     "realtime_url",
	"DESK_SUBSCRIBE_PREFIX": "subscribe_prefix",
	"DESK_SEND_DESTINATION": "send_destination",
	"DESK_HISTORY_SIZE":     "history_size",
	"DESK_RECONNECT_DELAY":  "reconnect_delay",
	"DESK_REQUEST_TIMEOUT":  "request_timeout",
	"DESK_STATE_DIR":        "state_dir",
}

// ConfigPath returns the user config file location.
func ConfigPath() (string, error) {
	if dir := os.Getenv("DESK_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, "config.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "desk", "config.yaml"), nil
}

// ReadConfigFile reads the YAML config file. A missing file yields an empty Config.
func ReadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	config := Config{
		APIURL:          file.APIURL,
		RealtimeURL:     file.RealtimeURL,
		SubscribePrefix: file.SubscribePrefix,
		SendDestination: file.SendDestination,
		HistorySize:     file.HistorySize,
		StateDir:        file.StateDir,
	}
	if file.ReconnectDelay != "" {
		if config, err = config.Set("reconnect_delay", file.ReconnectDelay); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if file.RequestTimeout != "" {
		if config, err = config.Set("request_timeout", file.RequestTimeout); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return config, nil
}

// WriteConfigFile writes the YAML config file, creating its directory.
func WriteConfigFile(path string, config Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file := configFile{
		APIURL:          config.APIURL,
		RealtimeURL:     config.RealtimeURL,
		SubscribePrefix: config.SubscribePrefix,
		SendDestination: config.SendDestination,
		HistorySize:     config.HistorySize,
		StateDir:        config.StateDir,
	}
	if config.ReconnectDelay != 0 || config.reconnectSet {
		file.ReconnectDelay = config.ReconnectDelay.String()
	}
	if config.RequestTimeout != 0 {
		file.RequestTimeout = config.RequestTimeout.String()
	}
	data, err := yaml.Marshal(file)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadConfig layers defaults, the config file, a .env file in dir and the
// process environment, in that order.
func LoadConfig(dir string) (Config, error) {
	config := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return config, err
	}
	fileConfig, err := ReadConfigFile(path)
	if err != nil {
		return config, err
	}
	config = config.Merge(fileConfig)

	env := map[string]string{}
	if dir != "" {
		dotenv, err := godotenv.Read(filepath.Join(dir, ".env"))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return config, fmt.Errorf("read .env: %w", err)
		}
		for key, value := range dotenv {
			env[key] = value
		}
	}
	for key := range envKeys {
		if value, ok := os.LookupEnv(key); ok {
			env[key] = value
		}
	}
	return config.ApplyEnv(env)
}

// Merge overlays the non-zero fields of other.
func (c Config) Merge(other Config) Config {
	if other.APIURL != "" {
		c.APIURL = other.APIURL
	}
	if other.RealtimeURL != "" {
		c.RealtimeURL = other.RealtimeURL
	}
	if other.SubscribePrefix != "" {
		c.SubscribePrefix = other.SubscribePrefix
	}
	if other.SendDestination != "" {
		c.SendDestination = other.SendDestination
	}
	if other.HistorySize > 0 {
		c.HistorySize = other.HistorySize
	}
	if other.ReconnectDelay != 0 || other.reconnectSet {
		c.ReconnectDelay = other.ReconnectDelay
		c.reconnectSet = other.reconnectSet
	}
	if other.RequestTimeout > 0 {
		c.RequestTimeout = other.RequestTimeout
	}
	if other.StateDir != "" {
		c.StateDir = other.StateDir
	}
	return c
}

// ApplyEnv applies DESK_* variables from env.
func (c Config) ApplyEnv(env map[string]string) (Config, error) {
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		key, ok := envKeys[name]
		if !ok {
			continue
		}
		updated, err := c.Set(key, env[name])
		if err != nil {
			return c, fmt.Errorf("%s: %w", name, err)
		}
		c = updated
	}
	return c, nil
}

// Set returns a copy of c with key set to value.
func (c Config) Set(key, value string) (Config, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "api_url":
		c.APIURL = value
	case "realtime_url":
		c.RealtimeURL = value
	case "subscribe_prefix":
		c.SubscribePrefix = value
	case "send_destination":
		c.SendDestination = value
	case "history_size":
		size, err := strconv.Atoi(value)
		if err != nil || size <= 0 {
			return c, fmt.Errorf("history_size must be a positive integer")
		}
		c.HistorySize = size
	case "reconnect_delay":
		delay, err := time.ParseDuration(value)
		if err != nil || delay < 0 {
			return c, fmt.Errorf("reconnect_delay must be a duration like 5s (0 disables)")
		}
		c.ReconnectDelay = delay
		c.reconnectSet = true
	case "request_timeout":
		timeout, err := time.ParseDuration(value)
		if err != nil || timeout <= 0 {
			return c, fmt.Errorf("request_timeout must be a positive duration")
		}
		c.RequestTimeout = timeout
	case "state_dir":
		c.StateDir = value
	default:
		return c, fmt.Errorf("unknown config key %q", key)
	}
	return c, nil
}

// Get returns the string form of key.
func (c Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "realtime_url":
		return c.RealtimeURL, nil
	case "subscribe_prefix":
		return c.SubscribePrefix, nil
	case "send_destination":
		return c.SendDestination, nil
	case "history_size":
		return strconv.Itoa(c.HistorySize), nil
	case "reconnect_delay":
		return c.ReconnectDelay.String(), nil
	case "request_timeout":
		return c.RequestTimeout.String(), nil
	case "state_dir":
		return c.StateDir, nil
	}
	return "", fmt.Errorf("unknown config key %q", key)
}
