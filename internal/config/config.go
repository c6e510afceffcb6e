package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	StaticPath  string        `mapstructure:"static_path"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	Secret      string        `mapstructure:"secret"`
	LogLevel    string        `mapstructure:"log_level"`
	VoiceDir    string        `mapstructure:"voice_dir"`
	HistoryPath string        `mapstructure:"history_path"`

	Chat      ChatConfig      `mapstructure:"chat"`
	Signaling SignalingConfig `mapstructure:"signaling"`
	Client    ClientConfig    `mapstructure:"client"`
	Media     MediaConfig     `mapstructure:"media"`
	Ack       AckConfig       `mapstructure:"ack"`

	v      *viper.Viper
	loaded bool
}

// ChatConfig describes the line-protocol chat server each user gets a
// dedicated connection to.
type ChatConfig struct {
	Addr           string        `mapstructure:"addr"`
	Protocol       string        `mapstructure:"protocol"`
	GraceWindow    time.Duration `mapstructure:"grace_window"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
}

// SignalingConfig describes the long-lived control channel to the call
// signaling middleware. MaxAttempts 0 retries forever.
type SignalingConfig struct {
	Addr                 string        `mapstructure:"addr"`
	ReconnectInterval    time.Duration `mapstructure:"reconnect_interval"`
	MaxReconnectInterval time.Duration `mapstructure:"max_reconnect_interval"`
	MaxAttempts          int           `mapstructure:"max_attempts"`
}

// ClientConfig covers the browser side. Backpressure names what happens to a
// push the browser cannot take: buffer, drop or kick.
type ClientConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Backpressure string        `mapstructure:"backpressure"`
}

type MediaConfig struct {
	Mode       string   `mapstructure:"mode"`
	ICEServers []string `mapstructure:"ice_servers"`
}

type AckConfig struct {
	Keywords map[string][]string `mapstructure:"keywords"`
}

const (
	MediaBrowser = "browser"
	MediaNative  = "native"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "callrelay-dev-secret")
	v.SetDefault("log_level", "info")
	v.SetDefault("voice_dir", "./data/voice")
	v.SetDefault("history_path", "./data/history.jsonl")

	v.SetDefault("chat.addr", "localhost:5000")
	v.SetDefault("chat.protocol", "text")
	v.SetDefault("chat.grace_window", "300ms")
	v.SetDefault("chat.command_timeout", "1.5s")
	v.SetDefault("chat.dial_timeout", "5s")

	v.SetDefault("signaling.addr", "localhost:10000")
	v.SetDefault("signaling.reconnect_interval", "1s")
	v.SetDefault("signaling.max_reconnect_interval", "1s")
	v.SetDefault("signaling.max_attempts", 0)

	v.SetDefault("client.poll_interval", "1.5s")
	v.SetDefault("client.backpressure", "buffer")

	v.SetDefault("media.mode", MediaBrowser)
	v.SetDefault("media.ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("ack.keywords", map[string][]string{})
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads config/config.<CONFIG_ENV>.yaml, falling back to defaults when
// the file is absent.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(fileName)

	loaded := true
	if err := v.ReadInConfig(); err != nil {
		loaded = false
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.loaded = loaded
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("chat", cfg.Chat.Addr).
		Str("signaling", cfg.Signaling.Addr).
		Str("media", cfg.Media.Mode).
		Msg("config")
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.v = v
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Chat.Protocol {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown chat.protocol %q", c.Chat.Protocol)
	}
	switch c.Media.Mode {
	case MediaBrowser, MediaNative:
	default:
		return fmt.Errorf("config: unknown media.mode %q", c.Media.Mode)
	}
	switch c.Client.Backpressure {
	case "buffer", "drop", "kick":
	default:
		return fmt.Errorf("config: unknown client.backpressure %q", c.Client.Backpressure)
	}
	if c.Signaling.MaxAttempts < 0 {
		return fmt.Errorf("config: signaling.max_attempts must be >= 0")
	}
	return nil
}

// Watch re-reads the file on change and hands the fresh config to fn. Only
// hot keys (log level, ack keywords) are expected to take effect at runtime.
func (c *Config) Watch(fn func(*Config)) {
	if c.v == nil || !c.loaded {
		return
	}
	var mu sync.Mutex
	c.v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()
		next, err := decode(c.v)
		if err != nil {
			log.Error().Err(err).Str("module", "config").Str("file", e.Name).Msg("reload rejected")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Str("op", e.Op.String()).Msg("config reloaded")
		fn(next)
	})
	c.v.WatchConfig()
}
