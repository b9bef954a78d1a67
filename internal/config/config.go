package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AgentConfig struct {
	Identity string        `mapstructure:"identity"`
	Name     string        `mapstructure:"name"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type RoomConfig struct {
	MaxParticipants int           `mapstructure:"max_participants"`
	EmptyTimeout    time.Duration `mapstructure:"empty_timeout"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	LogLevel   string        `mapstructure:"log_level"`
	Secret     string        `mapstructure:"secret"`
	CORSOrigin string        `mapstructure:"cors_origin"`

	APIKey              string        `mapstructure:"api_key"`
	APISecret           string        `mapstructure:"api_secret"`
	ParticipantTokenTTL time.Duration `mapstructure:"participant_token_ttl"`
	// PublicWSURL is the signalling endpoint handed to clients and used by the agent.
	PublicWSURL string   `mapstructure:"public_ws_url"`
	ICEServers  []string `mapstructure:"ice_servers"`

	Agent AgentConfig `mapstructure:"agent"`
	Room  RoomConfig  `mapstructure:"room"`
	Auth  AuthConfig  `mapstructure:"auth"`

	BadgerPath     string        `mapstructure:"badger_path"`
	HistoryLimit   int           `mapstructure:"history_limit"`
	StatsInterval  time.Duration `mapstructure:"stats_interval"`
	PersistTimeout time.Duration `mapstructure:"persist_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "voxroom-dev-secret")
	v.SetDefault("cors_origin", "")

	v.SetDefault("api_key", "devkey")
	v.SetDefault("api_secret", "devsecret")
	v.SetDefault("participant_token_ttl", "10m")
	v.SetDefault("public_ws_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("ice_servers", []string{})

	v.SetDefault("agent.identity", "ai-agent")
	v.SetDefault("agent.name", "AI Assistant")
	v.SetDefault("agent.token_ttl", "1h")
	v.SetDefault("room.max_participants", 20)
	v.SetDefault("room.empty_timeout", "600s")
	v.SetDefault("auth.jwt_secret", "voxroom-dev-jwt-secret")
	v.SetDefault("auth.session_ttl", "24h")

	v.SetDefault("badger_path", "./data/messages")
	v.SetDefault("history_limit", 100)
	v.SetDefault("stats_interval", "2s")
	v.SetDefault("persist_timeout", "5s")
}

// Load reads config/config.<CONFIG_ENV>.yaml when present. VOX_* variables
// override any key, nested keys with underscores (VOX_AGENT_NAME).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	fileName := File()
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("VOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(fileName); statErr == nil {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// File reports which config file Load looks for.
func File() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return fmt.Sprintf("config/config.%s.yaml", env)
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.APISecret == "" {
		return fmt.Errorf("api_secret must be set")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must be set")
	}
	if c.Room.MaxParticipants < 0 {
		return fmt.Errorf("room.max_participants must not be negative")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("history_limit must be positive")
	}
	return nil
}
