package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for botbridge.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`

	Facebook  FacebookConfig  `yaml:"facebook"`
	Twilio    TwilioConfig    `yaml:"twilio"`
	Twitter   TwitterConfig   `yaml:"twitter"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// FacebookConfig configures the Messenger adapter. Empty credential fields
// fall back to the MESSENGER_* environment variables.
type FacebookConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Namespace   string `yaml:"namespace"`
	VerifyToken string `yaml:"verify_token"`
	AccessToken string `yaml:"access_token"`
	AppSecret   string `yaml:"app_secret"`
	GraphURI    string `yaml:"graph_uri"`
}

// TwilioConfig configures the SMS adapter. Empty credential fields fall
// back to the TWILIO_* environment variables.
type TwilioConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Namespace   string `yaml:"namespace"`
	AccountSID  string `yaml:"account_sid"`
	AuthToken   string `yaml:"auth_token"`
	PhoneNumber string `yaml:"phone_number"`
}

// TwitterConfig configures the mention-stream adapter. Empty credential
// fields fall back to the TWITTER_* environment variables.
type TwitterConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Namespace         string `yaml:"namespace"`
	Handle            string `yaml:"handle"`
	ConsumerKey       string `yaml:"consumer_key"`
	ConsumerSecret    string `yaml:"consumer_secret"`
	AccessToken       string `yaml:"access_token"`
	AccessTokenSecret string `yaml:"access_token_secret"`
}

// WebSocketConfig configures the duplex socket adapter. ID falls back to
// the WEBSOCKET_ID environment variable.
type WebSocketConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	ID        string `yaml:"id"`
}

// Defaults returns the baseline configuration with credentials sourced from
// the environment. Explicit config file values win over these.
func Defaults() Config {
	return Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		Facebook: FacebookConfig{
			VerifyToken: os.Getenv("MESSENGER_VERIFY_TOKEN"),
			AccessToken: os.Getenv("MESSENGER_ACCESS_TOKEN"),
			AppSecret:   os.Getenv("MESSENGER_APP_SECRET"),
		},
		Twilio: TwilioConfig{
			AccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
			PhoneNumber: os.Getenv("TWILIO_PHONE_NUMBER"),
		},
		Twitter: TwitterConfig{
			Handle:            os.Getenv("TWITTER_HANDLE"),
			ConsumerKey:       os.Getenv("TWITTER_CONSUMER_KEY"),
			ConsumerSecret:    os.Getenv("TWITTER_CONSUMER_SECRET"),
			AccessToken:       os.Getenv("TWITTER_ACCESS_TOKEN"),
			AccessTokenSecret: os.Getenv("TWITTER_ACCESS_TOKEN_SECRET"),
		},
		WebSocket: WebSocketConfig{
			ID: os.Getenv("WEBSOCKET_ID"),
		},
	}
}

// Load reads a YAML config file merged over Defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
