package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env           string `yaml:"env" env:"CHAT_ENV" env-default:"local"`
	ServerAddress string `yaml:"server_address" env:"CHAT_SERVER_ADDRESS" env-default:"localhost:8080"`
	Secure        bool   `yaml:"secure" env:"CHAT_SECURE" env-default:"false"`
}

// APIBaseURL is the base URL for the request/response API.
func (c *Config) APIBaseURL() string {
	if c.Secure {
		return fmt.Sprintf("https://%s", c.ServerAddress)
	}
	return fmt.Sprintf("http://%s", c.ServerAddress)
}

// ChannelBaseURL is the base URL for the persistent channel endpoint.
func (c *Config) ChannelBaseURL() string {
	if c.Secure {
		return fmt.Sprintf("wss://%s", c.ServerAddress)
	}
	return fmt.Sprintf("ws://%s", c.ServerAddress)
}

// Load reads configuration from the file named by the -config flag or
// the CONFIG_PATH environment variable (flag wins). Without a path the
// config comes from environment variables alone, so the binary runs
// with no files present.
func Load() (*Config, error) {
	configPath := fetchConfigPath()
	if configPath == "" {
		var cfg Config
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config.Load: %w", err)
		}
		return &cfg, nil
	}

	return LoadPath(configPath)
}

func LoadPath(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	return &cfg, nil
}

// fetchConfigPath fetches config path from command line flag or environment variable.
// Priority: flag > env > default.
// Default value is empty string.
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
