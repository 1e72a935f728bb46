package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server  ServerConfig
	Gemini  GeminiConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type GeminiConfig struct {
	// APIKey only pre-seeds the credential gate; the verified credential
	// lives in the key/value store.
	APIKey    string
	Model     string
	ChatModel string
	Search    bool
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Gemini: GeminiConfig{
			Model:     "gemini-2.5-flash",
			ChatModel: "gemini-2.5-flash",
			Search:    true,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the TOML config file at
// $XDG_CONFIG_HOME/finplan/config.toml, then applies FINPLAN_* environment
// overrides.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

// loadFromPath is Load with an explicit config file path.
func loadFromPath(path string) (Config, error) {
	return loadWith(newFileBackend(path))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Gemini.Model == "" {
		return fmt.Errorf("invalid config: gemini.model must not be empty")
	}
	if cfg.Gemini.ChatModel == "" {
		return fmt.Errorf("invalid config: gemini.chat_model must not be empty")
	}
	if cfg.Storage.DataDir == "" {
		return fmt.Errorf("invalid config: storage.data_dir must not be empty")
	}
	return nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "finplan-data"
		}
	}
	return filepath.Join(dir, "finplan")
}
