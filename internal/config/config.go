package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	ServerPort string         `mapstructure:"server_port"`
	Database   DatabaseConfig `mapstructure:"database"`
	JWTSecret  string         `mapstructure:"jwt_secret"`
	OpenAI     OpenAIConfig   `mapstructure:"openai"`
	Uploads    UploadConfig   `mapstructure:"uploads"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

type UploadConfig struct {
	Dir     string `mapstructure:"dir"`
	BaseURL string `mapstructure:"base_url"`
}

// DSN renders the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// Load reads configuration from an optional YAML file plus environment
// variables, with sensible development defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server_port", "8080")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "relay")
	v.SetDefault("database.password", "relay_dev_password")
	v.SetDefault("database.dbname", "relay")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("jwt_secret", "dev-secret-change-me")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 500)
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("uploads.dir", "./uploads")
	v.SetDefault("uploads.base_url", "/files")

	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if secret := v.GetString("JWT_SECRET"); secret != "" {
		cfg.JWTSecret = secret
	}
	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		cfg.OpenAI.APIKey = apiKey
	}

	return &cfg, nil
}
