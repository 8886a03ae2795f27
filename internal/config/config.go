package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AdminAPIKey       string `mapstructure:"ADMIN_API_KEY"`
	StreamTokenSecret string `mapstructure:"STREAM_TOKEN_SECRET"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	DefaultLanguage string `mapstructure:"DEFAULT_LANGUAGE"`

	LLMEndpoint        string        `mapstructure:"LLM_ENDPOINT"`
	LLMTimeout         time.Duration `mapstructure:"LLM_TIMEOUT"`
	LLMReportEnabled   bool          `mapstructure:"LLM_REPORT_ENABLED"`
	LLMFollowupEnabled bool          `mapstructure:"LLM_FOLLOWUP_ENABLED"`
	PlannerEnabled     bool          `mapstructure:"PLANNER_ENABLED"`

	UploadMaxBytes int           `mapstructure:"UPLOAD_MAX_BYTES"`
	ExtractTimeout time.Duration `mapstructure:"EXTRACT_TIMEOUT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("DEFAULT_LANGUAGE", "en")
	v.SetDefault("LLM_TIMEOUT", "5s")
	v.SetDefault("UPLOAD_MAX_BYTES", 5_000_000)
	v.SetDefault("EXTRACT_TIMEOUT", "4s")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("ADMIN_API_KEY")
	v.BindEnv("STREAM_TOKEN_SECRET")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("DEFAULT_LANGUAGE")
	v.BindEnv("LLM_ENDPOINT")
	v.BindEnv("LLM_TIMEOUT")
	v.BindEnv("LLM_REPORT_ENABLED")
	v.BindEnv("LLM_FOLLOWUP_ENABLED")
	v.BindEnv("PLANNER_ENABLED")
	v.BindEnv("UPLOAD_MAX_BYTES")
	v.BindEnv("EXTRACT_TIMEOUT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. inMemory
// relaxes the database requirement for local demo serving.
func (c *Config) Validate(inMemory bool) error {
	if !inMemory && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required (or run with --in-memory)")
	}
	if c.IsProduction() && c.StreamTokenSecret == "" {
		return fmt.Errorf("STREAM_TOKEN_SECRET is required in production")
	}
	if c.DefaultLanguage != "en" && c.DefaultLanguage != "fr" {
		return fmt.Errorf("DEFAULT_LANGUAGE must be \"en\" or \"fr\", got %q", c.DefaultLanguage)
	}
	return nil
}
