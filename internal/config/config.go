package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	OutreachAPIURL string `env:"OUTREACH_API_URL,required=true"`
	OutreachAPIKey string `env:"OUTREACH_API_KEY,required=true"`
	CRMAPIURL      string `env:"CRM_API_URL,required=true"`
	CRMAPIKey      string `env:"CRM_API_KEY,required=true"`
	TextGenAPIURL  string `env:"TEXTGEN_API_URL,required=true"`
	TextGenAPIKey  string `env:"TEXTGEN_API_KEY,required=true"`
	TextGenModel   string `env:"TEXTGEN_MODEL,default=gpt-4o-mini"`

	ChunkSize            int `env:"CHUNK_SIZE,default=10"`
	BreakerCooldownHours int `env:"BREAKER_COOLDOWN_HOURS,default=4"`
	EnrollRatePerSec     int `env:"ENROLL_RATE_PER_SEC,default=5"`
	RunIntervalSec       int `env:"RUN_INTERVAL_SEC,default=300"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
