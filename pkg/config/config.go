package config

import (
	"fmt"
	"log"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App struct {
		Env       string `env:"APP_ENV" env-default:"development"`
		Port      int    `env:"APP_PORT" env-default:"8080"`
		SentryUrl string `env:"SENTRY_URL"`
	}
	Postgres struct {
		Port    int    `env:"POSTGRES_PORT"`
		Host    string `env:"POSTGRES_HOST"`
		User    string `env:"POSTGRES_USER"`
		Pass    string `env:"POSTGRES_PASS"`
		Name    string `env:"POSTGRES_NAME"`
		SslMode string `env:"POSTGRES_SSL_MODE" env-default:"disable"`
	}
	TTS struct {
		URL            string `env:"TTS_URL"`
		TimeoutSeconds int    `env:"TTS_TIMEOUT_SECONDS" env-default:"30"`
	}
	Storage struct {
		BaseURL        string `env:"STORAGE_BASE_URL"`
		Token          string `env:"STORAGE_TOKEN"`
		TimeoutSeconds int    `env:"STORAGE_TIMEOUT_SECONDS" env-default:"60"`
	}
	Render struct {
		Width           int `env:"RENDER_WIDTH" env-default:"1080"`
		Height          int `env:"RENDER_HEIGHT" env-default:"1920"`
		FPS             int `env:"RENDER_FPS" env-default:"30"`
		SecondsPerSlide int `env:"RENDER_SECONDS_PER_SLIDE" env-default:"3"`
		MaxImages       int `env:"RENDER_MAX_IMAGES" env-default:"50"`
		MinBlobBytes    int `env:"RENDER_MIN_BLOB_BYTES" env-default:"1000"`
		JPEGQuality     int `env:"RENDER_JPEG_QUALITY" env-default:"85"`
	}
	Janitor struct {
		StaleProcessingMinutes int `env:"JANITOR_STALE_PROCESSING_MINUTES" env-default:"30"`
		FailedRetentionHours   int `env:"JANITOR_FAILED_RETENTION_HOURS" env-default:"24"`
	}
}

var (
	once sync.Once
	cfg  *Config
)

func New() (*Config, error) {
	once.Do(func() {
		cfg = &Config{}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			help, _ := cleanenv.GetDescription(cfg, nil)
			log.Fatalf("Failed to read configuration: %v\n%v", err, help)
		}
	})
	return cfg, nil
}

// GetDSN returns the postgres connection string used by goose and the
// migrate tool.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("dbname=%s user=%s password=%s host=%s port=%d sslmode=%s",
		c.Postgres.Name, c.Postgres.User, c.Postgres.Pass, c.Postgres.Host, c.Postgres.Port, c.Postgres.SslMode,
	)
}
