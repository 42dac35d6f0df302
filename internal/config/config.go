package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DBFile       string
	APIAddr      string
	CanisterURL  string
	WSGatewayURL string
	Principal    string
	ImageCache   string
	PollInterval time.Duration
	SampleData   bool

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string
}

func Load() (*Config, error) {
	pollInterval, err := time.ParseDuration(getEnv("POLL_INTERVAL", "5s"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBFile:          getEnv("BAZAREK_DB", "bazarek.db"),
		APIAddr:         getEnv("API_ADDR", "localhost:8090"),
		CanisterURL:     os.Getenv("CANISTER_URL"),
		WSGatewayURL:    os.Getenv("WS_GATEWAY_URL"),
		Principal:       os.Getenv("PRINCIPAL"),
		ImageCache:      getEnv("IMAGE_CACHE_PATH", "image-cache"),
		PollInterval:    pollInterval,
		SampleData:      os.Getenv("BAZAREK_SAMPLE_DATA") != "",
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubscriber: getEnv("VAPID_SUBSCRIBER", "mailto:admin@localhost"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.CanisterURL == "" {
		return fmt.Errorf("CANISTER_URL is required")
	}

	if c.Principal == "" {
		return fmt.Errorf("PRINCIPAL is required")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be greater than 0")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
