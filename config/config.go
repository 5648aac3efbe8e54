// Package config loads billingd configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds everything billingd needs at startup.
type Config struct {
	ListenAddr string

	DatabaseURL string
	RedisAddr   string // optional, enables the customer index cache

	StripeAPIKey        string
	StripeWebhookSecret string
	MonthlyPriceID      string
	LifetimePriceID     string

	CheckoutSuccessURL string
	CheckoutCancelURL  string
	PortalReturnURL    string

	// Bearer verification for the authenticated endpoints.
	JWKSURL  string
	Issuer   string
	Audience string

	// Cron expression for the lapse sweep.
	SweepSchedule string
}

// Load reads configuration from environment variables. A .env file is
// loaded first when present but is not required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:          envOrDefault("BILLING_LISTEN_ADDR", ":8080"),
		DatabaseURL:         strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisAddr:           strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		StripeAPIKey:        strings.TrimSpace(os.Getenv("STRIPE_API_KEY")),
		StripeWebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		MonthlyPriceID:      strings.TrimSpace(os.Getenv("STRIPE_PRICE_MONTHLY")),
		LifetimePriceID:     strings.TrimSpace(os.Getenv("STRIPE_PRICE_LIFETIME")),
		CheckoutSuccessURL:  strings.TrimSpace(os.Getenv("CHECKOUT_SUCCESS_URL")),
		CheckoutCancelURL:   strings.TrimSpace(os.Getenv("CHECKOUT_CANCEL_URL")),
		PortalReturnURL:     strings.TrimSpace(os.Getenv("PORTAL_RETURN_URL")),
		JWKSURL:             strings.TrimSpace(os.Getenv("AUTH_JWKS_URL")),
		Issuer:              strings.TrimSpace(os.Getenv("AUTH_ISSUER")),
		Audience:            strings.TrimSpace(os.Getenv("AUTH_AUDIENCE")),
		SweepSchedule:       envOrDefault("BILLING_SWEEP_SCHEDULE", "@every 1h"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate billing config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.StripeAPIKey == "" {
		missing = append(missing, "STRIPE_API_KEY")
	}
	if c.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.MonthlyPriceID == "" {
		missing = append(missing, "STRIPE_PRICE_MONTHLY")
	}
	if c.LifetimePriceID == "" {
		missing = append(missing, "STRIPE_PRICE_LIFETIME")
	}
	if c.CheckoutSuccessURL == "" {
		missing = append(missing, "CHECKOUT_SUCCESS_URL")
	}
	if c.CheckoutCancelURL == "" {
		missing = append(missing, "CHECKOUT_CANCEL_URL")
	}
	if c.PortalReturnURL == "" {
		missing = append(missing, "PORTAL_RETURN_URL")
	}
	if c.JWKSURL == "" {
		missing = append(missing, "AUTH_JWKS_URL")
	}
	if c.Issuer == "" {
		missing = append(missing, "AUTH_ISSUER")
	}
	if c.Audience == "" {
		missing = append(missing, "AUTH_AUDIENCE")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	for _, u := range []struct{ name, val string }{
		{"CHECKOUT_SUCCESS_URL", c.CheckoutSuccessURL},
		{"CHECKOUT_CANCEL_URL", c.CheckoutCancelURL},
		{"PORTAL_RETURN_URL", c.PortalReturnURL},
		{"AUTH_JWKS_URL", c.JWKSURL},
	} {
		parsed, err := url.Parse(u.val)
		if err != nil {
			return fmt.Errorf("%s must be a valid URL: %w", u.name, err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("%s must use http or https scheme", u.name)
		}
		if parsed.Host == "" {
			return fmt.Errorf("%s must include a host", u.name)
		}
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
