package provider

import (
	"fmt"
	"strings"

	"github.com/kmassidik/movegh/internal/common/config"
)

// Endpoints are paths appended to BaseURL
type Endpoints struct {
	Initiate string `mapstructure:"initiate"`
	Verify   string `mapstructure:"verify"`
	Refund   string `mapstructure:"refund"`
	Payout   string `mapstructure:"payout"`
}

// Config is one provider's secrets file (momo.{name}.json)
type Config struct {
	Name            string    `mapstructure:"-"`
	BaseURL         string    `mapstructure:"baseUrl"`
	APIKey          string    `mapstructure:"apiKey"`
	APISecret       string    `mapstructure:"apiSecret"`
	WebhookSecret   string    `mapstructure:"webhookSecret"`
	MerchantID      string    `mapstructure:"merchantId"`
	SignatureHeader string    `mapstructure:"signatureHeader"`
	Endpoints       Endpoints `mapstructure:"endpoints"`
}

func secretsFileName(name string) string {
	return fmt.Sprintf("momo.%s.json", name)
}

// LoadConfig resolves a provider's configuration for the given mode.
// Mock mode, and the mock provider in any mode, never touches the secrets dir.
func LoadConfig(mode, secretsDir, webhookSecret, name string) (*Config, error) {
	if mode != config.ModeLive || name == NameMock {
		return &Config{
			Name:          name,
			BaseURL:       "http://mock",
			APIKey:        "mock",
			APISecret:     "mock",
			WebhookSecret: webhookSecret,
			MerchantID:    "mock",
			Endpoints: Endpoints{
				Initiate: "/payments/initiate",
				Verify:   "/payments/verify",
				Refund:   "/payments/refund",
				Payout:   "/payouts",
			},
		}, nil
	}

	cfg := &Config{}
	if err := config.LoadSecretsFile(secretsDir, secretsFileName(name), cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProviderNotConfigured, name, err)
	}
	cfg.Name = name

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	required := map[string]string{
		"baseUrl":            c.BaseURL,
		"apiKey":             c.APIKey,
		"apiSecret":          c.APISecret,
		"webhookSecret":      c.WebhookSecret,
		"merchantId":         c.MerchantID,
		"endpoints.initiate": c.Endpoints.Initiate,
		"endpoints.verify":   c.Endpoints.Verify,
		"endpoints.refund":   c.Endpoints.Refund,
		"endpoints.payout":   c.Endpoints.Payout,
	}
	for field, value := range required {
		if value == "" {
			return fmt.Errorf("%w: %s missing %s", ErrProviderNotConfigured, c.Name, field)
		}
		if isPlaceholder(value) {
			return fmt.Errorf("%w: %s.%s", ErrPlaceholderSecret, c.Name, field)
		}
	}
	return nil
}

func isPlaceholder(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	return v == "" || v == "***" || strings.Contains(v, "change_me") || strings.Contains(v, "placeholder")
}
