package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("APP_ENV", "dev")
	t.Setenv("PAYMENTS_PROVIDER_MODE", "")

	cfg, err := Load("payments")
	require.NoError(t, err)

	assert.Equal(t, ModeMock, cfg.Payments.Mode)
	assert.Equal(t, "GHS", cfg.Payments.Currency)
	assert.Equal(t, 30, cfg.Fraud.HoldScore)
	assert.Equal(t, 90, cfg.Fraud.BlockScore)
	assert.Equal(t, "GH", cfg.Fraud.HomeCountry)
}

func TestValidateModeRules(t *testing.T) {
	base := func() *Config {
		return &Config{
			Service:  ServiceConfig{Env: "dev"},
			JWT:      JWTConfig{Secret: "s"},
			Payments: PaymentsConfig{Mode: ModeMock, Provider: "mock"},
			Fraud:    FraudConfig{HoldScore: 30, BlockScore: 90},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"dev with mock", func(c *Config) {}, false},
		{"dev with live", func(c *Config) { c.Payments.Mode = ModeLive }, true},
		{"prod with mock", func(c *Config) { c.Service.Env = "prod" }, true},
		{"live without https", func(c *Config) {
			c.Service.Env = "prod"
			c.Payments.Mode = ModeLive
			c.Payments.Provider = "mtn"
			c.Payments.PublicURL = "http://pay.movegh.com"
		}, true},
		{"live with mock provider", func(c *Config) {
			c.Service.Env = "prod"
			c.Payments.Mode = ModeLive
			c.Payments.PublicURL = "https://pay.movegh.com"
		}, true},
		{"live valid", func(c *Config) {
			c.Service.Env = "prod"
			c.Payments.Mode = ModeLive
			c.Payments.Provider = "mtn"
			c.Payments.PublicURL = "https://pay.movegh.com"
		}, false},
		{"missing jwt secret", func(c *Config) { c.JWT.Secret = "" }, true},
		{"hold above block", func(c *Config) { c.Fraud.HoldScore = 95 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadSecretsFile(t *testing.T) {
	dir := t.TempDir()
	content := `{"treasuryOwnerId": "acme_treasury", "opsOwnerId": "acme_ops"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "platform.json"), []byte(content), 0o600))

	var out struct {
		TreasuryOwnerID string `mapstructure:"treasuryOwnerId"`
		OpsOwnerID      string `mapstructure:"opsOwnerId"`
	}
	require.NoError(t, LoadSecretsFile(dir, "platform.json", &out))
	assert.Equal(t, "acme_treasury", out.TreasuryOwnerID)
	assert.Equal(t, "acme_ops", out.OpsOwnerID)

	err := LoadSecretsFile(dir, "missing.json", &out)
	assert.True(t, errors.Is(err, ErrSecretsFileMissing))
}
