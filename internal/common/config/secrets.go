package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ErrSecretsFileMissing is returned when a secrets file does not exist
var ErrSecretsFileMissing = errors.New("secrets file not found")

// LoadSecretsFile decodes a JSON file from the secrets directory into out.
// Keys are matched case-insensitively against mapstructure tags.
func LoadSecretsFile(dir, name string, out interface{}) error {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrSecretsFileMissing, path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return nil
}
