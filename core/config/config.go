package config

import (
	"reflect"
	"strings"

	"channel-manager/core/database"
	"channel-manager/core/logger"
	"channel-manager/core/server"
	"channel-manager/core/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Storage holds configuration for the sync payload archive (S3/Minio).
	Storage storage.Config `mapstructure:"storage"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the database connection.
	Database database.Config `mapstructure:"database"`
	// Sync holds configuration for the channel sync orchestrator.
	Sync SyncConfig `mapstructure:"sync"`
}

// SyncConfig holds tuning knobs for the sync orchestrator.
type SyncConfig struct {
	// IntervalMinutes is the default sync cadence for channels that do not
	// configure their own frequency.
	IntervalMinutes int `mapstructure:"interval_minutes" default:"15"`
	// HorizonDays is how far ahead inventory and rates are maintained.
	HorizonDays int `mapstructure:"horizon_days" default:"90"`
	// RetryAttempts bounds retries of transient connector failures.
	RetryAttempts int `mapstructure:"retry_attempts" default:"3"`
	// RetryBackoffMillis is the initial backoff; it doubles per attempt.
	RetryBackoffMillis int `mapstructure:"retry_backoff_millis" default:"500"`
	// MaxFailures is the consecutive-failure count that moves a channel
	// from active to error.
	MaxFailures int `mapstructure:"max_failures" default:"3"`
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. SERVER_PORT -> server.port)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
