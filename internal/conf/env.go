// env.go: environment variable bindings for the annotator
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the explicitly named environment variables.
// Every other key is reachable as ANNOTATOR_<SECTION>_<KEY> through AutomaticEnv.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "ANNOTATOR_DEBUG", validateEnvBool},

		{"backend.base_url", "ANNOTATOR_BACKEND_URL", validateEnvURL},
		{"backend.token", "ANNOTATOR_BACKEND_TOKEN", nil},
		{"backend.timeout", "ANNOTATOR_BACKEND_TIMEOUT", validateEnvDuration},

		{"species.cache_ttl", "ANNOTATOR_SPECIES_CACHE_TTL", validateEnvDuration},

		{"editor.discard_degenerate_boxes", "ANNOTATOR_DISCARD_DEGENERATE_BOXES", validateEnvBool},
		{"editor.normalize_on_load", "ANNOTATOR_NORMALIZE_ON_LOAD", validateEnvBool},

		{"webserver.listen", "ANNOTATOR_LISTEN", nil},

		{"drafts.enabled", "ANNOTATOR_DRAFTS_ENABLED", validateEnvBool},
		{"drafts.driver", "ANNOTATOR_DRAFTS_DRIVER", validateEnvDriver},
		{"drafts.sqlite.path", "ANNOTATOR_DRAFTS_SQLITE_PATH", nil},
		{"drafts.mysql.password", "ANNOTATOR_DRAFTS_MYSQL_PASSWORD", nil},

		{"mqtt.password", "ANNOTATOR_MQTT_PASSWORD", nil},
		{"telemetry.dsn", "ANNOTATOR_SENTRY_DSN", nil},
	}
}

// bindEnvVars binds each named variable and validates values that are set.
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// configureEnvironmentVariables enables prefixed automatic env lookup and the explicit bindings.
func configureEnvironmentVariables() error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	return bindEnvVars()
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("must be a duration such as 30s or 5m")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}

func validateEnvDriver(value string) error {
	switch strings.ToLower(value) {
	case DriverSQLite, DriverMySQL:
		return nil
	default:
		return fmt.Errorf("must be %s or %s", DriverSQLite, DriverMySQL)
	}
}
