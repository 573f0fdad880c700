// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateBackendSettings,
		validateSpeciesSettings,
		validateEditorSettings,
		validateDraftSettings,
		validateNotificationSettings,
		validateMQTTSettings,
		validateMetricsSettings,
		validateTelemetrySettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateBackendSettings(s *Settings) error {
	u, err := url.Parse(s.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url must be an absolute URL, got %q", s.Backend.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.base_url scheme must be http or https, got %q", u.Scheme)
	}
	if s.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}
	return nil
}

func validateSpeciesSettings(s *Settings) error {
	if s.Species.MinQueryLength < 0 {
		return fmt.Errorf("species.min_query_length cannot be negative")
	}
	if s.Species.CacheTTL < 0 {
		return fmt.Errorf("species.cache_ttl cannot be negative")
	}
	if s.Species.RateLimit < 0 {
		return fmt.Errorf("species.rate_limit cannot be negative")
	}
	return nil
}

func validateEditorSettings(s *Settings) error {
	switch s.Editor.DefaultSource {
	case SourceHuman, SourceAI:
		return nil
	default:
		return fmt.Errorf("editor.default_source must be %q or %q, got %q", SourceHuman, SourceAI, s.Editor.DefaultSource)
	}
}

func validateDraftSettings(s *Settings) error {
	if !s.Drafts.Enabled {
		return nil
	}
	switch strings.ToLower(s.Drafts.Driver) {
	case DriverSQLite:
		if s.Drafts.SQLite.Path == "" {
			return fmt.Errorf("drafts.sqlite.path is required for the sqlite driver")
		}
	case DriverMySQL:
		if s.Drafts.MySQL.Host == "" || s.Drafts.MySQL.Database == "" {
			return fmt.Errorf("drafts.mysql.host and drafts.mysql.database are required for the mysql driver")
		}
		if s.Drafts.MySQL.Port <= 0 || s.Drafts.MySQL.Port > 65535 {
			return fmt.Errorf("drafts.mysql.port must be between 1 and 65535")
		}
	default:
		return fmt.Errorf("drafts.driver must be %s or %s, got %q", DriverSQLite, DriverMySQL, s.Drafts.Driver)
	}
	return nil
}

func validateNotificationSettings(s *Settings) error {
	if s.Notification.ToastCapacity <= 0 {
		return fmt.Errorf("notification.toast_capacity must be positive")
	}
	for _, raw := range s.Notification.URLs {
		if !strings.Contains(raw, "://") {
			return fmt.Errorf("notification.urls entry %q is not a service URL", raw)
		}
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	if !s.MQTT.Enabled {
		return nil
	}
	if s.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if s.MQTT.Topic == "" {
		return fmt.Errorf("mqtt.topic is required when mqtt is enabled")
	}
	return nil
}

func validateMetricsSettings(s *Settings) error {
	if s.Metrics.Enabled && !strings.HasPrefix(s.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	return nil
}

func validateTelemetrySettings(s *Settings) error {
	if s.Telemetry.Enabled && s.Telemetry.DSN == "" {
		return fmt.Errorf("telemetry.dsn is required when telemetry is enabled")
	}
	return nil
}
