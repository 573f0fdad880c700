// config.go: settings model and loading for the annotator
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sensorhub/annotator/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// BackendSettings points at the REST backend that owns observations and species.
type BackendSettings struct {
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url"`
	Token     string        `yaml:"token" mapstructure:"token"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent string        `yaml:"user_agent" mapstructure:"user_agent"`
}

// SpeciesSettings controls species lookups.
type SpeciesSettings struct {
	CacheTTL       time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	MinQueryLength int           `yaml:"min_query_length" mapstructure:"min_query_length"`
	RateLimit      float64       `yaml:"rate_limit" mapstructure:"rate_limit"` // searches per second, 0 = unlimited
}

// EditorSettings controls annotation editing behavior.
type EditorSettings struct {
	DiscardDegenerateBoxes bool   `yaml:"discard_degenerate_boxes" mapstructure:"discard_degenerate_boxes"` // drop zero-area boxes on commit
	NormalizeOnLoad        bool   `yaml:"normalize_on_load" mapstructure:"normalize_on_load"`               // clamp and order remote boxes when seeding
	DefaultSource          string `yaml:"default_source" mapstructure:"default_source"`                     // source stamped on new rows
}

// WebServerSettings controls the local host API.
type WebServerSettings struct {
	Listen     string        `yaml:"listen" mapstructure:"listen"`
	Debug      bool          `yaml:"debug" mapstructure:"debug"`
	SessionTTL time.Duration `yaml:"session_ttl" mapstructure:"session_ttl"` // idle sessions are evicted after this
}

// SQLiteSettings holds the sqlite draft store location.
type SQLiteSettings struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// MySQLSettings holds the mysql draft store connection.
type MySQLSettings struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

// DraftSettings controls persistence of unsaved rows.
type DraftSettings struct {
	Enabled bool           `yaml:"enabled" mapstructure:"enabled"`
	Driver  string         `yaml:"driver" mapstructure:"driver"` // sqlite or mysql
	SQLite  SQLiteSettings `yaml:"sqlite" mapstructure:"sqlite"`
	MySQL   MySQLSettings  `yaml:"mysql" mapstructure:"mysql"`
}

// NotificationSettings controls toast and push delivery of save reports.
type NotificationSettings struct {
	URLs          []string      `yaml:"urls" mapstructure:"urls"` // shoutrrr service URLs
	ToastCapacity int           `yaml:"toast_capacity" mapstructure:"toast_capacity"`
	PushTimeout   time.Duration `yaml:"push_timeout" mapstructure:"push_timeout"`
}

// MQTTSettings controls publishing of save reports to a broker.
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Broker   string `yaml:"broker" mapstructure:"broker"`
	Topic    string `yaml:"topic" mapstructure:"topic"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Retain   bool   `yaml:"retain" mapstructure:"retain"`
}

// MetricsSettings controls the prometheus endpoint.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// TelemetrySettings controls error reporting to Sentry.
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
}

// Settings is the root configuration.
type Settings struct {
	Debug        bool                 `yaml:"debug" mapstructure:"debug"`
	Backend      BackendSettings      `yaml:"backend" mapstructure:"backend"`
	Species      SpeciesSettings      `yaml:"species" mapstructure:"species"`
	Editor       EditorSettings       `yaml:"editor" mapstructure:"editor"`
	WebServer    WebServerSettings    `yaml:"webserver" mapstructure:"webserver"`
	Drafts       DraftSettings        `yaml:"drafts" mapstructure:"drafts"`
	Notification NotificationSettings `yaml:"notification" mapstructure:"notification"`
	MQTT         MQTTSettings         `yaml:"mqtt" mapstructure:"mqtt"`
	Metrics      MetricsSettings      `yaml:"metrics" mapstructure:"metrics"`
	Telemetry    TelemetrySettings    `yaml:"telemetry" mapstructure:"telemetry"`
	Logging      logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the config file and environment variables into Settings.
// An empty configFile searches the default config paths and writes a default
// config.yaml to the first of them when none exists.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper registers defaults and env bindings, then reads the config file.
func initViper(configFile string) error {
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		// Invalid env values are reported but do not stop startup; validation catches real problems.
		logger.Global().Module("conf").Warn("environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded config.yaml into dir and reads it.
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	defaultConfig, err := getDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, defaultConfig, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	logger.Global().Module("conf").Info("created default config file", logger.String("path", configPath))
	return viper.ReadInConfig()
}

func getDefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("error reading embedded config: %w", err)
	}
	return data, nil
}

// GetSettings returns the most recently loaded settings, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath atomically.
// Comments in the existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName) //nolint:errcheck // gone after a successful rename

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		// Cross-device temp dirs cannot be renamed into place
		if err := moveFile(tempFileName, configPath); err != nil {
			return fmt.Errorf("error copying config file: %w", err)
		}
	}

	return nil
}

// MySQLDSN builds the go-sql-driver DSN for the mysql draft store.
func (d *DraftSettings) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.MySQL.Username, d.MySQL.Password, d.MySQL.Host, d.MySQL.Port, d.MySQL.Database)
}

// IsMySQL reports whether drafts are stored in mysql.
func (d *DraftSettings) IsMySQL() bool {
	return strings.EqualFold(d.Driver, DriverMySQL)
}
