// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/sensorhub/annotator/internal/logger"
)

// setDefaultConfig registers a default for every settings key so env
// bindings and Unmarshal see the full key set.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("backend.base_url", "http://localhost:8000/api")
	viper.SetDefault("backend.token", "")
	viper.SetDefault("backend.timeout", 30*time.Second)
	viper.SetDefault("backend.user_agent", "annotator/1.0")

	viper.SetDefault("species.cache_ttl", 10*time.Minute)
	viper.SetDefault("species.min_query_length", 2)
	viper.SetDefault("species.rate_limit", 5.0)

	viper.SetDefault("editor.discard_degenerate_boxes", true)
	viper.SetDefault("editor.normalize_on_load", true)
	viper.SetDefault("editor.default_source", SourceHuman)

	viper.SetDefault("webserver.listen", "127.0.0.1:8090")
	viper.SetDefault("webserver.debug", false)
	viper.SetDefault("webserver.session_ttl", 2*time.Hour)

	viper.SetDefault("drafts.enabled", true)
	viper.SetDefault("drafts.driver", DriverSQLite)
	viper.SetDefault("drafts.sqlite.path", "annotator-drafts.db")
	viper.SetDefault("drafts.mysql.host", "localhost")
	viper.SetDefault("drafts.mysql.port", 3306)
	viper.SetDefault("drafts.mysql.username", "")
	viper.SetDefault("drafts.mysql.password", "")
	viper.SetDefault("drafts.mysql.database", "annotator")

	viper.SetDefault("notification.urls", []string{})
	viper.SetDefault("notification.toast_capacity", 50)
	viper.SetDefault("notification.push_timeout", 10*time.Second)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "annotator")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.client_id", "annotator")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.dsn", "")

	viper.SetDefault("logging.default_level", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	viper.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	viper.SetDefault("logging.file_output.level", logger.DefaultLogLevel)
}
