package conf

// Draft store drivers
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Observation sources accepted for editor.default_source
const (
	SourceHuman = "human"
	SourceAI    = "ai"
)

const envPrefix = "ANNOTATOR"
