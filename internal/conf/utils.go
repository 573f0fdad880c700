// conf/utils.go various util functions for configuration package
package conf

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sensorhub/annotator/internal/errors"
)

// GetDefaultConfigPaths returns the directories searched for config.yaml.
// When one of them already holds a config.yaml, only that directory is returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	configPaths := []string{
		filepath.Join(homeDir, ".config", "annotator"),
		"/etc/annotator",
		".",
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

// FindConfigFile locates the configuration file.
func FindConfigFile() (string, error) {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "find-config-paths").
			Build()
	}

	for _, path := range configPaths {
		configFilePath := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configFilePath); err == nil {
			return configFilePath, nil
		}
	}

	return "", errors.Newf("config file not found").
		Category(errors.CategoryFileIO).
		Context("operation", "find-config-file").
		Build()
}

// moveFile copies src to dst and removes src.
func moveFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // temp file created by us
	if err != nil {
		return errors.New(err).Category(errors.CategoryFileIO).Context("operation", "open-source").Build()
	}
	defer in.Close() //nolint:errcheck // read-only

	out, err := os.Create(dst) //nolint:gosec // config path from FindConfigFile
	if err != nil {
		return errors.New(err).Category(errors.CategoryFileIO).Context("operation", "create-destination").Build()
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.New(err).Category(errors.CategoryFileIO).Context("operation", "copy").Build()
	}
	if err := out.Close(); err != nil {
		return errors.New(err).Category(errors.CategoryFileIO).Context("operation", "close-destination").Build()
	}

	return os.Remove(src)
}
