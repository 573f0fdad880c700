package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sensorhub/annotator/cmd/notify"
	"github.com/sensorhub/annotator/cmd/observations"
	"github.com/sensorhub/annotator/cmd/serve"
	speciescmd "github.com/sensorhub/annotator/cmd/species"
	"github.com/sensorhub/annotator/internal/buildinfo"
	"github.com/sensorhub/annotator/internal/conf"
	"github.com/sensorhub/annotator/internal/errors"
	"github.com/sensorhub/annotator/internal/logger"
)

// RootCommand creates the annotator command tree. settings is filled in
// before any subcommand runs.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:          "annotator",
		Short:        "Bounding box annotation editor for observation data files",
		Version:      build.GetVersion(),
		SilenceUsage: true,
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		serve.Command(settings, build),
		observations.Command(settings, build),
		speciescmd.Command(settings, build),
		notify.Command(settings, build),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initialize(settings, build, configFile)
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		_ = logger.Global().Flush()
	}

	return rootCmd
}

// initialize loads settings and sets up logging and telemetry.
func initialize(settings *conf.Settings, build *buildinfo.Context, configFile string) error {
	loaded, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	*settings = *loaded

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	if settings.Telemetry.Enabled {
		if err := errors.InitSentry(settings.Telemetry.DSN, build.Release()); err != nil {
			central.Module("telemetry").Warn("error reporting disabled", logger.Error(err))
		}
	}
	return nil
}

// setupFlags defines the flags shared by every subcommand.
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().String("backend", "", "Backend REST API base URL")
	rootCmd.PersistentFlags().String("token", "", "Backend API token")

	bindings := map[string]string{
		"debug":   "debug",
		"backend": "backend.base_url",
		"token":   "backend.token",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
