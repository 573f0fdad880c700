// Package serve runs the host API.
package serve

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sensorhub/annotator/internal/app"
	"github.com/sensorhub/annotator/internal/buildinfo"
	"github.com/sensorhub/annotator/internal/conf"
	"github.com/sensorhub/annotator/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// Command returns the serve command.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the annotation editor API for a host UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), settings, build)
		},
	}

	cmd.Flags().String("listen", "", "Address the API listens on")
	if err := viper.BindPFlag("webserver.listen", cmd.Flags().Lookup("listen")); err != nil {
		panic(fmt.Sprintf("error binding flag listen: %v", err))
	}
	return cmd
}

func run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	log := logger.Global().Module("serve")

	a, err := app.New(settings, build, logger.Global().Module("app"))
	if err != nil {
		return err
	}
	defer a.Close()

	srv := a.Server()
	srv.Start()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err, ok := <-srv.Errors():
		if ok && err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
