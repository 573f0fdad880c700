package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sensorhub/annotator/cmd"
	"github.com/sensorhub/annotator/internal/buildinfo"
	"github.com/sensorhub/annotator/internal/conf"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	settings := &conf.Settings{}
	build := &buildinfo.Context{Version: version, BuildDate: buildDate}

	err := cmd.RootCommand(settings, build).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
