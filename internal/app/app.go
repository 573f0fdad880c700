// Package app builds the annotator's components from settings and wires them together.
package app

import (
	"context"
	"time"

	"github.com/sensorhub/annotator/internal/api"
	"github.com/sensorhub/annotator/internal/buildinfo"
	"github.com/sensorhub/annotator/internal/conf"
	"github.com/sensorhub/annotator/internal/datasource"
	"github.com/sensorhub/annotator/internal/datastore"
	"github.com/sensorhub/annotator/internal/editor"
	"github.com/sensorhub/annotator/internal/errors"
	"github.com/sensorhub/annotator/internal/logger"
	"github.com/sensorhub/annotator/internal/mqtt"
	"github.com/sensorhub/annotator/internal/notification"
	"github.com/sensorhub/annotator/internal/observability"
	"github.com/sensorhub/annotator/internal/observation"
	"github.com/sensorhub/annotator/internal/reconcile"
	"github.com/sensorhub/annotator/internal/rowstore"
	"github.com/sensorhub/annotator/internal/species"
)

// App holds the long-lived components. Drafts, Metrics and the push and
// MQTT sinks are nil when disabled in settings.
type App struct {
	Settings *conf.Settings
	Build    *buildinfo.Context
	Source   *datasource.Client
	Species  *species.Service
	Drafts   *datastore.Store
	Metrics  *observability.Metrics

	push       *notification.PushSink
	mqttClient mqtt.Client
	reports    *mqtt.ReportPublisher
	log        logger.Logger
}

// New builds every enabled component. Optional sinks that fail to start are
// logged and left out; the backend clients and the draft store are required.
func New(settings *conf.Settings, build *buildinfo.Context, log logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Global().Module("app")
	}
	a := &App{Settings: settings, Build: build, log: log}

	if settings.Metrics.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			return nil, err
		}
		a.Metrics = m
	}

	source, err := datasource.New(datasource.Config{
		BaseURL:   settings.Backend.BaseURL,
		Token:     settings.Backend.Token,
		Timeout:   settings.Backend.Timeout,
		UserAgent: settings.Backend.UserAgent,
	}, log.Module("datasource"))
	if err != nil {
		return nil, err
	}
	a.Source = source

	speciesSvc, err := species.New(species.Config{
		BaseURL:        settings.Backend.BaseURL,
		Token:          settings.Backend.Token,
		Timeout:        settings.Backend.Timeout,
		UserAgent:      settings.Backend.UserAgent,
		CacheTTL:       settings.Species.CacheTTL,
		MinQueryLength: settings.Species.MinQueryLength,
		RateLimit:      settings.Species.RateLimit,
	}, log.Module("species"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Species = speciesSvc

	if a.Metrics != nil {
		hook := a.Metrics.Backend.AfterResponseHook()
		a.Source.HTTP().SetAfterResponseHook(hook)
		a.Species.HTTP().SetAfterResponseHook(hook)
	}

	if settings.Drafts.Enabled {
		drafts, err := datastore.Open(&settings.Drafts, log.Module("datastore"))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Drafts = drafts
	}

	if len(settings.Notification.URLs) > 0 {
		push, err := notification.NewPushSink(settings.Notification.URLs, settings.Notification.PushTimeout)
		if err != nil {
			log.Warn("push notifications disabled", logger.Error(err))
		} else {
			a.push = push
		}
	}

	if settings.MQTT.Enabled {
		client, err := mqtt.NewClient(mqtt.Config{
			Broker:   settings.MQTT.Broker,
			ClientID: settings.MQTT.ClientID,
			Username: settings.MQTT.Username,
			Password: settings.MQTT.Password,
			Topic:    settings.MQTT.Topic,
			Retain:   settings.MQTT.Retain,
		}, log.Module("mqtt"))
		if err != nil {
			log.Warn("MQTT report publishing disabled", logger.Error(err))
		} else {
			a.mqttClient = client
			a.reports = mqtt.NewReportPublisher(client, settings.MQTT.Topic, log.Module("mqtt"))
		}
	}

	log.Info("components ready",
		logger.String("backend", settings.Backend.BaseURL),
		logger.Bool("drafts", a.Drafts != nil),
		logger.Bool("metrics", a.Metrics != nil),
		logger.Bool("push", a.push != nil),
		logger.Bool("mqtt", a.reports != nil))
	return a, nil
}

// SyncEngine returns a reconcile engine recording into the metrics when enabled.
func (a *App) SyncEngine() *reconcile.Engine {
	opts := []reconcile.Option{reconcile.WithLogger(a.log.Module("reconcile"))}
	if a.Metrics != nil {
		opts = append(opts, reconcile.WithRecorder(a.Metrics.Sync))
	}
	return reconcile.NewEngine(a.Source, opts...)
}

// Notifier returns a notification service with the log, push and MQTT sinks
// plus any extra sinks.
func (a *App) Notifier(extra ...notification.Sink) *notification.Service {
	sinks := append([]notification.Sink{notification.NewLogSink(a.log.Module("notification"))}, extra...)
	if a.push != nil {
		sinks = append(sinks, a.push)
	}
	svc := notification.NewService(a.log.Module("notification"), sinks...)
	if a.reports != nil {
		svc.AddPublisher(a.reports)
	}
	return svc
}

// SessionFactory builds editor sessions for the host API.
func (a *App) SessionFactory() api.SessionFactory {
	opts := editor.Options{
		DiscardDegenerate: a.Settings.Editor.DiscardDegenerateBoxes,
		NormalizeOnLoad:   a.Settings.Editor.NormalizeOnLoad,
		DefaultSource:     observation.Source(a.Settings.Editor.DefaultSource),
	}
	return func(file observation.FileRef, toasts *notification.ToastQueue) *editor.Session {
		deps := editor.Deps{
			Source:   a.Source,
			Sync:     a.SyncEngine(),
			Notifier: a.Notifier(toasts),
			Logger:   a.log.Module("editor"),
		}
		if a.Drafts != nil {
			deps.Drafts = a.Drafts
		}
		return editor.New(file, deps, opts, editor.Callbacks{})
	}
}

// Server builds the host API server.
func (a *App) Server() *api.Server {
	registry := api.NewSessionRegistry(a.SessionFactory(), a.Settings.WebServer.SessionTTL,
		a.Settings.Notification.ToastCapacity, a.log.Module("api"))

	opts := []api.Option{api.WithSpecies(a.Species), api.WithBuildInfo(a.Build)}
	if a.Metrics != nil {
		opts = append(opts, api.WithMetrics(a.Settings.Metrics.Path, a.Metrics.Handler()))
	}
	return api.NewServer(&a.Settings.WebServer, registry, a.log.Module("api"), opts...)
}

// ReplayDraft sends the stored draft for fileID to the backend without an
// editor. Rows that still fail stay in the draft; a clean save removes it.
func (a *App) ReplayDraft(ctx context.Context, fileID int64) (*reconcile.Report, error) {
	if a.Drafts == nil {
		return nil, errors.Newf("draft storage is disabled").
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}
	rows, err := a.Drafts.LoadRows(ctx, fileID)
	if err != nil {
		return nil, err
	}

	store := rowstore.New(observation.FileRef{ID: fileID}, rowstore.Options{
		NormalizeOnLoad: a.Settings.Editor.NormalizeOnLoad,
	}, a.log.Module("rowstore"))
	store.Restore(rows)

	report := a.SyncEngine().Save(ctx, fileID, store.Rows(), store)
	if report.Success {
		err = a.Drafts.Delete(ctx, fileID)
	} else {
		err = a.Drafts.Save(ctx, fileID, "replay", store.Rows())
	}
	if err != nil {
		a.log.Warn("failed to update draft after replay", logger.Int64("file_id", fileID), logger.Error(err))
	}

	if err := a.Notifier().PublishReport(ctx, report); err != nil {
		a.log.Warn("failed to publish replay report", logger.Error(err))
	}
	return report, nil
}

// Close releases every component. It is safe on a partially built App.
func (a *App) Close() {
	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}
	if a.Drafts != nil {
		if err := a.Drafts.Close(); err != nil {
			a.log.Warn("failed to close draft store", logger.Error(err))
		}
	}
	if a.Species != nil {
		a.Species.Close()
	}
	if a.Source != nil {
		a.Source.Close()
	}
	if a.Settings.Telemetry.Enabled {
		errors.FlushSentry(2 * time.Second)
	}
}
