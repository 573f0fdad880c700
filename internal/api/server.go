package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/sensorhub/annotator/internal/conf"
	"github.com/sensorhub/annotator/internal/logger"
)

const bodyLimit = "1M"

// Server runs the host API.
type Server struct {
	echo       *echo.Echo
	settings   *conf.WebServerSettings
	controller *Controller
	sessions   *SessionRegistry
	log        logger.Logger
	errCh      chan error
}

// NewServer builds the echo instance, middleware and routes.
func NewServer(settings *conf.WebServerSettings, sessions *SessionRegistry, log logger.Logger, opts ...Option) *Server {
	if log == nil {
		log = logger.Global().Module("api")
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = settings.Debug

	s := &Server{
		echo:     e,
		settings: settings,
		sessions: sessions,
		log:      log,
		errCh:    make(chan error, 1),
	}
	s.setupMiddleware()
	s.controller = New(e, sessions, append([]Option{WithLogger(log)}, opts...)...)
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(echomw.RequestID())
	s.echo.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
				logger.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}
			s.log.Debug("request", fields...)
			return nil
		},
	}))
	s.echo.Use(echomw.BodyLimit(bodyLimit))
	s.echo.Use(echomw.Gzip())
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Controller returns the API controller.
func (s *Server) Controller() *Controller { return s.controller }

// Start serves in a background goroutine and returns immediately.
// Listener failures are delivered on Errors.
func (s *Server) Start() {
	go func() {
		s.log.Info("host API listening", logger.String("listen", s.settings.Listen))
		if err := s.echo.Start(s.settings.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("host API stopped", logger.Error(err))
			s.errCh <- err
		}
		close(s.errCh)
	}()
}

// Errors yields a listener failure, then closes once the server has stopped.
func (s *Server) Errors() <-chan error { return s.errCh }

// Shutdown stops accepting requests, waits for in-flight ones and closes
// every editor session.
func (s *Server) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}
	err := s.echo.Shutdown(ctx)
	s.sessions.Close()
	return err
}
