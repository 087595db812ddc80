// Package server hosts the plugin as a standalone service with its own echo
// instance, metrics and health endpoints.
package server

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/asterworks/valuetracker/config"
	"github.com/asterworks/valuetracker/pkg/health"
	appmw "github.com/asterworks/valuetracker/pkg/middleware"
	"github.com/asterworks/valuetracker/pkg/plugin"
	"github.com/asterworks/valuetracker/pkg/startup"
)

// Server wires the plugin into a standalone HTTP service
type Server struct {
	config *config.Config
	logger ectologger.Logger
	echo   *echo.Echo
	plugin *plugin.Plugin
	health *health.Checker
}

// New builds the echo instance, mounts the plugin under the configured route
// prefix and attaches the ambient middleware stack.
func New(cfg *config.Config, logger ectologger.Logger, version string) *Server {
	p := plugin.New(plugin.Options{
		BaseDir: cfg.DataDir,
		Version: version,
		Logger:  logger,
	})

	checker := health.NewChecker(p.Registry(), version)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.HTTPErrorHandler = appmw.Error(logger)

	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(appmw.Context())
	e.Use(appmw.Logger(logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	checker.RegisterRoutes(e)

	p.Init(e.Group(cfg.RoutePrefix))

	return &Server{
		config: cfg,
		logger: logger,
		echo:   e,
		plugin: p,
		health: checker,
	}
}

// Echo returns the underlying echo instance
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Plugin returns the hosted plugin
func (s *Server) Plugin() *plugin.Plugin {
	return s.plugin
}

// Run starts the service and blocks until ctx is cancelled or the listener
// fails. Registered stores are closed before Run returns.
func (s *Server) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)

	boot := startup.NewStartup(s.logger, s.config.StartupMaxAttempts)
	boot.AddDependency(newTracingDependency(s.config))
	boot.AddDependency(newPluginDependency(s.plugin, s.config, s.logger))
	boot.AddDependency(newHTTPDependency(s.echo, s.config, serveErr))

	if err := boot.Start(ctx); err != nil {
		return err
	}
	s.health.SetReady(true)

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"port":   s.config.Port,
		"prefix": s.config.RoutePrefix,
	}).Info("Server is ready")

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = err
	}

	s.health.SetReady(false)

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := boot.Stop(stopCtx); err != nil {
		s.logger.WithContext(stopCtx).WithError(err).Error("Failed to stop cleanly")
		if runErr == nil {
			runErr = err
		}
	}

	return runErr
}
