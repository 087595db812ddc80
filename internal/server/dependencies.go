package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/asterworks/valuetracker/config"
	"github.com/asterworks/valuetracker/pkg/plugin"
	"github.com/asterworks/valuetracker/pkg/tracing"
	"github.com/asterworks/valuetracker/pkg/tracing/exporters"
)

// tracingDependency installs the global tracer provider
type tracingDependency struct {
	config   *config.Config
	shutdown func(context.Context) error
}

func newTracingDependency(cfg *config.Config) *tracingDependency {
	return &tracingDependency{config: cfg}
}

func (d *tracingDependency) GetName() string {
	return "tracing"
}

func (d *tracingDependency) DependsOn() []string {
	return nil
}

func (d *tracingDependency) Start(ctx context.Context) error {
	shutdown, err := tracing.Init(ctx, tracing.Config{
		ServiceName: d.config.AppName,
		Enabled:     d.config.OTLPEnabled,
		OTLP: exporters.OTLPConfig{
			Endpoint: d.config.OTLPEndpoint,
			Protocol: d.config.OTLPProtocol,
			Insecure: d.config.OTLPInsecure,
			Timeout:  10 * time.Second,
		},
	})
	if err != nil {
		return err
	}

	d.shutdown = shutdown
	return nil
}

func (d *tracingDependency) Stop(ctx context.Context) error {
	if d.shutdown == nil {
		return nil
	}
	return d.shutdown(ctx)
}

// pluginDependency registers any preloaded extensions on start and closes
// every store on stop
type pluginDependency struct {
	plugin *plugin.Plugin
	config *config.Config
	logger ectologger.Logger
}

func newPluginDependency(p *plugin.Plugin, cfg *config.Config, logger ectologger.Logger) *pluginDependency {
	return &pluginDependency{
		plugin: p,
		config: cfg,
		logger: logger,
	}
}

func (d *pluginDependency) GetName() string {
	return "plugin"
}

func (d *pluginDependency) DependsOn() []string {
	return []string{"tracing"}
}

func (d *pluginDependency) Start(ctx context.Context) error {
	for _, extensionID := range d.config.PreloadExtensions {
		if extensionID == "" {
			continue
		}

		if _, err := d.plugin.Registry().Register(ctx, extensionID); err != nil {
			d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"extension_id": extensionID,
			}).Error("Failed to preload extension")
			return err
		}
	}

	return nil
}

func (d *pluginDependency) Stop(ctx context.Context) error {
	d.plugin.Exit(ctx)
	return nil
}

// httpDependency serves the echo instance
type httpDependency struct {
	echo     *echo.Echo
	config   *config.Config
	serveErr chan<- error
}

func newHTTPDependency(e *echo.Echo, cfg *config.Config, serveErr chan<- error) *httpDependency {
	return &httpDependency{
		echo:     e,
		config:   cfg,
		serveErr: serveErr,
	}
}

func (d *httpDependency) GetName() string {
	return "http-server"
}

func (d *httpDependency) DependsOn() []string {
	return []string{"plugin"}
}

func (d *httpDependency) Start(ctx context.Context) error {
	go func() {
		err := d.echo.Start(fmt.Sprintf(":%d", d.config.Port))
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.serveErr <- err
		}
	}()

	return nil
}

func (d *httpDependency) Stop(ctx context.Context) error {
	return d.echo.Shutdown(ctx)
}
