// Package plugin ties the store registry, the cross-extension view and the
// HTTP handlers into the single unit a host mounts under its own route
// prefix.
package plugin

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/asterworks/valuetracker/internal/handlers"
	"github.com/asterworks/valuetracker/pkg/crossext"
	"github.com/asterworks/valuetracker/pkg/registry"
	"github.com/asterworks/valuetracker/pkg/storage"
)

const (
	ID          = "valuetracker"
	Name        = "Value Tracker"
	Description = "Persistent per-extension character, instance and key/value storage"
)

// Descriptor identifies the plugin to the host
type Descriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Options configures a plugin instance
type Options struct {
	// BaseDir is the directory the per-extension database files live in.
	// Empty means storage.DefaultBaseDir.
	BaseDir string
	// Version is reported by the info endpoint
	Version string
	Logger  ectologger.Logger
}

// Plugin owns the registry and view for one mounted instance. Construct it
// with New, wire it with Init, and tear it down with Exit.
type Plugin struct {
	registry *registry.Registry
	reader   *crossext.Reader
	logger   ectologger.Logger
	version  string
}

// New creates a plugin instance. No store is opened until an extension
// registers.
func New(opts Options) *Plugin {
	baseDir := opts.BaseDir
	if baseDir == "" {
		baseDir = storage.DefaultBaseDir
	}

	reg := registry.New(baseDir, opts.Logger)

	return &Plugin{
		registry: reg,
		reader:   crossext.NewReader(reg, opts.Logger),
		logger:   opts.Logger,
		version:  opts.Version,
	}
}

// Info returns the static descriptor
func (p *Plugin) Info() Descriptor {
	return Descriptor{
		ID:          ID,
		Name:        Name,
		Description: Description,
	}
}

// Registry returns the store registry
func (p *Plugin) Registry() *registry.Registry {
	return p.registry
}

// Reader returns the read-only cross-extension view
func (p *Plugin) Reader() *crossext.Reader {
	return p.reader
}

// Init wires every route onto the host-provided group and publishes the
// cross-extension view for co-hosted extensions.
func (p *Plugin) Init(g *echo.Group) {
	handlers.NewInfoHandler(ID, Name, Description, p.version, p.registry).RegisterRoutes(g)
	handlers.NewRegisterHandler(p.registry, p.logger).RegisterRoutes(g)
	handlers.NewCharactersHandler(p.registry, p.logger).RegisterRoutes(g)
	handlers.NewInstancesHandler(p.registry, p.logger).RegisterRoutes(g)
	handlers.NewInstanceDataHandler(p.registry, p.logger).RegisterRoutes(g)
	handlers.NewCrossExtensionHandler(p.reader, p.logger).RegisterRoutes(g)

	crossext.SetDefault(p.reader)
}

// Exit closes every registered store. Safe to call more than once.
func (p *Plugin) Exit(ctx context.Context) {
	p.registry.CloseAll(ctx)
}
