package runtime

import (
	"fmt"

	configpkg "github.com/drblury/sockflow/internal/runtime/config"
	errspkg "github.com/drblury/sockflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/sockflow/internal/runtime/logging"
	transportpkg "github.com/drblury/sockflow/transport"
)

// Plugin bundles routes, middleware, hooks and bus listeners into one
// installable unit.
type Plugin interface {
	Install(api *PluginAPI) error
}

// PluginFunc adapts a plain function into a Plugin.
type PluginFunc func(api *PluginAPI) error

func (fn PluginFunc) Install(api *PluginAPI) error {
	return fn(api)
}

// NamedPlugin lets a plugin declare a stable name. Named plugins are
// deduplicated: installing the same name twice fails.
type NamedPlugin interface {
	Plugin
	PluginName() string
}

// Use installs a plugin. Named plugins install at most once per service;
// anonymous plugins get a generated name and always install. A failed
// install releases the name so a fixed plugin can retry.
func (s *Service) Use(plugin Plugin) error {
	if plugin == nil {
		return errspkg.ErrPluginRequired
	}

	s.pluginMu.Lock()
	var name string
	if named, ok := plugin.(NamedPlugin); ok {
		name = named.PluginName()
		if _, installed := s.plugins[name]; installed {
			s.pluginMu.Unlock()
			return fmt.Errorf("%w: %s", errspkg.ErrPluginInstalled, name)
		}
	} else {
		s.pluginSeq++
		name = fmt.Sprintf("plugin-%d", s.pluginSeq)
	}
	s.plugins[name] = struct{}{}
	s.pluginMu.Unlock()

	api := &PluginAPI{svc: s, name: name}
	if err := plugin.Install(api); err != nil {
		s.pluginMu.Lock()
		delete(s.plugins, name)
		s.pluginMu.Unlock()
		return fmt.Errorf("install plugin %s: %w", name, err)
	}

	s.Logger.Info("plugin installed", loggingpkg.LogFields{"plugin": name})
	return nil
}

// PluginAPI is the surface a plugin installs through: the service's
// registration calls plus read-only access to its collaborators.
type PluginAPI struct {
	svc  *Service
	name string
}

// Name returns the name this plugin was installed under.
func (api *PluginAPI) Name() string {
	return api.name
}

// RegisterRoute registers an event route on the host service.
func (api *PluginAPI) RegisterRoute(route Route) error {
	return api.svc.RegisterRoute(route)
}

// RegisterMiddleware appends global middleware on the host service.
func (api *PluginAPI) RegisterMiddleware(registration MiddlewareRegistration) error {
	return api.svc.RegisterMiddleware(registration)
}

// Hook attaches a lifecycle hook on the host service.
func (api *PluginAPI) Hook(name string, callback any) error {
	return api.svc.Hook(name, callback)
}

// On subscribes a listener on the host service's local event bus.
func (api *PluginAPI) On(event string, fn Listener) {
	api.svc.On(event, fn)
}

// Off removes a listener from the host service's local event bus.
func (api *PluginAPI) Off(event string, fn Listener) {
	api.svc.Off(event, fn)
}

// Emit publishes a local event on the host service's bus.
func (api *PluginAPI) Emit(event string, data any) {
	api.svc.Emit(event, data)
}

// Transport returns the currently bound adapter, nil when unbound.
func (api *PluginAPI) Transport() transportpkg.Adapter {
	return api.svc.Adapter()
}

// Routes lists the host service's registered routes.
func (api *PluginAPI) Routes() []RouteInfo {
	return api.svc.Routes()
}

// AppContext returns the host service's application state.
func (api *PluginAPI) AppContext() any {
	return api.svc.AppContext()
}

// Config returns the host service's configuration.
func (api *PluginAPI) Config() *configpkg.Config {
	return api.svc.Conf
}
