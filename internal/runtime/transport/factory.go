// Package transport resolves configured transport names into live adapters.
// Adapter implementations register themselves with the public registry; this
// package only consults it, so importing the runtime never drags in every
// adapter's dependencies.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"

	transportpkg "github.com/drblury/sockflow/transport"
)

// Factory turns a transport configuration into a bound adapter.
type Factory interface {
	Build(ctx context.Context, cfg transportpkg.Config, logger watermill.LoggerAdapter) (transportpkg.Adapter, error)
}

// DefaultFactory returns the registry-backed factory. The registry holds
// whichever adapters the program imported.
func DefaultFactory() Factory {
	return registryFactory{}
}

type registryFactory struct{}

func (registryFactory) Build(ctx context.Context, cfg transportpkg.Config, logger watermill.LoggerAdapter) (transportpkg.Adapter, error) {
	return transportpkg.DefaultRegistry.Build(ctx, cfg, logger)
}
