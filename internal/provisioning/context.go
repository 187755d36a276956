package provisioning

import (
	"context"

	"github.com/metalbuild/metalbuild/internal/config"
)

// Context wraps all dependencies and state needed for a pipeline stage.
// Config is carried by value: stages read it but cannot leak changes into
// each other.
type Context struct {
	context.Context
	Config   config.Config
	State    *State
	Infra    InfraManager
	Store    ObjectStore
	Comm     CommunicatorFactory
	Observer Observer
}

// NewContext creates a new pipeline context.
func NewContext(
	ctx context.Context,
	cfg config.Config,
	infra InfraManager,
	store ObjectStore,
	comm CommunicatorFactory,
) *Context {
	return &Context{
		Context:  ctx,
		Config:   cfg,
		State:    NewState(),
		Infra:    infra,
		Store:    store,
		Comm:     comm,
		Observer: NewConsoleObserver(),
	}
}
