// Package destroy tears provisioned infrastructure down. Two scopes
// exist: everything including the artifact bucket, or compute only,
// which keeps the bucket and its uploaded images for later runs.
package destroy

import (
	"fmt"

	"github.com/metalbuild/metalbuild/internal/provisioning"
	"github.com/metalbuild/metalbuild/internal/provisioning/infrastructure"
)

// Mode selects the teardown scope.
type Mode string

const (
	// ModeAll destroys every managed resource, bucket included.
	ModeAll Mode = "all"
	// ModeComputeOnly destroys the instances and their networking but
	// leaves the artifact bucket untouched.
	ModeComputeOnly Mode = "compute"
)

// Provisioner runs the teardown stage.
type Provisioner struct {
	mode Mode
}

// NewProvisioner creates a teardown stage with the given scope.
func NewProvisioner(mode Mode) *Provisioner {
	return &Provisioner{mode: mode}
}

// Name implements provisioning.Phase.
func (p *Provisioner) Name() string { return "destroy-" + string(p.mode) }

// Provision executes the teardown. Full teardown empties the bucket
// first so the bucket resource itself can be deleted; an emptying
// failure is reported but does not stop the destroy.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	vars := infrastructure.Vars(ctx.Config)

	switch p.mode {
	case ModeComputeOnly:
		ctx.Observer.Printf("Destroying compute resources (keeping artifact bucket)...")
		if err := ctx.Infra.DestroyCompute(ctx, vars); err != nil {
			return fmt.Errorf("compute teardown failed: %w", err)
		}
	case ModeAll:
		p.emptyBucket(ctx)
		ctx.Observer.Printf("Destroying all resources...")
		if err := ctx.Infra.DestroyAll(ctx, vars); err != nil {
			return fmt.Errorf("teardown failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown teardown mode %q", p.mode)
	}

	ctx.Observer.Printf("Teardown complete")
	return nil
}

func (p *Provisioner) emptyBucket(ctx *provisioning.Context) {
	bucket := ctx.Config.Storage.Bucket
	if bucket == "" && ctx.State.Outputs != nil {
		bucket = ctx.State.Outputs.Bucket
	}
	if bucket == "" || ctx.Store == nil {
		return
	}
	ctx.Observer.Printf("Emptying bucket %s...", bucket)
	if err := ctx.Store.EmptyBucket(ctx, bucket); err != nil {
		ctx.Observer.Warnf("failed to empty bucket %s: %v", bucket, err)
	}
}
