package handlers

import (
	"context"
	"fmt"
	"log"

	"github.com/metalbuild/metalbuild/internal/provisioning/destroy"
)

// Destroy handles the destroy command in either scope.
//
// Full teardown needs the object store to empty the bucket before
// terraform deletes it; a store that cannot be constructed downgrades
// to a warning so teardown still proceeds. Compute-only teardown never
// touches the bucket at all.
func Destroy(ctx context.Context, opts Options, mode destroy.Mode) error {
	if err := checkPrerequisites().Error(); err != nil {
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	pCtx, err := buildContext(ctx, cfg, mode == destroy.ModeAll)
	if err != nil {
		if mode != destroy.ModeAll {
			return err
		}
		log.Printf("Warning: %v; bucket will not be emptied first", err)
		pCtx, err = buildContext(ctx, cfg, false)
		if err != nil {
			return err
		}
	}

	// Outputs are advisory here: teardown of an empty state is a no-op
	// for terraform, and the bucket name can come from config alone.
	if outputs, oerr := pCtx.Infra.Outputs(pCtx); oerr == nil {
		pCtx.State.Outputs = outputs
	}

	if err := newDestroyProvisioner(mode).Provision(pCtx); err != nil {
		return fmt.Errorf("destroy failed: %w", err)
	}
	return nil
}
