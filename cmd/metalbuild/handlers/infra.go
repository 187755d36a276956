package handlers

import (
	"context"
	"fmt"
	"log"
)

// Infra handles the infra command: provision the transient build
// infrastructure without building anything.
func Infra(ctx context.Context, opts Options) error {
	if err := checkPrerequisites().Error(); err != nil {
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	pCtx, err := buildContext(ctx, cfg, false)
	if err != nil {
		return err
	}

	if err := newInfrastructureProvisioner().Provision(pCtx); err != nil {
		return fmt.Errorf("infrastructure provisioning failed: %w", err)
	}

	log.Printf("Infrastructure ready in %s", cfg.Region)
	return nil
}
