package handlers

import (
	"context"
	"fmt"
	"log"
)

// Build handles the build command: run the remote image build on
// already-provisioned infrastructure.
func Build(ctx context.Context, opts Options) error {
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
	if err := resolveOutputs(pCtx); err != nil {
		return err
	}

	if err := newBuildProvisioner().Provision(pCtx); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	log.Printf("Image %s-%s built", cfg.ImageName, cfg.ImageVersion())
	return nil
}
