package handlers

import (
	"context"
	"fmt"
)

// Upload handles the upload command: publish artifacts already present
// on the build host to the object store.
func Upload(ctx context.Context, opts Options) error {
	if err := checkPrerequisites().Error(); err != nil {
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	pCtx, err := buildContext(ctx, cfg, true)
	if err != nil {
		return err
	}
	if err := resolveOutputs(pCtx); err != nil {
		return err
	}

	if err := newUploadProvisioner().Provision(pCtx); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return nil
}
