package handlers

import (
	"context"
	"fmt"
)

// Test handles the test command: boot-test a built image in a
// disposable guest on the build host.
//
// With cleanupStrays set, the handler only removes guests left behind
// by earlier interrupted validation runs and exits.
func Test(ctx context.Context, opts Options, cleanupStrays bool) error {
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

	if cleanupStrays {
		return cleanupStrayGuests(pCtx)
	}

	validationErr := newValidateProvisioner().Provision(pCtx)
	fmt.Print(renderProbeReport(cfg.ImageName, pCtx.State.ProbeResults))
	return validationErr
}
