package handlers

import (
	"context"
	"fmt"
	"log"

	"github.com/metalbuild/metalbuild/internal/provisioning"
	"github.com/metalbuild/metalbuild/internal/provisioning/destroy"
)

// Run handles the run command: the full provision, build, upload,
// validate, cleanup workflow.
//
// Skip flags drop individual stages; --skip-build also drops the
// upload, since there is nothing new to publish. The cleanup stage runs
// even when validation failed, so a bad image never leaves paid
// instances behind, but not when an earlier stage failed: a partial
// apply needs inspection before anything is torn down.
func Run(ctx context.Context, opts Options) error {
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

	var phases []provisioning.Phase
	if opts.SkipInfra {
		if err := resolveOutputs(pCtx); err != nil {
			return err
		}
	} else {
		phases = append(phases, newInfrastructureProvisioner())
	}
	if !opts.SkipBuild {
		phases = append(phases, newBuildProvisioner(), newUploadProvisioner())
	}
	if err := provisioning.RunPhases(pCtx, phases); err != nil {
		return err
	}

	var validationErr error
	if !opts.SkipTest {
		validationErr = newValidateProvisioner().Provision(pCtx)
		fmt.Print(renderProbeReport(cfg.ImageName, pCtx.State.ProbeResults))
	}

	if cleanupErr := runCleanup(pCtx, opts); cleanupErr != nil {
		if validationErr != nil {
			log.Printf("Warning: cleanup after failed validation also failed: %v", cleanupErr)
			return validationErr
		}
		return cleanupErr
	}

	return validationErr
}

func runCleanup(pCtx *provisioning.Context, opts Options) error {
	switch {
	case opts.Cleanup:
		return newDestroyProvisioner(destroy.ModeAll).Provision(pCtx)
	case opts.CleanupVMsOnly:
		return newDestroyProvisioner(destroy.ModeComputeOnly).Provision(pCtx)
	}
	return nil
}
