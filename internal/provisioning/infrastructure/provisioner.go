// Package infrastructure converges the EC2 topology via terraform and
// records the resolved outputs in the pipeline state.
package infrastructure

import (
	"fmt"
	"strconv"

	"github.com/metalbuild/metalbuild/internal/config"
	"github.com/metalbuild/metalbuild/internal/provisioning"
)

// Provisioner applies the terraform configuration.
type Provisioner struct{}

// NewProvisioner creates the infrastructure stage.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements provisioning.Phase.
func (p *Provisioner) Name() string { return "infrastructure" }

// Provision runs init + apply and resolves outputs. Any terraform error
// aborts the whole workflow; no partial-apply recovery is attempted here.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	if err := ctx.Infra.Init(ctx); err != nil {
		return fmt.Errorf("terraform init failed: %w", err)
	}

	ctx.Observer.Printf("Applying infrastructure (region %s)...", ctx.Config.Region)
	if err := ctx.Infra.Apply(ctx, Vars(ctx.Config)); err != nil {
		return fmt.Errorf("terraform apply failed: %w", err)
	}

	outputs, err := ctx.Infra.Outputs(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve infrastructure outputs: %w", err)
	}
	if outputs.BuildHostIP == "" {
		return fmt.Errorf("infrastructure outputs missing build host address")
	}

	ctx.State.Outputs = outputs
	ctx.Observer.Printf("Build host: %s, bucket: %s", outputs.BuildHostIP, outputs.Bucket)
	return nil
}

// Vars derives the terraform variable bindings from the configuration.
func Vars(cfg config.Config) map[string]string {
	return map[string]string{
		"profile":           cfg.Profile,
		"aws_region":        cfg.Region,
		"artifact_bucket":   cfg.Storage.Bucket,
		"enable_build_host": strconv.FormatBool(cfg.Instances.BuildHost),
		"enable_test_host":  strconv.FormatBool(cfg.Instances.TestHost),
		"enable_pxe_server": strconv.FormatBool(cfg.Instances.PXEServer),
	}
}
