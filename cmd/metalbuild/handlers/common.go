// Package handlers implements command execution for the metalbuild CLI.
//
// Commands in the commands package parse flags and delegate here. All
// external dependencies (terraform, S3, SSH, the stage provisioners)
// are constructed through package-level factory variables so tests can
// substitute fakes without touching real infrastructure.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/metalbuild/metalbuild/internal/config"
	"github.com/metalbuild/metalbuild/internal/platform/s3"
	"github.com/metalbuild/metalbuild/internal/platform/ssh"
	"github.com/metalbuild/metalbuild/internal/platform/terraform"
	"github.com/metalbuild/metalbuild/internal/provisioning"
	"github.com/metalbuild/metalbuild/internal/provisioning/build"
	"github.com/metalbuild/metalbuild/internal/provisioning/destroy"
	"github.com/metalbuild/metalbuild/internal/provisioning/infrastructure"
	"github.com/metalbuild/metalbuild/internal/provisioning/upload"
	"github.com/metalbuild/metalbuild/internal/provisioning/validate"
	"github.com/metalbuild/metalbuild/internal/util/prerequisites"
)

// Options carries resolved flag values into the handlers.
type Options struct {
	ConfigPath string
	Profile    string
	Region     string
	K8sVersion string
	ImageName  string
	WorkDir    string

	SkipInfra bool
	SkipBuild bool
	SkipTest  bool

	Cleanup        bool
	CleanupVMsOnly bool
}

// Factory function variables - can be replaced in tests.
var (
	loadConfigFile     = config.Load
	checkPrerequisites = prerequisites.CheckDefault

	newInfraManager = func(cfg config.Config) provisioning.InfraManager {
		return terraform.New(cfg.TerraformDir)
	}

	newObjectStore = func(ctx context.Context, cfg config.Config) (provisioning.ObjectStore, error) {
		return s3.NewClient(ctx, s3.Options{
			Profile:         cfg.Profile,
			Region:          cfg.Region,
			CredentialsFile: cfg.CredentialsFile,
		})
	}

	newInfrastructureProvisioner = func() provisioning.Phase { return infrastructure.NewProvisioner() }
	newBuildProvisioner          = func() provisioning.Phase { return build.NewProvisioner() }
	newUploadProvisioner         = func() provisioning.Phase { return upload.NewProvisioner() }
	newValidateProvisioner       = func() provisioning.Phase { return validate.NewProvisioner() }
	newDestroyProvisioner        = func(mode destroy.Mode) provisioning.Phase { return destroy.NewProvisioner(mode) }
	cleanupStrayGuests           = validate.CleanupStrays

	newProvisioningContext = provisioning.NewContext
)

// loadConfig resolves the effective configuration: file and environment
// first, then the flag overrides, then validation.
func loadConfig(opts Options) (config.Config, error) {
	cfg, err := loadConfigFile(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}

	if opts.Profile != "" {
		cfg.Profile = opts.Profile
	}
	if opts.Region != "" {
		cfg.Region = opts.Region
	}
	if opts.K8sVersion != "" {
		cfg.Versions.Kubernetes = opts.K8sVersion
	}
	if opts.ImageName != "" {
		cfg.ImageName = opts.ImageName
	}
	if opts.WorkDir != "" {
		cfg.WorkDir = opts.WorkDir
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return *cfg, nil
}

// buildContext assembles the provisioning context. The object store is
// only constructed for commands that touch it; terraform and SSH are
// always wired.
func buildContext(ctx context.Context, cfg config.Config, needStore bool) (*provisioning.Context, error) {
	var store provisioning.ObjectStore
	if needStore {
		var err error
		store, err = newObjectStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create object store client: %w", err)
		}
	}

	pCtx := newProvisioningContext(ctx, cfg, newInfraManager(cfg), store, nil)
	pCtx.Comm = communicatorFactory(ctx, cfg, pCtx.State)
	return pCtx, nil
}

// communicatorFactory opens SSH channels to provisioned hosts. The key
// path resolves lazily: infrastructure provisioning writes it into the
// terraform outputs after the context is constructed.
func communicatorFactory(ctx context.Context, cfg config.Config, state *provisioning.State) provisioning.CommunicatorFactory {
	return func(host string) (ssh.Communicator, error) {
		keyPath := cfg.SSH.KeyPath
		if keyPath == "" && state.Outputs != nil {
			keyPath = state.Outputs.SSHKeyPath
		}
		if keyPath == "" {
			return nil, fmt.Errorf("no SSH key available: set ssh.key_path or provision infrastructure first")
		}
		// #nosec G304
		key, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key: %w", err)
		}

		if err := ssh.WaitReachable(ctx, host, 22, 30, 5*time.Second); err != nil {
			return nil, err
		}

		return ssh.NewClient(&ssh.Config{
			Host:       host,
			User:       cfg.SSH.User,
			PrivateKey: key,
		})
	}
}

// resolveOutputs reads existing terraform outputs into state, for
// commands running against already-provisioned infrastructure.
func resolveOutputs(pCtx *provisioning.Context) error {
	outputs, err := pCtx.Infra.Outputs(pCtx)
	if err != nil {
		if errors.Is(err, terraform.ErrNoOutputs) {
			return fmt.Errorf("no provisioned infrastructure found; run \"metalbuild infra\" first or drop --skip-infra: %w", err)
		}
		return fmt.Errorf("failed to read infrastructure outputs: %w", err)
	}
	pCtx.State.Outputs = outputs
	return nil
}
