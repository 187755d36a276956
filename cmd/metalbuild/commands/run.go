package commands

import (
	"github.com/spf13/cobra"

	"github.com/metalbuild/metalbuild/cmd/metalbuild/handlers"
)

// Run returns the run command: the full image pipeline.
func Run() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Provision, build, upload, and validate a node image end to end",
		Long: `Run executes the full pipeline:

  1. Provision transient build infrastructure (EC2, S3, networking)
  2. Build the node image remotely with packer/QEMU
  3. Convert to qcow2, raw, vmdk, and ova and extract boot files
  4. Upload all artifacts to the S3 bucket
  5. Boot-test the image in a disposable VM

Stages can be skipped individually. --skip-build also skips the
upload, since a skipped build produces nothing new to publish.

With --cleanup the infrastructure including the bucket is destroyed
after the run; --cleanup-vms-only destroys the instances but keeps the
bucket and its artifacts. Either teardown also runs when validation
failed, but never after an earlier stage failed.

Examples:
  # Full run, keep infrastructure afterwards
  metalbuild run --profile build --region eu-central-1

  # Build a specific Kubernetes version and tear everything down
  metalbuild run --profile build --region eu-central-1 \
    --k8s-version 1.32.1 --cleanup

  # Re-test an existing image on existing infrastructure
  metalbuild run --profile build --region eu-central-1 \
    --skip-infra --skip-build`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Run(cmd.Context(), opts)
		},
	}

	addCommonFlags(cmd, &opts)
	cmd.Flags().BoolVar(&opts.SkipInfra, "skip-infra", false, "Reuse already-provisioned infrastructure")
	cmd.Flags().BoolVar(&opts.SkipBuild, "skip-build", false, "Skip the image build and upload stages")
	cmd.Flags().BoolVar(&opts.SkipTest, "skip-test", false, "Skip the boot-test stage")
	cmd.Flags().BoolVar(&opts.Cleanup, "cleanup", false, "Destroy all infrastructure after the run")
	cmd.Flags().BoolVar(&opts.CleanupVMsOnly, "cleanup-vms-only", false, "Destroy instances after the run but keep the artifact bucket")
	cmd.MarkFlagsMutuallyExclusive("cleanup", "cleanup-vms-only")

	return cmd
}
