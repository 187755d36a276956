package commands

import (
	"github.com/spf13/cobra"

	"github.com/metalbuild/metalbuild/cmd/metalbuild/handlers"
)

// Test returns the test command.
func Test() *cobra.Command {
	var opts handlers.Options
	var cleanupStrays bool

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Boot-test a built image in a disposable VM",
		Long: `Test boots the built image in a disposable QEMU guest on the build
host and runs the acceptance checklist: first-boot completion, swap
and kernel-module state, containerd, kubelet, and the Kubernetes
tooling. The guest and its disks are removed afterwards, pass or fail.

When the image is not on the build host (a run with the build stage
skipped), it is fetched from the S3 bucket first.

Examples:
  metalbuild test --profile build --region eu-central-1

  # Remove guests left behind by an interrupted validation run
  metalbuild test --profile build --region eu-central-1 --cleanup-strays`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Test(cmd.Context(), opts, cleanupStrays)
		},
	}

	addCommonFlags(cmd, &opts)
	cmd.Flags().BoolVar(&cleanupStrays, "cleanup-strays", false, "Only remove leftover validation guests, do not test")
	return cmd
}
