package commands

import (
	"github.com/spf13/cobra"

	"github.com/metalbuild/metalbuild/cmd/metalbuild/handlers"
)

// Build returns the build command.
func Build() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the node image on existing infrastructure",
		Long: `Build runs the remote image build on already-provisioned
infrastructure: packer/QEMU produces the raw image, which is then
converted to qcow2, vmdk, and ova, and the kernel and initrd are
extracted for PXE use.

Requires provisioned infrastructure; run "metalbuild infra" first.

Example:
  metalbuild build --profile build --region eu-central-1 --k8s-version 1.32.1`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Build(cmd.Context(), opts)
		},
	}

	addCommonFlags(cmd, &opts)
	return cmd
}
