package commands

import (
	"github.com/spf13/cobra"

	"github.com/metalbuild/metalbuild/cmd/metalbuild/handlers"
	"github.com/metalbuild/metalbuild/internal/provisioning/destroy"
)

// Destroy returns the destroy command with its scope subcommands.
//
// The two scopes are deliberately separate operations: "all" removes
// every managed resource including the artifact bucket and its
// contents, while "compute" removes only the instances so uploaded
// images survive for later runs.
func Destroy() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Tear down provisioned infrastructure",
	}

	cmd.AddCommand(destroyAll())
	cmd.AddCommand(destroyCompute())
	return cmd
}

func destroyAll() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "all",
		Short: "Destroy all resources including the artifact bucket",
		Long: `Destroy all removes every managed resource: instances, networking,
IAM, and the artifact bucket. The bucket is emptied first so terraform
can delete it.

WARNING: uploaded images and logs are deleted with the bucket.

Example:
  metalbuild destroy all --profile build --region eu-central-1`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Destroy(cmd.Context(), opts, destroy.ModeAll)
		},
	}

	addCommonFlags(cmd, &opts)
	return cmd
}

func destroyCompute() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Destroy instances but keep the artifact bucket",
		Long: `Destroy compute removes the build, test, and PXE instances while
keeping the artifact bucket and everything uploaded to it.

Example:
  metalbuild destroy compute --profile build --region eu-central-1`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Destroy(cmd.Context(), opts, destroy.ModeComputeOnly)
		},
	}

	addCommonFlags(cmd, &opts)
	return cmd
}
