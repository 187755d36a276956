package commands

import (
	"github.com/spf13/cobra"

	"github.com/metalbuild/metalbuild/cmd/metalbuild/handlers"
)

// Upload returns the upload command.
func Upload() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Publish built artifacts to the S3 bucket",
		Long: `Upload publishes artifacts already present on the build host:
image encodings under images/, extracted boot files under pxe/, and
the local build log. Artifact classes the build did not produce are
skipped with a warning.

Example:
  metalbuild upload --profile build --region eu-central-1`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Upload(cmd.Context(), opts)
		},
	}

	addCommonFlags(cmd, &opts)
	return cmd
}
