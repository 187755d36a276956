package commands

import (
	"github.com/spf13/cobra"

	"github.com/metalbuild/metalbuild/cmd/metalbuild/handlers"
)

// Infra returns the infra command.
func Infra() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "infra",
		Short: "Provision the transient build infrastructure",
		Long: `Infra provisions the build infrastructure without building anything:
the ARM64 build host, the artifact bucket, and any optional instances
enabled in the configuration.

Example:
  metalbuild infra --profile build --region eu-central-1`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Infra(cmd.Context(), opts)
		},
	}

	addCommonFlags(cmd, &opts)
	return cmd
}
