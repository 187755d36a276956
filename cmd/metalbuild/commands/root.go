// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument
// parsing, flag binding, and validation. Command execution is delegated
// to handler functions in the handlers package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/metalbuild/metalbuild/cmd/metalbuild/handlers"
)

// Root returns the root command for the metalbuild CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metalbuild",
		Short: "Build and validate Kubernetes node images on transient AWS infrastructure",
	}

	// Workflow commands
	cmd.AddCommand(Run())
	cmd.AddCommand(Destroy())

	// Individual stages
	cmd.AddCommand(Infra())
	cmd.AddCommand(Build())
	cmd.AddCommand(Upload())
	cmd.AddCommand(Test())

	// Utility commands
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}

// addCommonFlags binds the flags shared by every workflow command.
// Profile and region are required: both decide where infrastructure
// lives and neither has a safe default.
func addCommonFlags(cmd *cobra.Command, opts *handlers.Options) {
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "AWS shared-config profile (required)")
	cmd.Flags().StringVar(&opts.Region, "region", "", "AWS region (required)")
	cmd.Flags().StringVar(&opts.K8sVersion, "k8s-version", "", "Kubernetes version to bake into the image")
	cmd.Flags().StringVar(&opts.ImageName, "image-name", "", "Base name for produced artifacts")
	cmd.Flags().StringVar(&opts.WorkDir, "work-dir", "", "Local directory for logs and credentials")

	_ = cmd.MarkFlagRequired("profile")
	_ = cmd.MarkFlagRequired("region")
}
