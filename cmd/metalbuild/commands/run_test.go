package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	cmd := Run()

	require.NotNil(t, cmd)
	assert.Equal(t, "run", cmd.Use)
	assert.NotNil(t, cmd.RunE)
}

func TestRun_RequiredFlags(t *testing.T) {
	cmd := Run()

	for _, name := range []string{"profile", "region"} {
		flag := cmd.Flags().Lookup(name)
		require.NotNil(t, flag, name)
		_, required := flag.Annotations["cobra_annotation_bash_completion_one_required_flag"]
		assert.True(t, required, "%s flag should be required", name)
	}
}

func TestRun_StageFlags(t *testing.T) {
	cmd := Run()

	for _, name := range []string{"skip-infra", "skip-build", "skip-test", "cleanup", "cleanup-vms-only", "k8s-version"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}

func TestRun_CleanupFlagsMutuallyExclusive(t *testing.T) {
	cmd := Run()
	cmd.SetArgs([]string{"--profile", "build", "--region", "eu-central-1", "--cleanup", "--cleanup-vms-only"})
	cmd.RunE = func(_ *cobra.Command, _ []string) error { return nil }

	err := cmd.Execute()
	require.Error(t, err)
}
