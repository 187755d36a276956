package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalbuild/metalbuild/internal/platform/terraform"
	"github.com/metalbuild/metalbuild/internal/provisioning"
)

func TestTest_RunsValidation(t *testing.T) {
	trace := harness(t, &fakeInfra{outputs: &terraform.Outputs{BuildHostIP: "198.51.100.7"}})

	require.NoError(t, Test(context.Background(), baseOptions(), false))
	assert.Equal(t, []string{"validate"}, *trace)
}

func TestTest_CleanupStraysOnly(t *testing.T) {
	trace := harness(t, &fakeInfra{outputs: &terraform.Outputs{BuildHostIP: "198.51.100.7"}})

	require.NoError(t, Test(context.Background(), baseOptions(), true))
	assert.Equal(t, []string{"cleanup-strays"}, *trace, "validation must not run in cleanup mode")
}

func TestTest_RequiresInfrastructure(t *testing.T) {
	trace := harness(t, &fakeInfra{outputsErr: terraform.ErrNoOutputs})

	err := Test(context.Background(), baseOptions(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no provisioned infrastructure found")
	assert.Empty(t, *trace)
}

func TestTest_ValidationFailureSurfaces(t *testing.T) {
	trace := harness(t, &fakeInfra{outputs: &terraform.Outputs{BuildHostIP: "198.51.100.7"}})

	validationErr := errors.New("image validation failed")
	newValidateProvisioner = func() provisioning.Phase {
		return &stageMock{name: "validate", trace: trace, err: validationErr}
	}

	err := Test(context.Background(), baseOptions(), false)
	require.ErrorIs(t, err, validationErr)
}
