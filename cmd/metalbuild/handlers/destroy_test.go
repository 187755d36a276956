package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalbuild/metalbuild/internal/config"
	"github.com/metalbuild/metalbuild/internal/provisioning"
	"github.com/metalbuild/metalbuild/internal/provisioning/destroy"
)

func TestDestroy_All(t *testing.T) {
	trace := harness(t, &fakeInfra{})

	require.NoError(t, Destroy(context.Background(), baseOptions(), destroy.ModeAll))
	assert.Equal(t, []string{"destroy-all"}, *trace)
}

func TestDestroy_ComputeOnly(t *testing.T) {
	trace := harness(t, &fakeInfra{})

	require.NoError(t, Destroy(context.Background(), baseOptions(), destroy.ModeComputeOnly))
	assert.Equal(t, []string{"destroy-compute"}, *trace)
}

func TestDestroy_AllProceedsWithoutStore(t *testing.T) {
	trace := harness(t, &fakeInfra{})
	newObjectStore = func(context.Context, config.Config) (provisioning.ObjectStore, error) {
		return nil, errors.New("no credentials")
	}

	require.NoError(t, Destroy(context.Background(), baseOptions(), destroy.ModeAll))
	assert.Equal(t, []string{"destroy-all"}, *trace)
}

func TestDestroy_StageFailureSurfaces(t *testing.T) {
	trace := harness(t, &fakeInfra{})
	newDestroyProvisioner = func(mode destroy.Mode) provisioning.Phase {
		return &stageMock{name: "destroy-" + string(mode), trace: trace, err: errors.New("state locked")}
	}

	err := Destroy(context.Background(), baseOptions(), destroy.ModeAll)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state locked")
}
