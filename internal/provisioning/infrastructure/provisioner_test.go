package infrastructure

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalbuild/metalbuild/internal/config"
	"github.com/metalbuild/metalbuild/internal/platform/terraform"
	"github.com/metalbuild/metalbuild/internal/provisioning"
)

// fakeInfra implements provisioning.InfraManager.
type fakeInfra struct {
	initErr   error
	applyErr  error
	outputs   *terraform.Outputs
	outputErr error

	applied []map[string]string
}

func (f *fakeInfra) Init(context.Context) error { return f.initErr }

func (f *fakeInfra) Apply(_ context.Context, vars map[string]string) error {
	f.applied = append(f.applied, vars)
	return f.applyErr
}

func (f *fakeInfra) Outputs(context.Context) (*terraform.Outputs, error) {
	return f.outputs, f.outputErr
}

func (f *fakeInfra) DestroyAll(context.Context, map[string]string) error     { return nil }
func (f *fakeInfra) DestroyCompute(context.Context, map[string]string) error { return nil }

func testConfig() config.Config {
	return config.Config{
		Profile: "build",
		Region:  "eu-central-1",
		Storage: config.Storage{Bucket: "metalbuild-artifacts"},
		Instances: config.Instances{
			BuildHost: true,
			TestHost:  true,
		},
	}
}

func newContext(infra *fakeInfra) *provisioning.Context {
	ctx := provisioning.NewContext(context.Background(), testConfig(), infra, nil, nil)
	return ctx
}

func TestProvision_RecordsOutputs(t *testing.T) {
	infra := &fakeInfra{outputs: &terraform.Outputs{
		BuildHostIP: "198.51.100.7",
		Bucket:      "metalbuild-artifacts",
	}}
	ctx := newContext(infra)

	err := NewProvisioner().Provision(ctx)
	require.NoError(t, err)

	require.NotNil(t, ctx.State.Outputs)
	assert.Equal(t, "198.51.100.7", ctx.State.Outputs.BuildHostIP)
	require.Len(t, infra.applied, 1)
	assert.Equal(t, "true", infra.applied[0]["enable_build_host"])
	assert.Equal(t, "true", infra.applied[0]["enable_test_host"])
	assert.Equal(t, "false", infra.applied[0]["enable_pxe_server"])
}

func TestProvision_ApplyFailureAborts(t *testing.T) {
	infra := &fakeInfra{applyErr: errors.New("quota exceeded")}
	ctx := newContext(infra)

	err := NewProvisioner().Provision(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terraform apply failed")
	assert.Nil(t, ctx.State.Outputs)
}

func TestProvision_MissingBuildHostAddress(t *testing.T) {
	infra := &fakeInfra{outputs: &terraform.Outputs{Bucket: "b"}}
	ctx := newContext(infra)

	err := NewProvisioner().Provision(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing build host address")
}

func TestVars_Bindings(t *testing.T) {
	vars := Vars(testConfig())
	assert.Equal(t, "build", vars["profile"])
	assert.Equal(t, "eu-central-1", vars["aws_region"])
	assert.Equal(t, "metalbuild-artifacts", vars["artifact_bucket"])
}
