package build

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalbuild/metalbuild/internal/config"
	"github.com/metalbuild/metalbuild/internal/platform/ssh"
	"github.com/metalbuild/metalbuild/internal/platform/terraform"
	"github.com/metalbuild/metalbuild/internal/provisioning"
)

// fakeComm records remote commands and uploads; respond scripts replies.
type fakeComm struct {
	commands []string
	uploads  map[string][]byte
	respond  func(cmd string) (string, error)
}

func newFakeComm() *fakeComm {
	return &fakeComm{uploads: map[string][]byte{}}
}

func (f *fakeComm) Execute(_ context.Context, cmd string) (string, error) {
	f.commands = append(f.commands, cmd)
	if f.respond != nil {
		return f.respond(cmd)
	}
	return "", nil
}

func (f *fakeComm) Upload(_ context.Context, remotePath string, data []byte, _ uint32) error {
	f.uploads[remotePath] = data
	return nil
}

func (f *fakeComm) Download(_ context.Context, remotePath string) ([]byte, error) {
	if data, ok := f.uploads[remotePath]; ok {
		return data, nil
	}
	return nil, errors.New("no such file: " + remotePath)
}

func (f *fakeComm) UploadFile(context.Context, string, string, uint32) error {
	return errors.New("not supported")
}

func (f *fakeComm) DownloadFile(context.Context, string, string) error {
	return errors.New("not supported")
}

func (f *fakeComm) executed(substr string) bool {
	for _, c := range f.commands {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

type nullObserver struct{ warnings []string }

func (o *nullObserver) Printf(string, ...interface{}) {}
func (o *nullObserver) Warnf(format string, v ...interface{}) {
	o.warnings = append(o.warnings, fmt.Sprintf(format, v...))
}

func buildContext(t *testing.T, comm *fakeComm) *provisioning.Context {
	t.Helper()
	cfg := config.Config{
		Profile:   "build",
		Region:    "eu-central-1",
		ImageName: "k8s-node",
		WorkDir:   t.TempDir(),
		Versions: config.Versions{
			Kubernetes: "1.31.4",
			Containerd: "1.7.24",
			CNIPlugins: "1.6.0",
			Crictl:     "1.31.1",
		},
		Storage: config.Storage{Bucket: "metalbuild-artifacts"},
		BaseImage: config.BaseImage{
			URL:      config.DefaultBaseImageURL,
			Checksum: config.DefaultBaseImageChecksum,
		},
	}

	ctx := provisioning.NewContext(context.Background(), cfg, nil, nil,
		func(string) (ssh.Communicator, error) { return comm, nil })
	ctx.Observer = &nullObserver{}
	ctx.State.Outputs = &terraform.Outputs{BuildHostIP: "198.51.100.7", Bucket: "metalbuild-artifacts"}
	return ctx
}

// toolsPresent makes marker checks report installed tooling and gives
// losetup a device node.
func toolsPresent(cmd string) (string, error) {
	switch {
	case strings.Contains(cmd, "command -v"):
		return "/usr/bin/found", nil
	case strings.Contains(cmd, "losetup --show"):
		return "/dev/loop3\n", nil
	}
	return "", nil
}

func TestProvision_FullSequence(t *testing.T) {
	comm := newFakeComm()
	comm.respond = toolsPresent
	ctx := buildContext(t, comm)

	err := NewProvisioner().Provision(ctx)
	require.NoError(t, err)

	// Rendered config files were uploaded next to the scripts.
	assert.Contains(t, comm.uploads, "/home/ubuntu/metalbuild/build.pkr.hcl")
	assert.Contains(t, comm.uploads, "/home/ubuntu/metalbuild/meta-data")
	assert.Contains(t, comm.uploads, "/home/ubuntu/metalbuild/user-data")

	// The uploaded packer config boots the configured cloud image.
	hcl := string(comm.uploads["/home/ubuntu/metalbuild/build.pkr.hcl"])
	assert.Contains(t, hcl, config.DefaultBaseImageURL)
	assert.Contains(t, hcl, "disk_image   = true")

	// Marker checks passed, so no installation happened.
	assert.False(t, comm.executed("apt-get install"))

	assert.True(t, comm.executed("packer build"))
	assert.True(t, comm.executed("-O qcow2"))
	assert.True(t, comm.executed("-O vmdk"))
	assert.True(t, comm.executed("tar -cf k8s-node-1.31.4.ova"))
	assert.True(t, comm.executed("umount"))

	assert.NotEmpty(t, ctx.State.BuildCredential)
	assert.NotEmpty(t, ctx.State.BuildLogPath)
}

func TestProvision_RequiresBuildHost(t *testing.T) {
	comm := newFakeComm()
	ctx := buildContext(t, comm)
	ctx.State.Outputs = nil

	err := NewProvisioner().Provision(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no build host address")
	assert.Empty(t, comm.commands)
}

func TestProvision_InstallsMissingTooling(t *testing.T) {
	comm := newFakeComm()
	comm.respond = func(cmd string) (string, error) {
		switch {
		case strings.Contains(cmd, "command -v"):
			return "", nil // nothing installed yet
		case strings.Contains(cmd, "losetup --show"):
			return "/dev/loop0\n", nil
		}
		return "", nil
	}
	ctx := buildContext(t, comm)

	err := NewProvisioner().Provision(ctx)
	require.NoError(t, err)

	assert.True(t, comm.executed("apt-get install"))
	assert.True(t, comm.executed("releases.hashicorp.com/packer"))
	assert.True(t, comm.executed("git clone"))
}

func TestProvision_PackerFailureAborts(t *testing.T) {
	comm := newFakeComm()
	comm.respond = func(cmd string) (string, error) {
		if strings.Contains(cmd, "packer build") {
			return "==> qemu: build error", errors.New("exit status 1")
		}
		return toolsPresent(cmd)
	}
	ctx := buildContext(t, comm)

	err := NewProvisioner().Provision(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "packer build failed")

	// Conversions never ran after the failed build.
	assert.False(t, comm.executed("-O qcow2"))
	// The failing tool's log was still captured.
	assert.NotEmpty(t, ctx.State.BuildLogPath)
}

func TestProvision_TranscodesAlwaysUseRawSource(t *testing.T) {
	comm := newFakeComm()
	comm.respond = toolsPresent
	ctx := buildContext(t, comm)

	require.NoError(t, NewProvisioner().Provision(ctx))

	for _, c := range comm.commands {
		if strings.Contains(c, "qemu-img convert") {
			assert.Contains(t, c, " /home/ubuntu/metalbuild/output/k8s-node.raw ",
				"transcode must read the primary artifact")
		}
	}
}
