// Package build drives the remote image build on the provisioned host:
// environment setup, configuration rendering, the packer invocation,
// format conversion, and boot-file extraction. Every step is a command
// over the authenticated channel; the sequence is linear with
// idempotent-skip checks and no other branching.
package build

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/metalbuild/metalbuild/internal/packerconf"
	"github.com/metalbuild/metalbuild/internal/platform/ssh"
	"github.com/metalbuild/metalbuild/internal/provisioning"
	"github.com/metalbuild/metalbuild/internal/util/retry"
)

// Package installation is the one known-flaky spot (apt mirror and lock
// contention on freshly booted hosts); it gets bounded retry. Nothing
// else in the build is retried.
const (
	installRetries    = 4
	installRetryDelay = 10 * time.Second
)

const installPackagesCmd = "sudo apt-get update -y && " +
	"sudo DEBIAN_FRONTEND=noninteractive apt-get install -y " +
	"qemu-system qemu-utils ovmf genisoimage sshpass unzip git netcat-openbsd"

const installPackerCmd = "curl -fsSL https://releases.hashicorp.com/packer/1.11.2/packer_1.11.2_linux_arm64.zip " +
	"-o /tmp/packer.zip && sudo unzip -o /tmp/packer.zip -d /usr/local/bin && rm -f /tmp/packer.zip"

const scriptsRepo = "https://github.com/metalbuild/build-scripts"

// Provisioner runs the remote build.
type Provisioner struct{}

// NewProvisioner creates the build stage.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements provisioning.Phase.
func (p *Provisioner) Name() string { return "build" }

// Provision executes the build sequence on the remote host.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	if ctx.State.Outputs == nil || ctx.State.Outputs.BuildHostIP == "" {
		return fmt.Errorf("no build host address available (was infrastructure provisioned?)")
	}

	comm, err := ctx.Comm(ctx.State.Outputs.BuildHostIP)
	if err != nil {
		return fmt.Errorf("failed to reach build host: %w", err)
	}

	if err := p.ensureEnvironment(ctx, comm); err != nil {
		return err
	}
	if err := p.renderConfigs(ctx, comm); err != nil {
		return err
	}
	if err := p.runPacker(ctx, comm); err != nil {
		return err
	}
	if err := p.convertFormats(ctx, comm); err != nil {
		return err
	}
	if err := ExtractBootFiles(ctx, comm, ctx.Observer, p.primaryArtifact(ctx), ctx.State.RemoteOutputDir+"/pxe"); err != nil {
		return err
	}

	ctx.Observer.Printf("Build complete; artifacts in %s", ctx.State.RemoteOutputDir)
	return nil
}

// ensureEnvironment installs build tooling and clones the build scripts,
// checking for presence first so re-runs skip completed work.
func (p *Provisioner) ensureEnvironment(ctx *provisioning.Context, comm ssh.Communicator) error {
	out, _ := comm.Execute(ctx, "command -v qemu-img || true")
	if strings.TrimSpace(out) == "" {
		ctx.Observer.Printf("Installing build packages...")
		err := retry.WithExponentialBackoff(ctx, func() error {
			_, installErr := comm.Execute(ctx, installPackagesCmd)
			return installErr
		},
			retry.WithMaxRetries(installRetries),
			retry.WithInitialDelay(installRetryDelay),
		)
		if err != nil {
			return fmt.Errorf("package installation failed: %w", err)
		}
	}

	out, _ = comm.Execute(ctx, "command -v packer || true")
	if strings.TrimSpace(out) == "" {
		ctx.Observer.Printf("Installing packer...")
		if _, err := comm.Execute(ctx, installPackerCmd); err != nil {
			return fmt.Errorf("packer installation failed: %w", err)
		}
	}

	cloneCmd := fmt.Sprintf("test -d %s/scripts || git clone --depth 1 %s %s/scripts",
		ctx.State.RemoteBuildDir, scriptsRepo, ctx.State.RemoteBuildDir)
	if _, err := comm.Execute(ctx, fmt.Sprintf("mkdir -p %s && %s", ctx.State.RemoteBuildDir, cloneCmd)); err != nil {
		return fmt.Errorf("failed to prepare build scripts: %w", err)
	}

	return nil
}

// renderConfigs renders the build configuration and seed files with this
// run's parameters and uploads them next to the build scripts.
func (p *Provisioner) renderConfigs(ctx *provisioning.Context, comm ssh.Communicator) error {
	credential, err := packerconf.NewBuildCredential()
	if err != nil {
		return err
	}
	ctx.State.BuildCredential = credential

	if ctx.Config.WorkDir != "" {
		if _, err := packerconf.WriteCredentialFile(ctx.Config.WorkDir, credential); err != nil {
			return err
		}
	}

	rendered, err := packerconf.Render(packerconf.Params{
		ImageName:         ctx.Config.ImageName,
		KubernetesVersion: ctx.Config.Versions.Kubernetes,
		ContainerdVersion: ctx.Config.Versions.Containerd,
		CNIVersion:        ctx.Config.Versions.CNIPlugins,
		CrictlVersion:     ctx.Config.Versions.Crictl,
		OutputDir:         ctx.State.RemoteOutputDir,
		InstanceID:        "iid-metalbuild-" + ctx.State.RunID,
		Hostname:          ctx.Config.ImageName + "-build",
		BaseImageURL:      ctx.Config.BaseImage.URL,
		BaseImageChecksum: ctx.Config.BaseImage.Checksum,
		BuildPassword:     credential,
	})
	if err != nil {
		return fmt.Errorf("failed to render build configuration: %w", err)
	}

	// Packer refuses to reuse an existing output directory.
	if _, err := comm.Execute(ctx, fmt.Sprintf("rm -rf %s", ctx.State.RemoteOutputDir)); err != nil {
		return fmt.Errorf("failed to clear output directory: %w", err)
	}

	uploads := map[string][]byte{
		"build.pkr.hcl": rendered.BuildConfig,
		"meta-data":     rendered.MetaData,
		"user-data":     rendered.UserData,
	}
	for name, data := range uploads {
		dest := path.Join(ctx.State.RemoteBuildDir, name)
		if err := comm.Upload(ctx, dest, data, 0o644); err != nil {
			return fmt.Errorf("failed to upload %s: %w", name, err)
		}
	}

	return nil
}

// runPacker performs the single synchronous build-tool invocation. The
// tool's own output is captured to the local build log on success and
// failure alike; there is no retry at this layer.
func (p *Provisioner) runPacker(ctx *provisioning.Context, comm ssh.Communicator) error {
	ctx.Observer.Printf("Running packer build (this can take a while)...")
	out, buildErr := comm.Execute(ctx, fmt.Sprintf("cd %s && packer init . && packer build build.pkr.hcl", ctx.State.RemoteBuildDir))

	if ctx.Config.WorkDir != "" {
		logPath := filepath.Join(ctx.Config.WorkDir, fmt.Sprintf("build-%s.log", ctx.State.BuildTimestamp))
		if werr := os.WriteFile(logPath, []byte(out), 0o644); werr != nil {
			ctx.Observer.Warnf("failed to write build log: %v", werr)
		} else {
			ctx.State.BuildLogPath = logPath
		}
	}

	if buildErr != nil {
		return fmt.Errorf("packer build failed: %w", buildErr)
	}
	return nil
}

// primaryArtifact is the renamed raw image conversions and extraction use.
func (p *Provisioner) primaryArtifact(ctx *provisioning.Context) string {
	return path.Join(ctx.State.RemoteOutputDir,
		fmt.Sprintf("%s-%s.raw", ctx.Config.ImageName, ctx.Config.ImageVersion()))
}
