// Package validate boot-tests a built image in a disposable guest on
// the build host. The artifact is attached read-only behind a
// copy-on-write overlay, the guest is seeded with this run's
// credential, and an ordered probe checklist decides pass, fail, or
// warn. The guest and its disks are removed on every exit path.
package validate

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
	"github.com/metalbuild/metalbuild/internal/seedimage"
)

// Provisioner runs the validation stage.
type Provisioner struct {
	// Boot wait budget; a cold ARM guest with cloud-init first boot
	// can take minutes.
	BootAttempts int
	BootInterval time.Duration
}

// NewProvisioner creates the validation stage with default timing.
func NewProvisioner() *Provisioner {
	return &Provisioner{
		BootAttempts: 60,
		BootInterval: 5 * time.Second,
	}
}

// Name implements provisioning.Phase.
func (p *Provisioner) Name() string { return "validate" }

// Provision boots the guest, runs the checklist, and records results.
// It returns an error when any non-warn probe failed.
func (p *Provisioner) Provision(ctx *provisioning.Context) (err error) {
	if ctx.State.Outputs == nil || ctx.State.Outputs.BuildHostIP == "" {
		return fmt.Errorf("no build host address available (was infrastructure provisioned?)")
	}

	comm, err := ctx.Comm(ctx.State.Outputs.BuildHostIP)
	if err != nil {
		return fmt.Errorf("failed to reach build host: %w", err)
	}

	artifact, err := p.ensureArtifact(ctx, comm)
	if err != nil {
		return err
	}

	credential, seed, err := p.seedMaterial(ctx)
	if err != nil {
		return err
	}

	guest := newVM(comm, ctx.State.RemoteBuildDir, "validate-"+ctx.State.RunID)
	// Teardown is registered before boot: a half-started guest must be
	// cleaned up as thoroughly as a finished one.
	defer func() {
		if derr := guest.Destroy(ctx); derr != nil {
			ctx.Observer.Warnf("guest teardown incomplete: %v", derr)
		}
	}()

	if err := guest.Boot(ctx, artifact, seed); err != nil {
		return err
	}

	results := p.runChecklist(ctx, guest, credential)
	ctx.State.ProbeResults = results

	for _, r := range results {
		line := fmt.Sprintf("  [%s] %s", r.Outcome, r.Name)
		if r.Detail != "" {
			line += ": " + r.Detail
		}
		ctx.Observer.Printf("%s", line)
	}

	summary := provisioning.Summarize(results)
	ctx.Observer.Printf("Validation: %s", summary)
	if !summary.Ok() {
		return fmt.Errorf("image validation failed: %s", summary)
	}
	return nil
}

// ensureArtifact returns the remote path of the image to validate,
// fetching it from the object store when the build host does not have
// it (a run with the build stage skipped).
func (p *Provisioner) ensureArtifact(ctx *provisioning.Context, comm ssh.Communicator) (string, error) {
	name := fmt.Sprintf("%s-%s.qcow2", ctx.Config.ImageName, ctx.Config.ImageVersion())
	remotePath := path.Join(ctx.State.RemoteOutputDir, name)

	if _, err := comm.Execute(ctx, fmt.Sprintf("test -f %s", remotePath)); err == nil {
		return remotePath, nil
	}

	if ctx.Store == nil {
		return "", fmt.Errorf("image %s not present on build host and no object store configured", name)
	}
	bucket := ctx.Config.Storage.Bucket
	if bucket == "" && ctx.State.Outputs != nil {
		bucket = ctx.State.Outputs.Bucket
	}
	key := path.Join(ctx.Config.Storage.Prefix, "images", name)

	exists, err := ctx.Store.ObjectExists(ctx, bucket, key)
	if err != nil {
		return "", fmt.Errorf("failed to check for stored image: %w", err)
	}
	if !exists {
		return "", fmt.Errorf("image %s not found on build host or in s3://%s/%s", name, bucket, key)
	}

	// Spooled through a local file on both legs; images do not fit in
	// memory.
	ctx.Observer.Printf("Fetching %s from s3://%s/%s", name, bucket, key)
	spool, err := os.CreateTemp(ctx.Config.WorkDir, "metalbuild-spool-*")
	if err != nil {
		return "", fmt.Errorf("failed to create spool file: %w", err)
	}
	spoolPath := spool.Name()
	_ = spool.Close()
	defer func() { _ = os.Remove(spoolPath) }()

	if err := ctx.Store.DownloadToFile(ctx, bucket, key, spoolPath); err != nil {
		return "", fmt.Errorf("failed to fetch stored image: %w", err)
	}
	if _, err := comm.Execute(ctx, fmt.Sprintf("mkdir -p %s", ctx.State.RemoteOutputDir)); err != nil {
		return "", fmt.Errorf("failed to prepare output directory: %w", err)
	}
	if err := comm.UploadFile(ctx, remotePath, spoolPath, 0o644); err != nil {
		return "", fmt.Errorf("failed to stage image on build host: %w", err)
	}
	return remotePath, nil
}

// seedMaterial produces the guest login credential and the NoCloud seed
// image carrying it. A run that skipped the build stage has no
// credential in state, so a fresh one is minted here.
func (p *Provisioner) seedMaterial(ctx *provisioning.Context) (string, []byte, error) {
	credential := ctx.State.BuildCredential
	if credential == "" {
		var err error
		credential, err = packerconf.NewBuildCredential()
		if err != nil {
			return "", nil, err
		}
		ctx.State.BuildCredential = credential
	}

	rendered, err := packerconf.Render(packerconf.Params{
		ImageName:         ctx.Config.ImageName,
		KubernetesVersion: ctx.Config.Versions.Kubernetes,
		ContainerdVersion: ctx.Config.Versions.Containerd,
		CNIVersion:        ctx.Config.Versions.CNIPlugins,
		CrictlVersion:     ctx.Config.Versions.Crictl,
		OutputDir:         ctx.State.RemoteOutputDir,
		InstanceID:        "iid-metalbuild-test-" + ctx.State.RunID,
		Hostname:          ctx.Config.ImageName + "-test",
		BaseImageURL:      ctx.Config.BaseImage.URL,
		BaseImageChecksum: ctx.Config.BaseImage.Checksum,
		BuildPassword:     credential,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to render seed configuration: %w", err)
	}

	dir := ctx.Config.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}
	isoPath := filepath.Join(dir, fmt.Sprintf("seed-%s.iso", ctx.State.RunID))
	if err := seedimage.Write(isoPath, rendered.MetaData, rendered.UserData); err != nil {
		return "", nil, fmt.Errorf("failed to build seed image: %w", err)
	}
	defer os.Remove(isoPath)

	seed, err := os.ReadFile(isoPath)
	if err != nil {
		return "", nil, err
	}
	return credential, seed, nil
}

// runChecklist waits for the guest and executes the probes in order.
// When boot never completes, the boot entry fails and every dependent
// probe is recorded as skipped rather than failed.
func (p *Provisioner) runChecklist(ctx *provisioning.Context, guest *vm, credential string) []provisioning.ProbeResult {
	var results []provisioning.ProbeResult

	if err := guest.WaitForSSH(ctx, p.BootAttempts, p.BootInterval); err != nil {
		results = append(results, provisioning.ProbeResult{
			Name:    "boot",
			Outcome: provisioning.OutcomeFail,
			Detail:  err.Error(),
		})
		for _, probe := range defaultProbes() {
			results = append(results, provisioning.ProbeResult{
				Name:    probe.Name,
				Outcome: provisioning.OutcomeSkip,
				Detail:  "guest did not boot",
			})
		}
		return results
	}
	results = append(results, provisioning.ProbeResult{Name: "boot", Outcome: provisioning.OutcomePass})

	for _, probe := range defaultProbes() {
		out, err := guest.RunGuest(ctx, credential, probe.Command)
		result := provisioning.ProbeResult{Name: probe.Name, Detail: firstLine(out)}
		switch {
		case err == nil:
			result.Outcome = provisioning.OutcomePass
		case probe.WarnOnly:
			result.Outcome = provisioning.OutcomeWarn
			result.Detail = err.Error()
		default:
			result.Outcome = provisioning.OutcomeFail
			result.Detail = err.Error()
		}
		results = append(results, result)
	}
	return results
}

// CleanupStrays removes any validation guests and their disks left on
// the build host by earlier interrupted runs.
func CleanupStrays(ctx *provisioning.Context) error {
	if ctx.State.Outputs == nil || ctx.State.Outputs.BuildHostIP == "" {
		return fmt.Errorf("no build host address available (was infrastructure provisioned?)")
	}
	comm, err := ctx.Comm(ctx.State.Outputs.BuildHostIP)
	if err != nil {
		return fmt.Errorf("failed to reach build host: %w", err)
	}

	pattern := path.Join(ctx.State.RemoteBuildDir, "validate-*")
	cmd := fmt.Sprintf(
		"for p in %s.pid; do test -f $p && sudo kill $(cat $p) || true; done; sudo rm -f %s",
		pattern, pattern)
	if _, err := comm.Execute(ctx, cmd); err != nil {
		return fmt.Errorf("failed to clean up validation guests: %w", err)
	}
	ctx.Observer.Printf("Removed validation guests matching %s", pattern)
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
