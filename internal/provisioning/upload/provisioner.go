// Package upload publishes the build artifacts to the object store:
// every produced image encoding under a fixed images/ prefix, the
// extracted boot files under pxe/, and the local build log. A missing
// artifact class is a warning, not a failure, so partial builds can
// still publish what they produced.
package upload

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/metalbuild/metalbuild/internal/platform/ssh"
	"github.com/metalbuild/metalbuild/internal/provisioning"
)

// artifactExts is the set of image encodings the build can produce.
var artifactExts = []string{".qcow2", ".raw", ".vmdk", ".ova"}

// Provisioner publishes artifacts from the build host to the store.
type Provisioner struct{}

// NewProvisioner creates the upload stage.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements provisioning.Phase.
func (p *Provisioner) Name() string { return "upload" }

// Provision lists the remote output directory and publishes each
// artifact class that is present.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	if ctx.State.Outputs == nil || ctx.State.Outputs.BuildHostIP == "" {
		return fmt.Errorf("no build host address available (was infrastructure provisioned?)")
	}
	bucket := p.bucket(ctx)
	if bucket == "" {
		return fmt.Errorf("no artifact bucket available")
	}

	comm, err := ctx.Comm(ctx.State.Outputs.BuildHostIP)
	if err != nil {
		return fmt.Errorf("failed to reach build host: %w", err)
	}

	if err := p.uploadImages(ctx, comm, bucket); err != nil {
		return err
	}
	if err := p.uploadBootFiles(ctx, comm, bucket); err != nil {
		return err
	}
	if err := p.uploadBuildLog(ctx, bucket); err != nil {
		return err
	}

	// The alias lets consumers resolve the newest image without listing.
	aliasKey := path.Join(ctx.Config.Storage.Prefix, "images", "latest")
	alias := fmt.Sprintf("%s-%s\n", ctx.Config.ImageName, ctx.Config.ImageVersion())
	if err := ctx.Store.PutObject(ctx, bucket, aliasKey, []byte(alias), ctx.State.BuildTimestamp); err != nil {
		return fmt.Errorf("failed to write latest alias: %w", err)
	}

	return nil
}

func (p *Provisioner) bucket(ctx *provisioning.Context) string {
	if ctx.Config.Storage.Bucket != "" {
		return ctx.Config.Storage.Bucket
	}
	return ctx.State.Outputs.Bucket
}

// uploadImages publishes each produced encoding under images/. Classes
// the build did not produce are reported and skipped.
func (p *Provisioner) uploadImages(ctx *provisioning.Context, comm ssh.Communicator, bucket string) error {
	files, err := listDir(ctx, comm, ctx.State.RemoteOutputDir)
	if err != nil {
		return fmt.Errorf("failed to list build output: %w", err)
	}

	for _, ext := range artifactExts {
		name := findByExt(files, ext)
		if name == "" {
			ctx.Observer.Warnf("no %s artifact found in %s; skipping", ext, ctx.State.RemoteOutputDir)
			continue
		}
		key := path.Join(ctx.Config.Storage.Prefix, "images", name)
		if err := p.transfer(ctx, comm, bucket, key, path.Join(ctx.State.RemoteOutputDir, name)); err != nil {
			return err
		}
	}
	return nil
}

// uploadBootFiles publishes the extracted kernel and initrd under pxe/.
func (p *Provisioner) uploadBootFiles(ctx *provisioning.Context, comm ssh.Communicator, bucket string) error {
	pxeDir := ctx.State.RemoteOutputDir + "/pxe"
	files, err := listDir(ctx, comm, pxeDir)
	if err != nil {
		return fmt.Errorf("failed to list boot files: %w", err)
	}
	if len(files) == 0 {
		ctx.Observer.Warnf("no boot files found in %s; skipping", pxeDir)
		return nil
	}

	for _, name := range files {
		key := path.Join(ctx.Config.Storage.Prefix, "pxe", name)
		if err := p.transfer(ctx, comm, bucket, key, path.Join(pxeDir, name)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provisioner) uploadBuildLog(ctx *provisioning.Context, bucket string) error {
	if ctx.State.BuildLogPath == "" {
		return nil
	}
	key := path.Join(ctx.Config.Storage.Prefix, "logs",
		fmt.Sprintf("build-%s.log", ctx.State.BuildTimestamp))
	if err := ctx.Store.UploadFile(ctx, bucket, key, ctx.State.BuildLogPath, ctx.State.BuildTimestamp); err != nil {
		return fmt.Errorf("failed to upload build log: %w", err)
	}
	ctx.Observer.Printf("Uploaded build log to s3://%s/%s", bucket, key)
	return nil
}

// transfer stages one remote file in a local spool file and streams it
// to the store. Disk images run to many gigabytes, so the payload is
// never held in memory on either leg.
func (p *Provisioner) transfer(ctx *provisioning.Context, comm ssh.Communicator, bucket, key, remotePath string) error {
	ctx.Observer.Printf("Uploading %s to s3://%s/%s", remotePath, bucket, key)

	spool, err := os.CreateTemp(ctx.Config.WorkDir, "metalbuild-spool-*")
	if err != nil {
		return fmt.Errorf("failed to create spool file: %w", err)
	}
	spoolPath := spool.Name()
	_ = spool.Close()
	defer func() { _ = os.Remove(spoolPath) }()

	if err := comm.DownloadFile(ctx, remotePath, spoolPath); err != nil {
		return fmt.Errorf("failed to fetch %s: %w", remotePath, err)
	}
	if err := ctx.Store.UploadFile(ctx, bucket, key, spoolPath, ctx.State.BuildTimestamp); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

func listDir(ctx *provisioning.Context, comm ssh.Communicator, dir string) ([]string, error) {
	out, err := comm.Execute(ctx, fmt.Sprintf("ls -1 %s 2>/dev/null || true", dir))
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && line != "pxe" {
			files = append(files, line)
		}
	}
	return files, nil
}

func findByExt(files []string, ext string) string {
	for _, f := range files {
		if strings.HasSuffix(f, ext) {
			return f
		}
	}
	return ""
}
