package build

import (
	"fmt"
	"path"

	"github.com/metalbuild/metalbuild/internal/platform/ssh"
	"github.com/metalbuild/metalbuild/internal/provisioning"
)

// convertFormats produces the three additional encodings. Each transcode
// reads the primary raw artifact directly, never another transcode, so
// format drift cannot compound.
func (p *Provisioner) convertFormats(ctx *provisioning.Context, comm ssh.Communicator) error {
	outputDir := ctx.State.RemoteOutputDir
	src := path.Join(outputDir, ctx.Config.ImageName+".raw")
	base := fmt.Sprintf("%s-%s", ctx.Config.ImageName, ctx.Config.ImageVersion())

	conversions := []struct {
		format string
		cmd    string
	}{
		{"qcow2", fmt.Sprintf("qemu-img convert -f raw -O qcow2 %s %s/%s.qcow2", src, outputDir, base)},
		{"vmdk", fmt.Sprintf("qemu-img convert -f raw -O vmdk -o subformat=streamOptimized %s %s/%s.vmdk", src, outputDir, base)},
	}
	for _, c := range conversions {
		ctx.Observer.Printf("Converting to %s...", c.format)
		if _, err := comm.Execute(ctx, c.cmd); err != nil {
			return fmt.Errorf("%s conversion failed: %w", c.format, err)
		}
	}

	if err := p.packageOVA(ctx, comm, outputDir, base); err != nil {
		return err
	}

	// Versioned name for the primary artifact; a rename, not a transcode.
	if _, err := comm.Execute(ctx, fmt.Sprintf("mv %s %s/%s.raw", src, outputDir, base)); err != nil {
		return fmt.Errorf("failed to finalize raw artifact: %w", err)
	}

	return nil
}

// packageOVA bundles the vmdk disk with a rendered OVF descriptor and a
// manifest of SHA256 content hashes into a single archive.
func (p *Provisioner) packageOVA(ctx *provisioning.Context, comm ssh.Communicator, outputDir, base string) error {
	descriptor, err := renderOVF(ctx.Config.ImageName, ctx.Config.ImageVersion(), base+".vmdk")
	if err != nil {
		return err
	}
	if err := comm.Upload(ctx, path.Join(outputDir, base+".ovf"), descriptor, 0o644); err != nil {
		return fmt.Errorf("failed to upload OVF descriptor: %w", err)
	}

	ctx.Observer.Printf("Packaging OVA...")
	cmd := fmt.Sprintf(
		"cd %s && sha256sum %s.ovf %s.vmdk | awk '{print \"SHA256(\"$2\")= \"$1}' > %s.mf && tar -cf %s.ova %s.ovf %s.mf %s.vmdk",
		outputDir, base, base, base, base, base, base, base)
	if _, err := comm.Execute(ctx, cmd); err != nil {
		return fmt.Errorf("OVA packaging failed: %w", err)
	}

	return nil
}
