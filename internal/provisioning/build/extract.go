package build

import (
	"context"
	"fmt"
	"strings"

	"github.com/metalbuild/metalbuild/internal/platform/ssh"
	"github.com/metalbuild/metalbuild/internal/provisioning"
)

const mountPoint = "/mnt/metalbuild"

// ExtractBootFiles attaches the raw image as a loop device, copies the
// kernel and initial ramdisk out of its boot partition into pxeDir, and
// detaches again. Detach runs on every exit path: a leaked loop mount
// would poison the next run on the same host.
func ExtractBootFiles(ctx context.Context, comm ssh.Communicator, obs provisioning.Observer, image, pxeDir string) (err error) {
	out, err := comm.Execute(ctx, fmt.Sprintf("sudo losetup --show -Pf %s", image))
	if err != nil {
		return fmt.Errorf("failed to attach %s as loop device: %w", image, err)
	}
	loopDev := strings.TrimSpace(out)
	if loopDev == "" {
		return fmt.Errorf("losetup returned no device for %s", image)
	}

	mountCmd := fmt.Sprintf("sudo mkdir -p %s && sudo mount -o ro %sp1 %s", mountPoint, loopDev, mountPoint)
	if _, err := comm.Execute(ctx, mountCmd); err != nil {
		// The loop device is already attached; release it before bailing.
		if _, derr := comm.Execute(ctx, fmt.Sprintf("sudo losetup -d %s", loopDev)); derr != nil {
			obs.Warnf("failed to detach loop device %s: %v", loopDev, derr)
		}
		return fmt.Errorf("failed to mount %sp1: %w", loopDev, err)
	}

	defer func() {
		cleanup := fmt.Sprintf("sudo umount %s && sudo losetup -d %s", mountPoint, loopDev)
		if _, cerr := comm.Execute(ctx, cleanup); cerr != nil {
			obs.Warnf("failed to unmount %s: %v", mountPoint, cerr)
			if err == nil {
				err = fmt.Errorf("failed to unmount %s: %w", mountPoint, cerr)
			}
		}
	}()

	copyCmd := fmt.Sprintf(
		"mkdir -p %s && sudo cp %s/boot/vmlinuz-* %s/boot/initrd.img-* %s && sudo chown -R $(id -u):$(id -g) %s",
		pxeDir, mountPoint, mountPoint, pxeDir, pxeDir)
	if _, err := comm.Execute(ctx, copyCmd); err != nil {
		return fmt.Errorf("failed to copy boot files: %w", err)
	}

	return nil
}
