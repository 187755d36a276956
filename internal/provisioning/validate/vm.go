package validate

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/metalbuild/metalbuild/internal/platform/ssh"
	"github.com/metalbuild/metalbuild/internal/util/retry"
)

const (
	guestSSHPort  = 2222
	guestMemoryMB = 4096
	guestUser     = "builder"
)

// vm is a disposable guest started on the build host for validation.
// All control happens over the host channel; the guest is reached
// through a loopback port forward.
type vm struct {
	comm    ssh.Communicator
	workDir string
	name    string
}

func newVM(comm ssh.Communicator, workDir, name string) *vm {
	return &vm{comm: comm, workDir: workDir, name: name}
}

func (v *vm) overlayPath() string { return path.Join(v.workDir, v.name+"-overlay.qcow2") }
func (v *vm) seedPath() string    { return path.Join(v.workDir, v.name+"-seed.iso") }
func (v *vm) pidfilePath() string { return path.Join(v.workDir, v.name+".pid") }

// Boot creates a copy-on-write overlay so the validated artifact is
// never written to, uploads the seed image, and starts the guest
// daemonized with SSH forwarded to the loopback port.
func (v *vm) Boot(ctx context.Context, baseImage string, seed []byte) error {
	overlayCmd := fmt.Sprintf("qemu-img create -f qcow2 -b %s -F qcow2 %s", baseImage, v.overlayPath())
	if _, err := v.comm.Execute(ctx, overlayCmd); err != nil {
		return fmt.Errorf("failed to create overlay disk: %w", err)
	}

	if err := v.comm.Upload(ctx, v.seedPath(), seed, 0o644); err != nil {
		return fmt.Errorf("failed to upload seed image: %w", err)
	}

	bootCmd := fmt.Sprintf(
		"sudo qemu-system-aarch64 -machine virt -cpu host -enable-kvm -m %d -smp 2 "+
			"-bios /usr/share/AAVMF/AAVMF_CODE.fd "+
			"-drive file=%s,format=qcow2,if=virtio "+
			"-cdrom %s "+
			"-netdev user,id=net0,hostfwd=tcp:127.0.0.1:%d-:22 -device virtio-net-pci,netdev=net0 "+
			"-display none -daemonize -pidfile %s",
		guestMemoryMB, v.overlayPath(), v.seedPath(), guestSSHPort, v.pidfilePath())
	if _, err := v.comm.Execute(ctx, bootCmd); err != nil {
		return fmt.Errorf("failed to start guest: %w", err)
	}

	return nil
}

// WaitForSSH polls the forwarded port until the guest accepts
// connections or the attempt budget is spent.
func (v *vm) WaitForSSH(ctx context.Context, attempts int, interval time.Duration) error {
	return retry.Poll(ctx, attempts, interval, func() error {
		_, err := v.comm.Execute(ctx, fmt.Sprintf("nc -z 127.0.0.1 %d", guestSSHPort))
		return err
	})
}

// RunGuest executes a command inside the guest through the port forward.
func (v *vm) RunGuest(ctx context.Context, credential, cmd string) (string, error) {
	guestCmd := fmt.Sprintf(
		"sshpass -p %s ssh -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null "+
			"-o ConnectTimeout=10 -p %d %s@127.0.0.1 %s",
		credential, guestSSHPort, guestUser, shellQuote(cmd))
	return v.comm.Execute(ctx, guestCmd)
}

// Destroy kills the guest and removes its disks. Best effort: a guest
// that already exited leaves only files to remove.
func (v *vm) Destroy(ctx context.Context) error {
	killCmd := fmt.Sprintf("test -f %s && sudo kill $(cat %s) || true", v.pidfilePath(), v.pidfilePath())
	if _, err := v.comm.Execute(ctx, killCmd); err != nil {
		return fmt.Errorf("failed to stop guest: %w", err)
	}
	rmCmd := fmt.Sprintf("sudo rm -f %s %s %s", v.overlayPath(), v.seedPath(), v.pidfilePath())
	if _, err := v.comm.Execute(ctx, rmCmd); err != nil {
		return fmt.Errorf("failed to remove guest files: %w", err)
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
