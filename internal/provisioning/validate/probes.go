package validate

// Probe is one checklist entry executed inside the booted guest. A
// probe passes when its command exits zero. WarnOnly probes degrade a
// failure to a warning; they cover properties that vary by environment
// (nested KVM, optional tooling) rather than image defects.
type Probe struct {
	Name     string
	Command  string
	WarnOnly bool
}

// defaultProbes is the ordered acceptance checklist. cloud-init comes
// first: service states are not meaningful until first boot settles.
func defaultProbes() []Probe {
	return []Probe{
		{Name: "cloud-init", Command: "cloud-init status --wait"},
		{Name: "kvm-device", Command: "test -e /dev/kvm", WarnOnly: true},
		{Name: "swap-disabled", Command: `test -z "$(swapon --noheadings --show)"`},
		{Name: "br-netfilter", Command: "lsmod | grep -q br_netfilter", WarnOnly: true},
		{Name: "containerd-active", Command: "systemctl is-active containerd"},
		{Name: "kubelet-enabled", Command: "systemctl is-enabled kubelet"},
		{Name: "kubeadm", Command: "kubeadm version -o short"},
		{Name: "crictl", Command: "sudo crictl --runtime-endpoint unix:///run/containerd/containerd.sock version", WarnOnly: true},
	}
}
