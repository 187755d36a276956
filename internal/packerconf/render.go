// Package packerconf renders the Packer build configuration and its
// companion NoCloud seed files from typed parameters. Rendering is pure
// string templating over a struct; nothing here touches the network or
// the remote host.
package packerconf

import (
	"bytes"
	"fmt"
	"text/template"
)

// Params are the values substituted into the templates. All fields are
// fixed before rendering starts; a rendered set is immutable for the run.
type Params struct {
	ImageName         string
	KubernetesVersion string
	ContainerdVersion string
	CNIVersion        string
	CrictlVersion     string
	OutputDir         string
	InstanceID        string
	Hostname          string

	// BaseImageURL is the cloud image the build boots from: a ready-made
	// disk image with cloud-init, not an installer ISO. BaseImageChecksum
	// is any checksum form the build tool accepts, including a
	// "file:<url>" reference to a published checksum list.
	BaseImageURL      string
	BaseImageChecksum string

	// BuildPassword is the per-run provisioning credential. Generated
	// fresh for every invocation and never written outside the run's
	// working directory.
	BuildPassword string
}

// Rendered holds the three files the build tool consumes.
type Rendered struct {
	BuildConfig []byte // Packer HCL configuration
	MetaData    []byte // NoCloud instance metadata
	UserData    []byte // NoCloud user-supplied configuration
}

const buildConfigTemplate = `packer {
  required_plugins {
    qemu = {
      source  = "github.com/hashicorp/qemu"
      version = ">= 1.1.0"
    }
  }
}

variable "kubernetes_version" {
  type    = string
  default = "{{ .KubernetesVersion }}"
}

variable "containerd_version" {
  type    = string
  default = "{{ .ContainerdVersion }}"
}

variable "cni_version" {
  type    = string
  default = "{{ .CNIVersion }}"
}

variable "crictl_version" {
  type    = string
  default = "{{ .CrictlVersion }}"
}

source "qemu" "{{ .ImageName }}" {
  iso_url      = "{{ .BaseImageURL }}"
  iso_checksum = "{{ .BaseImageChecksum }}"
  disk_image   = true
  disk_size    = "16G"

  vm_name          = "{{ .ImageName }}.raw"
  format           = "raw"
  output_directory = "{{ .OutputDir }}"

  qemu_binary  = "qemu-system-aarch64"
  machine_type = "virt"
  accelerator  = "kvm"
  cpu_model    = "host"
  cpus         = 2
  memory       = 4096
  firmware     = "/usr/share/AAVMF/AAVMF_CODE.fd"
  headless     = true

  cd_files         = ["meta-data", "user-data"]
  cd_label         = "cidata"
  ssh_username     = "builder"
  ssh_password     = "{{ .BuildPassword }}"
  ssh_timeout      = "20m"
  shutdown_command = "sudo shutdown -P now"
}

build {
  sources = ["source.qemu.{{ .ImageName }}"]

  provisioner "shell" {
    environment_vars = [
      "KUBERNETES_VERSION=${var.kubernetes_version}",
      "CONTAINERD_VERSION=${var.containerd_version}",
      "CNI_VERSION=${var.cni_version}",
      "CRICTL_VERSION=${var.crictl_version}",
    ]
    script = "scripts/install-kubernetes.sh"
  }

  post-processor "manifest" {
    output = "{{ .OutputDir }}/manifest.json"
  }
}
`

const metaDataTemplate = `instance-id: {{ .InstanceID }}
local-hostname: {{ .Hostname }}
`

const userDataTemplate = `#cloud-config
hostname: {{ .Hostname }}
users:
  - name: builder
    groups: [sudo]
    shell: /bin/bash
    sudo: "ALL=(ALL) NOPASSWD:ALL"
    lock_passwd: false
    plain_text_passwd: "{{ .BuildPassword }}"
ssh_pwauth: true
package_update: true
`

// Render substitutes params into all three templates.
func Render(params Params) (*Rendered, error) {
	if params.ImageName == "" {
		return nil, fmt.Errorf("image name is required")
	}
	if params.BuildPassword == "" {
		return nil, fmt.Errorf("build password is required")
	}
	if params.BaseImageURL == "" {
		return nil, fmt.Errorf("base image URL is required")
	}
	if params.BaseImageChecksum == "" {
		return nil, fmt.Errorf("base image checksum is required")
	}

	buildConfig, err := render("build-config", buildConfigTemplate, params)
	if err != nil {
		return nil, err
	}
	metaData, err := render("meta-data", metaDataTemplate, params)
	if err != nil {
		return nil, err
	}
	userData, err := render("user-data", userDataTemplate, params)
	if err != nil {
		return nil, err
	}

	return &Rendered{
		BuildConfig: buildConfig,
		MetaData:    metaData,
		UserData:    userData,
	}, nil
}

func render(name, text string, params Params) ([]byte, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
