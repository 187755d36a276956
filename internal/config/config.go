// Package config defines the build pipeline configuration: AWS placement,
// component versions baked into the image, instance enable flags, and the
// object-storage layout. Values are resolved defaults-first, then YAML
// file, then environment, then CLI flags; the resulting struct is passed
// by value through every stage so no stage mutates shared state.
package config

import (
	"fmt"
	"regexp"
	"strings"
)

// Default component versions. Overridable per run via flags, environment,
// or the config file.
const (
	DefaultKubernetesVersion = "1.31.4"
	DefaultContainerdVersion = "1.7.24"
	DefaultCNIVersion        = "1.6.0"
	DefaultCrictlVersion     = "1.31.1"
)

// Defaults for paths and naming.
const (
	DefaultImageName    = "k8s-node"
	DefaultSSHUser      = "ubuntu"
	DefaultTerraformDir = "terraform"
	DefaultPrefix       = "metalbuild"
)

// Default base image the build boots from. The checksum is resolved from
// Canonical's published list at build time, so a newer image in the same
// release series never fails verification.
const (
	DefaultBaseImageURL      = "https://cloud-images.ubuntu.com/releases/noble/release/ubuntu-24.04-server-cloudimg-arm64.img"
	DefaultBaseImageChecksum = "file:https://cloud-images.ubuntu.com/releases/noble/release/SHA256SUMS"
)

// Versions holds the component versions substituted into the build
// configuration templates.
type Versions struct {
	Kubernetes string `yaml:"kubernetes" mapstructure:"kubernetes"`
	Containerd string `yaml:"containerd" mapstructure:"containerd"`
	CNIPlugins string `yaml:"cni_plugins" mapstructure:"cni_plugins"`
	Crictl     string `yaml:"crictl" mapstructure:"crictl"`
}

// Instances gates which compute instances the infrastructure layer
// provisions. The bucket and IAM/network resources are never gated.
type Instances struct {
	BuildHost bool `yaml:"build_host" mapstructure:"build_host"`
	TestHost  bool `yaml:"test_host" mapstructure:"test_host"`
	PXEServer bool `yaml:"pxe_server" mapstructure:"pxe_server"`
}

// Storage describes the S3 destination for produced artifacts. An empty
// Bucket means the terraform-generated bucket from the infrastructure
// outputs is used.
type Storage struct {
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
}

// BaseImage is the cloud image the build starts from.
type BaseImage struct {
	URL      string `yaml:"url" mapstructure:"url"`
	Checksum string `yaml:"checksum" mapstructure:"checksum"`
}

// SSH holds remote-access settings for the build host.
type SSH struct {
	User    string `yaml:"user" mapstructure:"user"`
	KeyPath string `yaml:"key_path" mapstructure:"key_path"`
}

// Config is the full pipeline configuration.
type Config struct {
	Profile         string    `yaml:"profile" mapstructure:"profile"`
	Region          string    `yaml:"region" mapstructure:"region"`
	ImageName       string    `yaml:"image_name" mapstructure:"image_name"`
	WorkDir         string    `yaml:"work_dir" mapstructure:"work_dir"`
	TerraformDir    string    `yaml:"terraform_dir" mapstructure:"terraform_dir"`
	CredentialsFile string    `yaml:"credentials_file" mapstructure:"credentials_file"`
	SSH             SSH       `yaml:"ssh" mapstructure:"ssh"`
	Versions        Versions  `yaml:"versions" mapstructure:"versions"`
	Instances       Instances `yaml:"instances" mapstructure:"instances"`
	Storage         Storage   `yaml:"storage" mapstructure:"storage"`
	BaseImage       BaseImage `yaml:"base_image" mapstructure:"base_image"`
}

// versionRe matches dotted numeric versions with an optional leading v.
var versionRe = regexp.MustCompile(`^v?\d+\.\d+(\.\d+)?$`)

// Validate checks that required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.Profile == "" {
		return fmt.Errorf("profile is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if strings.Contains(c.Storage.Prefix, " ") {
		return fmt.Errorf("storage prefix must not contain spaces")
	}

	versions := map[string]string{
		"kubernetes":  c.Versions.Kubernetes,
		"containerd":  c.Versions.Containerd,
		"cni_plugins": c.Versions.CNIPlugins,
		"crictl":      c.Versions.Crictl,
	}
	for name, v := range versions {
		if v == "" {
			return fmt.Errorf("%s version is required", name)
		}
		if !versionRe.MatchString(v) {
			return fmt.Errorf("invalid %s version %q", name, v)
		}
	}

	return nil
}

// ImageVersion returns the version string embedded in artifact names,
// which is the Kubernetes version without a leading v.
func (c *Config) ImageVersion() string {
	return strings.TrimPrefix(c.Versions.Kubernetes, "v")
}
