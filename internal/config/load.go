package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Environment variables consumed by Load. Flag values take precedence
// over these; these take precedence over the config file.
const (
	EnvKubernetesVersion = "METALBUILD_K8S_VERSION"
	EnvContainerdVersion = "METALBUILD_CONTAINERD_VERSION"
	EnvCNIVersion        = "METALBUILD_CNI_VERSION"
	EnvCrictlVersion     = "METALBUILD_CRICTL_VERSION"
	EnvBucket            = "METALBUILD_BUCKET"
	EnvPrefix            = "METALBUILD_PREFIX"
	EnvCredentialsFile   = "AWS_SHARED_CREDENTIALS_FILE"
)

// Load builds a Config from defaults, an optional YAML file, and the
// environment. path may be empty, in which case only defaults and
// environment apply. Validation is the caller's responsibility once
// flag overrides have been applied.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		// #nosec G304
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		var rawConfig map[string]interface{}
		if err := yaml.Unmarshal(data, &rawConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
		}

		if err := mapstructure.Decode(rawConfig, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}

	applyEnv(cfg)
	applyFallbacks(cfg)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ImageName:    DefaultImageName,
		TerraformDir: DefaultTerraformDir,
		SSH:          SSH{User: DefaultSSHUser},
		Versions: Versions{
			Kubernetes: DefaultKubernetesVersion,
			Containerd: DefaultContainerdVersion,
			CNIPlugins: DefaultCNIVersion,
			Crictl:     DefaultCrictlVersion,
		},
		Instances: Instances{BuildHost: true},
		Storage:   Storage{Prefix: DefaultPrefix},
		BaseImage: BaseImage{
			URL:      DefaultBaseImageURL,
			Checksum: DefaultBaseImageChecksum,
		},
	}
}

func applyEnv(cfg *Config) {
	setIfEnv(&cfg.Versions.Kubernetes, EnvKubernetesVersion)
	setIfEnv(&cfg.Versions.Containerd, EnvContainerdVersion)
	setIfEnv(&cfg.Versions.CNIPlugins, EnvCNIVersion)
	setIfEnv(&cfg.Versions.Crictl, EnvCrictlVersion)
	setIfEnv(&cfg.Storage.Bucket, EnvBucket)
	setIfEnv(&cfg.Storage.Prefix, EnvPrefix)
	setIfEnv(&cfg.CredentialsFile, EnvCredentialsFile)
}

func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// applyFallbacks fills fields a sparse config file may have cleared.
func applyFallbacks(cfg *Config) {
	if cfg.ImageName == "" {
		cfg.ImageName = DefaultImageName
	}
	if cfg.TerraformDir == "" {
		cfg.TerraformDir = DefaultTerraformDir
	}
	if cfg.SSH.User == "" {
		cfg.SSH.User = DefaultSSHUser
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = DefaultPrefix
	}
	if cfg.BaseImage.URL == "" {
		cfg.BaseImage.URL = DefaultBaseImageURL
	}
	if cfg.BaseImage.Checksum == "" {
		cfg.BaseImage.Checksum = DefaultBaseImageChecksum
	}
}
