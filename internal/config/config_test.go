package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := defaults()
	cfg.Profile = "build"
	cfg.Region = "eu-central-1"
	cfg.Storage.Bucket = "metalbuild-artifacts"
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_MissingRequired(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing profile", func(c *Config) { c.Profile = "" }, "profile is required"},
		{"missing region", func(c *Config) { c.Region = "" }, "region is required"},
		{"missing k8s version", func(c *Config) { c.Versions.Kubernetes = "" }, "kubernetes version is required"},
		{"malformed version", func(c *Config) { c.Versions.Containerd = "latest" }, `invalid containerd version "latest"`},
		{"prefix with spaces", func(c *Config) { c.Storage.Prefix = "my prefix" }, "prefix must not contain spaces"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_EmptyBucketAllowed(t *testing.T) {
	// With no bucket configured the pipeline falls back to the bucket the
	// infrastructure stage provisions.
	cfg := validConfig()
	cfg.Storage.Bucket = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidate_AcceptsLeadingV(t *testing.T) {
	cfg := validConfig()
	cfg.Versions.Kubernetes = "v1.32.0"
	assert.NoError(t, cfg.Validate())
}

func TestImageVersion_StripsLeadingV(t *testing.T) {
	cfg := validConfig()
	cfg.Versions.Kubernetes = "v1.32.0"
	assert.Equal(t, "1.32.0", cfg.ImageVersion())

	cfg.Versions.Kubernetes = "1.31.4"
	assert.Equal(t, "1.31.4", cfg.ImageVersion())
}
