package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metalbuild.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultKubernetesVersion, cfg.Versions.Kubernetes)
	assert.Equal(t, DefaultImageName, cfg.ImageName)
	assert.Equal(t, DefaultPrefix, cfg.Storage.Prefix)
	assert.Equal(t, DefaultBaseImageURL, cfg.BaseImage.URL)
	assert.Equal(t, DefaultBaseImageChecksum, cfg.BaseImage.Checksum)
	assert.True(t, cfg.Instances.BuildHost)
	assert.False(t, cfg.Instances.TestHost)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
profile: build
region: eu-central-1
versions:
  kubernetes: "1.32.1"
instances:
  test_host: true
storage:
  bucket: my-artifacts
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "build", cfg.Profile)
	assert.Equal(t, "1.32.1", cfg.Versions.Kubernetes)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultContainerdVersion, cfg.Versions.Containerd)
	assert.True(t, cfg.Instances.TestHost)
	assert.Equal(t, "my-artifacts", cfg.Storage.Bucket)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
versions:
  kubernetes: "1.32.1"
storage:
  bucket: file-bucket
`)

	t.Setenv(EnvKubernetesVersion, "1.33.0")
	t.Setenv(EnvBucket, "env-bucket")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "1.33.0", cfg.Versions.Kubernetes)
	assert.Equal(t, "env-bucket", cfg.Storage.Bucket)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "versions: [not a mapping")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal yaml")
}

func TestLoad_CredentialsFileFromEnv(t *testing.T) {
	t.Setenv(EnvCredentialsFile, "/home/ci/.aws/credentials")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/home/ci/.aws/credentials", cfg.CredentialsFile)
}
