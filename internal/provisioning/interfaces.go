package provisioning

import (
	"context"

	"github.com/metalbuild/metalbuild/internal/platform/ssh"
	"github.com/metalbuild/metalbuild/internal/platform/terraform"
)

// Phase is a single pipeline stage.
type Phase interface {
	// Name returns a short identifier used in logs.
	Name() string

	// Provision executes the stage against the shared context.
	Provision(ctx *Context) error
}

// InfraManager abstracts the terraform client for stages and tests.
type InfraManager interface {
	Init(ctx context.Context) error
	Apply(ctx context.Context, vars map[string]string) error
	Outputs(ctx context.Context) (*terraform.Outputs, error)
	DestroyAll(ctx context.Context, vars map[string]string) error
	DestroyCompute(ctx context.Context, vars map[string]string) error
}

// ObjectStore abstracts the S3 client for stages and tests. Image
// payloads go through UploadFile and DownloadToFile, which stream;
// PutObject is for small metadata objects only.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, data []byte, buildTimestamp string) error
	UploadFile(ctx context.Context, bucket, key, path, buildTimestamp string) error
	DownloadToFile(ctx context.Context, bucket, key, path string) error
	ObjectExists(ctx context.Context, bucket, key string) (bool, error)
	EmptyBucket(ctx context.Context, bucket string) error
}

// CommunicatorFactory opens an authenticated channel to a host.
type CommunicatorFactory func(host string) (ssh.Communicator, error)
