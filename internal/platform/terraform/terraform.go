// Package terraform wraps the terraform binary for provisioning and tearing
// down the build infrastructure. The declarative diff/apply semantics stay
// with terraform itself; this package only constructs invocations, parses
// outputs, and enforces the one teardown policy the pipeline owns: compute
// teardown must never touch the artifact bucket or IAM/network resources.
package terraform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// ErrNoOutputs is returned by Outputs when no state with outputs exists,
// typically because provisioning never ran in this working directory.
var ErrNoOutputs = errors.New("no terraform outputs found (has infrastructure been provisioned?)")

// computeTargets are the resource addresses removed by compute-only
// teardown. The bucket, IAM roles and security groups are deliberately
// absent: destroying them requires the explicit destroy-all operation.
var computeTargets = []string{
	"aws_instance.build_host",
	"aws_instance.test_host",
	"aws_instance.pxe_server",
}

// Runner executes the terraform binary. Production use goes through
// ExecRunner; tests substitute a recorder.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecRunner runs terraform via os/exec.
type ExecRunner struct{}

// Run executes terraform with -chdir and returns stdout. Stderr is folded
// into the returned error so the failing tool's own diagnostics surface.
func (ExecRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	full := append([]string{"-chdir=" + dir}, args...)
	// #nosec G204 - arguments are constructed from internal config, not user input
	cmd := exec.CommandContext(ctx, "terraform", full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("terraform %s failed: %w\n%s",
			strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

// Outputs holds the named values the infrastructure exposes after apply.
type Outputs struct {
	BuildHostIP string
	TestHostIP  string
	PXEServerIP string
	Bucket      string
	SSHKeyPath  string
}

// Client drives terraform for a single working directory.
type Client struct {
	dir    string
	runner Runner
}

// New creates a Client using the real terraform binary.
func New(dir string) *Client {
	return &Client{dir: dir, runner: ExecRunner{}}
}

// NewWithRunner creates a Client with a custom Runner. Used in tests.
func NewWithRunner(dir string, r Runner) *Client {
	return &Client{dir: dir, runner: r}
}

// Init initializes the working directory.
func (c *Client) Init(ctx context.Context) error {
	_, err := c.runner.Run(ctx, c.dir, "init", "-input=false", "-no-color")
	return err
}

// Apply converges the infrastructure with the given variable bindings.
func (c *Client) Apply(ctx context.Context, vars map[string]string) error {
	args := append([]string{"apply", "-auto-approve", "-input=false", "-no-color"}, varArgs(vars)...)
	_, err := c.runner.Run(ctx, c.dir, args...)
	return err
}

// Outputs reads and parses `terraform output -json` from persisted state.
func (c *Client) Outputs(ctx context.Context) (*Outputs, error) {
	raw, err := c.runner.Run(ctx, c.dir, "output", "-json", "-no-color")
	if err != nil {
		if strings.Contains(err.Error(), "no state") || strings.Contains(err.Error(), "No outputs") {
			return nil, ErrNoOutputs
		}
		return nil, err
	}

	var parsed map[string]struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse terraform outputs: %w", err)
	}
	if len(parsed) == 0 {
		return nil, ErrNoOutputs
	}

	out := &Outputs{}
	fields := map[string]*string{
		"build_host_ip":   &out.BuildHostIP,
		"test_host_ip":    &out.TestHostIP,
		"pxe_server_ip":   &out.PXEServerIP,
		"artifact_bucket": &out.Bucket,
		"ssh_key_path":    &out.SSHKeyPath,
	}
	for name, dst := range fields {
		entry, ok := parsed[name]
		if !ok {
			continue
		}
		var v string
		if err := json.Unmarshal(entry.Value, &v); err != nil {
			return nil, fmt.Errorf("output %s is not a string: %w", name, err)
		}
		*dst = v
	}

	return out, nil
}

// DestroyAll removes every resource, including the artifact bucket.
func (c *Client) DestroyAll(ctx context.Context, vars map[string]string) error {
	args := append([]string{"destroy", "-auto-approve", "-input=false", "-no-color"}, varArgs(vars)...)
	_, err := c.runner.Run(ctx, c.dir, args...)
	return err
}

// DestroyCompute removes only the compute instances, leaving the bucket
// and IAM/network resources in place. This is a separate operation from
// DestroyAll so that data loss always requires an explicit choice.
func (c *Client) DestroyCompute(ctx context.Context, vars map[string]string) error {
	args := []string{"destroy", "-auto-approve", "-input=false", "-no-color"}
	for _, target := range computeTargets {
		args = append(args, "-target="+target)
	}
	args = append(args, varArgs(vars)...)
	_, err := c.runner.Run(ctx, c.dir, args...)
	return err
}

// varArgs renders variable bindings as -var flags in stable order.
func varArgs(vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, fmt.Sprintf("-var=%s=%s", k, vars[k]))
	}
	return args
}
