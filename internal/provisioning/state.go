package provisioning

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/metalbuild/metalbuild/internal/platform/terraform"
)

// Outcome classifies a single validation probe.
type Outcome string

const (
	// OutcomePass means the probe succeeded.
	OutcomePass Outcome = "pass"
	// OutcomeFail means the probe failed; the whole run fails.
	OutcomeFail Outcome = "fail"
	// OutcomeWarn means a degraded but acceptable result.
	OutcomeWarn Outcome = "warn"
	// OutcomeSkip means the probe was not attempted because a
	// prerequisite probe failed. Skips are reported but not counted.
	OutcomeSkip Outcome = "skip"
)

// ProbeResult is one entry in the validation run's ordered sequence.
type ProbeResult struct {
	Name    string
	Outcome Outcome
	Detail  string
}

// ProbeSummary reduces the probe sequence to counts.
type ProbeSummary struct {
	Passed   int
	Failed   int
	Warnings int
}

// Summarize reduces a probe sequence. Skipped probes are not counted.
func Summarize(results []ProbeResult) ProbeSummary {
	var s ProbeSummary
	for _, r := range results {
		switch r.Outcome {
		case OutcomePass:
			s.Passed++
		case OutcomeFail:
			s.Failed++
		case OutcomeWarn:
			s.Warnings++
		case OutcomeSkip:
		}
	}
	return s
}

// String renders the fixed summary line.
func (s ProbeSummary) String() string {
	return fmt.Sprintf("%d passed, %d failed, %d warnings", s.Passed, s.Failed, s.Warnings)
}

// Ok reports whether the validation run is acceptable: fail if any probe
// failed, otherwise pass (possibly with warnings).
func (s ProbeSummary) Ok() bool {
	return s.Failed == 0
}

// State holds the shared results of pipeline stages. It is progressively
// populated as each stage completes and read by subsequent stages.
type State struct {
	// Run identity, fixed at construction.
	RunID          string
	BuildTimestamp string

	// Infrastructure results.
	Outputs *terraform.Outputs

	// Build results.
	BuildCredential string // per-run provisioning credential
	RemoteBuildDir  string // working directory on the build host
	RemoteOutputDir string // artifact directory on the build host
	BuildLogPath    string // local copy of the build log

	// Validation results.
	ProbeResults []ProbeResult
}

// NewState creates a fresh state with run identity assigned.
func NewState() *State {
	return &State{
		RunID:           uuid.NewString()[:8],
		BuildTimestamp:  time.Now().UTC().Format("20060102T150405Z"),
		RemoteBuildDir:  "/home/ubuntu/metalbuild",
		RemoteOutputDir: "/home/ubuntu/metalbuild/output",
	}
}
