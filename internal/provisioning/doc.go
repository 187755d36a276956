// Package provisioning defines the stage pipeline the metalbuild driver
// sequences: infrastructure, remote build, artifact upload, validation,
// and teardown. Each stage implements the Phase interface and runs
// strictly after the previous one; shared results flow through State,
// which is progressively populated and never written concurrently.
package provisioning
