// Package main is the entry point for the metalbuild CLI.
//
// metalbuild builds Kubernetes node images on transient AWS
// infrastructure: it provisions an ARM64 build host with terraform,
// runs a packer/QEMU image build over SSH, converts and uploads the
// artifacts to S3, boot-tests the result in a disposable VM, and tears
// the infrastructure down again.
//
// Commands: run, infra, build, upload, test, destroy.
//
// For detailed usage information, run:
//
//	metalbuild --help
package main

import (
	"fmt"
	"os"

	"github.com/metalbuild/metalbuild/cmd/metalbuild/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
