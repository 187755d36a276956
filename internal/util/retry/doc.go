// Package retry provides bounded retry and polling primitives for the
// workflow's suspension points.
//
// [WithExponentialBackoff] retries an operation with configurable max
// attempts, initial delay, and maximum delay; it backs the flaky spots
// (package installation on a freshly booted host). [Poll] is the
// fixed-interval variant used for SSH reachability, cloud-init
// completion, and VM boot waits. Both respect context cancellation and
// always have an attempt ceiling.
package retry
