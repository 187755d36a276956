// Package s3 wraps the AWS S3 SDK for the pipeline's object-storage needs:
// uploading image artifacts and PXE boot files under fixed key prefixes,
// checking for pre-existing artifacts on validation-only runs, and
// emptying the bucket ahead of a full teardown.
package s3
