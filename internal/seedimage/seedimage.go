// Package seedimage builds the NoCloud seed ISO consumed by the
// disposable validation VM. The image carries exactly two files,
// meta-data and user-data, under the cidata volume label cloud-init
// expects.
package seedimage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kdomanski/iso9660"
)

// VolumeLabel is the NoCloud datasource label.
const VolumeLabel = "cidata"

// Write creates a seed ISO at imagePath from the given seed files.
func Write(imagePath string, metaData, userData []byte) error {
	writer, err := iso9660.NewWriter()
	if err != nil {
		return fmt.Errorf("create iso writer: %w", err)
	}
	defer func() { _ = writer.Cleanup() }()

	if err := writer.AddFile(bytes.NewReader(metaData), "meta-data"); err != nil {
		return fmt.Errorf("stage meta-data: %w", err)
	}
	if err := writer.AddFile(bytes.NewReader(userData), "user-data"); err != nil {
		return fmt.Errorf("stage user-data: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(imagePath), 0o755); err != nil {
		return fmt.Errorf("ensure image directory: %w", err)
	}

	out, err := os.OpenFile(imagePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644) // #nosec G304 - path from run directory
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}

	if err := writer.WriteTo(out, VolumeLabel); err != nil {
		_ = out.Close()
		_ = os.Remove(imagePath)
		return fmt.Errorf("write iso: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(imagePath)
		return fmt.Errorf("finalize iso: %w", err)
	}
	return nil
}
