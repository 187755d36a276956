package seedimage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kdomanski/iso9660"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite_ProducesReadableISO(t *testing.T) {
	imagePath := filepath.Join(t.TempDir(), "seed.iso")
	metaData := []byte("instance-id: iid-test\n")
	userData := []byte("#cloud-config\nhostname: probe\n")

	require.NoError(t, Write(imagePath, metaData, userData))

	f, err := os.Open(imagePath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	img, err := iso9660.OpenImage(f)
	require.NoError(t, err)

	root, err := img.RootDir()
	require.NoError(t, err)
	children, err := root.GetChildren()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, c := range children {
		names[c.Name()] = true
	}
	assert.True(t, names["meta-data"], "meta-data missing from image: %v", names)
	assert.True(t, names["user-data"], "user-data missing from image: %v", names)
}

func TestWrite_CreatesParentDir(t *testing.T) {
	imagePath := filepath.Join(t.TempDir(), "nested", "dir", "seed.iso")
	require.NoError(t, Write(imagePath, []byte("a"), []byte("b")))

	_, err := os.Stat(imagePath)
	assert.NoError(t, err)
}
