package s3

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI implements API in memory.
type fakeAPI struct {
	objects  map[string][]byte
	taggings map[string]string
	parts    map[string]map[int32][]byte // upload id -> part number -> data
	putErr   error
	headErr  error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		objects:  map[string][]byte{},
		taggings: map[string]string{},
		parts:    map[string]map[int32][]byte{},
	}
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = data
	if in.Tagging != nil {
		f.taggings[*in.Key] = *in.Tagging
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	id := *in.Key + "#upload"
	f.parts[id] = map[int32][]byte{}
	if in.Tagging != nil {
		f.taggings[*in.Key] = *in.Tagging
	}
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (f *fakeAPI) UploadPart(_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.parts[*in.UploadId][*in.PartNumber] = data
	return &s3.UploadPartOutput{ETag: aws.String("etag")}, nil
}

func (f *fakeAPI) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	var assembled []byte
	for n := int32(1); ; n++ {
		part, ok := f.parts[*in.UploadId][n]
		if !ok {
			break
		}
		assembled = append(assembled, part...)
	}
	f.objects[*in.Key] = assembled
	delete(f.parts, *in.UploadId)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeAPI) AbortMultipartUpload(_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	delete(f.parts, *in.UploadId)
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (f *fakeAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	return out, nil
}

func (f *fakeAPI) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestPutAndGetObject(t *testing.T) {
	api := newFakeAPI()
	client := NewClientWithAPI(api, "eu-central-1")
	ctx := context.Background()

	require.NoError(t, client.PutObject(ctx, "bucket", "images/test.qcow2", []byte("disk-bytes"), "20260829T120000Z"))
	assert.Equal(t, "build-timestamp=20260829T120000Z", api.taggings["images/test.qcow2"])

	data, err := client.GetObject(ctx, "bucket", "images/test.qcow2")
	require.NoError(t, err)
	assert.Equal(t, []byte("disk-bytes"), data)
}

func TestUploadFile_TagsBuildTimestamp(t *testing.T) {
	api := newFakeAPI()
	client := NewClientWithAPI(api, "eu-central-1")

	path := filepath.Join(t.TempDir(), "node.qcow2")
	require.NoError(t, os.WriteFile(path, []byte("image"), 0o600))

	err := client.UploadFile(context.Background(), "bucket", "images/node.qcow2", path, "20260829T120000Z")
	require.NoError(t, err)

	assert.Equal(t, []byte("image"), api.objects["images/node.qcow2"])
	assert.Equal(t, "build-timestamp=20260829T120000Z", api.taggings["images/node.qcow2"])
}

func TestUploadFile_MissingLocalFile(t *testing.T) {
	client := NewClientWithAPI(newFakeAPI(), "eu-central-1")

	err := client.UploadFile(context.Background(), "bucket", "k", filepath.Join(t.TempDir(), "absent"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open")
}

func TestDownloadToFile(t *testing.T) {
	api := newFakeAPI()
	api.objects["images/node.qcow2"] = []byte("disk-bytes")
	client := NewClientWithAPI(api, "eu-central-1")

	path := filepath.Join(t.TempDir(), "node.qcow2")
	require.NoError(t, client.DownloadToFile(context.Background(), "bucket", "images/node.qcow2", path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("disk-bytes"), data)
}

func TestDownloadToFile_MissingObject(t *testing.T) {
	client := NewClientWithAPI(newFakeAPI(), "eu-central-1")

	err := client.DownloadToFile(context.Background(), "bucket", "absent", filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)
}

func TestObjectExists(t *testing.T) {
	api := newFakeAPI()
	api.objects["images/present.raw"] = []byte("x")
	client := NewClientWithAPI(api, "eu-central-1")
	ctx := context.Background()

	ok, err := client.ObjectExists(ctx, "bucket", "images/present.raw")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.ObjectExists(ctx, "bucket", "images/absent.raw")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestObjectExists_NonNotFoundErrorSurfaces(t *testing.T) {
	api := newFakeAPI()
	api.headErr = errors.New("access denied")
	client := NewClientWithAPI(api, "eu-central-1")

	_, err := client.ObjectExists(context.Background(), "bucket", "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestEmptyBucket(t *testing.T) {
	api := newFakeAPI()
	api.objects["images/a.qcow2"] = []byte("a")
	api.objects["pxe/vmlinuz"] = []byte("b")
	client := NewClientWithAPI(api, "eu-central-1")

	require.NoError(t, client.EmptyBucket(context.Background(), "bucket"))
	assert.Empty(t, api.objects)
}
