package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := ObjectKey("applet-1", "user-1", "file-1", "voice.m4a")
	require.NoError(t, store.Upload(ctx, key, bytes.NewBufferString("audio"), "audio/mp4"))

	rc, err := store.Download(ctx, key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "audio", string(body))

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Download(ctx, key)
	assert.ErrorIs(t, err, ErrObjectNotFound)
	require.NoError(t, store.Delete(ctx, key))
}

func TestLocalStorageConfinesKeys(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	require.NoError(t, store.Upload(context.Background(), "../../escape.txt", bytes.NewBufferString("x"), ""))
	assert.Equal(t, dir+"/escape.txt", store.Path("../../escape.txt"))
}

func TestObjectKeySanitizesFilename(t *testing.T) {
	assert.Equal(t, "a/u/f/passwd", ObjectKey("a", "u", "f", "../../etc/passwd"))
	assert.Equal(t, "a/u/f/file", ObjectKey("a", "u", "f", "  "))
	assert.Equal(t, "a/u/f/scan.pdf", ObjectKey("a", "u", "f", `C:\Users\me\scan.pdf`))
}

func TestOpenRejectsUnknownType(t *testing.T) {
	_, err := Open(context.Background(), Spec{Type: "ftp"})
	require.Error(t, err)
}

func TestOpenValidatesProviderFields(t *testing.T) {
	_, err := Open(context.Background(), Spec{Type: TypeAWS, Bucket: "answers"})
	require.Error(t, err)
	_, err = Open(context.Background(), Spec{Type: TypeAzure})
	require.Error(t, err)
	_, err = Open(context.Background(), Spec{Type: TypeGCP})
	require.Error(t, err)
}

type s3Stub struct {
	objects map[string][]byte
	ctype   map[string]string
}

func (s *s3Stub) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	s.objects[aws.ToString(in.Key)] = body
	s.ctype[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (s *s3Stub) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := s.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (s *s3Stub) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(s.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StoreMapsMissingKey(t *testing.T) {
	stub := &s3Stub{objects: map[string][]byte{}, ctype: map[string]string{}}
	store := &S3Store{client: stub, bucket: "answers"}
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "a/u/f/photo.jpg", bytes.NewBufferString("jpeg"), "image/jpeg"))
	assert.Equal(t, "image/jpeg", stub.ctype["a/u/f/photo.jpg"])

	rc, err := store.Download(ctx, "a/u/f/photo.jpg")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "jpeg", string(body))

	require.NoError(t, store.Delete(ctx, "a/u/f/photo.jpg"))
	_, err = store.Download(ctx, "a/u/f/photo.jpg")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
