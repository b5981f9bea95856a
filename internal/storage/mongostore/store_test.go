package mongostore

import (
	"context"
	"errors"
	"testing"
	"time"

	"cav/asset-vault/internal/domain"

	"github.com/stretchr/testify/assert"
)

type fakeBlobStore struct {
	deleted []string
	failAll bool
}

func (f *fakeBlobStore) Put(context.Context, string, []byte, string) error { return nil }

func (f *fakeBlobStore) Get(context.Context, string) ([]byte, error) { return nil, nil }

func (f *fakeBlobStore) Delete(_ context.Context, objectKey string) error {
	if f.failAll {
		return errors.New("object store unavailable")
	}
	f.deleted = append(f.deleted, objectKey)
	return nil
}

func (f *fakeBlobStore) PresignUpload(context.Context, string, string, time.Duration) (string, error) {
	return "", nil
}

func (f *fakeBlobStore) PresignDownload(context.Context, string, time.Duration) (string, error) {
	return "", nil
}

func TestVideoObjectKey(t *testing.T) {
	assert.Equal(t, "video_blobs/alice_corp_com/a1", videoObjectKey("alice_corp_com", "a1"))
}

func TestReleasePayloadDeletesOffloadedObject(t *testing.T) {
	f := &fakeBlobStore{}
	vb := domain.VideoBlob{AssetID: "a1", UserKey: "alice_corp_com", ObjectKey: videoObjectKey("alice_corp_com", "a1")}

	releasePayload(context.Background(), f, vb)

	assert.Equal(t, []string{"video_blobs/alice_corp_com/a1"}, f.deleted)
}

func TestReleasePayloadSkipsInlineBlobs(t *testing.T) {
	f := &fakeBlobStore{}

	releasePayload(context.Background(), f, domain.VideoBlob{AssetID: "a1", Data: "data:video/mp4;base64,AAAA"})
	assert.Empty(t, f.deleted)
}

func TestReleasePayloadWithoutObjectStore(t *testing.T) {
	// No object store configured means nothing was ever offloaded.
	releasePayload(context.Background(), nil, domain.VideoBlob{AssetID: "a1", ObjectKey: "video_blobs/x/a1"})
}

func TestReleasePayloadToleratesStoreFailure(t *testing.T) {
	f := &fakeBlobStore{failAll: true}

	// Failures are logged, not propagated; the blob document delete that
	// follows must still run.
	releasePayload(context.Background(), f, domain.VideoBlob{AssetID: "a1", ObjectKey: "video_blobs/x/a1"})
	assert.Empty(t, f.deleted)
}
