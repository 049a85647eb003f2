package s3

import (
	"context"
	"errors"
	"testing"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trove-storage/trove/pkg/storage"
)

// fakeClient implements Client with overridable behavior per call.
// Unset operations succeed with empty results.
type fakeClient struct {
	deleteObject       func(*awss3.DeleteObjectInput) (*awss3.DeleteObjectOutput, error)
	listObjectVersions func(*awss3.ListObjectVersionsInput) (*awss3.ListObjectVersionsOutput, error)

	deletedKeys []string
}

func (f *fakeClient) HeadBucket(context.Context, *awss3.HeadBucketInput, ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error) {
	return &awss3.HeadBucketOutput{}, nil
}

func (f *fakeClient) GetBucketVersioning(context.Context, *awss3.GetBucketVersioningInput, ...func(*awss3.Options)) (*awss3.GetBucketVersioningOutput, error) {
	return &awss3.GetBucketVersioningOutput{Status: types.BucketVersioningStatusEnabled}, nil
}

func (f *fakeClient) HeadObject(context.Context, *awss3.HeadObjectInput, ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error) {
	return &awss3.HeadObjectOutput{}, nil
}

func (f *fakeClient) GetObject(context.Context, *awss3.GetObjectInput, ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	return &awss3.GetObjectOutput{}, nil
}

func (f *fakeClient) PutObject(context.Context, *awss3.PutObjectInput, ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeClient) CopyObject(context.Context, *awss3.CopyObjectInput, ...func(*awss3.Options)) (*awss3.CopyObjectOutput, error) {
	return &awss3.CopyObjectOutput{}, nil
}

func (f *fakeClient) DeleteObject(_ context.Context, params *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	if f.deleteObject != nil {
		out, err := f.deleteObject(params)
		if err != nil {
			return out, err
		}
	}
	f.deletedKeys = append(f.deletedKeys, *params.Key)
	return &awss3.DeleteObjectOutput{}, nil
}

func (f *fakeClient) DeleteObjects(context.Context, *awss3.DeleteObjectsInput, ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error) {
	return &awss3.DeleteObjectsOutput{}, nil
}

func (f *fakeClient) ListObjectsV2(context.Context, *awss3.ListObjectsV2Input, ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	return &awss3.ListObjectsV2Output{}, nil
}

func (f *fakeClient) ListObjectVersions(_ context.Context, params *awss3.ListObjectVersionsInput, _ ...func(*awss3.Options)) (*awss3.ListObjectVersionsOutput, error) {
	if f.listObjectVersions != nil {
		return f.listObjectVersions(params)
	}
	return &awss3.ListObjectVersionsOutput{}, nil
}

var _ Client = (*fakeClient)(nil)

func newTestStore(t *testing.T, client Client, versioning bool) storage.FileAccess {
	t.Helper()

	settings := &Settings{Bucket: "docs", VersioningEnabled: versioning}
	settings.SetDefaults()
	store, err := NewStore(client, settings, "archive", nil)
	require.NoError(t, err)
	return store
}

func TestDelete_FailedObjectsReportedConflicting(t *testing.T) {
	client := &fakeClient{
		deleteObject: func(params *awss3.DeleteObjectInput) (*awss3.DeleteObjectOutput, error) {
			if *params.Key == "b.txt" {
				return nil, errors.New("access denied")
			}
			return &awss3.DeleteObjectOutput{}, nil
		},
	}
	store := newTestStore(t, client, false)

	conflicting, err := store.Delete(context.Background(), []string{"a.txt", "b.txt", "c.txt"}, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"b.txt"}, conflicting)
	assert.Equal(t, []string{"a.txt", "c.txt"}, client.deletedKeys)
}

func TestDelete_MissingObjectNotConflicting(t *testing.T) {
	client := &fakeClient{
		deleteObject: func(*awss3.DeleteObjectInput) (*awss3.DeleteObjectOutput, error) {
			return nil, &types.NoSuchKey{}
		},
	}
	store := newTestStore(t, client, false)

	conflicting, err := store.Delete(context.Background(), []string{"gone.txt"}, false)
	require.NoError(t, err)
	assert.Empty(t, conflicting)
}

func TestDelete_PurgeFailureReportedConflicting(t *testing.T) {
	client := &fakeClient{
		listObjectVersions: func(*awss3.ListObjectVersionsInput) (*awss3.ListObjectVersionsOutput, error) {
			return nil, errors.New("listing unavailable")
		},
	}
	store := newTestStore(t, client, true)

	conflicting, err := store.Delete(context.Background(), []string{"report.txt"}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"report.txt"}, conflicting)
}
