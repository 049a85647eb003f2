package s3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trove-storage/trove/pkg/storage"
)

func TestCleanID(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain file", in: "projects/plan.txt", want: "projects/plan.txt"},
		{name: "root folder", in: ".", want: "."},
		{name: "leading slash", in: "/projects/plan.txt", want: "projects/plan.txt"},
		{name: "dot segments collapse", in: "projects/./plan.txt", want: "projects/plan.txt"},
		{name: "empty", in: "", wantErr: true},
		{name: "escape", in: "../secrets", wantErr: true},
		{name: "marker object", in: "projects/" + folderMarker, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cleanID("Test", tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, storage.ErrInvalidID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeyMapping(t *testing.T) {
	s := &Store{bucket: "trove", prefix: "accounts/work"}

	assert.Equal(t, "accounts/work/projects/plan.txt", s.objectKey("projects/plan.txt"))
	assert.Equal(t, "projects/plan.txt", s.fileID("accounts/work/projects/plan.txt"))

	assert.Equal(t, "accounts/work/", s.folderPrefix(RootFolder))
	assert.Equal(t, "accounts/work/projects/", s.folderPrefix("projects"))
	assert.Equal(t, "accounts/work/projects/"+folderMarker, s.markerKey("projects"))

	bare := &Store{bucket: "trove"}
	assert.Equal(t, "plan.txt", bare.objectKey("plan.txt"))
	assert.Equal(t, "", bare.folderPrefix(RootFolder))
}

func TestFolderOf(t *testing.T) {
	assert.Equal(t, "projects", folderOf("projects/plan.txt"))
	assert.Equal(t, RootFolder, folderOf("plan.txt"))
	assert.Equal(t, "projects/drafts", folderOf("projects/drafts/plan.txt"))
}

func TestCopySource(t *testing.T) {
	s := &Store{bucket: "trove"}

	assert.Equal(t, "trove/projects/plan.txt", s.copySource("projects/plan.txt", ""))
	assert.Equal(t, "trove/projects/plan.txt?versionId=abc123", s.copySource("projects/plan.txt", "abc123"))
	assert.Equal(t, "trove/projects/q1%20plan.txt", s.copySource("projects/q1 plan.txt", ""))
}

func TestObjectMetadataRoundTrip(t *testing.T) {
	in := &storage.File{
		Description:    "quarterly plan",
		Categories:     []string{"planning", "a, b"},
		CreatedBy:      "alice",
		ModifiedBy:     "bob",
		VersionComment: "initial",
	}
	meta, err := objectMetadata(in)
	require.NoError(t, err)

	var out storage.File
	applyMetadata(&out, meta)
	assert.Equal(t, in.Description, out.Description)
	assert.Equal(t, in.Categories, out.Categories)
	assert.Equal(t, in.CreatedBy, out.CreatedBy)
	assert.Equal(t, in.ModifiedBy, out.ModifiedBy)
	assert.Equal(t, in.VersionComment, out.VersionComment)
}

func TestObjectMetadataEmpty(t *testing.T) {
	meta, err := objectMetadata(&storage.File{})
	require.NoError(t, err)
	assert.Empty(t, meta)

	assert.Nil(t, decodeCategories(""))
	assert.Equal(t, []string{"plain"}, decodeCategories("plain"))
}

func TestSettingsValidation(t *testing.T) {
	s := &Settings{}
	require.Error(t, s.Validate())

	s = &Settings{Bucket: "trove"}
	require.Error(t, s.Validate())

	s = &Settings{Bucket: "trove", Region: "us-east-1"}
	require.NoError(t, s.Validate())

	s = &Settings{Bucket: "trove", Endpoint: "http://localhost:9000"}
	require.NoError(t, s.Validate())

	s.SetDefaults()
	assert.Equal(t, 30, s.RequestTimeoutSeconds)
	assert.Equal(t, "application/octet-stream", s.DefaultMimeType)
}
