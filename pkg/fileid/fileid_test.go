package fileid

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileID_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		service string
		account string
		folder  string
		file    string
	}{
		{
			name:    "plain segments",
			service: "infostore",
			account: "infostore",
			folder:  "1337",
			file:    "4711",
		},
		{
			name:    "segments with slashes",
			service: "s3",
			account: "archive",
			folder:  "projects/2026/q3",
			file:    "reports/summary.pdf",
		},
		{
			name:    "segments with delimiters and spaces",
			service: "gdrive",
			account: "team drive",
			folder:  "a://b",
			file:    "weird:name?.txt",
		},
		{
			name:    "unicode segments",
			service: "infostore",
			account: "infostore",
			folder:  "Ablage",
			file:    "Bericht Häuser.docx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := NewFileID(tt.service, tt.account, tt.folder, tt.file)
			encoded := id.String()

			parsed, err := ParseFileID(encoded)
			require.NoError(t, err)
			assert.True(t, parsed.Equal(id))
			assert.Equal(t, encoded, parsed.String())

			assert.Equal(t, tt.service, parsed.Service())
			assert.Equal(t, tt.account, parsed.Account())
			assert.Equal(t, tt.folder, parsed.Folder())
			assert.Equal(t, tt.file, parsed.File())
		})
	}
}

func TestParseFileID_Relaxed(t *testing.T) {
	id, err := ParseFileID("1337/4711")
	require.NoError(t, err)

	assert.Equal(t, DefaultService, id.Service())
	assert.Equal(t, DefaultAccount, id.Account())
	assert.Equal(t, "1337", id.Folder())
	assert.Equal(t, "4711", id.File())
}

func TestParseFileID_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no file segment", "justafolder"},
		{"empty service", "://acct/folder/file"},
		{"missing account", "svc:///folder/file"},
		{"trailing slash", "svc://acct/folder/"},
		{"bad escaping", "svc://acct/folder/%zz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFileID(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestFolderID_RoundTrip(t *testing.T) {
	id := NewFolderID("s3", "archive", "projects/2026")
	parsed, err := ParseFolderID(id.String())
	require.NoError(t, err)
	assert.True(t, parsed.Equal(id))

	relaxed, err := ParseFolderID("1337")
	require.NoError(t, err)
	assert.Equal(t, DefaultService, relaxed.Service())
	assert.Equal(t, "1337", relaxed.Folder())
}

func TestFileID_FolderID(t *testing.T) {
	id := NewFileID("s3", "archive", "projects", "a.txt")
	folder := id.FolderID()

	assert.Equal(t, "s3", folder.Service())
	assert.Equal(t, "archive", folder.Account())
	assert.Equal(t, "projects", folder.Folder())
	assert.True(t, folder.FileID("a.txt").Equal(id))
}

func TestFileID_SameAccount(t *testing.T) {
	a := NewFileID("s3", "archive", "x", "1")
	b := NewFileID("s3", "archive", "y", "2")
	c := NewFileID("s3", "backup", "x", "1")

	assert.True(t, a.SameAccount(b))
	assert.False(t, a.SameAccount(c))
}

func TestFileID_JSON(t *testing.T) {
	t.Run("round-trip", func(t *testing.T) {
		id := NewFileID("gdrive", "work", "folder id", "file id")

		data, err := json.Marshal(id)
		require.NoError(t, err)

		var decoded FileID
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.True(t, decoded.Equal(id))
	})

	t.Run("zero value marshals as empty string", func(t *testing.T) {
		data, err := json.Marshal(FileID{})
		require.NoError(t, err)
		assert.Equal(t, `""`, string(data))

		var decoded FileID
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.True(t, decoded.IsZero())
	})
}

func TestFolderID_JSON(t *testing.T) {
	id := NewFolderID("infostore", "infostore", "42")

	data, err := json.Marshal(id)
	require.NoError(t, err)

	var decoded FolderID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Equal(id))
}
