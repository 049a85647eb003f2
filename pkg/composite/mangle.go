package composite

import (
	"github.com/trove-storage/trove/pkg/fileid"
	"github.com/trove-storage/trove/pkg/storage"
)

// mangleFile rewrites backend-local identifiers into composite form for
// the response.
func mangleFile(f *storage.File, service, account string) *storage.File {
	out := f.Copy()
	out.ID = fileid.NewFileID(service, account, f.Folder, f.ID).String()
	out.Folder = fileid.NewFolderID(service, account, f.Folder).String()
	return out
}

func mangleFiles(files []*storage.File, service, account string) []*storage.File {
	out := make([]*storage.File, len(files))
	for i, f := range files {
		out[i] = mangleFile(f, service, account)
	}
	return out
}

// mangleFolder rewrites backend-local folder identifiers into composite
// form.
func mangleFolder(f *storage.Folder, service, account string) *storage.Folder {
	out := *f
	out.ID = fileid.NewFolderID(service, account, f.ID).String()
	if f.ParentID != "" {
		out.ParentID = fileid.NewFolderID(service, account, f.ParentID).String()
	}
	return &out
}

// demangleFile resolves a file whose ID and Folder fields carry
// composite strings back into backend-local form, returning the parsed
// composite file ID alongside.
func demangleFile(op string, f *storage.File) (fileid.FileID, *storage.File, error) {
	id, err := fileid.ParseFileID(f.ID)
	if err != nil {
		return fileid.FileID{}, nil, storage.NewErrorf(op, storage.ErrInvalidID, "%v", err)
	}
	local := f.Copy()
	local.ID = id.File()
	local.Folder = id.Folder()
	return id, local, nil
}
