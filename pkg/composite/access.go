// Package composite implements the federating file access façade. It
// accepts composite identifiers, resolves the backend responsible for
// them, checks capability support, brackets mutations in backend-local
// transactions and translates backend identifiers back into composite
// form on the way out.
package composite

import (
	"context"
	"io"

	"github.com/hashicorp/go-hclog"

	"github.com/trove-storage/trove/pkg/events"
	"github.com/trove-storage/trove/pkg/fileid"
	"github.com/trove-storage/trove/pkg/share"
	"github.com/trove-storage/trove/pkg/storage"
	"github.com/trove-storage/trove/pkg/storage/registry"
)

// Config configures the compositing file access.
type Config struct {
	// Registry resolves composite identifiers to backend handles.
	Registry *registry.Registry

	// Events receives a notification after every committed mutation.
	// Defaults to events.Discard.
	Events events.Publisher

	// Shares reconciles object permission changes on save. Optional.
	Shares *share.Helper

	// Logger defaults to a null logger.
	Logger hclog.Logger
}

// FileAccess is the uniform API over all configured storage backends.
type FileAccess struct {
	registry *registry.Registry
	events   events.Publisher
	shares   *share.Helper
	logger   hclog.Logger
}

// New creates a compositing file access over the given registry.
func New(cfg Config) *FileAccess {
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &FileAccess{
		registry: cfg.Registry,
		events:   cfg.Events,
		shares:   cfg.Shares,
		logger:   cfg.Logger.Named("composite-access"),
	}
}

// Registry exposes the underlying account registry.
func (a *FileAccess) Registry() *registry.Registry { return a.registry }

// Exists reports whether a file exists at an optional version.
func (a *FileAccess) Exists(ctx context.Context, id fileid.FileID, version string) (bool, error) {
	backend, err := a.registry.Resolve(ctx, id)
	if err != nil {
		return false, err
	}
	return backend.Exists(ctx, id.File(), version)
}

// GetMetadata retrieves file metadata at an optional version.
func (a *FileAccess) GetMetadata(ctx context.Context, id fileid.FileID, version string) (*storage.File, error) {
	backend, err := a.registry.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	file, err := backend.GetMetadata(ctx, id.File(), version)
	if err != nil {
		return nil, err
	}
	return mangleFile(file, id.Service(), id.Account()), nil
}

// GetDocument retrieves the content stream of a file. The caller must
// close the stream.
func (a *FileAccess) GetDocument(ctx context.Context, id fileid.FileID, version string) (io.ReadCloser, error) {
	backend, err := a.registry.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return backend.GetDocument(ctx, id.File(), version)
}

// ReadRange streams a byte range of a document from backends that
// support random access.
func (a *FileAccess) ReadRange(ctx context.Context, id fileid.FileID, version string, offset, length int64) (io.ReadCloser, error) {
	backend, err := a.registry.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	ranger, ok := backend.(storage.RangeAccess)
	if !ok {
		return nil, storage.NewError("ReadRange", storage.ErrNotSupported)
	}
	return ranger.ReadRange(ctx, id.File(), version, offset, length)
}

// ListFolder lists the files of a folder in the given order.
func (a *FileAccess) ListFolder(ctx context.Context, id fileid.FolderID, sort storage.SortField, order storage.SortOrder) ([]*storage.File, error) {
	backend, err := a.registry.ResolveFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	files, err := backend.ListFolder(ctx, id.Folder(), sort, order)
	if err != nil {
		return nil, err
	}
	return mangleFiles(files, id.Service(), id.Account()), nil
}

// GetFolder retrieves folder metadata.
func (a *FileAccess) GetFolder(ctx context.Context, id fileid.FolderID) (*storage.Folder, error) {
	backend, err := a.registry.ResolveFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	folder, err := backend.GetFolder(ctx, id.Folder())
	if err != nil {
		return nil, err
	}
	return mangleFolder(folder, id.Service(), id.Account()), nil
}

// ListSubfolders lists the direct subfolders of a folder.
func (a *FileAccess) ListSubfolders(ctx context.Context, id fileid.FolderID) ([]*storage.Folder, error) {
	backend, err := a.registry.ResolveFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	folders, err := backend.ListSubfolders(ctx, id.Folder())
	if err != nil {
		return nil, err
	}
	out := make([]*storage.Folder, len(folders))
	for i, f := range folders {
		out[i] = mangleFolder(f, id.Service(), id.Account())
	}
	return out, nil
}

// SequenceNumber returns the synchronization sequence number of a
// folder.
func (a *FileAccess) SequenceNumber(ctx context.Context, id fileid.FolderID) (int64, error) {
	backend, err := a.registry.ResolveFolder(ctx, id)
	if err != nil {
		return 0, err
	}
	return backend.SequenceNumber(ctx, id.Folder())
}

// Capabilities returns the capability set of the account owning the
// given folder.
func (a *FileAccess) Capabilities(ctx context.Context, id fileid.FolderID) (storage.Capability, error) {
	backend, err := a.registry.ResolveFolder(ctx, id)
	if err != nil {
		return 0, err
	}
	return storage.CapabilitiesOf(backend), nil
}

// post publishes an event, logging failures instead of surfacing them:
// the mutation has already committed.
func (a *FileAccess) post(ctx context.Context, event events.Event) {
	if err := a.events.Publish(ctx, event); err != nil {
		a.logger.Warn("failed to publish storage event",
			"type", event.Type,
			"file_id", event.FileID,
			"error", err)
	}
}
