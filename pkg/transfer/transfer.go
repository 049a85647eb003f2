// Package transfer moves whole folder trees between storage accounts.
// A transfer walks the source tree depth-first, recreates the folder
// structure at the destination and copies every file through the
// compositing layer, so cross-backend version replay and event
// publishing apply. Capability differences between the two accounts are
// reported as warnings; a dry run reports them without copying
// anything.
package transfer

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/trove-storage/trove/pkg/composite"
	"github.com/trove-storage/trove/pkg/fileid"
	"github.com/trove-storage/trove/pkg/storage"
)

// WarningCode classifies a transfer warning.
type WarningCode string

const (
	// WarnVersionsFlattened: the destination keeps no version history,
	// only the current version of a multi-version file travels.
	WarnVersionsFlattened WarningCode = "versions-flattened"

	// WarnNotesDropped: the destination cannot persist descriptions.
	WarnNotesDropped WarningCode = "notes-dropped"

	// WarnCategoriesDropped: the destination cannot persist categories.
	WarnCategoriesDropped WarningCode = "categories-dropped"

	// WarnPermissionsDropped: the destination cannot persist object
	// permissions; shares on the file will not follow it.
	WarnPermissionsDropped WarningCode = "permissions-dropped"
)

// Warning describes one lossy aspect of a transfer.
type Warning struct {
	Code    WarningCode
	File    fileid.FileID // zero value for folder-level warnings
	Message string
}

// Result is the outcome of transferring one folder, nested per
// subfolder. In a dry run the created identifiers stay zero.
type Result struct {
	Source     fileid.FolderID
	Target     fileid.FolderID
	Name       string
	Files      map[fileid.FileID]fileid.FileID
	Warnings   []Warning
	Subfolders []*Result
}

// FileCount returns the number of files transferred in this folder and
// all folders below it.
func (r *Result) FileCount() int {
	n := len(r.Files)
	for _, sub := range r.Subfolders {
		n += sub.FileCount()
	}
	return n
}

// AllWarnings flattens the warnings of the whole result tree.
func (r *Result) AllWarnings() []Warning {
	out := append([]Warning(nil), r.Warnings...)
	for _, sub := range r.Subfolders {
		out = append(out, sub.AllWarnings()...)
	}
	return out
}

// Options controls a transfer run.
type Options struct {
	// DryRun walks the tree and reports warnings without copying.
	DryRun bool

	// DeleteSource removes the source tree after a fully successful
	// transfer, turning the copy into a move.
	DeleteSource bool
}

// Transferrer copies folder trees between accounts.
type Transferrer struct {
	access *composite.FileAccess
	logger hclog.Logger
}

// New creates a transferrer on top of the compositing file access.
func New(access *composite.FileAccess, logger hclog.Logger) *Transferrer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Transferrer{access: access, logger: logger.Named("storage-transfer")}
}

// Transfer copies the source folder and everything below it into a new
// folder under dstParent. The two folders may live in different
// accounts.
func (t *Transferrer) Transfer(ctx context.Context, src, dstParent fileid.FolderID, opts Options) (*Result, error) {
	srcCaps, err := t.access.Capabilities(ctx, src)
	if err != nil {
		return nil, err
	}
	dstCaps, err := t.access.Capabilities(ctx, dstParent)
	if err != nil {
		return nil, err
	}

	result, err := t.transferFolder(ctx, src, dstParent, srcCaps, dstCaps, opts)
	if err != nil {
		return nil, err
	}

	if opts.DeleteSource && !opts.DryRun {
		if err := t.access.DeleteFolder(ctx, src, true); err != nil {
			return result, fmt.Errorf("tree copied to %s but source delete failed: %w", result.Target, err)
		}
	}

	t.logger.Info("folder transfer finished",
		"source", src.String(),
		"target", result.Target.String(),
		"files", result.FileCount(),
		"warnings", len(result.AllWarnings()),
		"dry_run", opts.DryRun)
	return result, nil
}

func (t *Transferrer) transferFolder(ctx context.Context, src, dstParent fileid.FolderID, srcCaps, dstCaps storage.Capability, opts Options) (*Result, error) {
	folder, err := t.access.GetFolder(ctx, src)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Source: src,
		Name:   folder.Name,
		Files:  make(map[fileid.FileID]fileid.FileID),
	}

	if !opts.DryRun {
		target, err := t.access.CreateFolder(ctx, dstParent, folder.Name)
		if err != nil {
			return nil, err
		}
		result.Target = target
	}

	files, err := t.access.ListFolder(ctx, src, storage.SortByName, storage.OrderAscending)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		fid, err := fileid.ParseFileID(f.ID)
		if err != nil {
			return nil, err
		}
		result.Warnings = append(result.Warnings, fileWarnings(f, fid, srcCaps, dstCaps)...)

		if opts.DryRun {
			result.Files[fid] = fileid.FileID{}
			continue
		}
		newID, err := t.access.Copy(ctx, fid, storage.CurrentVersion, result.Target)
		if err != nil {
			return nil, fmt.Errorf("copying %s: %w", fid, err)
		}
		result.Files[fid] = newID
	}

	subfolders, err := t.access.ListSubfolders(ctx, src)
	if err != nil {
		return nil, err
	}
	for _, sub := range subfolders {
		subID, err := fileid.ParseFolderID(sub.ID)
		if err != nil {
			return nil, err
		}
		subResult, err := t.transferFolder(ctx, subID, result.Target, srcCaps, dstCaps, opts)
		if err != nil {
			return nil, err
		}
		result.Subfolders = append(result.Subfolders, subResult)
	}
	return result, nil
}

// fileWarnings reports what the destination account cannot preserve
// about one file.
func fileWarnings(f *storage.File, id fileid.FileID, srcCaps, dstCaps storage.Capability) []Warning {
	var out []Warning
	lost := func(c storage.Capability) bool {
		return srcCaps&c != 0 && dstCaps&c == 0
	}

	if lost(storage.CapVersions) && f.NumberOfVersions > 1 {
		out = append(out, Warning{
			Code:    WarnVersionsFlattened,
			File:    id,
			Message: fmt.Sprintf("%s: only the current of %d versions will be transferred", f.Name, f.NumberOfVersions),
		})
	}
	if lost(storage.CapNotes) && f.Description != "" {
		out = append(out, Warning{
			Code:    WarnNotesDropped,
			File:    id,
			Message: fmt.Sprintf("%s: the description will be lost", f.Name),
		})
	}
	if lost(storage.CapCategories) && len(f.Categories) > 0 {
		out = append(out, Warning{
			Code:    WarnCategoriesDropped,
			File:    id,
			Message: fmt.Sprintf("%s: categories will be lost", f.Name),
		})
	}
	if lost(storage.CapObjectPermissions) && len(f.Permissions) > 0 {
		out = append(out, Warning{
			Code:    WarnPermissionsDropped,
			File:    id,
			Message: fmt.Sprintf("%s: shares will not follow the file", f.Name),
		})
	}
	return out
}
