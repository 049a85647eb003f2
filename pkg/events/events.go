// Package events carries storage change notifications. The compositing
// layer posts an event after every committed mutation; consumers range
// from the in-process bus used for cache invalidation in tests to a
// Kafka topic for external indexers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type enumerates storage change notifications.
type Type string

const (
	FileCreated   Type = "file.created"
	FileUpdated   Type = "file.updated"
	FileDeleted   Type = "file.deleted"
	FileMoved     Type = "file.moved"
	FileCopied    Type = "file.copied"
	FolderCreated Type = "folder.created"
	FolderDeleted Type = "folder.deleted"
)

// Event is one storage change notification. Identifiers are composite
// strings so consumers need no knowledge of backend topology.
type Event struct {
	ID       string    `json:"id"`
	Type     Type      `json:"type"`
	Service  string    `json:"service"`
	Account  string    `json:"account"`
	FileID   string    `json:"fileId,omitempty"`
	FolderID string    `json:"folderId,omitempty"`
	// Origin holds the source identifier of a move or copy.
	Origin string    `json:"origin,omitempty"`
	Actor  string    `json:"actor,omitempty"`
	Time   time.Time `json:"time"`
}

// New creates an event with a fresh ID and timestamp.
func New(t Type) Event {
	return Event{
		ID:   uuid.NewString(),
		Type: t,
		Time: time.Now().UTC(),
	}
}

// Publisher delivers storage change events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Discard is a Publisher that drops all events.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }
func (discard) Close() error                         { return nil }
