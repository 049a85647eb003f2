package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishAndSubscribe(t *testing.T) {
	bus := NewBus()

	var seen []Event
	bus.Subscribe(func(e Event) { seen = append(seen, e) })

	e := New(FileCreated)
	e.FileID = "infostore://infostore/1337/4711"
	require.NoError(t, bus.Publish(context.Background(), e))

	require.Len(t, seen, 1)
	assert.Equal(t, FileCreated, seen[0].Type)
	assert.Equal(t, e.ID, seen[0].ID)
	assert.NotEmpty(t, seen[0].ID)
	assert.False(t, seen[0].Time.IsZero())
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus()

	var a, b int
	bus.Subscribe(func(Event) { a++ })
	bus.Subscribe(func(Event) { b++ })

	require.NoError(t, bus.Publish(context.Background(), New(FileDeleted)))
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

func TestBus_Closed(t *testing.T) {
	bus := NewBus()

	var seen int
	bus.Subscribe(func(Event) { seen++ })
	require.NoError(t, bus.Close())

	require.NoError(t, bus.Publish(context.Background(), New(FileUpdated)))
	assert.Zero(t, seen)
}

func TestDiscard(t *testing.T) {
	require.NoError(t, Discard.Publish(context.Background(), New(FileCreated)))
	require.NoError(t, Discard.Close())
}
