package audit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerDrainsInbox(t *testing.T) {
	store := NewInMemoryStore()
	inbox := make(chan Event, 8)
	worker := NewWorker(store, inbox)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	inbox <- Event{Action: ActionServiceGroupCreate, Participant: "iso6523-actorid-upis::9915:test"}
	inbox <- Event{Action: ActionServiceGroupDelete, Participant: "iso6523-actorid-upis::9915:test"}

	require.Eventually(t, func() bool {
		events, err := store.ListRecent(context.Background(), 10)
		return err == nil && len(events) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	events, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, ActionServiceGroupCreate, events[0].Action)
	assert.Equal(t, ActionServiceGroupDelete, events[1].Action)
}

func TestPublisherFillsDefaults(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	pub.Emit(context.Background(), Event{Action: ActionRedirectPut, Actor: "admin"})

	events, err := store.ListRecent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotZero(t, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestChannelStoreRespectsCancellation(t *testing.T) {
	ch := make(chan Event) // unbuffered, nobody reading
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ChannelStore(ch).Append(ctx, Event{Action: ActionImport})
	require.ErrorIs(t, err, context.Canceled)
}
