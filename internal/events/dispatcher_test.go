package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_PublishInvokesSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()

	var seen []Event
	d.Subscribe(EventUserRegistered, func(_ context.Context, e Event) error {
		seen = append(seen, e)
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventUserRegistered, UserID: 1})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, int64(1), seen[0].UserID)
}

func TestDispatcher_HandlerErrorDoesNotStopOthers(t *testing.T) {
	d := NewInMemoryDispatcher()

	var secondCalled bool
	d.Subscribe(EventUserBlocked, func(context.Context, Event) error {
		return errors.New("boom")
	})
	d.Subscribe(EventUserBlocked, func(context.Context, Event) error {
		secondCalled = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventUserBlocked, UserID: 2})
	require.NoError(t, err)
	assert.True(t, secondCalled)
}

func TestDispatcher_UnsubscribedTypeIsNoop(t *testing.T) {
	d := NewInMemoryDispatcher()
	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventUserRoleChanged}))
}
