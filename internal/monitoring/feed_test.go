package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_DeliversToSubscribers(t *testing.T) {
	f := NewFeed()
	ch, cancel := f.Subscribe()
	defer cancel()

	f.Publish(RequestEvent{RequestID: "req-1"})

	select {
	case ev := <-ch:
		assert.Equal(t, "req-1", ev.RequestID)
	default:
		t.Fatal("event not delivered")
	}
}

func TestFeed_CancelStopsDelivery(t *testing.T) {
	f := NewFeed()
	ch, cancel := f.Subscribe()
	cancel()

	f.Publish(RequestEvent{RequestID: "req-1"})
	_, open := <-ch
	assert.False(t, open)

	// Cancel twice is harmless.
	cancel()
}

func TestFeed_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	f := NewFeed()
	ch, cancel := f.Subscribe()
	defer cancel()

	// Overfill the buffer; Publish must not block.
	for i := 0; i < 200; i++ {
		f.Publish(RequestEvent{RequestID: "req"})
	}
	require.LessOrEqual(t, len(ch), 64)
}

func TestFeed_NilFeedPublishIsSafe(t *testing.T) {
	var f *Feed
	f.Publish(RequestEvent{})
}
