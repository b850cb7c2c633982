package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishStampsIDAndTimestamp(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(&Event{Type: EventCommitApplied})

	select {
	case ev := <-sub:
		require.NotEmpty(t, ev.ID)
		require.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the published event")
	}
}

func TestPublishPreservesCallerSuppliedIDAndTimestamp(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	ts := time.Now().Add(-time.Hour)
	b.Publish(&Event{ID: "fixed-id", Type: EventCommitApplied, Timestamp: ts})

	ev := <-sub
	require.Equal(t, "fixed-id", ev.ID)
	require.Equal(t, ts, ev.Timestamp)
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	require.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Event{Type: EventBucketCreated})

	require.NotNil(t, <-sub1)
	require.NotNil(t, <-sub2)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	require.Equal(t, 0, b.SubscriberCount())

	_, ok := <-sub
	require.False(t, ok, "channel should be closed after Unsubscribe")
}

func TestFullSubscriberBufferDropsWithoutBlocking(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberQueueDepth+10; i++ {
			b.Publish(&Event{Type: EventSegmentRolled})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked instead of dropping events to a full subscriber buffer")
	}
}
