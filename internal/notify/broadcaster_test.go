package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroadcaster_LatestValueWins(t *testing.T) {
	b := NewBroadcaster[int]()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(1)
	b.Publish(2)
	b.Publish(3)

	assert.Equal(t, 3, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra value %d", v)
	default:
	}
}

func TestBroadcaster_Cancel(t *testing.T) {
	b := NewBroadcaster[string]()
	ch, cancel := b.Subscribe()
	assert.Equal(t, 1, b.Len())

	cancel()
	cancel()
	assert.Equal(t, 0, b.Len())

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after cancel")

	// Publishing with no subscribers must not block.
	b.Publish("x")
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster[int]()
	ch1, _ := b.Subscribe()
	b.Close()

	_, ok := <-ch1
	assert.False(t, ok)

	ch2, cancel := b.Subscribe()
	_, ok = <-ch2
	assert.False(t, ok, "subscribe after close yields a closed channel")
	cancel()
}
