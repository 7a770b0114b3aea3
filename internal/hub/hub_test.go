package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastReachesOnlyThatRoom(t *testing.T) {
	h := NewHub()
	a := make(Client, 1)
	b := make(Client, 1)
	h.Subscribe("AAAAAA", a)
	h.Subscribe("BBBBBB", b)

	h.Publish("AAAAAA", 3)

	select {
	case msg := <-a:
		var ev Event
		require.NoError(t, json.Unmarshal(msg, &ev))
		assert.Equal(t, Event{Type: EventUpdated, Code: "AAAAAA", Version: 3}, ev)
	default:
		t.Fatal("subscriber of AAAAAA got nothing")
	}
	assert.Empty(t, b)
}

func TestBroadcastDoesNotBlockOnFullClient(t *testing.T) {
	h := NewHub()
	c := make(Client, 1)
	h.Subscribe("AAAAAA", c)

	done := make(chan struct{})
	go func() {
		h.Publish("AAAAAA", 1)
		h.Publish("AAAAAA", 2)
		h.PublishDeleted("AAAAAA")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full subscriber")
	}
	assert.Len(t, c, 1)
}

func TestUnsubscribeClosesAndForgets(t *testing.T) {
	h := NewHub()
	c := make(Client, 1)
	h.Subscribe("AAAAAA", c)
	assert.Equal(t, 1, h.Subscribers("AAAAAA"))

	h.Unsubscribe("AAAAAA", c)
	_, open := <-c
	assert.False(t, open)
	assert.Zero(t, h.Subscribers("AAAAAA"))

	// A second unsubscribe must not close the channel twice.
	h.Unsubscribe("AAAAAA", c)
}

func TestWaiter(t *testing.T) {
	h := NewHub()

	t.Run("WakesOnPublish", func(t *testing.T) {
		w := h.Watch("AAAAAA")
		defer w.Close()

		go func() {
			time.Sleep(10 * time.Millisecond)
			h.Publish("AAAAAA", 1)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.True(t, w.Wait(ctx))
	})

	t.Run("PublishBeforeWaitIsKept", func(t *testing.T) {
		w := h.Watch("AAAAAA")
		defer w.Close()

		h.Publish("AAAAAA", 2)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		assert.True(t, w.Wait(ctx))
	})

	t.Run("TimesOut", func(t *testing.T) {
		w := h.Watch("CCCCCC")
		defer w.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.False(t, w.Wait(ctx))
	})

	t.Run("CloseTwice", func(t *testing.T) {
		w := h.Watch("DDDDDD")
		w.Close()
		w.Close()
		assert.Zero(t, h.Subscribers("DDDDDD"))
	})
}
