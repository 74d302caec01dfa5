package handler

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	log, _ := test.NewNullLogger()
	hub := NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

// TestHubDropsStalledClient verifies a client whose queue is full is dropped
// without holding up delivery to the others.
//
// @example go test -v -run TestHubDropsStalledClient ./api/handler
func TestHubDropsStalledClient(t *testing.T) {
	hub, _ := runHub(t)

	stalled := &wsClient{send: make(chan []byte, 1)}
	live := &wsClient{send: make(chan []byte, sendBuffer)}
	hub.register <- stalled
	hub.register <- live
	stalled.send <- []byte("backlog")

	hub.Publish(DetectionEvent{RequestID: "req-1"})

	select {
	case message := <-live.send:
		assert.Contains(t, string(message), `"request_id":"req-1"`)
	case <-time.After(2 * time.Second):
		t.Fatal("live client did not receive the event")
	}

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	assert.Equal(t, "backlog", string(<-stalled.send))
	_, open := <-stalled.send
	assert.False(t, open, "stalled client queue is closed")

	hub.Publish(DetectionEvent{RequestID: "req-2"})
	select {
	case message := <-live.send:
		assert.Contains(t, string(message), `"request_id":"req-2"`)
	case <-time.After(2 * time.Second):
		t.Fatal("hub stopped broadcasting after dropping a client")
	}
}

func TestHubRegistersWhileClientStalled(t *testing.T) {
	hub, _ := runHub(t)

	stalled := &wsClient{send: make(chan []byte)}
	hub.register <- stalled
	hub.Publish(DetectionEvent{RequestID: "req-1"})

	registered := make(chan struct{})
	go func() {
		hub.register <- &wsClient{send: make(chan []byte, sendBuffer)}
		close(registered)
	}()

	select {
	case <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("register blocked behind a stalled client")
	}
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
}

func TestHubRunClosesClientsOnShutdown(t *testing.T) {
	hub, cancel := runHub(t)

	client := &wsClient{send: make(chan []byte, sendBuffer)}
	hub.register <- client
	cancel()

	select {
	case <-hub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	_, open := <-client.send
	assert.False(t, open)
	assert.Equal(t, 0, hub.Clients())
}
