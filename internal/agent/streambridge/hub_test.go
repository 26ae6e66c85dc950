package streambridge

import (
	"testing"
	"time"

	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/kandev/agentengine/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDispatchesOnlyToSubscribedTask(t *testing.T) {
	hub := NewHub(logger.Default())
	stop := make(chan struct{})
	defer close(stop)
	go hub.Run(stop)

	clientA := &Client{out: make(chan []byte, 4), log: logger.Default()}
	clientB := &Client{out: make(chan []byte, 4), log: logger.Default()}

	hub.Subscribe("task-1", clientA)
	hub.Subscribe("task-2", clientB)

	hub.Publish("task-1", event.NormalizedEntry{Content: "hello"})

	select {
	case data := <-clientA.out:
		assert.Contains(t, string(data), "hello")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscribed client")
	}

	select {
	case <-clientB.out:
		t.Fatal("unsubscribed client should not receive the entry")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(logger.Default())
	stop := make(chan struct{})
	defer close(stop)
	go hub.Run(stop)

	client := &Client{out: make(chan []byte, 4), log: logger.Default()}
	hub.Subscribe("task-1", client)
	hub.Unsubscribe("task-1", client)

	hub.Publish("task-1", event.NormalizedEntry{Content: "hello"})

	select {
	case <-client.out:
		t.Fatal("unsubscribed client should not receive the entry")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBridgeChannelPublishesUntilClosed(t *testing.T) {
	hub := NewHub(logger.Default())
	stop := make(chan struct{})
	defer close(stop)
	go hub.Run(stop)

	client := &Client{out: make(chan []byte, 4), log: logger.Default()}
	hub.Subscribe("task-1", client)

	ch := make(chan event.NormalizedEntry, 2)
	ch <- event.NormalizedEntry{Content: "one"}
	ch <- event.NormalizedEntry{Content: "two"}
	close(ch)

	done := make(chan struct{})
	go func() {
		hub.BridgeChannel("task-1", ch)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BridgeChannel did not return after channel closed")
	}

	require.Eventually(t, func() bool { return len(client.out) == 2 }, time.Second, 10*time.Millisecond)
}
