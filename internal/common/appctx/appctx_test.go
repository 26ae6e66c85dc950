package appctx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDetachedSurvivesParentCancellation(t *testing.T) {
	parent, parentCancel := context.WithCancel(context.Background())
	stop := make(chan struct{})
	defer close(stop)

	ctx, cancel := Detached(parent, stop, time.Second)
	defer cancel()

	parentCancel()
	time.Sleep(10 * time.Millisecond)

	assert.NoError(t, ctx.Err())
}

func TestDetachedCancelledByStopChannel(t *testing.T) {
	stop := make(chan struct{})
	ctx, cancel := Detached(context.Background(), stop, time.Second)
	defer cancel()

	close(stop)

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled after stop channel closed")
	}
}

func TestDetachedCancelledByTimeout(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)

	ctx, cancel := Detached(context.Background(), stop, 10*time.Millisecond)
	defer cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled after timeout")
	}
}
