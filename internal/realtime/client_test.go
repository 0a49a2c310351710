package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientClose_ReleasesBlockedEnqueue(t *testing.T) {
	c := NewClient(context.Background(), nil, nil, "bob", ClientConfig{SendBufferSize: 0}, nil)

	result := make(chan bool, 1)
	go func() { result <- c.enqueue([]byte("frame"), time.Minute) }()

	closed := make(chan struct{})
	go func() {
		c.close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close waited on a pending enqueue")
	}

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("enqueue not released by close")
	}

	require.False(t, c.enqueue([]byte("late"), time.Minute))
	c.close()
}
