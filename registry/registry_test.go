package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	messages []any
	closed   int
	writeErr error
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.messages = append(f.messages, v)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeConn) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func TestSendToRegisteredClient(t *testing.T) {
	r := New()
	conn := &fakeConn{}
	r.Register("client-1", conn)

	require.NoError(t, r.Send("client-1", map[string]string{"type": "transcript"}))
	assert.Equal(t, 1, conn.sent())
}

func TestSendToUnknownClientIsNoop(t *testing.T) {
	r := New()
	assert.NoError(t, r.Send("nobody", "msg"))
}

func TestSendAfterUnregisterIsNoop(t *testing.T) {
	r := New()
	conn := &fakeConn{}
	r.Register("client-1", conn)
	r.Unregister("client-1")

	require.NoError(t, r.Send("client-1", "late message"))
	assert.Equal(t, 0, conn.sent())
	assert.Equal(t, 1, conn.closed)
}

func TestUnregisterClosesOnce(t *testing.T) {
	r := New()
	conn := &fakeConn{}
	r.Register("client-1", conn)

	r.Unregister("client-1")
	r.Unregister("client-1")
	r.Unregister("never-registered")

	assert.Equal(t, 1, conn.closed)
	assert.Equal(t, 0, r.Len())
}

func TestConcurrentClients(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("client-%d", i)
			conn := &fakeConn{}
			r.Register(id, conn)
			for j := 0; j < 10; j++ {
				assert.NoError(t, r.Send(id, j))
			}
			r.Unregister(id)
			assert.NoError(t, r.Send(id, "after close"))
			assert.Equal(t, 10, conn.sent())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
}
