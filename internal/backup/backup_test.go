package backup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type memoryDestination struct {
	mu     sync.Mutex
	writes [][]byte
	err    error
}

func (m *memoryDestination) Write(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.writes = append(m.writes, data)
	return nil
}

func (m *memoryDestination) last() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.writes) == 0 {
		return nil
	}
	return m.writes[len(m.writes)-1]
}

func TestUploaderDeliversLatestContent(t *testing.T) {
	dest := &memoryDestination{}
	u := NewUploader([]Destination{dest}, time.Second)
	u.Start()

	u.Hook("save", []byte("v1"))
	u.Hook("save", []byte("v2"))

	assert.Eventually(t, func() bool {
		return string(dest.last()) == "v2"
	}, 2*time.Second, 10*time.Millisecond)
	u.Stop()
}

func TestUploaderFlushesOnStop(t *testing.T) {
	dest := &memoryDestination{}
	u := NewUploader([]Destination{dest}, time.Second)
	u.Hook("save", []byte("pending"))
	u.Start()
	u.Stop()
	assert.Equal(t, "pending", string(dest.last()))
}

func TestUploaderContinuesAfterFailure(t *testing.T) {
	bad := &memoryDestination{err: errors.New("unreachable")}
	good := &memoryDestination{}
	u := NewUploader([]Destination{bad, good}, time.Second)
	u.Hook("save", []byte("data"))
	u.Start()
	u.Stop()
	assert.Equal(t, "data", string(good.last()))
	assert.Nil(t, bad.last())
}
