// Package backup copies every new version of the config file off the
// host.
package backup

import (
	"context"
	"sync"
	"time"

	"eventsite/internal/logger"
)

// Destination receives a full copy of the config file.
type Destination interface {
	Write(ctx context.Context, data []byte) error
}

// Uploader pushes saved config content to its destinations in the
// background. Only the latest pending content is kept; a burst of saves
// results in one upload of the newest version.
type Uploader struct {
	destinations []Destination
	timeout      time.Duration

	mu      sync.Mutex
	pending []byte
	kick    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewUploader(destinations []Destination, timeout time.Duration) *Uploader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Uploader{
		destinations: destinations,
		timeout:      timeout,
		kick:         make(chan struct{}, 1),
	}
}

// Start runs the upload loop until Stop.
func (u *Uploader) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	u.cancel = cancel

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		for {
			select {
			case <-ctx.Done():
				u.flush(context.Background())
				return
			case <-u.kick:
				u.flush(ctx)
			}
		}
	}()
}

// Stop uploads anything still pending and waits for the loop to exit.
func (u *Uploader) Stop() {
	if u.cancel != nil {
		u.cancel()
	}
	u.wg.Wait()
}

// Hook is a config save hook queuing content for upload.
func (u *Uploader) Hook(action string, content []byte) {
	u.mu.Lock()
	u.pending = append([]byte(nil), content...)
	u.mu.Unlock()

	select {
	case u.kick <- struct{}{}:
	default:
	}
	logger.LogDebug("Queued config backup after %s", action)
}

func (u *Uploader) flush(parent context.Context) {
	u.mu.Lock()
	data := u.pending
	u.pending = nil
	u.mu.Unlock()
	if data == nil {
		return
	}

	for _, d := range u.destinations {
		ctx, cancel := context.WithTimeout(parent, u.timeout)
		err := d.Write(ctx, data)
		cancel()
		if err != nil {
			logger.LogError("Config backup to %v failed: %v", d, err)
			continue
		}
		logger.LogInfo("Config backup to %v completed (%d bytes)", d, len(data))
	}
}
