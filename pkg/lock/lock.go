// Package lock provides per-video mutual exclusion over source files, so a
// concurrent replace or delete cannot race a running encoder.
package lock

import (
	"context"
	"sync"

	"gitlab.com/mediauz/video-pipeline/pkg/logger"
)

// Releaser frees an acquired video lock. Release is idempotent: callers on
// every exit path may invoke it without tracking whether it already ran.
type Releaser struct {
	once    sync.Once
	release func()
}

func (r *Releaser) Release() {
	r.once.Do(r.release)
}

type videoLock struct {
	ch   chan struct{}
	refs int
}

// Manager hands out one exclusive lock per video UUID
type Manager struct {
	log logger.Logger

	mu     sync.Mutex
	videos map[string]*videoLock
}

func NewManager(log logger.Logger) *Manager {
	return &Manager{
		log:    log,
		videos: make(map[string]*videoLock),
	}
}

// Acquire blocks until the video's source files are exclusively held or the
// context is cancelled. The returned releaser must be invoked once the
// encoder process has actually started reading the inputs, not merely once
// the command object exists.
func (m *Manager) Acquire(ctx context.Context, videoUUID string) (*Releaser, error) {
	m.mu.Lock()
	vl, ok := m.videos[videoUUID]
	if !ok {
		vl = &videoLock{ch: make(chan struct{}, 1)}
		m.videos[videoUUID] = vl
	}
	vl.refs++
	m.mu.Unlock()

	select {
	case vl.ch <- struct{}{}:
	case <-ctx.Done():
		m.unref(videoUUID, vl)
		return nil, ctx.Err()
	}

	m.log.Debug("acquired input file lock", logger.String("video", videoUUID))

	return &Releaser{
		release: func() {
			<-vl.ch
			m.unref(videoUUID, vl)
			m.log.Debug("released input file lock", logger.String("video", videoUUID))
		},
	}, nil
}

func (m *Manager) unref(videoUUID string, vl *videoLock) {
	m.mu.Lock()
	vl.refs--
	if vl.refs == 0 {
		delete(m.videos, videoUUID)
	}
	m.mu.Unlock()
}
