// Package repository is the pipeline's only persistence surface. The real
// database layer lives outside; the pipeline reads and writes videos
// through this interface and jobs must tolerate a video disappearing
// between enqueue and execution.
package repository

import (
	"context"
	"errors"
	"sync"

	"gitlab.com/mediauz/video-pipeline/models"
)

// ErrVideoNotFound means the video was deleted while a job was in flight.
// Handlers exit cleanly on it instead of failing the job.
var ErrVideoNotFound = errors.New("video not found")

type VideoRepository interface {
	LoadByUUID(ctx context.Context, uuid string) (*models.Video, error)
	ListUUIDs(ctx context.Context) ([]string, error)
	Save(ctx context.Context, video *models.Video) error
	Delete(ctx context.Context, uuid string) error
}

// MemoryRepository keeps videos in memory. Used by tests and single node
// deployments that plug a real store at the API layer.
type MemoryRepository struct {
	mu     sync.RWMutex
	videos map[string]*models.Video
	nextID int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		videos: make(map[string]*models.Video),
		nextID: 1,
	}
}

func (r *MemoryRepository) LoadByUUID(ctx context.Context, uuid string) (*models.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	video, ok := r.videos[uuid]
	if !ok {
		return nil, ErrVideoNotFound
	}
	return video, nil
}

func (r *MemoryRepository) ListUUIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uuids := make([]string, 0, len(r.videos))
	for uuid := range r.videos {
		uuids = append(uuids, uuid)
	}
	return uuids, nil
}

func (r *MemoryRepository) Save(ctx context.Context, video *models.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if video.ID == 0 {
		video.ID = r.nextID
		r.nextID++
	}
	r.videos[video.UUID] = video
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, uuid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.videos, uuid)
	return nil
}
