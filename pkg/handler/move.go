package handler

import (
	"context"

	"gitlab.com/mediauz/video-pipeline/models"
	"gitlab.com/mediauz/video-pipeline/pkg/logger"
)

func (h *handlerObj) handleMoveToObjectStorage(ctx context.Context, p *models.MoveStoragePayload) error {
	video, err := h.repo.LoadByUUID(ctx, p.VideoUUID)
	if err != nil {
		return err
	}

	h.setState(video, models.StateMovingToExternalStorage)
	if err := h.repo.Save(ctx, video); err != nil {
		return err
	}

	if err := h.mover.MoveToObjectStorage(ctx, video); err != nil {
		return err
	}

	return h.afterMove(ctx, video)
}

func (h *handlerObj) handleMoveToFileSystem(ctx context.Context, p *models.MoveToFileSystemPayload) error {
	video, err := h.repo.LoadByUUID(ctx, p.VideoUUID)
	if err != nil {
		return err
	}

	h.setState(video, models.StateMovingToFileSystem)
	if err := h.repo.Save(ctx, video); err != nil {
		return err
	}

	if err := h.mover.MoveToFileSystem(ctx, video); err != nil {
		return err
	}

	return h.afterMove(ctx, video)
}

func (h *handlerObj) afterMove(ctx context.Context, video *models.Video) error {
	h.setState(video, models.StatePublished)
	if err := h.repo.Save(ctx, video); err != nil {
		return err
	}

	h.log.Info("video artifacts relocated",
		logger.String("video", video.UUID),
		logger.String("state", string(video.State)))
	return nil
}
