package handler

import (
	"context"

	"gitlab.com/mediauz/video-pipeline/models"
	"gitlab.com/mediauz/video-pipeline/pkg/logger"
)

// onTranscodingEnded gates the state advance on the pending sibling
// counter: a job with siblings only advances the video when it is the last
// one to finish
func (h *handlerObj) onTranscodingEnded(ctx context.Context, video *models.Video, hasChildren, isNewVideo bool) error {
	if hasChildren {
		pending, err := h.jobInfo.Decrease(ctx, video.UUID)
		if err != nil {
			return err
		}
		if pending > 0 {
			h.log.Debug("siblings still pending",
				logger.String("video", video.UUID),
				logger.Int64("pending", pending))
			return nil
		}
	}

	if err := h.jobInfo.Reset(ctx, video.UUID); err != nil {
		h.log.Warn("cannot reset pending counter", logger.Error(err))
	}

	return h.moveToNextState(ctx, video, isNewVideo)
}

// setState updates the video state, warning on a transition the state
// machine does not define. The write still happens: an operator re-run can
// legitimately take shortcuts.
func (h *handlerObj) setState(video *models.Video, next models.VideoState) {
	if !video.State.CanTransitionTo(next) {
		h.log.Warn("unexpected state transition",
			logger.String("video", video.UUID),
			logger.String("from", string(video.State)),
			logger.String("to", string(next)))
	}
	video.State = next
}

// moveToNextState either publishes the video or chains a relocation job
// when artifacts belong in object storage
func (h *handlerObj) moveToNextState(ctx context.Context, video *models.Video, isNewVideo bool) error {
	if h.cfg.UseObjectStorage {
		previous := video.State
		h.setState(video, models.StateToMoveToExternalStorage)
		if err := h.repo.Save(ctx, video); err != nil {
			return err
		}

		return h.publisher.PublishJob(&models.MoveStoragePayload{
			VideoUUID:          video.UUID,
			IsNewVideo:         isNewVideo,
			PreviousVideoState: previous,
		})
	}

	h.setState(video, models.StatePublished)
	if err := h.repo.Save(ctx, video); err != nil {
		return err
	}

	h.log.Info("video published", logger.String("video", video.UUID))
	return nil
}
