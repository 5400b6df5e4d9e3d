package handler

import (
	"context"
	"fmt"

	"gitlab.com/mediauz/video-pipeline/models"
	"gitlab.com/mediauz/video-pipeline/pkg/logger"
	"gitlab.com/mediauz/video-pipeline/tools/paths"
	"gitlab.com/mediauz/video-pipeline/tools/studio"
)

// handleStudioEdition runs the edit chain over the max quality file, swaps
// the result in as the only rendition and chains an optimize job to rebuild
// the ladder
func (h *handlerObj) handleStudioEdition(ctx context.Context, p *models.StudioEditionPayload) error {
	video, err := h.repo.LoadByUUID(ctx, p.VideoUUID)
	if err != nil {
		return err
	}

	releaser, err := h.locks.Acquire(ctx, video.UUID)
	if err != nil {
		return err
	}
	defer releaser.Release()

	inputFile := video.GetMaxQualityFile()
	if inputFile == nil {
		return fmt.Errorf("video %s has no file to edit", video.UUID)
	}

	inputPath, cleanup, err := h.makeFileAvailable(ctx, video, inputFile)
	if err != nil {
		return err
	}
	defer cleanup()

	output, err := h.studio.Edit(ctx, studio.EditOptions{
		VideoUUID:         video.UUID,
		UserID:            p.UserID,
		InputPath:         inputPath,
		Tasks:             p.Tasks,
		InputFileReleaser: releaser,
	})
	if err != nil {
		return err
	}

	info, err := h.prober.Probe(ctx, output)
	if err != nil {
		return err
	}

	// the edited file replaces every rendition; the ladder is rebuilt by a
	// fresh optimize job below
	if err := h.removeAllWebVideoFiles(ctx, video); err != nil {
		return err
	}
	if err := h.removePlaylist(ctx, video); err != nil {
		return err
	}

	if _, err := h.registerWebVideoFile(ctx, video, output, info.Resolution(), info.FPS()); err != nil {
		return err
	}

	video.Duration = info.DurationSeconds()
	video.State = models.StateToTranscode
	if err := h.repo.Save(ctx, video); err != nil {
		return err
	}

	h.log.Info("studio edition applied",
		logger.String("video", video.UUID),
		logger.Int("tasks", len(p.Tasks)))

	return h.publisher.PublishJob(&models.OptimizePayload{
		VideoUUID:  video.UUID,
		IsNewVideo: false,
	})
}

// removePlaylist drops the HLS playlist with all its physical artifacts
func (h *handlerObj) removePlaylist(ctx context.Context, video *models.Video) error {
	playlist := video.Playlist
	if playlist == nil {
		return nil
	}

	if playlist.Storage == models.StorageObject {
		filenames := []string{playlist.PlaylistFilename, playlist.SegmentsSha256Filename}
		for _, file := range playlist.Files {
			filenames = append(filenames, file.Filename, paths.HLSResolutionPlaylistFilename(file.Filename))
		}
		for _, filename := range filenames {
			key := paths.HLSKey(video.UUID, filename)
			if err := h.objectStorage.RemoveObject(ctx, h.cfg.StreamingPlaylistsBucket, key); err != nil {
				return err
			}
		}
	}

	if err := h.localStorage.RemoveDir(h.paths.HLSOutputDir(video)); err != nil {
		return err
	}

	video.Playlist = nil
	return nil
}
