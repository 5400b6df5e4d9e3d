package handler

import (
	"context"
	"fmt"
	"path/filepath"

	"gitlab.com/mediauz/video-pipeline/models"
	"gitlab.com/mediauz/video-pipeline/pkg/logger"
	"gitlab.com/mediauz/video-pipeline/tools/paths"
	"gitlab.com/mediauz/video-pipeline/tools/vod"
)

// a merged audio upload gets a static image as its video track
const mergeAudioFPS = 25

// progressReporter logs encoder progress for one transcoding step, skipping
// repeated percentages
func (h *handlerObj) progressReporter(videoUUID, step string) func(percent int) {
	last := -1
	return func(percent int) {
		if percent == last {
			return
		}
		last = percent
		h.log.Debug("transcoding progress",
			logger.String("video", videoUUID),
			logger.String("step", step),
			logger.Int("percent", percent))
	}
}

// handleOptimize transcodes the uploaded file into the house container at
// its own resolution, then fans out lower resolution and HLS jobs
func (h *handlerObj) handleOptimize(ctx context.Context, p *models.OptimizePayload) error {
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
		return fmt.Errorf("video %s has no file to optimize", video.UUID)
	}

	inputPath, cleanup, err := h.makeFileAvailable(ctx, video, inputFile)
	if err != nil {
		return err
	}
	defer cleanup()

	info, err := h.prober.Probe(ctx, inputPath)
	if err != nil {
		return err
	}
	resolution := info.Resolution()
	fps := info.FPS()

	video.State = models.StateTranscoding
	video.Duration = info.DurationSeconds()
	if err := h.repo.Save(ctx, video); err != nil {
		return err
	}

	transcodeType := vod.TranscodeVideo
	if p.QuickTranscode || info.CanQuickTranscode(models.MaxBitrateFor(resolution, fps)) {
		transcodeType = vod.TranscodeQuick
	}
	if resolution == models.ResolutionNoVideo {
		transcodeType = vod.TranscodeOnlyAudio
	}

	output := h.paths.TmpPath(paths.GenerateWebVideoFilename(resolution, ".mp4"))
	err = h.vod.Transcode(ctx, vod.TranscodeOptions{
		Type:              transcodeType,
		InputPath:         inputPath,
		OutputPath:        output,
		Resolution:        resolution,
		FPS:               fps,
		IsPortrait:        info.IsPortrait(),
		Profile:           h.cfg.TranscodingProfile,
		InputFileReleaser: releaser,
		ProgressCallback:  h.progressReporter(video.UUID, "optimize"),
	})
	if err != nil {
		return err
	}

	if _, err := h.registerWebVideoFile(ctx, video, output, resolution, fps); err != nil {
		return err
	}
	// the optimized file supersedes the upload
	if err := h.removeWebVideoFile(ctx, video, inputFile); err != nil {
		h.log.Warn("cannot remove superseded upload", logger.Error(err))
	}
	if err := h.repo.Save(ctx, video); err != nil {
		return err
	}

	return h.createChildJobs(ctx, video, resolution, fps, p.IsNewVideo)
}

// handleNewWebVideoResolution produces one lower progressive rendition from
// the max quality file
func (h *handlerObj) handleNewWebVideoResolution(ctx context.Context, p *models.NewWebVideoResolutionPayload) error {
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
		return fmt.Errorf("video %s has no source file", video.UUID)
	}

	inputPath, cleanup, err := h.makeFileAvailable(ctx, video, inputFile)
	if err != nil {
		return err
	}
	defer cleanup()

	info, err := h.prober.Probe(ctx, inputPath)
	if err != nil {
		return err
	}

	output := h.paths.TmpPath(paths.GenerateWebVideoFilename(p.Resolution, ".mp4"))
	err = h.vod.Transcode(ctx, vod.TranscodeOptions{
		Type:              vod.TranscodeVideo,
		InputPath:         inputPath,
		OutputPath:        output,
		Resolution:        p.Resolution,
		FPS:               p.FPS,
		IsPortrait:        info.IsPortrait(),
		Profile:           h.cfg.TranscodingProfile,
		InputFileReleaser: releaser,
		ProgressCallback:  h.progressReporter(video.UUID, "web-video"),
	})
	if err != nil {
		return err
	}

	if _, err := h.registerWebVideoFile(ctx, video, output, p.Resolution, p.FPS); err != nil {
		return err
	}
	if err := h.repo.Save(ctx, video); err != nil {
		return err
	}

	return h.onTranscodingEnded(ctx, video, p.HasChildren, p.IsNewVideo)
}

// handleMergeAudio turns an audio upload plus the video preview image into
// a progressive rendition, then fans out like an optimize job
func (h *handlerObj) handleMergeAudio(ctx context.Context, p *models.MergeAudioPayload) error {
	video, err := h.repo.LoadByUUID(ctx, p.VideoUUID)
	if err != nil {
		return err
	}

	releaser, err := h.locks.Acquire(ctx, video.UUID)
	if err != nil {
		return err
	}
	defer releaser.Release()

	audioFile := video.GetMaxQualityFile()
	if audioFile == nil {
		return fmt.Errorf("video %s has no audio file to merge", video.UUID)
	}

	audioPath, cleanup, err := h.makeFileAvailable(ctx, video, audioFile)
	if err != nil {
		return err
	}
	defer cleanup()

	video.State = models.StateTranscoding
	if err := h.repo.Save(ctx, video); err != nil {
		return err
	}

	output := h.paths.TmpPath(paths.GenerateWebVideoFilename(p.Resolution, ".mp4"))
	err = h.vod.Transcode(ctx, vod.TranscodeOptions{
		Type:              vod.TranscodeMergeAudio,
		InputPath:         h.paths.PreviewPath(video),
		AudioPath:         audioPath,
		OutputPath:        output,
		Resolution:        p.Resolution,
		FPS:               mergeAudioFPS,
		Profile:           h.cfg.TranscodingProfile,
		InputFileReleaser: releaser,
		ProgressCallback:  h.progressReporter(video.UUID, "merge-audio"),
	})
	if err != nil {
		return err
	}

	outInfo, err := h.prober.Probe(ctx, output)
	if err != nil {
		return err
	}
	video.Duration = outInfo.DurationSeconds()

	if _, err := h.registerWebVideoFile(ctx, video, output, p.Resolution, mergeAudioFPS); err != nil {
		return err
	}
	if err := h.removeWebVideoFile(ctx, video, audioFile); err != nil {
		h.log.Warn("cannot remove merged audio upload", logger.Error(err))
	}
	if err := h.repo.Save(ctx, video); err != nil {
		return err
	}

	return h.createChildJobs(ctx, video, p.Resolution, mergeAudioFPS, p.IsNewVideo)
}

// handleNewHLSResolution produces one fragmented MP4 rendition with its
// child playlist, then regenerates the master playlist and the integrity
// manifest
func (h *handlerObj) handleNewHLSResolution(ctx context.Context, p *models.NewHLSResolutionPayload) error {
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
		return fmt.Errorf("video %s has no source file", video.UUID)
	}

	inputPath, cleanup, err := h.makeFileAvailable(ctx, video, inputFile)
	if err != nil {
		return err
	}
	defer cleanup()

	info, err := h.prober.Probe(ctx, inputPath)
	if err != nil {
		return err
	}

	if err := h.localStorage.EnsureDir(h.paths.HLSOutputDir(video)); err != nil {
		return err
	}

	videoFilename := paths.GenerateHLSVideoFilename(p.Resolution)
	playlistFilename := paths.HLSResolutionPlaylistFilename(videoFilename)

	err = h.vod.Transcode(ctx, vod.TranscodeOptions{
		Type:              vod.TranscodeHLS,
		InputPath:         inputPath,
		OutputPath:        h.paths.HLSFilePath(video, playlistFilename),
		Resolution:        p.Resolution,
		FPS:               p.FPS,
		IsPortrait:        info.IsPortrait(),
		CopyCodecs:        p.CopyCodecs,
		SegmentFilename:   videoFilename,
		Profile:           h.cfg.TranscodingProfile,
		InputFileReleaser: releaser,
		ProgressCallback:  h.progressReporter(video.UUID, "hls"),
	})
	if err != nil {
		return err
	}

	size, err := h.localStorage.FileSize(h.paths.HLSFilePath(video, videoFilename))
	if err != nil {
		return err
	}

	playlist := h.ensurePlaylist(video)
	playlist.Files = append(playlist.Files, &models.VideoFile{
		Resolution: p.Resolution,
		FPS:        p.FPS,
		Extname:    ".mp4",
		Filename:   videoFilename,
		Size:       size,
		Storage:    models.StorageFileSystem,
		VideoID:    video.ID,
		PlaylistID: playlist.ID,
	})

	if err := h.updateMasterPlaylist(ctx, video, playlist); err != nil {
		return err
	}
	if err := h.repo.Save(ctx, video); err != nil {
		return err
	}

	if p.HasChildren {
		pending, err := h.jobInfo.Decrease(ctx, video.UUID)
		if err != nil {
			return err
		}
		if pending > 0 {
			return nil
		}
	}

	if p.DeleteWebVideoFiles {
		if err := h.removeAllWebVideoFiles(ctx, video); err != nil {
			return err
		}
		if err := h.repo.Save(ctx, video); err != nil {
			return err
		}
	}

	_ = h.jobInfo.Reset(ctx, video.UUID)
	return h.moveToNextState(ctx, video, p.IsNewVideo)
}

func (h *handlerObj) ensurePlaylist(video *models.Video) *models.VideoStreamingPlaylist {
	if video.Playlist == nil {
		video.Playlist = &models.VideoStreamingPlaylist{
			VideoID:                video.ID,
			PlaylistFilename:       paths.GenerateHLSMasterPlaylistFilename(),
			SegmentsSha256Filename: paths.GenerateHLSSegmentsSha256Filename(),
			Storage:                models.StorageFileSystem,
		}
	}
	return video.Playlist
}

// updateMasterPlaylist rewrites the master playlist and the segments hash
// manifest from the renditions present on disk
func (h *handlerObj) updateMasterPlaylist(ctx context.Context, video *models.Video, playlist *models.VideoStreamingPlaylist) error {
	entries := make([]vod.MasterPlaylistEntry, 0, len(playlist.Files))
	segmentPaths := make([]string, 0, len(playlist.Files))

	for _, file := range playlist.Files {
		segmentPath := h.paths.HLSFilePath(video, file.Filename)
		segmentPaths = append(segmentPaths, segmentPath)

		entry := vod.MasterPlaylistEntry{
			PlaylistFilename: paths.HLSResolutionPlaylistFilename(file.Filename),
			Bandwidth:        models.MaxBitrateFor(file.Resolution, file.FPS),
			FPS:              file.FPS,
		}
		if info, err := h.prober.Probe(ctx, segmentPath); err == nil {
			entry.Width, entry.Height = info.Dimensions()
		}
		entries = append(entries, entry)
	}

	masterPath := h.paths.HLSFilePath(video, playlist.PlaylistFilename)
	if err := vod.WriteMasterPlaylist(masterPath, entries); err != nil {
		return err
	}

	shaPath := h.paths.HLSFilePath(video, playlist.SegmentsSha256Filename)
	return vod.WriteSegmentsSha256(shaPath, segmentPaths)
}

// createChildJobs fans out the lower rungs of the ladder plus the HLS
// renditions. The pending counter is increased before anything is enqueued
// so a fast child cannot advance the state past a sibling.
func (h *handlerObj) createChildJobs(ctx context.Context, video *models.Video, maxResolution, fps int, isNewVideo bool) error {
	lower := models.ComputeLowerResolutions(maxResolution)

	payloads := make([]models.JobPayload, 0, 2*len(lower)+1)
	for _, resolution := range lower {
		payloads = append(payloads, &models.NewWebVideoResolutionPayload{
			VideoUUID:   video.UUID,
			Resolution:  resolution,
			FPS:         fps,
			IsNewVideo:  isNewVideo,
			HasChildren: true,
		})
	}
	for _, resolution := range append([]int{maxResolution}, lower...) {
		payloads = append(payloads, &models.NewHLSResolutionPayload{
			VideoUUID:   video.UUID,
			Resolution:  resolution,
			FPS:         fps,
			IsNewVideo:  isNewVideo,
			HasChildren: true,
		})
	}

	if len(payloads) == 0 {
		return h.onTranscodingEnded(ctx, video, false, isNewVideo)
	}

	if _, err := h.jobInfo.Increase(ctx, video.UUID, int64(len(payloads))); err != nil {
		return err
	}

	for _, payload := range payloads {
		if err := h.publisher.PublishJob(payload); err != nil {
			return err
		}
	}

	h.log.Info("created child transcoding jobs",
		logger.String("video", video.UUID),
		logger.Int("count", len(payloads)))

	return nil
}

// makeFileAvailable returns a local path for the file, downloading it from
// object storage when needed. The cleanup removes only downloaded copies.
func (h *handlerObj) makeFileAvailable(ctx context.Context, video *models.Video, file *models.VideoFile) (string, func(), error) {
	noop := func() {}

	if file.Storage == models.StorageFileSystem {
		if file.PlaylistID != 0 {
			return h.paths.HLSFilePath(video, file.Filename), noop, nil
		}
		return h.paths.WebVideoPath(file), noop, nil
	}

	bucket := h.cfg.WebVideosBucket
	key := paths.WebVideoKey(file.Filename)
	if file.PlaylistID != 0 {
		bucket = h.cfg.StreamingPlaylistsBucket
		key = paths.HLSKey(video.UUID, file.Filename)
	}

	destination := h.paths.TmpPath(file.Filename)
	if err := h.objectStorage.MakeAvailable(ctx, bucket, key, destination); err != nil {
		return "", noop, err
	}

	return destination, func() {
		if err := h.localStorage.Remove(destination); err != nil {
			h.log.Warn("cannot remove downloaded input", logger.Error(err))
		}
	}, nil
}

// registerWebVideoFile moves a finished tmp output into the web videos
// directory and appends its record to the video
func (h *handlerObj) registerWebVideoFile(ctx context.Context, video *models.Video, tmpPath string, resolution, fps int) (*models.VideoFile, error) {
	file := &models.VideoFile{
		Resolution: resolution,
		FPS:        fps,
		Extname:    filepath.Ext(tmpPath),
		Filename:   filepath.Base(tmpPath),
		Storage:    models.StorageFileSystem,
		VideoID:    video.ID,
	}

	destination := h.paths.WebVideoPath(file)
	if err := h.localStorage.Move(tmpPath, destination); err != nil {
		return nil, err
	}

	size, err := h.localStorage.FileSize(destination)
	if err != nil {
		return nil, err
	}
	file.Size = size

	video.Files = append(video.Files, file)
	return file, nil
}

// removeWebVideoFile drops one record and its physical copy
func (h *handlerObj) removeWebVideoFile(ctx context.Context, video *models.Video, file *models.VideoFile) error {
	for i, f := range video.Files {
		if f == file {
			video.Files = append(video.Files[:i], video.Files[i+1:]...)
			break
		}
	}

	if file.Storage == models.StorageObject {
		return h.objectStorage.RemoveObject(ctx, h.cfg.WebVideosBucket, paths.WebVideoKey(file.Filename))
	}
	return h.localStorage.Remove(h.paths.WebVideoPath(file))
}

func (h *handlerObj) removeAllWebVideoFiles(ctx context.Context, video *models.Video) error {
	for _, file := range append([]*models.VideoFile{}, video.Files...) {
		if err := h.removeWebVideoFile(ctx, video, file); err != nil {
			return err
		}
	}
	return nil
}
