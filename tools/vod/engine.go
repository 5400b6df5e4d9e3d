// Package vod builds and runs the encoder commands for video on demand
// outputs: progressive web videos, HLS renditions and re-containered files.
package vod

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"gitlab.com/mediauz/video-pipeline/config"
	"gitlab.com/mediauz/video-pipeline/models"
	"gitlab.com/mediauz/video-pipeline/pkg/lock"
	"gitlab.com/mediauz/video-pipeline/pkg/logger"
	"gitlab.com/mediauz/video-pipeline/tools/encoder"
	"gitlab.com/mediauz/video-pipeline/tools/ffmpeg"
)

// ErrNoViableEncoder is a configuration error: every candidate encoder was
// exhausted. It must never be retried.
var ErrNoViableEncoder = errors.New("no viable encoder found")

type TranscodeType string

const (
	TranscodeVideo      TranscodeType = "video"
	TranscodeQuick      TranscodeType = "quick-transcode"
	TranscodeMergeAudio TranscodeType = "merge-audio"
	TranscodeOnlyAudio  TranscodeType = "only-audio"
	TranscodeHLS        TranscodeType = "hls"
	TranscodeHLSFromTS  TranscodeType = "hls-from-ts"
)

// TranscodeOptions describes one encoder task
type TranscodeOptions struct {
	Type TranscodeType

	InputPath  string
	OutputPath string

	Resolution int
	FPS        int
	IsPortrait bool

	// hls
	CopyCodecs      bool
	SegmentFilename string

	// merge-audio: InputPath is the still image, AudioPath the track
	AudioPath string

	Profile string

	// released once the encoder process started reading the inputs
	InputFileReleaser *lock.Releaser

	ProgressCallback func(percent int)
}

// RunFunc executes a built command; swappable in tests
type RunFunc func(ctx context.Context, cmd *ffmpeg.Command) error

// Engine turns transcode options into encoder commands
type Engine struct {
	cfg        *config.Config
	log        logger.Logger
	prober     ffmpeg.ProberI
	negotiator *encoder.Negotiator

	run RunFunc
}

func NewEngine(cfg *config.Config, log logger.Logger, prober ffmpeg.ProberI, negotiator *encoder.Negotiator) *Engine {
	return &Engine{
		cfg:        cfg,
		log:        log,
		prober:     prober,
		negotiator: negotiator,
		run: func(ctx context.Context, cmd *ffmpeg.Command) error {
			return cmd.Run(ctx)
		},
	}
}

// WithRunner replaces process execution. Used by tests and dry runs.
func (e *Engine) WithRunner(run RunFunc) *Engine {
	e.run = run
	return e
}

// Transcode builds the command for the task kind and runs it to completion.
// The input file releaser, when present, fires on process start.
func (e *Engine) Transcode(ctx context.Context, opts TranscodeOptions) error {
	cmd, err := e.buildCommand(ctx, opts)
	if err != nil {
		return err
	}

	if opts.InputFileReleaser != nil {
		cmd.OnStart = opts.InputFileReleaser.Release
	}
	cmd.OnProgress = opts.ProgressCallback

	if err := e.run(ctx, cmd); err != nil {
		return err
	}

	if opts.Type == TranscodeHLS || opts.Type == TranscodeHLSFromTS {
		return FixHLSPlaylistIfNeeded(opts.OutputPath, opts.SegmentFilename)
	}
	return nil
}

func (e *Engine) buildCommand(ctx context.Context, opts TranscodeOptions) (*ffmpeg.Command, error) {
	switch opts.Type {
	case TranscodeVideo:
		return e.buildVideoCommand(ctx, opts)
	case TranscodeQuick:
		return e.buildQuickTranscodeCommand(opts), nil
	case TranscodeMergeAudio:
		return e.buildMergeAudioCommand(ctx, opts)
	case TranscodeOnlyAudio:
		return e.buildOnlyAudioCommand(ctx, opts)
	case TranscodeHLS:
		return e.buildHLSCommand(ctx, opts)
	case TranscodeHLSFromTS:
		return e.buildHLSFromTSCommand(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown transcode type %q", opts.Type)
	}
}

func (e *Engine) newCommand(opts TranscodeOptions) *ffmpeg.Command {
	return ffmpeg.NewCommand(e.log, e.cfg.FFmpeg).
		Niceness(e.cfg.Niceness).
		Threads(e.cfg.TranscodingThreads).
		Output(opts.OutputPath)
}

// buildVideoCommand probes the input and produces a full re-encode at the
// target resolution, preserving aspect ratio
func (e *Engine) buildVideoCommand(ctx context.Context, opts TranscodeOptions) (*ffmpeg.Command, error) {
	if opts.Resolution == models.ResolutionNoVideo {
		return e.buildOnlyAudioCommand(ctx, opts)
	}

	info, err := e.prober.Probe(ctx, opts.InputPath)
	if err != nil {
		return nil, err
	}

	cmd := e.newCommand(opts).
		AddInput(opts.InputPath).
		InputDuration(info.DurationSeconds())

	if err := e.applyVideoEncoder(ctx, cmd, info, opts); err != nil {
		return nil, err
	}
	if err := e.applyAudioEncoder(ctx, cmd, info, opts); err != nil {
		return nil, err
	}

	cmd.VideoFilter(scaleFilter(opts.Resolution, info.IsPortrait())).
		OutputOptions("-movflags", "faststart", "-f", "mp4")

	return cmd, nil
}

// buildQuickTranscodeCommand remuxes without touching the bitstreams
func (e *Engine) buildQuickTranscodeCommand(opts TranscodeOptions) *ffmpeg.Command {
	return e.newCommand(opts).
		AddInput(opts.InputPath).
		OutputOptions(
			"-c", "copy",
			"-map_metadata", "-1",
			"-movflags", "faststart",
			"-f", "mp4",
		)
}

// buildMergeAudioCommand loops a still image over an audio track. The
// -shortest flag pins the output duration to the audio duration.
func (e *Engine) buildMergeAudioCommand(ctx context.Context, opts TranscodeOptions) (*ffmpeg.Command, error) {
	audioInfo, err := e.prober.Probe(ctx, opts.AudioPath)
	if err != nil {
		return nil, err
	}

	cmd := e.newCommand(opts).
		AddInput(opts.InputPath, "-loop", "1").
		AddInput(opts.AudioPath).
		InputDuration(audioInfo.DurationSeconds())

	if err := e.applyVideoEncoder(ctx, cmd, audioInfo, opts); err != nil {
		return nil, err
	}
	if err := e.applyAudioEncoder(ctx, cmd, audioInfo, opts); err != nil {
		return nil, err
	}

	cmd.VideoFilter(scaleFilter(opts.Resolution, false)).
		OutputOptions(
			"-tune", "stillimage",
			"-shortest",
			"-movflags", "faststart",
			"-f", "mp4",
		)

	return cmd, nil
}

func (e *Engine) buildOnlyAudioCommand(ctx context.Context, opts TranscodeOptions) (*ffmpeg.Command, error) {
	info, err := e.prober.Probe(ctx, opts.InputPath)
	if err != nil {
		return nil, err
	}

	cmd := e.newCommand(opts).
		AddInput(opts.InputPath).
		InputDuration(info.DurationSeconds()).
		OutputOptions("-vn")

	if err := e.applyAudioEncoder(ctx, cmd, info, opts); err != nil {
		return nil, err
	}

	cmd.OutputOptions("-movflags", "faststart", "-f", "mp4")
	return cmd, nil
}

// buildHLSCommand produces one fragmented MP4 rendition plus its child
// playlist. CopyCodecs skips the re-encode when the source already fits.
func (e *Engine) buildHLSCommand(ctx context.Context, opts TranscodeOptions) (*ffmpeg.Command, error) {
	info, err := e.prober.Probe(ctx, opts.InputPath)
	if err != nil {
		return nil, err
	}

	cmd := e.newCommand(opts).
		AddInput(opts.InputPath).
		InputDuration(info.DurationSeconds())

	switch {
	case opts.CopyCodecs:
		cmd.OutputOptions("-c", "copy")
	case opts.Resolution == models.ResolutionNoVideo:
		cmd.OutputOptions("-vn")
		if err := e.applyAudioEncoder(ctx, cmd, info, opts); err != nil {
			return nil, err
		}
	default:
		if err := e.applyVideoEncoder(ctx, cmd, info, opts); err != nil {
			return nil, err
		}
		if err := e.applyAudioEncoder(ctx, cmd, info, opts); err != nil {
			return nil, err
		}
		cmd.VideoFilter(scaleFilter(opts.Resolution, info.IsPortrait()))
	}

	applyHLSMuxerOptions(cmd, opts, e.cfg.HlsSegmentDuration)
	return cmd, nil
}

// buildHLSFromTSCommand remuxes a concatenated MPEG-TS source (a finished
// live session) into a fragmented MP4 rendition without re-encoding
func (e *Engine) buildHLSFromTSCommand(ctx context.Context, opts TranscodeOptions) (*ffmpeg.Command, error) {
	info, err := e.prober.Probe(ctx, opts.InputPath)
	if err != nil {
		return nil, err
	}

	cmd := e.newCommand(opts).
		AddInput(opts.InputPath, "-safe", "0").
		InputDuration(info.DurationSeconds()).
		OutputOptions("-c", "copy")

	if info.AudioIsADTSAAC() {
		// ADTS AAC needs repackaging for the fragmented MP4 container
		cmd.OutputOptions("-bsf:a", "aac_adtstoasc")
	}

	applyHLSMuxerOptions(cmd, opts, e.cfg.HlsSegmentDuration)
	return cmd, nil
}

func applyHLSMuxerOptions(cmd *ffmpeg.Command, opts TranscodeOptions, segmentDuration int) {
	segmentPath := filepath.Join(filepath.Dir(opts.OutputPath), opts.SegmentFilename)

	cmd.OutputOptions(
		"-hls_time", strconv.Itoa(segmentDuration),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", segmentPath,
		"-hls_segment_type", "fmp4",
		"-f", "hls",
		"-hls_flags", "single_file",
	)
}

func (e *Engine) applyVideoEncoder(ctx context.Context, cmd *ffmpeg.Command, info *ffmpeg.VideoInfo, opts TranscodeOptions) error {
	resolved, err := e.negotiator.ResolveEncoder(ctx, encoder.VideoTypeVOD, encoder.StreamTypeVideo, opts.Profile, encoder.BuilderParams{
		Input:        opts.InputPath,
		Resolution:   opts.Resolution,
		FPS:          opts.FPS,
		InputBitrate: info.Bitrate(),
	})
	if err != nil {
		return err
	}
	if resolved == nil {
		return fmt.Errorf("%w for video stream of %s", ErrNoViableEncoder, opts.InputPath)
	}

	e.log.Debug("resolved video encoder", logger.String("encoder", resolved.Encoder))

	if resolved.Encoder == encoder.EncoderCopy {
		cmd.OutputOptions("-c:v", "copy")
		return nil
	}

	cmd.OutputOptions("-c:v", resolved.Encoder)
	cmd.OutputOptions(resolved.Result.OutputOptions...)
	return nil
}

func (e *Engine) applyAudioEncoder(ctx context.Context, cmd *ffmpeg.Command, info *ffmpeg.VideoInfo, opts TranscodeOptions) error {
	audio := info.AudioStream()
	if audio == nil {
		cmd.OutputOptions("-an")
		return nil
	}

	bitrate, _ := strconv.Atoi(audio.BitRate)
	resolved, err := e.negotiator.ResolveEncoder(ctx, encoder.VideoTypeVOD, encoder.StreamTypeAudio, opts.Profile, encoder.BuilderParams{
		Input:        opts.InputPath,
		Resolution:   opts.Resolution,
		FPS:          opts.FPS,
		InputBitrate: bitrate,
		CanCopyAudio: audio.CodecName == "aac",
	})
	if err != nil {
		return err
	}
	if resolved == nil {
		return fmt.Errorf("%w for audio stream of %s", ErrNoViableEncoder, opts.InputPath)
	}

	e.log.Debug("resolved audio encoder", logger.String("encoder", resolved.Encoder))

	if resolved.Encoder == encoder.EncoderCopy {
		cmd.OutputOptions("-c:a", "copy")
		return nil
	}

	cmd.OutputOptions("-c:a", resolved.Encoder)
	cmd.OutputOptions(resolved.Result.OutputOptions...)
	return nil
}

// scaleFilter keeps the aspect ratio: the target resolution constrains the
// smaller dimension, the other side stays divisible by two
func scaleFilter(resolution int, isPortrait bool) string {
	if isPortrait {
		return fmt.Sprintf("scale=w=%d:h=-2", resolution)
	}
	return fmt.Sprintf("scale=w=-2:h=%d", resolution)
}
