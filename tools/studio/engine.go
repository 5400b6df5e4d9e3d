// Package studio chains post-publish edit tasks (cut, watermark, intro,
// outro) into a sequential encoder pipeline over temp files. The published
// file is never modified in place.
package studio

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"gitlab.com/mediauz/video-pipeline/config"
	"gitlab.com/mediauz/video-pipeline/models"
	"gitlab.com/mediauz/video-pipeline/pkg/lock"
	"gitlab.com/mediauz/video-pipeline/pkg/logger"
	"gitlab.com/mediauz/video-pipeline/pkg/quota"
	"gitlab.com/mediauz/video-pipeline/tools/encoder"
	"gitlab.com/mediauz/video-pipeline/tools/ffmpeg"
	"gitlab.com/mediauz/video-pipeline/tools/paths"
	"gitlab.com/mediauz/video-pipeline/tools/storage"
)

// watermark is scaled against the main video height and pinned to the top
// right corner with margins derived from the main dimensions
const (
	watermarkSizeRatio   = 0.1
	watermarkMarginRatio = 0.02
)

// ErrQuotaExceeded aborts an edition before any task runs
var ErrQuotaExceeded = errors.New("upload quota exceeded, cannot run studio edition")

// EditOptions describes one studio edition over a published video file
type EditOptions struct {
	VideoUUID string
	UserID    int64

	// the max quality file of the video, already available locally
	InputPath string

	Tasks []models.StudioTask

	// released once the last task's process has started
	InputFileReleaser *lock.Releaser
}

// RunFunc executes a built command; swappable in tests
type RunFunc func(ctx context.Context, cmd *ffmpeg.Command) error

// Engine runs studio edition chains
type Engine struct {
	cfg        *config.Config
	log        logger.Logger
	prober     ffmpeg.ProberI
	negotiator *encoder.Negotiator
	files      storage.FileOperationsI
	quota      quota.Checker
	paths      *paths.Resolver

	run RunFunc
}

func NewEngine(
	cfg *config.Config,
	log logger.Logger,
	prober ffmpeg.ProberI,
	negotiator *encoder.Negotiator,
	files storage.FileOperationsI,
	quotaChecker quota.Checker,
	resolver *paths.Resolver,
) *Engine {
	return &Engine{
		cfg:        cfg,
		log:        log,
		prober:     prober,
		negotiator: negotiator,
		files:      files,
		quota:      quotaChecker,
		paths:      resolver,
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

// Edit runs the task chain and returns the final output path. Each task
// consumes the previous task's output; intermediates are deleted once
// consumed. Any failure removes every temp file created so far and leaves
// the original input untouched.
func (e *Engine) Edit(ctx context.Context, opts EditOptions) (string, error) {
	if len(opts.Tasks) == 0 {
		return "", fmt.Errorf("studio edition of %s has no task", opts.VideoUUID)
	}
	for _, task := range opts.Tasks {
		if err := task.Validate(); err != nil {
			return "", err
		}
	}

	if err := e.checkQuota(ctx, opts); err != nil {
		return "", err
	}

	var tempFiles []string
	cleanup := func() {
		for _, path := range tempFiles {
			if err := e.files.Remove(path); err != nil {
				e.log.Warn("cannot remove studio temp file",
					logger.String("path", path), logger.Error(err))
			}
		}
	}

	currentInput := opts.InputPath
	for i, task := range opts.Tasks {
		output := e.paths.TmpPath(uuid.New().String() + "-studio.mp4")
		tempFiles = append(tempFiles, output)

		cmd, err := e.buildTaskCommand(ctx, task, currentInput, output)
		if err != nil {
			cleanup()
			return "", fmt.Errorf("cannot build studio task %s: %w", task.Type, err)
		}

		// hold the lock across the whole chain; a replace must not race a
		// half-finished edition, so release fires on the last process start
		if i == len(opts.Tasks)-1 && opts.InputFileReleaser != nil {
			cmd.OnStart = opts.InputFileReleaser.Release
		}

		e.log.Info("running studio task",
			logger.String("video_uuid", opts.VideoUUID),
			logger.String("task", string(task.Type)),
			logger.Int("step", i+1))

		if err := e.run(ctx, cmd); err != nil {
			cleanup()
			return "", fmt.Errorf("studio task %s failed: %w", task.Type, err)
		}

		if currentInput != opts.InputPath {
			if err := e.files.Remove(currentInput); err != nil {
				e.log.Warn("cannot remove consumed intermediate",
					logger.String("path", currentInput), logger.Error(err))
			}
		}
		currentInput = output
	}

	return currentInput, nil
}

// checkQuota uses the input size as the upper bound of what the edition can
// produce
func (e *Engine) checkQuota(ctx context.Context, opts EditOptions) error {
	size, err := e.files.FileSize(opts.InputPath)
	if err != nil {
		return err
	}

	ok, err := e.quota.IsUserQuotaValid(ctx, opts.UserID, size)
	if err != nil {
		return err
	}
	if !ok {
		return ErrQuotaExceeded
	}
	return nil
}

func (e *Engine) buildTaskCommand(ctx context.Context, task models.StudioTask, input, output string) (*ffmpeg.Command, error) {
	switch task.Type {
	case models.StudioTaskCut:
		return e.buildCutCommand(ctx, task, input, output)
	case models.StudioTaskAddWatermark:
		return e.buildWatermarkCommand(ctx, task, input, output)
	case models.StudioTaskAddIntro:
		return e.buildIntroOutroCommand(ctx, task, input, output, true)
	case models.StudioTaskAddOutro:
		return e.buildIntroOutroCommand(ctx, task, input, output, false)
	default:
		return nil, fmt.Errorf("unknown studio task type %q", task.Type)
	}
}

func (e *Engine) newCommand(output string) *ffmpeg.Command {
	return ffmpeg.NewCommand(e.log, e.cfg.FFmpeg).
		Niceness(e.cfg.Niceness).
		Threads(e.cfg.TranscodingThreads).
		Output(output)
}

// buildCutCommand trims around a full re-encode so the cut is frame exact
func (e *Engine) buildCutCommand(ctx context.Context, task models.StudioTask, input, output string) (*ffmpeg.Command, error) {
	info, err := e.prober.Probe(ctx, input)
	if err != nil {
		return nil, err
	}

	cmd := e.newCommand(output).
		AddInput(input).
		InputDuration(info.DurationSeconds())

	if err := e.applyEncoders(ctx, cmd, info, input); err != nil {
		return nil, err
	}

	cmd.OutputOptions("-ss", formatSeconds(task.CutStart))
	if task.CutEnd > 0 {
		cmd.OutputOptions("-to", formatSeconds(task.CutEnd))
	}
	cmd.OutputOptions("-movflags", "faststart", "-f", "mp4")

	return cmd, nil
}

// buildWatermarkCommand scales the watermark image relative to the main
// video and overlays it in the top right corner. Audio passes through.
func (e *Engine) buildWatermarkCommand(ctx context.Context, task models.StudioTask, input, output string) (*ffmpeg.Command, error) {
	info, err := e.prober.Probe(ctx, input)
	if err != nil {
		return nil, err
	}

	cmd := e.newCommand(output).
		AddInput(input).
		AddInput(task.FilePath).
		InputDuration(info.DurationSeconds())

	if err := e.applyVideoEncoder(ctx, cmd, info, input); err != nil {
		return nil, err
	}

	filter := fmt.Sprintf(
		"[1][0:v]scale2ref=w=oh*mdar:h=ih*%g[watermark][main];"+
			"[main][watermark]overlay=x=main_w-overlay_w-(main_h*%g):y=main_h*%g[v]",
		watermarkSizeRatio, watermarkMarginRatio, watermarkMarginRatio,
	)

	cmd.ComplexFilter(filter).
		OutputOptions("-map", "[v]")
	if info.HasAudio() {
		cmd.OutputOptions("-map", "0:a", "-c:a", "copy")
	}
	cmd.OutputOptions("-movflags", "faststart", "-f", "mp4")

	return cmd, nil
}

// buildIntroOutroCommand letterboxes the clip to the main dimensions,
// synthesizes silence when the clip has no audio track but the main video
// does, and concatenates both in the requested order
func (e *Engine) buildIntroOutroCommand(ctx context.Context, task models.StudioTask, input, output string, isIntro bool) (*ffmpeg.Command, error) {
	mainInfo, err := e.prober.Probe(ctx, input)
	if err != nil {
		return nil, err
	}
	clipInfo, err := e.prober.Probe(ctx, task.FilePath)
	if err != nil {
		return nil, err
	}

	width, height := mainInfo.Dimensions()
	mainHasAudio := mainInfo.HasAudio()
	clipHasAudio := clipInfo.HasAudio()

	cmd := e.newCommand(output).
		AddInput(input).
		AddInput(task.FilePath).
		InputDuration(mainInfo.DurationSeconds() + clipInfo.DurationSeconds())

	needSilence := mainHasAudio && !clipHasAudio
	if needSilence {
		cmd.AddInput("anullsrc=channel_layout=stereo:sample_rate=44100",
			"-f", "lavfi",
			"-t", formatSeconds(clipInfo.DurationSeconds()))
	}

	if err := e.applyEncoders(ctx, cmd, mainInfo, input); err != nil {
		return nil, err
	}

	cmd.ComplexFilter(introOutroFilter(introOutroFilterParams{
		width:        width,
		height:       height,
		fps:          mainInfo.FPS(),
		isIntro:      isIntro,
		mainHasAudio: mainHasAudio,
		useSilence:   needSilence,
	}))

	cmd.OutputOptions("-map", "[v]")
	if mainHasAudio {
		cmd.OutputOptions("-map", "[a]")
	}
	cmd.OutputOptions("-movflags", "faststart", "-f", "mp4")

	return cmd, nil
}

type introOutroFilterParams struct {
	width, height int
	fps           int
	isIntro       bool
	mainHasAudio  bool
	useSilence    bool
}

// introOutroFilter builds the concat graph. Input 0 is the main video,
// input 1 the intro/outro clip, input 2 the optional silent track.
func introOutroFilter(p introOutroFilterParams) string {
	pad := fmt.Sprintf(
		"[1:v]scale=%d:%d:force_original_aspect_ratio=decrease,"+
			"pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d[clip]",
		p.width, p.height, p.width, p.height, p.fps,
	)

	clipAudio := "[1:a]"
	if p.useSilence {
		clipAudio = "[2:a]"
	}

	var first, second [2]string
	main := [2]string{"[0:v]", "[0:a]"}
	clip := [2]string{"[clip]", clipAudio}
	if p.isIntro {
		first, second = clip, main
	} else {
		first, second = main, clip
	}

	if !p.mainHasAudio {
		return fmt.Sprintf("%s;%s%sconcat=n=2:v=1:a=0[v]", pad, first[0], second[0])
	}

	return fmt.Sprintf("%s;%s%s%s%sconcat=n=2:v=1:a=1[v][a]",
		pad, first[0], first[1], second[0], second[1])
}

func (e *Engine) applyEncoders(ctx context.Context, cmd *ffmpeg.Command, info *ffmpeg.VideoInfo, input string) error {
	if err := e.applyVideoEncoder(ctx, cmd, info, input); err != nil {
		return err
	}
	return e.applyAudioEncoder(ctx, cmd, info, input)
}

// studio always re-encodes: passthrough cannot survive trims and filter
// graphs, so CanCopy* flags stay unset
func (e *Engine) applyVideoEncoder(ctx context.Context, cmd *ffmpeg.Command, info *ffmpeg.VideoInfo, input string) error {
	resolved, err := e.negotiator.ResolveEncoder(ctx, encoder.VideoTypeVOD, encoder.StreamTypeVideo, e.cfg.TranscodingProfile, encoder.BuilderParams{
		Input:        input,
		Resolution:   info.Resolution(),
		FPS:          info.FPS(),
		InputBitrate: info.Bitrate(),
	})
	if err != nil {
		return err
	}
	if resolved == nil {
		return fmt.Errorf("no viable encoder for video stream of %s", input)
	}

	cmd.OutputOptions("-c:v", resolved.Encoder)
	cmd.OutputOptions(resolved.Result.OutputOptions...)
	return nil
}

func (e *Engine) applyAudioEncoder(ctx context.Context, cmd *ffmpeg.Command, info *ffmpeg.VideoInfo, input string) error {
	audio := info.AudioStream()
	if audio == nil {
		cmd.OutputOptions("-an")
		return nil
	}

	bitrate, _ := strconv.Atoi(audio.BitRate)
	resolved, err := e.negotiator.ResolveEncoder(ctx, encoder.VideoTypeVOD, encoder.StreamTypeAudio, e.cfg.TranscodingProfile, encoder.BuilderParams{
		Input:        input,
		Resolution:   info.Resolution(),
		FPS:          info.FPS(),
		InputBitrate: bitrate,
	})
	if err != nil {
		return err
	}
	if resolved == nil {
		return fmt.Errorf("no viable encoder for audio stream of %s", input)
	}

	cmd.OutputOptions("-c:a", resolved.Encoder)
	cmd.OutputOptions(resolved.Result.OutputOptions...)
	return nil
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}
