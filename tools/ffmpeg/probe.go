package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"gitlab.com/mediauz/video-pipeline/pkg/logger"
)

// ProberI inspects media files. Satisfied by Prober; consumers take the
// interface so tests can feed canned probe results.
type ProberI interface {
	Probe(ctx context.Context, input string) (*VideoInfo, error)
}

// Prober inspects media files with the external ffprobe binary
type Prober struct {
	log    logger.Logger
	binary string
}

func NewProber(log logger.Logger, binary string) *Prober {
	return &Prober{log: log, binary: binary}
}

type VideoInfo struct {
	Streams []Stream `json:"streams,omitempty"`
	Format  Format   `json:"format,omitempty"`
}

type Stream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name,omitempty"`
	CodecType    string `json:"codec_type,omitempty"`
	Profile      string `json:"profile,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	RFrameRate   string `json:"r_frame_rate,omitempty"`
	AvgFrameRate string `json:"avg_frame_rate,omitempty"`
	Duration     string `json:"duration,omitempty"`
	BitRate      string `json:"bit_rate,omitempty"`
}

type Format struct {
	FormatName string `json:"format_name,omitempty"`
	Duration   string `json:"duration,omitempty"`
	BitRate    string `json:"bit_rate,omitempty"`
}

func (p *Prober) Probe(ctx context.Context, input string) (*VideoInfo, error) {
	args := []string{
		"-v", "error",
		"-show_streams",
		"-show_format",
		"-of", "json",
		input,
	}

	out, err := exec.CommandContext(ctx, p.binary, args...).Output()
	if err != nil {
		p.log.Error("ffprobe failed", logger.String("input", input), logger.Error(err))
		return nil, fmt.Errorf("cannot probe %s: %w", input, err)
	}

	var info VideoInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe output for %s: %w", input, err)
	}

	return &info, nil
}

// VideoStream returns the first video stream, or nil
func (i *VideoInfo) VideoStream() *Stream {
	return i.streamOfType("video")
}

// AudioStream returns the first audio stream, or nil
func (i *VideoInfo) AudioStream() *Stream {
	return i.streamOfType("audio")
}

func (i *VideoInfo) streamOfType(codecType string) *Stream {
	for idx := range i.Streams {
		if i.Streams[idx].CodecType == codecType {
			return &i.Streams[idx]
		}
	}
	return nil
}

func (i *VideoInfo) HasAudio() bool {
	return i.AudioStream() != nil
}

func (i *VideoInfo) HasVideo() bool {
	return i.VideoStream() != nil
}

// Dimensions returns width and height of the video stream, 0 when absent
func (i *VideoInfo) Dimensions() (int, int) {
	s := i.VideoStream()
	if s == nil {
		return 0, 0
	}
	return s.Width, s.Height
}

func (i *VideoInfo) IsPortrait() bool {
	w, h := i.Dimensions()
	return h > w
}

// Resolution is min(width, height): the ladder rung of the file
func (i *VideoInfo) Resolution() int {
	w, h := i.Dimensions()
	if w < h {
		return w
	}
	return h
}

// FPS parses the video stream frame rate, 0 when unknown
func (i *VideoInfo) FPS() int {
	s := i.VideoStream()
	if s == nil {
		return 0
	}

	for _, raw := range []string{s.AvgFrameRate, s.RFrameRate} {
		frames, seconds, ok := parseFrameRate(raw)
		if !ok || seconds == 0 {
			continue
		}
		if fps := frames / seconds; fps > 0 {
			return int(fps + 0.5)
		}
	}
	return 0
}

func (i *VideoInfo) DurationSeconds() float64 {
	d, _ := strconv.ParseFloat(i.Format.Duration, 64)
	return d
}

// Bitrate returns the container bitrate in bits per second
func (i *VideoInfo) Bitrate() int {
	b, _ := strconv.Atoi(i.Format.BitRate)
	return b
}

// CanQuickTranscode reports whether the file can be re-containered without
// re-encoding: H.264 baseline-compatible video, AAC (or no) audio, and a
// bitrate that does not exceed the ladder cap for its resolution
func (i *VideoInfo) CanQuickTranscode(maxBitrate int) bool {
	video := i.VideoStream()
	if video == nil || video.CodecName != "h264" {
		return false
	}
	if maxBitrate > 0 && i.Bitrate() > maxBitrate {
		return false
	}

	audio := i.AudioStream()
	if audio == nil {
		return true
	}
	return audio.CodecName == "aac"
}

// AudioIsADTSAAC reports whether the audio track is AAC carried in an ADTS
// container, which needs a bitstream filter when remuxing to fragmented MP4
func (i *VideoInfo) AudioIsADTSAAC() bool {
	audio := i.AudioStream()
	if audio == nil {
		return false
	}
	return audio.CodecName == "aac" && strings.Contains(strings.ToLower(i.Format.FormatName), "mpegts")
}

func parseFrameRate(raw string) (float64, float64, bool) {
	parts := strings.Split(raw, "/")
	if len(parts) != 2 {
		return 0, 0, false
	}
	frames, err1 := strconv.ParseFloat(parts[0], 64)
	seconds, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return frames, seconds, true
}
