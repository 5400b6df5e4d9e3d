package vod

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gitlab.com/mediauz/video-pipeline/config"
	"gitlab.com/mediauz/video-pipeline/pkg/logger"
	"gitlab.com/mediauz/video-pipeline/tools/encoder"
	"gitlab.com/mediauz/video-pipeline/tools/ffmpeg"
)

type cannedProber struct {
	info *ffmpeg.VideoInfo
}

func (p *cannedProber) Probe(ctx context.Context, input string) (*ffmpeg.VideoInfo, error) {
	return p.info, nil
}

func sessionProbeInfo(formatName string) *ffmpeg.VideoInfo {
	return &ffmpeg.VideoInfo{
		Streams: []ffmpeg.Stream{
			{CodecType: "video", CodecName: "h264", Width: 1280, Height: 720, AvgFrameRate: "25/1"},
			{CodecType: "audio", CodecName: "aac", BitRate: "128000"},
		},
		Format: ffmpeg.Format{FormatName: formatName, Duration: "120.0"},
	}
}

func newRemuxTestEngine(t *testing.T, info *ffmpeg.VideoInfo) (*Engine, *[][]string) {
	t.Helper()

	cfg := &config.Config{
		FFmpeg:             "ffmpeg",
		TranscodingThreads: 2,
		HlsSegmentDuration: 4,
	}
	log := logger.NewTest()

	negotiator := encoder.NewNegotiator(log, cfg.FFmpeg).
		WithInstalledProbe(func(ctx context.Context) (map[string]bool, error) {
			return map[string]bool{"libx264": true, "aac": true}, nil
		})

	var runs [][]string
	eng := NewEngine(cfg, log, &cannedProber{info: info}, negotiator).
		WithRunner(func(ctx context.Context, cmd *ffmpeg.Command) error {
			runs = append(runs, cmd.Build())
			return os.WriteFile(cmd.OutputPath(), []byte("#EXTM3U\n"), 0o644)
		})

	return eng, &runs
}

func runHLSFromTS(t *testing.T, eng *Engine, dir string) {
	t.Helper()

	err := eng.Transcode(context.Background(), TranscodeOptions{
		Type:            TranscodeHLSFromTS,
		InputPath:       filepath.Join(dir, "session.ts"),
		OutputPath:      filepath.Join(dir, "abc-720.m3u8"),
		SegmentFilename: "abc-720-fragmented.mp4",
	})
	if err != nil {
		t.Fatalf("transcode failed: %v", err)
	}
}

// a finished live session arrives as concatenated MPEG-TS whose AAC track is
// framed as ADTS, which the fragmented MP4 container cannot carry as-is
func TestHLSFromTSAddsBitstreamFilterForADTSAudio(t *testing.T) {
	eng, runs := newRemuxTestEngine(t, sessionProbeInfo("mpegts"))
	runHLSFromTS(t, eng, t.TempDir())

	if len(*runs) != 1 {
		t.Fatalf("expected 1 encoder invocation, got %d", len(*runs))
	}
	args := strings.Join((*runs)[0], " ")
	if !strings.Contains(args, "-c copy") {
		t.Fatalf("remux re-encodes instead of copying: %s", args)
	}
	if !strings.Contains(args, "-bsf:a aac_adtstoasc") {
		t.Fatalf("missing ADTS repackaging filter: %s", args)
	}
	if !strings.Contains(args, "-f hls") {
		t.Fatalf("missing HLS muxer options: %s", args)
	}
}

func TestHLSFromTSSkipsBitstreamFilterForMP4Audio(t *testing.T) {
	eng, runs := newRemuxTestEngine(t, sessionProbeInfo("mov,mp4,m4a,3gp,3g2,mj2"))
	runHLSFromTS(t, eng, t.TempDir())

	if len(*runs) != 1 {
		t.Fatalf("expected 1 encoder invocation, got %d", len(*runs))
	}
	args := strings.Join((*runs)[0], " ")
	if strings.Contains(args, "aac_adtstoasc") {
		t.Fatalf("bitstream filter applied to non-ADTS audio: %s", args)
	}
	if !strings.Contains(args, "-c copy") {
		t.Fatalf("remux re-encodes instead of copying: %s", args)
	}
}
