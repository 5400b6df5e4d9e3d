package ffmpeg

import (
	"strings"
	"testing"

	"gitlab.com/mediauz/video-pipeline/pkg/logger"
)

func TestBuildArgumentOrder(t *testing.T) {
	cmd := NewCommand(logger.NewTest(), "ffmpeg").
		AddInput("in.mp4", "-ss", "5").
		Threads(2).
		OutputOptions("-c:v", "libx264").
		Output("out.mp4")

	args := strings.Join(cmd.Build(), " ")

	// per-input options must precede their -i, output options the output
	for _, window := range []string{
		"-ss 5 -i in.mp4",
		"-c:v libx264 out.mp4",
		"-threads 2",
	} {
		if !strings.Contains(args, window) {
			t.Fatalf("args %q missing %q", args, window)
		}
	}
	if !strings.HasSuffix(args, "out.mp4") {
		t.Fatalf("output path is not the final argument: %q", args)
	}
}

func TestBuildTwicePanics(t *testing.T) {
	cmd := NewCommand(logger.NewTest(), "ffmpeg").AddInput("in.mp4").Output("out.mp4")
	cmd.Build()

	defer func() {
		if recover() == nil {
			t.Fatal("second Build did not panic")
		}
	}()
	cmd.Build()
}

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		duration float64
		want     int
		ok       bool
	}{
		{"halfway", "frame= 100 fps=25 time=00:00:30.00 bitrate=2000k", 60, 50, true},
		{"past the end clamps to 100", "time=00:02:30.00 speed=1x", 60, 100, true},
		{"start", "time=00:00:00.00 speed=1x", 60, 0, true},
		{"hours carry", "time=01:00:00.00 speed=1x", 7200, 50, true},
		{"no time field", "frame= 100 fps=25", 60, 0, false},
		{"mangled timestamp", "time=xx:yy:zz extra", 60, 0, false},
		{"unknown duration", "time=00:00:30.00", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseProgressLine(tt.line, tt.duration)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("got (%d, %v), want (%d, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}
