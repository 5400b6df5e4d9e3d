package encoder

import (
	"context"
	"errors"
	"testing"

	"gitlab.com/mediauz/video-pipeline/pkg/logger"
)

func newTestNegotiator(installed ...string) *Negotiator {
	n := NewNegotiator(logger.NewTest(), "ffmpeg")
	set := make(map[string]bool)
	for _, e := range installed {
		set[e] = true
	}
	n.probeInstalled = func(ctx context.Context) (map[string]bool, error) {
		return set, nil
	}
	return n
}

func staticBuilder(options ...string) OptionsBuilder {
	return func(p BuilderParams) (*BuilderResult, error) {
		return &BuilderResult{OutputOptions: options}, nil
	}
}

func TestResolveEncoderFallsBackToInstalledCandidate(t *testing.T) {
	n := newTestNegotiator("sw-encoder")
	n.SetPriorities(VideoTypeVOD, StreamTypeVideo, []string{"hw-encoder", "sw-encoder"})
	n.RegisterProfile(VideoTypeVOD, StreamTypeVideo, "hw-encoder", "default", staticBuilder("-hw"))
	n.RegisterProfile(VideoTypeVOD, StreamTypeVideo, "sw-encoder", "default", staticBuilder("-sw"))

	resolved, err := n.ResolveEncoder(context.Background(), VideoTypeVOD, StreamTypeVideo, "default", BuilderParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved == nil {
		t.Fatal("expected a resolved encoder")
	}
	if resolved.Encoder != "sw-encoder" {
		t.Fatalf("expected sw-encoder, got %s", resolved.Encoder)
	}
	if len(resolved.Result.OutputOptions) != 1 || resolved.Result.OutputOptions[0] != "-sw" {
		t.Fatalf("got options of the wrong builder: %v", resolved.Result.OutputOptions)
	}
}

func TestResolveEncoderReturnsNilWhenExhausted(t *testing.T) {
	n := newTestNegotiator() // nothing installed
	n.SetPriorities(VideoTypeVOD, StreamTypeVideo, []string{"libx264"})

	resolved, err := n.ResolveEncoder(context.Background(), VideoTypeVOD, StreamTypeVideo, "default", BuilderParams{})
	if err != nil {
		t.Fatalf("exhaustion must not be an error, got: %v", err)
	}
	if resolved != nil {
		t.Fatalf("expected nil result, got %+v", resolved)
	}
}

func TestResolveEncoderProfileFallsBackToDefault(t *testing.T) {
	n := newTestNegotiator("libx264")
	n.SetPriorities(VideoTypeVOD, StreamTypeVideo, []string{"libx264"})
	n.RegisterProfile(VideoTypeVOD, StreamTypeVideo, "libx264", "default", staticBuilder("-default"))

	resolved, err := n.ResolveEncoder(context.Background(), VideoTypeVOD, StreamTypeVideo, "does-not-exist", BuilderParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved == nil || resolved.Result.OutputOptions[0] != "-default" {
		t.Fatalf("expected the default profile builder, got %+v", resolved)
	}
}

func TestResolveEncoderSkipsCandidateWithoutProfiles(t *testing.T) {
	n := newTestNegotiator("no-profiles", "libx264")
	n.SetPriorities(VideoTypeVOD, StreamTypeVideo, []string{"no-profiles", "libx264"})
	n.RegisterProfile(VideoTypeVOD, StreamTypeVideo, "libx264", "default", staticBuilder())

	resolved, err := n.ResolveEncoder(context.Background(), VideoTypeVOD, StreamTypeVideo, "default", BuilderParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved == nil || resolved.Encoder != "libx264" {
		t.Fatalf("expected libx264, got %+v", resolved)
	}
}

func TestResolveEncoderTagsCopyResult(t *testing.T) {
	n := newTestNegotiator("aac")
	n.SetPriorities(VideoTypeVOD, StreamTypeAudio, []string{"aac"})
	n.RegisterProfile(VideoTypeVOD, StreamTypeAudio, "aac", "default", func(p BuilderParams) (*BuilderResult, error) {
		return &BuilderResult{CopyCodecs: true}, nil
	})

	resolved, err := n.ResolveEncoder(context.Background(), VideoTypeVOD, StreamTypeAudio, "default", BuilderParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved == nil || resolved.Encoder != EncoderCopy {
		t.Fatalf("expected copy tag, got %+v", resolved)
	}
}

func TestCapabilityCacheProbesOnce(t *testing.T) {
	probes := 0
	n := NewNegotiator(logger.NewTest(), "ffmpeg")
	n.probeInstalled = func(ctx context.Context) (map[string]bool, error) {
		probes++
		return map[string]bool{"libx264": true}, nil
	}
	n.SetPriorities(VideoTypeVOD, StreamTypeVideo, []string{"libx264"})
	n.RegisterProfile(VideoTypeVOD, StreamTypeVideo, "libx264", "default", staticBuilder())

	for i := 0; i < 3; i++ {
		if _, err := n.ResolveEncoder(context.Background(), VideoTypeVOD, StreamTypeVideo, "default", BuilderParams{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if probes != 1 {
		t.Fatalf("expected a single probe, got %d", probes)
	}

	n.ResetCapabilityCache()
	if _, err := n.ResolveEncoder(context.Background(), VideoTypeVOD, StreamTypeVideo, "default", BuilderParams{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if probes != 2 {
		t.Fatalf("expected a new probe after reset, got %d", probes)
	}
}

func TestResolveEncoderPropagatesBuilderError(t *testing.T) {
	wantErr := errors.New("bad params")
	n := newTestNegotiator("libx264")
	n.SetPriorities(VideoTypeVOD, StreamTypeVideo, []string{"libx264"})
	n.RegisterProfile(VideoTypeVOD, StreamTypeVideo, "libx264", "default", func(p BuilderParams) (*BuilderResult, error) {
		return nil, wantErr
	})

	_, err := n.ResolveEncoder(context.Background(), VideoTypeVOD, StreamTypeVideo, "default", BuilderParams{})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected builder error, got %v", err)
	}
}
