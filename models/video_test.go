package models

import "testing"

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to VideoState
		want     bool
	}{
		{StateToTranscode, StateTranscoding, true},
		{StateTranscoding, StatePublished, true},
		{StateTranscoding, StateToMoveToExternalStorage, true},
		{StateToMoveToExternalStorage, StateMovingToExternalStorage, true},
		{StateMovingToExternalStorage, StatePublished, true},
		{StateTranscoding, StateFailedTranscoding, true},
		{StateMovingToExternalStorage, StateFailedMoving, true},
		{StateFailedTranscoding, StateToTranscode, true},
		{StatePublished, StateToTranscode, true},
		{StateToTranscode, StatePublished, false},
		{StatePublished, StateTranscoding, false},
		{StateFailedMoving, StateTranscoding, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestGetMaxQualityFilePrefersWebVideos(t *testing.T) {
	video := &Video{
		Files: []*VideoFile{
			{Resolution: 480, Filename: "480.mp4"},
			{Resolution: 720, Filename: "720.mp4"},
		},
		Playlist: &VideoStreamingPlaylist{
			Files: []*VideoFile{{Resolution: 1080, Filename: "1080-fragmented.mp4"}},
		},
	}

	if got := video.GetMaxQualityFile(); got == nil || got.Filename != "720.mp4" {
		t.Fatalf("got %+v, want the 720p web file", got)
	}
}

func TestGetMaxQualityFileFallsBackToPlaylist(t *testing.T) {
	video := &Video{
		Playlist: &VideoStreamingPlaylist{
			Files: []*VideoFile{
				{Resolution: 480, Filename: "480-fragmented.mp4"},
				{Resolution: 720, Filename: "720-fragmented.mp4"},
			},
		},
	}

	if got := video.GetMaxQualityFile(); got == nil || got.Resolution != 720 {
		t.Fatalf("got %+v, want the 720p playlist file", got)
	}
}

func TestIsAudioOnly(t *testing.T) {
	audio := &Video{Files: []*VideoFile{{Resolution: ResolutionNoVideo, Filename: "audio.mp4"}}}
	if !audio.IsAudioOnly() {
		t.Fatal("audio-only video not detected")
	}

	regular := &Video{Files: []*VideoFile{{Resolution: 720, Filename: "720.mp4"}}}
	if regular.IsAudioOnly() {
		t.Fatal("regular video misdetected as audio only")
	}
}
