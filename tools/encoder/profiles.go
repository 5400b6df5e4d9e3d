package encoder

import (
	"strconv"

	"gitlab.com/mediauz/video-pipeline/models"
)

// registerDefaultProfiles fills the table with the built-in encoders and
// installs the priority lists. Every encoder in a priority list carries at
// least a "default" profile.
func registerDefaultProfiles(n *Negotiator) {
	for _, videoType := range []VideoType{VideoTypeVOD, VideoTypeLive} {
		n.RegisterProfile(videoType, StreamTypeVideo, "libx264", "default", x264DefaultBuilder)
		n.RegisterProfile(videoType, StreamTypeAudio, "libfdk_aac", "default", fdkAACDefaultBuilder)
		n.RegisterProfile(videoType, StreamTypeAudio, "aac", "default", aacDefaultBuilder)

		n.SetPriorities(videoType, StreamTypeVideo, []string{"libx264"})
		n.SetPriorities(videoType, StreamTypeAudio, []string{"libfdk_aac", "aac"})
	}
}

// x264DefaultBuilder produces a web compatible H.264 bitstream: capped
// bitrate from the ladder, faststart friendly GOP, stripped metadata
func x264DefaultBuilder(p BuilderParams) (*BuilderResult, error) {
	targetBitrate := models.MaxBitrateFor(p.Resolution, p.FPS)
	if p.InputBitrate > 0 && p.InputBitrate < targetBitrate {
		targetBitrate = p.InputBitrate
	}

	options := []string{
		"-preset", "veryfast",
		"-level:v", "3.1",
		"-b_strategy", "1",
		"-bf", "16",
		"-pix_fmt", "yuv420p",
		"-map_metadata", "-1",
		"-max_muxing_queue_size", "1024",
		"-maxrate", strconv.Itoa(targetBitrate),
		"-bufsize", strconv.Itoa(targetBitrate * 2),
	}

	if p.FPS > 0 {
		options = append(options, "-r", strconv.Itoa(p.FPS), "-g", strconv.Itoa(p.FPS*2))
	}

	return &BuilderResult{OutputOptions: options}, nil
}

func fdkAACDefaultBuilder(p BuilderParams) (*BuilderResult, error) {
	if p.CanCopyAudio {
		return &BuilderResult{CopyCodecs: true}, nil
	}

	return &BuilderResult{
		OutputOptions: []string{"-q:a", "5"},
	}, nil
}

func aacDefaultBuilder(p BuilderParams) (*BuilderResult, error) {
	if p.CanCopyAudio {
		return &BuilderResult{CopyCodecs: true}, nil
	}

	return &BuilderResult{
		OutputOptions: []string{"-b:a", strconv.Itoa(audioBitrate(p.InputBitrate))},
	}, nil
}

// audioBitrate caps the AAC track: sources below 384 kbit/s keep their
// rate, everything else is capped
func audioBitrate(inputBitrate int) int {
	const maxAudioBitrate = 384 * 1000
	if inputBitrate > 0 && inputBitrate < maxAudioBitrate {
		return inputBitrate
	}
	return maxAudioBitrate
}
