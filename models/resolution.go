package models

// ResolutionNoVideo marks an audio-only rendition
const ResolutionNoVideo = 0

// ResolutionFormat describes one rung of the transcoding ladder
type ResolutionFormat struct {
	Label  string
	Height int
	// Target bitrates in bits per second, for standard and high frame rates
	AverageBitrate int
	HighFPSBitrate int
}

// ResolutionLadder is ordered from lowest to highest quality
var ResolutionLadder = []ResolutionFormat{
	{Label: "144p", Height: 144, AverageBitrate: 320 * 1000, HighFPSBitrate: 320 * 1000},
	{Label: "240p", Height: 240, AverageBitrate: 600 * 1000, HighFPSBitrate: 600 * 1000},
	{Label: "360p", Height: 360, AverageBitrate: 1100 * 1000, HighFPSBitrate: 1600 * 1000},
	{Label: "480p", Height: 480, AverageBitrate: 1600 * 1000, HighFPSBitrate: 2400 * 1000},
	{Label: "720p", Height: 720, AverageBitrate: 2800 * 1000, HighFPSBitrate: 4400 * 1000},
	{Label: "1080p", Height: 1080, AverageBitrate: 5200 * 1000, HighFPSBitrate: 8000 * 1000},
	{Label: "1440p", Height: 1440, AverageBitrate: 10_000 * 1000, HighFPSBitrate: 15_000 * 1000},
	{Label: "2160p", Height: 2160, AverageBitrate: 22_000 * 1000, HighFPSBitrate: 34_000 * 1000},
}

const highFPSThreshold = 50

// MaxBitrateFor returns the bitrate cap for a resolution/fps pair.
// Unknown resolutions fall back to the nearest lower rung.
func MaxBitrateFor(resolution, fps int) int {
	var format *ResolutionFormat
	for i := range ResolutionLadder {
		if ResolutionLadder[i].Height <= resolution {
			format = &ResolutionLadder[i]
		}
	}
	if format == nil {
		return ResolutionLadder[0].AverageBitrate
	}

	if fps >= highFPSThreshold {
		return format.HighFPSBitrate
	}
	return format.AverageBitrate
}

// ComputeLowerResolutions returns the ladder rungs strictly below the
// input resolution, lowest first
func ComputeLowerResolutions(inputResolution int) []int {
	resolutions := []int{}
	for _, format := range ResolutionLadder {
		if format.Height < inputResolution {
			resolutions = append(resolutions, format.Height)
		}
	}
	return resolutions
}
