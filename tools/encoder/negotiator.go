// Package encoder picks a usable encoder for a stream: it walks a priority
// ordered candidate list, skips encoders the installed ffmpeg build does not
// ship, and resolves the configured profile with fallback to "default".
package encoder

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"gitlab.com/mediauz/video-pipeline/pkg/logger"
)

type VideoType string

const (
	VideoTypeVOD  VideoType = "vod"
	VideoTypeLive VideoType = "live"
)

type StreamType string

const (
	StreamTypeVideo StreamType = "video"
	StreamTypeAudio StreamType = "audio"
)

// EncoderCopy tags a resolution result whose builder signalled that the
// source bitstream can be reused unmodified
const EncoderCopy = "copy"

// BuilderParams carries everything a profile builder may inspect
type BuilderParams struct {
	Input        string
	Resolution   int
	FPS          int
	InputBitrate int
	CanCopyAudio bool
}

// BuilderResult is the option set a profile builder produced
type BuilderResult struct {
	CopyCodecs    bool
	InputOptions  []string
	OutputOptions []string
}

// OptionsBuilder is one (encoder, profile) entry of the profile table
type OptionsBuilder func(p BuilderParams) (*BuilderResult, error)

// Resolved is the outcome of a successful negotiation
type Resolved struct {
	Encoder string
	Result  *BuilderResult
}

type profileKey struct {
	videoType  VideoType
	streamType StreamType
}

// Negotiator owns the profile table and the installed-encoder probe cache.
// The cache lives for the process lifetime; Reset exists for test teardown.
type Negotiator struct {
	log          logger.Logger
	ffmpegBinary string

	profiles   map[profileKey]map[string]map[string]OptionsBuilder
	priorities map[profileKey][]string

	mu        sync.Mutex
	installed map[string]bool

	// probeInstalled is swappable so tests can fake the binary probe
	probeInstalled func(ctx context.Context) (map[string]bool, error)
}

func NewNegotiator(log logger.Logger, ffmpegBinary string) *Negotiator {
	n := &Negotiator{
		log:          log,
		ffmpegBinary: ffmpegBinary,
		profiles:     make(map[profileKey]map[string]map[string]OptionsBuilder),
		priorities:   make(map[profileKey][]string),
	}
	n.probeInstalled = n.probeWithBinary

	registerDefaultProfiles(n)
	return n
}

// RegisterProfile adds or replaces a builder in the profile table
func (n *Negotiator) RegisterProfile(
	videoType VideoType, streamType StreamType,
	encoderName, profileName string,
	builder OptionsBuilder,
) {
	key := profileKey{videoType, streamType}
	if n.profiles[key] == nil {
		n.profiles[key] = make(map[string]map[string]OptionsBuilder)
	}
	if n.profiles[key][encoderName] == nil {
		n.profiles[key][encoderName] = make(map[string]OptionsBuilder)
	}
	n.profiles[key][encoderName][profileName] = builder
}

// SetPriorities replaces the candidate order for a (videoType, streamType)
func (n *Negotiator) SetPriorities(videoType VideoType, streamType StreamType, encoders []string) {
	n.priorities[profileKey{videoType, streamType}] = encoders
}

// ResolveEncoder walks the candidate list and returns the first usable
// builder result, tagged with the chosen encoder name or "copy". A nil
// result with a nil error means every candidate was exhausted: the caller
// must treat that as a fatal configuration error, never a retry.
func (n *Negotiator) ResolveEncoder(
	ctx context.Context,
	videoType VideoType, streamType StreamType,
	profileName string,
	params BuilderParams,
) (*Resolved, error) {
	key := profileKey{videoType, streamType}

	installed, err := n.installedEncoders(ctx)
	if err != nil {
		return nil, err
	}

	for _, candidate := range n.priorities[key] {
		if !installed[candidate] {
			n.log.Debug("encoder not compiled in, skipping",
				logger.String("encoder", candidate))
			continue
		}

		byProfile, ok := n.profiles[key][candidate]
		if !ok {
			continue
		}

		builder, ok := byProfile[profileName]
		if !ok {
			builder, ok = byProfile["default"]
			if !ok {
				continue
			}
			n.log.Debug("profile not found, falling back to default",
				logger.String("encoder", candidate),
				logger.String("profile", profileName))
		}

		result, err := builder(params)
		if err != nil {
			return nil, fmt.Errorf("profile builder for %s failed: %w", candidate, err)
		}

		chosen := candidate
		if result.CopyCodecs {
			chosen = EncoderCopy
		}

		return &Resolved{Encoder: chosen, Result: result}, nil
	}

	return nil, nil
}

// WithInstalledProbe replaces the binary capability probe. Tests only.
func (n *Negotiator) WithInstalledProbe(probe func(ctx context.Context) (map[string]bool, error)) *Negotiator {
	n.probeInstalled = probe
	return n
}

// ResetCapabilityCache drops the installed-encoder probe. Tests only.
func (n *Negotiator) ResetCapabilityCache() {
	n.mu.Lock()
	n.installed = nil
	n.mu.Unlock()
}

func (n *Negotiator) installedEncoders(ctx context.Context) (map[string]bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.installed != nil {
		return n.installed, nil
	}

	installed, err := n.probeInstalled(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot probe installed encoders: %w", err)
	}

	n.installed = installed
	return installed, nil
}

// probeWithBinary parses `ffmpeg -encoders`
func (n *Negotiator) probeWithBinary(ctx context.Context) (map[string]bool, error) {
	out, err := exec.CommandContext(ctx, n.ffmpegBinary, "-v", "quiet", "-encoders").Output()
	if err != nil {
		return nil, err
	}

	installed := make(map[string]bool)
	seenHeader := false

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		if !seenHeader {
			if strings.HasPrefix(strings.TrimSpace(line), "------") {
				seenHeader = true
			}
			continue
		}

		fields := strings.Fields(line)
		if len(fields) >= 2 {
			installed[fields[1]] = true
		}
	}

	return installed, nil
}
