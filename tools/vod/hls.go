package vod

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gitlab.com/mediauz/video-pipeline/tools/storage"
)

const extXMapPrefix = `#EXT-X-MAP:URI="`

// FixHLSPlaylistIfNeeded rewrites the initialization-segment URI of a child
// playlist from the full output path the encoder emitted to the bare
// segment filename. The substitution is exact: only an URI whose basename
// equals the expected segment filename is rewritten, every other line is
// left byte-identical.
func FixHLSPlaylistIfNeeded(playlistPath, segmentFilename string) error {
	lines, err := storage.ReadFileLines(playlistPath)
	if err != nil {
		return fmt.Errorf("cannot read playlist %s: %w", playlistPath, err)
	}

	changed := false

	for i, line := range lines {
		if !strings.HasPrefix(line, extXMapPrefix) {
			continue
		}

		rest := line[len(extXMapPrefix):]
		quote := strings.IndexByte(rest, '"')
		if quote < 0 {
			continue
		}

		uri := rest[:quote]
		if uri == segmentFilename || filepath.Base(uri) != segmentFilename {
			continue
		}

		lines[i] = extXMapPrefix + segmentFilename + `"` + rest[quote+1:]
		changed = true
	}

	if !changed {
		return nil
	}

	return storage.WriteLinesToFile(lines, playlistPath)
}

// MasterPlaylistEntry is one rendition line of the master playlist
type MasterPlaylistEntry struct {
	PlaylistFilename string
	Bandwidth        int
	Width            int
	Height           int
	FPS              int
}

// WriteMasterPlaylist writes the master playlist. URIs are relative
// filenames only, never paths.
func WriteMasterPlaylist(path string, entries []MasterPlaylistEntry) error {
	lines := []string{"#EXTM3U", "#EXT-X-VERSION:3"}

	for _, e := range entries {
		streamInf := fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d", e.Bandwidth)
		if e.Width > 0 && e.Height > 0 {
			streamInf += fmt.Sprintf(",RESOLUTION=%dx%d", e.Width, e.Height)
		}
		if e.FPS > 0 {
			streamInf += fmt.Sprintf(",FRAME-RATE=%d", e.FPS)
		}

		lines = append(lines, streamInf, filepath.Base(e.PlaylistFilename))
	}

	return storage.WriteLinesToFile(lines, path)
}

// WriteSegmentsSha256 writes the integrity manifest: a JSON object mapping
// each segment filename to the hex digest of its bytes
func WriteSegmentsSha256(manifestPath string, segmentPaths []string) error {
	hashes := make(map[string]string, len(segmentPaths))

	for _, segmentPath := range segmentPaths {
		digest, err := sha256File(segmentPath)
		if err != nil {
			return err
		}
		hashes[filepath.Base(segmentPath)] = digest
	}

	data, err := json.Marshal(hashes)
	if err != nil {
		return err
	}

	return os.WriteFile(manifestPath, data, 0o644)
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("cannot hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
