package vod

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const brokenPlaylist = `#EXTM3U
#EXT-X-VERSION:7
#EXT-X-TARGETDURATION:4
#EXT-X-MAP:URI="/var/storage/tmp/hls/abc-720-fragmented.mp4"
#EXTINF:4.000000,
#EXT-X-BYTERANGE:996528@1264
abc-720-fragmented.mp4
#EXT-X-ENDLIST
`

func TestFixHLSPlaylistRewritesInitSegmentURI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc-720.m3u8")
	if err := os.WriteFile(path, []byte(brokenPlaylist), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := FixHLSPlaylistIfNeeded(path, "abc-720-fragmented.mp4"); err != nil {
		t.Fatalf("fixup failed: %v", err)
	}

	fixed, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	gotLines := strings.Split(string(fixed), "\n")
	wantLines := strings.Split(brokenPlaylist, "\n")
	if len(gotLines) != len(wantLines) {
		t.Fatalf("line count changed: got %d want %d", len(gotLines), len(wantLines))
	}

	for i := range wantLines {
		if strings.HasPrefix(wantLines[i], "#EXT-X-MAP:") {
			want := `#EXT-X-MAP:URI="abc-720-fragmented.mp4"`
			if gotLines[i] != want {
				t.Fatalf("map line not rewritten: got %q want %q", gotLines[i], want)
			}
			continue
		}
		// every other line must stay byte identical
		if gotLines[i] != wantLines[i] {
			t.Fatalf("line %d changed: got %q want %q", i, gotLines[i], wantLines[i])
		}
	}
}

func TestFixHLSPlaylistLeavesCorrectPlaylistAlone(t *testing.T) {
	correct := strings.Replace(brokenPlaylist,
		`URI="/var/storage/tmp/hls/abc-720-fragmented.mp4"`,
		`URI="abc-720-fragmented.mp4"`, 1)

	path := filepath.Join(t.TempDir(), "abc-720.m3u8")
	if err := os.WriteFile(path, []byte(correct), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := FixHLSPlaylistIfNeeded(path, "abc-720-fragmented.mp4"); err != nil {
		t.Fatalf("fixup failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != correct {
		t.Fatal("playlist without a defect was modified")
	}
}

func TestFixHLSPlaylistIgnoresUnrelatedURI(t *testing.T) {
	unrelated := strings.Replace(brokenPlaylist,
		`URI="/var/storage/tmp/hls/abc-720-fragmented.mp4"`,
		`URI="/var/storage/tmp/hls/other-file.mp4"`, 1)

	path := filepath.Join(t.TempDir(), "abc-720.m3u8")
	if err := os.WriteFile(path, []byte(unrelated), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := FixHLSPlaylistIfNeeded(path, "abc-720-fragmented.mp4"); err != nil {
		t.Fatalf("fixup failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != unrelated {
		t.Fatal("URI of a different file was rewritten")
	}
}

func TestWriteMasterPlaylistUsesRelativeURIs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.m3u8")

	err := WriteMasterPlaylist(path, []MasterPlaylistEntry{
		{PlaylistFilename: "/some/dir/abc-720.m3u8", Bandwidth: 2_800_000, Width: 1280, Height: 720, FPS: 25},
		{PlaylistFilename: "abc-480.m3u8", Bandwidth: 1_600_000, Width: 854, Height: 480, FPS: 25},
	})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	text := string(content)
	if !strings.HasPrefix(text, "#EXTM3U\n") {
		t.Fatal("missing #EXTM3U header")
	}
	if strings.Contains(text, "/some/dir/") {
		t.Fatal("master playlist contains an absolute path")
	}
	if !strings.Contains(text, "BANDWIDTH=2800000,RESOLUTION=1280x720,FRAME-RATE=25") {
		t.Fatalf("missing stream inf attributes:\n%s", text)
	}
	if !strings.Contains(text, "\nabc-720.m3u8\n") || !strings.Contains(text, "\nabc-480.m3u8\n") {
		t.Fatalf("missing rendition URIs:\n%s", text)
	}
}

func TestWriteSegmentsSha256(t *testing.T) {
	dir := t.TempDir()
	segment := filepath.Join(dir, "abc-720-fragmented.mp4")
	if err := os.WriteFile(segment, []byte("segment-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	manifest := filepath.Join(dir, "segments-sha256.json")
	if err := WriteSegmentsSha256(manifest, []string{segment}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	data, err := os.ReadFile(manifest)
	if err != nil {
		t.Fatal(err)
	}

	var hashes map[string]string
	if err := json.Unmarshal(data, &hashes); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	digest, ok := hashes["abc-720-fragmented.mp4"]
	if !ok {
		t.Fatalf("segment missing from manifest: %v", hashes)
	}
	if len(digest) != 64 {
		t.Fatalf("digest is not a sha256 hex string: %q", digest)
	}
}
