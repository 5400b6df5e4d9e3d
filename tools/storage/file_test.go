package storage

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestReadFileLinesSplitsWithoutTerminators(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playlist.m3u8")
	if err := os.WriteFile(path, []byte("#EXTM3U\n#EXT-X-VERSION:7\nsegment.mp4\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	lines, err := ReadFileLines(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	want := []string{"#EXTM3U", "#EXT-X-VERSION:7", "segment.mp4"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
}

func TestWriteLinesToFileTerminatesEveryLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := WriteLinesToFile([]string{"one", "two"}, path); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "one\ntwo\n" {
		t.Fatalf("content = %q, want %q", content, "one\ntwo\n")
	}
}
