package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"gitlab.com/mediauz/video-pipeline/config"
	"gitlab.com/mediauz/video-pipeline/models"
	"gitlab.com/mediauz/video-pipeline/pkg/logger"
	"gitlab.com/mediauz/video-pipeline/pkg/repository"
	"gitlab.com/mediauz/video-pipeline/tools/paths"
)

type fakeObjectStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectStorage() *fakeObjectStorage {
	return &fakeObjectStorage{objects: make(map[string][]byte)}
}

func (f *fakeObjectStorage) StoreObject(ctx context.Context, localPath, bucket, key string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	f.objects[bucket+"/"+key] = data
	f.mu.Unlock()

	return "https://cdn.example.com/" + bucket + "/" + key, nil
}

func (f *fakeObjectStorage) RemoveObject(ctx context.Context, bucket, key string) error {
	f.mu.Lock()
	delete(f.objects, bucket+"/"+key)
	f.mu.Unlock()
	return nil
}

func (f *fakeObjectStorage) MakeAvailable(ctx context.Context, bucket, key, destination string) error {
	f.mu.Lock()
	data, ok := f.objects[bucket+"/"+key]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("object %s/%s not found", bucket, key)
	}

	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return err
	}
	return os.WriteFile(destination, data, 0o644)
}

func (f *fakeObjectStorage) has(bucket, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[bucket+"/"+key]
	return ok
}

// failingObjectStorage refuses stores of keys with the given suffix and
// delegates everything else
type failingObjectStorage struct {
	*fakeObjectStorage
	refuseSuffix string
}

func (f *failingObjectStorage) StoreObject(ctx context.Context, localPath, bucket, key string) (string, error) {
	if strings.HasSuffix(key, f.refuseSuffix) {
		return "", fmt.Errorf("store of %s refused", key)
	}
	return f.fakeObjectStorage.StoreObject(ctx, localPath, bucket, key)
}

func newMoverTestSetup(t *testing.T) (*Mover, *config.Config, *paths.Resolver, *fakeObjectStorage, *repository.MemoryRepository) {
	t.Helper()

	object := newFakeObjectStorage()
	mover, cfg, resolver, repo := newMoverWithObject(t, object)
	return mover, cfg, resolver, object, repo
}

func newMoverWithObject(t *testing.T, object ObjectStorageI) (*Mover, *config.Config, *paths.Resolver, *repository.MemoryRepository) {
	t.Helper()

	root := t.TempDir()
	cfg := &config.Config{
		WebVideosDir:             filepath.Join(root, "web-videos"),
		HLSDir:                   filepath.Join(root, "hls"),
		OriginalDir:              filepath.Join(root, "original"),
		CaptionsDir:              filepath.Join(root, "captions"),
		TmpDir:                   filepath.Join(root, "tmp"),
		WebVideosBucket:          "web-videos",
		StreamingPlaylistsBucket: "streaming-playlists",
		OriginalFileBucket:       "original-video-files",
		CaptionsBucket:           "captions",
	}

	log := logger.NewTest()
	files := NewFileStorage(cfg, log)
	resolver := paths.NewResolver(cfg)
	repo := repository.NewMemoryRepository()

	return NewMover(cfg, log, files, object, resolver, repo), cfg, resolver, repo
}

func writeTestFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("content of "+filepath.Base(path)), 0o644); err != nil {
		t.Fatal(err)
	}
}

func hlsTestVideo(t *testing.T, resolver *paths.Resolver) *models.Video {
	t.Helper()

	video := &models.Video{
		ID:    1,
		UUID:  "11111111-2222-3333-4444-555555555555",
		State: models.StateToMoveToExternalStorage,
		Files: []*models.VideoFile{
			{Resolution: 720, Filename: "web-720.mp4", Storage: models.StorageFileSystem, VideoID: 1},
		},
		Captions: []*models.VideoCaption{
			{Language: "en", Filename: "caption-en.vtt", Storage: models.StorageFileSystem, VideoID: 1},
		},
		Playlist: &models.VideoStreamingPlaylist{
			ID:                     7,
			VideoID:                1,
			PlaylistFilename:       "master.m3u8",
			SegmentsSha256Filename: "segments-sha256.json",
			Storage:                models.StorageFileSystem,
			Files: []*models.VideoFile{
				{Resolution: 720, Filename: "hls-720-fragmented.mp4", Storage: models.StorageFileSystem, VideoID: 1, PlaylistID: 7},
			},
		},
	}

	writeTestFile(t, resolver.WebVideoPath(video.Files[0]))
	writeTestFile(t, resolver.HLSFilePath(video, "hls-720-fragmented.mp4"))
	writeTestFile(t, resolver.HLSFilePath(video, "hls-720-fragmented.m3u8"))
	writeTestFile(t, resolver.HLSFilePath(video, "master.m3u8"))
	writeTestFile(t, resolver.HLSFilePath(video, "segments-sha256.json"))
	writeTestFile(t, resolver.CaptionPath("caption-en.vtt"))

	return video
}

func TestMoveToObjectStorageMovesEveryArtifact(t *testing.T) {
	mover, _, resolver, object, repo := newMoverTestSetup(t)
	video := hlsTestVideo(t, resolver)
	if err := repo.Save(context.Background(), video); err != nil {
		t.Fatal(err)
	}

	if err := mover.MoveToObjectStorage(context.Background(), video); err != nil {
		t.Fatalf("move failed: %v", err)
	}

	if !object.has("web-videos", "web-720.mp4") {
		t.Fatal("web file missing from object storage")
	}
	for _, key := range []string{
		video.UUID + "/hls-720-fragmented.mp4",
		video.UUID + "/hls-720-fragmented.m3u8",
		video.UUID + "/master.m3u8",
		video.UUID + "/segments-sha256.json",
	} {
		if !object.has("streaming-playlists", key) {
			t.Fatalf("HLS artifact %s missing from object storage", key)
		}
	}

	if video.Files[0].Storage != models.StorageObject || video.Files[0].FileURL == "" {
		t.Fatalf("web file record not updated: %+v", video.Files[0])
	}
	if video.Playlist.Storage != models.StorageObject {
		t.Fatal("playlist storage field not flipped")
	}
	if video.Playlist.PlaylistURL == "" || video.Playlist.SegmentsSha256URL == "" {
		t.Fatal("playlist URLs not recorded")
	}
	if !object.has("captions", "caption-en.vtt") || video.Captions[0].Storage != models.StorageObject {
		t.Fatal("caption not relocated")
	}

	if _, err := os.Stat(resolver.WebVideoPath(video.Files[0])); !os.IsNotExist(err) {
		t.Fatal("local web file still present after relocation")
	}
	if _, err := os.Stat(resolver.HLSFilePath(video, "master.m3u8")); !os.IsNotExist(err) {
		t.Fatal("local master playlist still present after relocation")
	}
}

// a crash between the remote store and the local delete leaves both copies;
// the re-run must succeed and end with exactly the remote copy
func TestMoveToObjectStorageRerunAfterPartialMove(t *testing.T) {
	mover, _, resolver, object, repo := newMoverTestSetup(t)
	video := hlsTestVideo(t, resolver)
	if err := repo.Save(context.Background(), video); err != nil {
		t.Fatal(err)
	}

	// simulate the crash window for the web file: stored and recorded,
	// local copy never deleted
	localPath := resolver.WebVideoPath(video.Files[0])
	url, err := object.StoreObject(context.Background(), localPath, "web-videos", "web-720.mp4")
	if err != nil {
		t.Fatal(err)
	}
	video.Files[0].Storage = models.StorageObject
	video.Files[0].FileURL = url

	if err := mover.MoveToObjectStorage(context.Background(), video); err != nil {
		t.Fatalf("re-run failed: %v", err)
	}

	if !object.has("web-videos", "web-720.mp4") {
		t.Fatal("remote copy disappeared during re-run")
	}
	if _, err := os.Stat(localPath); !os.IsNotExist(err) {
		t.Fatal("stale local copy survived the re-run")
	}
	if video.Playlist.Storage != models.StorageObject {
		t.Fatal("re-run did not finish the playlist relocation")
	}
}

func TestMovePlaylistFlipsStorageOnlyAfterAllChildren(t *testing.T) {
	mover, _, resolver, object, repo := newMoverTestSetup(t)
	video := hlsTestVideo(t, resolver)
	if err := repo.Save(context.Background(), video); err != nil {
		t.Fatal(err)
	}

	// fail the manifest upload by deleting its local file and the remote
	// fallback, so the playlist move cannot complete
	if err := os.Remove(resolver.HLSFilePath(video, "segments-sha256.json")); err != nil {
		t.Fatal(err)
	}

	if err := mover.MoveToObjectStorage(context.Background(), video); err == nil {
		t.Fatal("expected the playlist move to fail")
	}

	if video.Playlist.Storage != models.StorageFileSystem {
		t.Fatal("playlist storage flipped despite an incomplete move")
	}
	// the moved child keeps its own record so the re-run skips it
	if video.Playlist.Files[0].Storage != models.StorageObject {
		t.Fatal("moved child file was not recorded")
	}
	if !object.has("streaming-playlists", video.UUID+"/hls-720-fragmented.mp4") {
		t.Fatal("moved child segment missing from object storage")
	}
}

// the child playlist must be remote before its rendition is recorded as
// relocated: a crash between the two would otherwise strand the playlist
// with zero copies of the child
func TestMoveHLSStoresChildPlaylistBeforeRecordingFile(t *testing.T) {
	object := &failingObjectStorage{
		fakeObjectStorage: newFakeObjectStorage(),
		refuseSuffix:      "-fragmented.m3u8",
	}
	mover, _, resolver, repo := newMoverWithObject(t, object)
	video := hlsTestVideo(t, resolver)
	if err := repo.Save(context.Background(), video); err != nil {
		t.Fatal(err)
	}

	if err := mover.MoveToObjectStorage(context.Background(), video); err == nil {
		t.Fatal("expected the move to fail on the child playlist")
	}

	if video.Playlist.Files[0].Storage != models.StorageFileSystem {
		t.Fatal("rendition recorded as relocated before its child playlist was stored")
	}
	if video.Playlist.Storage != models.StorageFileSystem {
		t.Fatal("playlist storage flipped despite an incomplete move")
	}
	// both local copies survive for the re-run
	for _, name := range []string{"hls-720-fragmented.mp4", "hls-720-fragmented.m3u8"} {
		if _, err := os.Stat(resolver.HLSFilePath(video, name)); err != nil {
			t.Fatalf("local %s lost during the failed move: %v", name, err)
		}
	}
}

// crash window for an HLS rendition: segment and child playlist stored, the
// record saved, local copies never deleted. The re-run must end with exactly
// one remote copy of each artifact and a finished playlist.
func TestMoveRerunFinishesHLSChildPlaylist(t *testing.T) {
	mover, _, resolver, object, repo := newMoverTestSetup(t)
	video := hlsTestVideo(t, resolver)
	if err := repo.Save(context.Background(), video); err != nil {
		t.Fatal(err)
	}

	child := video.Playlist.Files[0]
	for _, name := range []string{"hls-720-fragmented.mp4", "hls-720-fragmented.m3u8"} {
		localPath := resolver.HLSFilePath(video, name)
		if _, err := object.StoreObject(context.Background(), localPath, "streaming-playlists", paths.HLSKey(video.UUID, name)); err != nil {
			t.Fatal(err)
		}
	}
	child.Storage = models.StorageObject
	child.FileURL = "https://cdn.example.com/streaming-playlists/" + paths.HLSKey(video.UUID, child.Filename)

	if err := mover.MoveToObjectStorage(context.Background(), video); err != nil {
		t.Fatalf("re-run failed: %v", err)
	}

	if !object.has("streaming-playlists", video.UUID+"/hls-720-fragmented.m3u8") {
		t.Fatal("child playlist missing from object storage after re-run")
	}
	for _, name := range []string{"hls-720-fragmented.mp4", "hls-720-fragmented.m3u8"} {
		if _, err := os.Stat(resolver.HLSFilePath(video, name)); !os.IsNotExist(err) {
			t.Fatalf("stale local %s survived the re-run", name)
		}
	}
	if video.Playlist.Storage != models.StorageObject {
		t.Fatal("re-run did not finish the playlist relocation")
	}
}

func TestMoveToFileSystemRestoresArtifacts(t *testing.T) {
	mover, _, resolver, object, repo := newMoverTestSetup(t)

	video := &models.Video{
		ID:   1,
		UUID: "66666666-7777-8888-9999-000000000000",
		Files: []*models.VideoFile{
			{Resolution: 720, Filename: "web-720.mp4", Storage: models.StorageObject, FileURL: "https://cdn.example.com/web-videos/web-720.mp4", VideoID: 1},
		},
	}
	if err := repo.Save(context.Background(), video); err != nil {
		t.Fatal(err)
	}
	object.objects["web-videos/web-720.mp4"] = []byte("remote bytes")

	if err := mover.MoveToFileSystem(context.Background(), video); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	localPath := resolver.WebVideoPath(video.Files[0])
	if _, err := os.Stat(localPath); err != nil {
		t.Fatalf("local copy missing after restore: %v", err)
	}
	if video.Files[0].Storage != models.StorageFileSystem || video.Files[0].FileURL != "" {
		t.Fatalf("file record not restored: %+v", video.Files[0])
	}
	if object.has("web-videos", "web-720.mp4") {
		t.Fatal("remote copy still present after restore")
	}
}
