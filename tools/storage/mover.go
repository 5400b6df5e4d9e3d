package storage

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"gitlab.com/mediauz/video-pipeline/config"
	"gitlab.com/mediauz/video-pipeline/models"
	"gitlab.com/mediauz/video-pipeline/pkg/logger"
	"gitlab.com/mediauz/video-pipeline/pkg/repository"
	"gitlab.com/mediauz/video-pipeline/tools/paths"
)

const uploadParallelism = 4

// Mover relocates finished artifacts between the local filesystem and
// object storage. The ordering contract for every artifact is: remote copy
// written, model field saved, then and only then the source copy deleted.
// A crash in between leaves both copies present, so a re-run is safe.
type Mover struct {
	cfg    *config.Config
	log    logger.Logger
	files  FileOperationsI
	object ObjectStorageI
	paths  *paths.Resolver
	repo   repository.VideoRepository
}

func NewMover(
	cfg *config.Config,
	log logger.Logger,
	files FileOperationsI,
	object ObjectStorageI,
	resolver *paths.Resolver,
	repo repository.VideoRepository,
) *Mover {
	return &Mover{
		cfg:    cfg,
		log:    log,
		files:  files,
		object: object,
		paths:  resolver,
		repo:   repo,
	}
}

// MoveToObjectStorage relocates every artifact of the video: web files,
// the HLS playlist with all its children, and the kept original source
func (m *Mover) MoveToObjectStorage(ctx context.Context, video *models.Video) error {
	for _, file := range video.Files {
		if err := m.moveWebFileToObjectStorage(ctx, video, file); err != nil {
			return fmt.Errorf("cannot move web file %s: %w", file.Filename, err)
		}
	}

	if video.Playlist != nil {
		if err := m.movePlaylistToObjectStorage(ctx, video, video.Playlist); err != nil {
			return fmt.Errorf("cannot move playlist of %s: %w", video.UUID, err)
		}
	}

	for _, caption := range video.Captions {
		if err := m.moveCaptionToObjectStorage(ctx, video, caption); err != nil {
			return fmt.Errorf("cannot move caption %s: %w", caption.Filename, err)
		}
	}

	if source := video.Source; source != nil && source.KeptFile {
		if err := m.moveOriginalToObjectStorage(ctx, video, source); err != nil {
			return fmt.Errorf("cannot move original file of %s: %w", video.UUID, err)
		}
	}

	return nil
}

func (m *Mover) moveCaptionToObjectStorage(ctx context.Context, video *models.Video, caption *models.VideoCaption) error {
	localPath := m.paths.CaptionPath(caption.Filename)

	if caption.Storage == models.StorageObject {
		return m.files.Remove(localPath)
	}

	url, err := m.object.StoreObject(ctx, localPath, m.cfg.CaptionsBucket, paths.CaptionKey(caption.Filename))
	if err != nil {
		return err
	}

	caption.Storage = models.StorageObject
	caption.FileURL = url
	if err := m.repo.Save(ctx, video); err != nil {
		return err
	}

	return m.files.Remove(localPath)
}

func (m *Mover) moveWebFileToObjectStorage(ctx context.Context, video *models.Video, file *models.VideoFile) error {
	localPath := m.paths.WebVideoPath(file)

	// already recorded as remote: a crash between store and delete can
	// leave a stale local copy behind, drop it so one copy remains
	if file.Storage == models.StorageObject {
		return m.files.Remove(localPath)
	}

	url, err := m.object.StoreObject(ctx, localPath, m.cfg.WebVideosBucket, paths.WebVideoKey(file.Filename))
	if err != nil {
		return err
	}

	file.Storage = models.StorageObject
	file.FileURL = url
	if err := m.repo.Save(ctx, video); err != nil {
		return err
	}

	return m.files.Remove(localPath)
}

// movePlaylistToObjectStorage uploads every child file plus the master
// playlist and the segments-hash manifest before flipping the playlist's
// own storage field. A partially moved playlist keeps reporting
// file-system storage and is finished by the next run.
func (m *Mover) movePlaylistToObjectStorage(ctx context.Context, video *models.Video, playlist *models.VideoStreamingPlaylist) error {
	if playlist.Storage == models.StorageObject {
		return m.files.RemoveDir(m.paths.HLSOutputDir(video))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(uploadParallelism)

	urls := make([]string, len(playlist.Files))
	for i, file := range playlist.Files {
		if file.Storage == models.StorageObject {
			continue
		}

		i, file := i, file
		group.Go(func() error {
			localPath := m.paths.HLSFilePath(video, file.Filename)
			url, err := m.object.StoreObject(groupCtx, localPath, m.cfg.StreamingPlaylistsBucket, paths.HLSKey(video.UUID, file.Filename))
			if err != nil {
				return err
			}
			urls[i] = url
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	for i, file := range playlist.Files {
		childPlaylist := paths.HLSResolutionPlaylistFilename(file.Filename)

		if file.Storage == models.StorageObject {
			// the child playlist was stored before the record flipped, so
			// only stale local copies can remain here
			if err := m.files.Remove(m.paths.HLSFilePath(video, file.Filename)); err != nil {
				return err
			}
			if err := m.files.Remove(m.paths.HLSFilePath(video, childPlaylist)); err != nil {
				return err
			}
			continue
		}

		// the child playlist moves with its rendition and must be remote
		// before the save records the file as relocated, otherwise a crash
		// between the two strands it with zero copies
		if _, err := m.object.StoreObject(ctx, m.paths.HLSFilePath(video, childPlaylist), m.cfg.StreamingPlaylistsBucket, paths.HLSKey(video.UUID, childPlaylist)); err != nil {
			return err
		}

		file.Storage = models.StorageObject
		file.FileURL = urls[i]
		if err := m.repo.Save(ctx, video); err != nil {
			return err
		}

		if err := m.files.Remove(m.paths.HLSFilePath(video, file.Filename)); err != nil {
			return err
		}
		if err := m.files.Remove(m.paths.HLSFilePath(video, childPlaylist)); err != nil {
			return err
		}
	}

	masterURL, err := m.storeAndRemoveHLSFile(ctx, video, playlist.PlaylistFilename)
	if err != nil {
		return err
	}
	shaURL, err := m.storeAndRemoveHLSFile(ctx, video, playlist.SegmentsSha256Filename)
	if err != nil {
		return err
	}

	playlist.PlaylistURL = masterURL
	playlist.SegmentsSha256URL = shaURL
	playlist.Storage = models.StorageObject

	return m.repo.Save(ctx, video)
}

func (m *Mover) storeAndRemoveHLSFile(ctx context.Context, video *models.Video, filename string) (string, error) {
	localPath := m.paths.HLSFilePath(video, filename)

	url, err := m.object.StoreObject(ctx, localPath, m.cfg.StreamingPlaylistsBucket, paths.HLSKey(video.UUID, filename))
	if err != nil {
		return "", err
	}

	return url, m.files.Remove(localPath)
}

func (m *Mover) moveOriginalToObjectStorage(ctx context.Context, video *models.Video, source *models.VideoSource) error {
	localPath := m.paths.OriginalFilePath(source)

	if source.Storage == models.StorageObject {
		return m.files.Remove(localPath)
	}

	url, err := m.object.StoreObject(ctx, localPath, m.cfg.OriginalFileBucket, paths.OriginalFileKey(source.Filename))
	if err != nil {
		return err
	}

	source.Storage = models.StorageObject
	source.FileURL = url
	if err := m.repo.Save(ctx, video); err != nil {
		return err
	}

	return m.files.Remove(localPath)
}

// MoveToFileSystem is the reverse direction: download, record, then delete
// the remote copy
func (m *Mover) MoveToFileSystem(ctx context.Context, video *models.Video) error {
	for _, file := range video.Files {
		if err := m.moveWebFileToFileSystem(ctx, video, file); err != nil {
			return fmt.Errorf("cannot restore web file %s: %w", file.Filename, err)
		}
	}

	if playlist := video.Playlist; playlist != nil && playlist.Storage == models.StorageObject {
		if err := m.movePlaylistToFileSystem(ctx, video, playlist); err != nil {
			return fmt.Errorf("cannot restore playlist of %s: %w", video.UUID, err)
		}
	}

	for _, caption := range video.Captions {
		if err := m.moveCaptionToFileSystem(ctx, video, caption); err != nil {
			return fmt.Errorf("cannot restore caption %s: %w", caption.Filename, err)
		}
	}

	if source := video.Source; source != nil && source.KeptFile && source.Storage == models.StorageObject {
		if err := m.moveOriginalToFileSystem(ctx, video, source); err != nil {
			return fmt.Errorf("cannot restore original file of %s: %w", video.UUID, err)
		}
	}

	return nil
}

func (m *Mover) moveCaptionToFileSystem(ctx context.Context, video *models.Video, caption *models.VideoCaption) error {
	if caption.Storage == models.StorageFileSystem {
		return nil
	}

	key := paths.CaptionKey(caption.Filename)
	if err := m.object.MakeAvailable(ctx, m.cfg.CaptionsBucket, key, m.paths.CaptionPath(caption.Filename)); err != nil {
		return err
	}

	caption.Storage = models.StorageFileSystem
	caption.FileURL = ""
	if err := m.repo.Save(ctx, video); err != nil {
		return err
	}

	return m.object.RemoveObject(ctx, m.cfg.CaptionsBucket, key)
}

func (m *Mover) moveOriginalToFileSystem(ctx context.Context, video *models.Video, source *models.VideoSource) error {
	key := paths.OriginalFileKey(source.Filename)
	if err := m.object.MakeAvailable(ctx, m.cfg.OriginalFileBucket, key, m.paths.OriginalFilePath(source)); err != nil {
		return err
	}

	source.Storage = models.StorageFileSystem
	source.FileURL = ""
	if err := m.repo.Save(ctx, video); err != nil {
		return err
	}

	return m.object.RemoveObject(ctx, m.cfg.OriginalFileBucket, key)
}

func (m *Mover) moveWebFileToFileSystem(ctx context.Context, video *models.Video, file *models.VideoFile) error {
	if file.Storage == models.StorageFileSystem {
		return nil
	}

	key := paths.WebVideoKey(file.Filename)
	if err := m.object.MakeAvailable(ctx, m.cfg.WebVideosBucket, key, m.paths.WebVideoPath(file)); err != nil {
		return err
	}

	file.Storage = models.StorageFileSystem
	file.FileURL = ""
	if err := m.repo.Save(ctx, video); err != nil {
		return err
	}

	return m.object.RemoveObject(ctx, m.cfg.WebVideosBucket, key)
}

func (m *Mover) movePlaylistToFileSystem(ctx context.Context, video *models.Video, playlist *models.VideoStreamingPlaylist) error {
	filenames := []string{playlist.PlaylistFilename, playlist.SegmentsSha256Filename}
	for _, file := range playlist.Files {
		filenames = append(filenames, file.Filename, paths.HLSResolutionPlaylistFilename(file.Filename))
	}

	for _, filename := range filenames {
		key := paths.HLSKey(video.UUID, filename)
		if err := m.object.MakeAvailable(ctx, m.cfg.StreamingPlaylistsBucket, key, m.paths.HLSFilePath(video, filename)); err != nil {
			return err
		}
	}

	for _, file := range playlist.Files {
		file.Storage = models.StorageFileSystem
		file.FileURL = ""
	}
	playlist.Storage = models.StorageFileSystem
	playlist.PlaylistURL = ""
	playlist.SegmentsSha256URL = ""

	if err := m.repo.Save(ctx, video); err != nil {
		return err
	}

	for _, filename := range filenames {
		if err := m.object.RemoveObject(ctx, m.cfg.StreamingPlaylistsBucket, paths.HLSKey(video.UUID, filename)); err != nil {
			return err
		}
	}

	return nil
}
