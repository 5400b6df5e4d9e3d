// Package paths centralizes artifact naming and on-disk / object-storage
// layout so engines and movers agree on where files live.
package paths

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"gitlab.com/mediauz/video-pipeline/config"
	"gitlab.com/mediauz/video-pipeline/models"
)

// GenerateWebVideoFilename names a progressive rendition
func GenerateWebVideoFilename(resolution int, extname string) string {
	return uuid.New().String() + "-" + fmt.Sprint(resolution) + extname
}

// GenerateHLSVideoFilename names a fragmented MP4 rendition
func GenerateHLSVideoFilename(resolution int) string {
	return fmt.Sprintf("%s-%d-fragmented.mp4", uuid.New().String(), resolution)
}

// HLSResolutionPlaylistFilename derives the child playlist name from its
// video filename
func HLSResolutionPlaylistFilename(videoFilename string) string {
	return strings.TrimSuffix(videoFilename, filepath.Ext(videoFilename)) + ".m3u8"
}

// GenerateHLSMasterPlaylistFilename names the master playlist
func GenerateHLSMasterPlaylistFilename() string {
	return uuid.New().String() + "-master.m3u8"
}

// GenerateHLSSegmentsSha256Filename names the integrity manifest
func GenerateHLSSegmentsSha256Filename() string {
	return uuid.New().String() + "-segments-sha256.json"
}

// Resolver maps artifacts to physical locations using the configured roots
type Resolver struct {
	cfg *config.Config
}

func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{cfg: cfg}
}

func (r *Resolver) TmpPath(name string) string {
	return filepath.Join(r.cfg.TmpDir, name)
}

func (r *Resolver) WebVideoPath(file *models.VideoFile) string {
	return filepath.Join(r.cfg.WebVideosDir, file.Filename)
}

// HLSOutputDir is the per-video directory holding every HLS artifact
func (r *Resolver) HLSOutputDir(video *models.Video) string {
	return filepath.Join(r.cfg.HLSDir, video.UUID)
}

func (r *Resolver) HLSFilePath(video *models.Video, filename string) string {
	return filepath.Join(r.HLSOutputDir(video), filename)
}

func (r *Resolver) OriginalFilePath(source *models.VideoSource) string {
	return filepath.Join(r.cfg.OriginalDir, source.Filename)
}

func (r *Resolver) CaptionPath(filename string) string {
	return filepath.Join(r.cfg.CaptionsDir, filename)
}

// PreviewPath is the still image shown before playback, used as the video
// track when merging an audio upload
func (r *Resolver) PreviewPath(video *models.Video) string {
	return filepath.Join(r.cfg.PreviewsDir, video.UUID+".jpg")
}

// Object storage keys. Web video keys are flat; HLS keys are prefixed by
// the video UUID so a playlist and its children share one directory.

func WebVideoKey(filename string) string {
	return filename
}

func HLSKey(videoUUID, filename string) string {
	return videoUUID + "/" + filename
}

func OriginalFileKey(filename string) string {
	return filename
}

func CaptionKey(filename string) string {
	return filename
}
