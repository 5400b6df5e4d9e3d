package models

// StorageLocation tells where the physical bytes of an artifact live
type StorageLocation string

const (
	StorageFileSystem StorageLocation = "file-system"
	StorageObject     StorageLocation = "object-storage"
)

// VideoState is the processing state of a video
type VideoState string

const (
	StateToTranscode             VideoState = "to-transcode"
	StateTranscoding             VideoState = "transcoding"
	StateToMoveToExternalStorage VideoState = "to-move-to-external-storage"
	StateMovingToExternalStorage VideoState = "moving-to-external-storage"
	StateToMoveToFileSystem      VideoState = "to-move-to-file-system"
	StateMovingToFileSystem      VideoState = "moving-to-file-system"
	StatePublished               VideoState = "published"
	StateFailedTranscoding       VideoState = "failed-transcoding"
	StateFailedMoving            VideoState = "failed-moving"
)

// legal state transitions of the pipeline. Failure states are reachable
// from any in-flight state and an operator re-run may leave them again.
var stateTransitions = map[VideoState][]VideoState{
	StateToTranscode:             {StateTranscoding, StateFailedTranscoding},
	StateTranscoding:             {StateToMoveToExternalStorage, StatePublished, StateFailedTranscoding},
	StateToMoveToExternalStorage: {StateMovingToExternalStorage, StateFailedMoving},
	StateMovingToExternalStorage: {StatePublished, StateFailedMoving},
	StateToMoveToFileSystem:      {StateMovingToFileSystem, StateFailedMoving},
	StateMovingToFileSystem:      {StatePublished, StateFailedMoving},
	StatePublished:               {StateToTranscode, StateToMoveToExternalStorage, StateToMoveToFileSystem},
	StateFailedTranscoding:       {StateToTranscode},
	StateFailedMoving:            {StateToMoveToExternalStorage, StateToMoveToFileSystem},
}

// CanTransitionTo reports whether next is a legal successor of s
func (s VideoState) CanTransitionTo(next VideoState) bool {
	for _, allowed := range stateTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Video is the entity the pipeline mutates. Only the fields the pipeline
// reads and writes are modelled here; the full CRUD surface lives outside.
type Video struct {
	ID       int64      `json:"id"`
	UUID     string     `json:"uuid"`
	Name     string     `json:"name"`
	State    VideoState `json:"state"`
	Duration float64    `json:"duration"`
	UserID   int64      `json:"user_id"`

	IsLive          bool `json:"is_live"`
	WaitTranscoding bool `json:"wait_transcoding"`

	Files    []*VideoFile            `json:"files"`
	Playlist *VideoStreamingPlaylist `json:"playlist"`
	Captions []*VideoCaption         `json:"captions"`
	Source   *VideoSource            `json:"source"`
}

// VideoFile is one rendition: either a progressive web video (PlaylistID == 0)
// or a fragmented-MP4 member of an HLS playlist
type VideoFile struct {
	ID         int64           `json:"id"`
	Resolution int             `json:"resolution"`
	FPS        int             `json:"fps"`
	Extname    string          `json:"extname"`
	Filename   string          `json:"filename"`
	Size       int64           `json:"size"`
	Storage    StorageLocation `json:"storage"`
	FileURL    string          `json:"file_url"`

	VideoID    int64 `json:"video_id"`
	PlaylistID int64 `json:"playlist_id"`
}

// VideoStreamingPlaylist is the HLS playlist of a video with its
// per-resolution files, master playlist and segments-hash manifest
type VideoStreamingPlaylist struct {
	ID      int64 `json:"id"`
	VideoID int64 `json:"video_id"`

	PlaylistFilename       string `json:"playlist_filename"`
	SegmentsSha256Filename string `json:"segments_sha256_filename"`

	PlaylistURL       string `json:"playlist_url"`
	SegmentsSha256URL string `json:"segments_sha256_url"`

	Storage StorageLocation `json:"storage"`
	Files   []*VideoFile    `json:"files"`
}

// VideoCaption is one subtitle track of a video
type VideoCaption struct {
	ID       int64           `json:"id"`
	VideoID  int64           `json:"video_id"`
	Language string          `json:"language"`
	Filename string          `json:"filename"`
	Storage  StorageLocation `json:"storage"`
	FileURL  string          `json:"file_url"`
}

// VideoSource is the originally uploaded file, kept for later re-runs
type VideoSource struct {
	ID         int64           `json:"id"`
	VideoID    int64           `json:"video_id"`
	Filename   string          `json:"filename"`
	KeptFile   bool            `json:"kept_file"`
	Resolution int             `json:"resolution"`
	Storage    StorageLocation `json:"storage"`
	FileURL    string          `json:"file_url"`
}

// GetMaxQualityFile returns the highest resolution file of the video,
// preferring web video files over HLS ones
func (v *Video) GetMaxQualityFile() *VideoFile {
	if f := maxQuality(v.Files); f != nil {
		return f
	}
	if v.Playlist != nil {
		return maxQuality(v.Playlist.Files)
	}
	return nil
}

// IsAudioOnly reports whether the max quality file carries no video stream
func (v *Video) IsAudioOnly() bool {
	f := v.GetMaxQualityFile()
	return f != nil && f.Resolution == ResolutionNoVideo
}

func maxQuality(files []*VideoFile) *VideoFile {
	var max *VideoFile
	for _, f := range files {
		if max == nil || f.Resolution > max.Resolution {
			max = f
		}
	}
	return max
}
