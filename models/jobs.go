package models

import (
	"encoding/json"
	"fmt"
)

// JobType discriminates the queue payload union
type JobType string

const (
	JobOptimizeToWebVideo      JobType = "optimize-to-web-video"
	JobNewResolutionToWebVideo JobType = "new-resolution-to-web-video"
	JobMergeAudioToWebVideo    JobType = "merge-audio-to-web-video"
	JobNewResolutionToHLS      JobType = "new-resolution-to-hls"
	JobMoveToObjectStorage     JobType = "move-to-object-storage"
	JobMoveToFileSystem        JobType = "move-to-file-system"
	JobVideoStudioEdition      JobType = "video-studio-edition"
)

// JobPayload is one variant of the union
type JobPayload interface {
	JobType() JobType
}

// jobEnvelope is the wire format: the tag plus the raw variant body
type jobEnvelope struct {
	Type    JobType         `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type OptimizePayload struct {
	VideoUUID      string `json:"video_uuid"`
	IsNewVideo     bool   `json:"is_new_video"`
	QuickTranscode bool   `json:"quick_transcode"`
}

func (OptimizePayload) JobType() JobType { return JobOptimizeToWebVideo }

type NewWebVideoResolutionPayload struct {
	VideoUUID   string `json:"video_uuid"`
	Resolution  int    `json:"resolution"`
	FPS         int    `json:"fps"`
	IsNewVideo  bool   `json:"is_new_video"`
	HasChildren bool   `json:"has_children"`
}

func (NewWebVideoResolutionPayload) JobType() JobType { return JobNewResolutionToWebVideo }

type MergeAudioPayload struct {
	VideoUUID   string `json:"video_uuid"`
	Resolution  int    `json:"resolution"`
	IsNewVideo  bool   `json:"is_new_video"`
	HasChildren bool   `json:"has_children"`
}

func (MergeAudioPayload) JobType() JobType { return JobMergeAudioToWebVideo }

type NewHLSResolutionPayload struct {
	VideoUUID           string `json:"video_uuid"`
	Resolution          int    `json:"resolution"`
	FPS                 int    `json:"fps"`
	CopyCodecs          bool   `json:"copy_codecs"`
	DeleteWebVideoFiles bool   `json:"delete_web_video_files"`
	IsNewVideo          bool   `json:"is_new_video"`
	HasChildren         bool   `json:"has_children"`
}

func (NewHLSResolutionPayload) JobType() JobType { return JobNewResolutionToHLS }

type MoveStoragePayload struct {
	VideoUUID          string     `json:"video_uuid"`
	IsNewVideo         bool       `json:"is_new_video"`
	PreviousVideoState VideoState `json:"previous_video_state"`
}

func (MoveStoragePayload) JobType() JobType { return JobMoveToObjectStorage }

// MoveToFileSystemPayload is the reverse relocation direction
type MoveToFileSystemPayload struct {
	VideoUUID          string     `json:"video_uuid"`
	IsNewVideo         bool       `json:"is_new_video"`
	PreviousVideoState VideoState `json:"previous_video_state"`
}

func (MoveToFileSystemPayload) JobType() JobType { return JobMoveToFileSystem }

type StudioEditionPayload struct {
	VideoUUID string       `json:"video_uuid"`
	UserID    int64        `json:"user_id"`
	Tasks     []StudioTask `json:"tasks"`
}

func (StudioEditionPayload) JobType() JobType { return JobVideoStudioEdition }

// EncodeJobPayload builds the wire representation of a payload
func EncodeJobPayload(p JobPayload) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	return json.Marshal(jobEnvelope{Type: p.JobType(), Payload: body})
}

// DecodeJobPayload parses the wire representation. Unknown tags are
// rejected here, not at dispatch time.
func DecodeJobPayload(data []byte) (JobPayload, error) {
	var env jobEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("cannot parse job envelope: %w", err)
	}

	var p JobPayload
	switch env.Type {
	case JobOptimizeToWebVideo:
		p = &OptimizePayload{}
	case JobNewResolutionToWebVideo:
		p = &NewWebVideoResolutionPayload{}
	case JobMergeAudioToWebVideo:
		p = &MergeAudioPayload{}
	case JobNewResolutionToHLS:
		p = &NewHLSResolutionPayload{}
	case JobMoveToObjectStorage:
		p = &MoveStoragePayload{}
	case JobMoveToFileSystem:
		p = &MoveToFileSystemPayload{}
	case JobVideoStudioEdition:
		p = &StudioEditionPayload{}
	default:
		return nil, fmt.Errorf("unknown job type %q", env.Type)
	}

	if err := json.Unmarshal(env.Payload, p); err != nil {
		return nil, fmt.Errorf("cannot parse %s payload: %w", env.Type, err)
	}

	return p, nil
}
