package models

import "fmt"

// StudioTaskType discriminates the edit task union
type StudioTaskType string

const (
	StudioTaskCut          StudioTaskType = "cut"
	StudioTaskAddWatermark StudioTaskType = "add-watermark"
	StudioTaskAddIntro     StudioTaskType = "add-intro"
	StudioTaskAddOutro     StudioTaskType = "add-outro"
)

// StudioTask is one step of a studio edition chain. Fields are used
// depending on Type: Cut* for cut, FilePath for the three others.
type StudioTask struct {
	Type StudioTaskType `json:"type"`

	CutStart float64 `json:"cut_start,omitempty"`
	CutEnd   float64 `json:"cut_end,omitempty"`

	FilePath string `json:"file_path,omitempty"`
}

// Validate checks the task carries the fields its type requires
func (t StudioTask) Validate() error {
	switch t.Type {
	case StudioTaskCut:
		if t.CutStart < 0 || (t.CutEnd != 0 && t.CutEnd <= t.CutStart) {
			return fmt.Errorf("invalid cut range [%f, %f]", t.CutStart, t.CutEnd)
		}
		return nil
	case StudioTaskAddWatermark, StudioTaskAddIntro, StudioTaskAddOutro:
		if t.FilePath == "" {
			return fmt.Errorf("task %s requires a file path", t.Type)
		}
		return nil
	default:
		return fmt.Errorf("unknown studio task type %q", t.Type)
	}
}
