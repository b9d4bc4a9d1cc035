package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// LegState is the state of one camera's recording leg within a session.
type LegState string

const (
	LegArmed     LegState = "armed"
	LegRecording LegState = "recording"
	LegRotating  LegState = "rotating"
	LegFinished  LegState = "finished"
	LegFailed    LegState = "failed"
)

// RecordingLeg is one camera's recording output within a RecordingSession.
type RecordingLeg struct {
	CameraID        CameraID  `json:"camera_id"`
	State           LegState  `json:"state"`
	CurrentFilePath string    `json:"current_file_path"`
	Files           []string  `json:"files"`
	FileSequence    uint32    `json:"file_sequence"`
	BytesWritten    int64     `json:"bytes_written"`
	DurationSeconds float64   `json:"duration_seconds"`
	FailureReason   string    `json:"failure_reason,omitempty"`
}

// RecordingSession groups simultaneous per-camera recordings started and
// stopped as a unit.
type RecordingSession struct {
	ID        string                  `json:"id" gorm:"primaryKey"`
	Name      string                  `json:"name,omitempty"`
	StartedAt time.Time               `json:"started_at"`
	EndedAt   *time.Time              `json:"ended_at,omitempty"`
	Cameras   map[CameraID]*RecordingLeg `json:"cameras" gorm:"-"`

	// CamerasJSON is the persisted encoding of Cameras; GORM stores the
	// session as a single JSON blob rather than normalized leg rows, per the
	// "monolithic backend" resolution documented in the design ledger.
	CamerasJSON []byte `json:"-" gorm:"column:cameras_json"`
}

// Active reports whether the session has not yet ended.
func (s *RecordingSession) Active() bool {
	return s.EndedAt == nil
}

// BeforeSave serializes Cameras into CamerasJSON so GORM persists the
// per-leg state as a single blob rather than normalized rows.
func (s *RecordingSession) BeforeSave(tx *gorm.DB) error {
	data, err := json.Marshal(s.Cameras)
	if err != nil {
		return err
	}
	s.CamerasJSON = data
	return nil
}

// AfterFind deserializes CamerasJSON back into Cameras.
func (s *RecordingSession) AfterFind(tx *gorm.DB) error {
	if len(s.CamerasJSON) == 0 {
		return nil
	}
	return json.Unmarshal(s.CamerasJSON, &s.Cameras)
}

// DiskStatus reports recording-root free space against configured
// thresholds.
type DiskStatus struct {
	FreeGB       float64 `json:"free_gb"`
	WarningGB    float64 `json:"warning_gb"`
	MinGB        float64 `json:"min_gb"`
	BelowWarning bool    `json:"below_warning"`
	BelowMin     bool    `json:"below_min"`
}
