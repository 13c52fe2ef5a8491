package entity

import (
	"time"

	"github.com/antonkozlov/imgmatch/constants"
)

// Job is a consumed work item. Immutable once parsed; the resource reference
// is the image path, which also keys per-resource serialization.
type Job struct {
	JobID      string                      `json:"job_id"`
	ImageID    string                      `json:"image_id,omitempty"`
	ImagePath  string                      `json:"image_path,omitempty"`
	Kind       constants.JobKind           `json:"-"`
	Action     constants.MaintenanceAction `json:"action,omitempty"`
	EnqueuedAt time.Time                   `json:"enqueued_at,omitempty"`
}

// Resource returns the serialization key for the job. Maintenance jobs have
// no resource of their own and share a single key.
func (j *Job) Resource() string {
	if j.Kind == constants.JobKindMaintenance {
		return "maintenance"
	}
	return j.ImagePath
}
