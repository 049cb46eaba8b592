package orchestrator

import (
	"time"

	"github.com/google/uuid"
)

type JobType string

const (
	JobTypeProcessSource JobType = "process_source"
	JobTypePublishBatch  JobType = "publish_batch"
	JobTypeSweepSource   JobType = "sweep_source"
)

// Job carries identity and timing for one unit of cycle work, for logging.
// There is no retry machinery: a failed operation waits for its next cadence
// or the next cycle instead of being replayed.
type Job struct {
	ID         string
	Type       JobType
	SourceName string
	startedAt  time.Time
}

func NewJob(jobType JobType, sourceName string) *Job {
	return &Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		SourceName: sourceName,
		startedAt:  time.Now(),
	}
}

func (j *Job) Duration() time.Duration {
	return time.Since(j.startedAt)
}
