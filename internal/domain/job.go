package domain

import "time"

// AnalysisJob is the status record for a single on-demand orchestrator run
// or an async mining request. Exactly one orchestrator job may be running at
// a time; see the single-flight guard in internal/orchestrator.
type AnalysisJob struct {
	ID        string
	Kind      string
	Status    string
	Progress  float64
	Error     string
	ResultRef map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

func (j AnalysisJob) GetID() string           { return j.ID }
func (j AnalysisJob) GetBucketID() string     { return "" }
func (j *AnalysisJob) SetCreatedAt(t time.Time) { j.CreatedAt = t }
func (j *AnalysisJob) SetUpdatedAt(t time.Time) { j.UpdatedAt = t }

// IsTerminal reports whether the job has reached a status it cannot leave.
func (j AnalysisJob) IsTerminal() bool {
	return j.Status == JobDone || j.Status == JobFailed
}
