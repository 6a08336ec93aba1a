package models

import (
	"errors"
	"time"
)

var ErrRunNotFound = errors.New("analysis run not found")

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is one queued or finished analysis request.
type Run struct {
	ID          string          `json:"id"`
	Keyword     string          `json:"keyword"`
	Status      RunStatus       `json:"status"`
	Report      *AnalysisReport `json:"report,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func (r *Run) Finished() bool {
	return r.Status == RunCompleted || r.Status == RunFailed
}
