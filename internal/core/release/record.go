package release

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Deploy Records
// =============================================================================

// DeployStatus is the outcome of one host deploy.
type DeployStatus string

const (
	DeployRunning   DeployStatus = "running"
	DeploySucceeded DeployStatus = "succeeded"
	DeployFailed    DeployStatus = "failed"
)

// DeployRecord is the history entry of one deploy on one host.
type DeployRecord struct {
	ID         string       `json:"id"`
	Target     string       `json:"target"`
	Host       string       `json:"host"`
	Request    string       `json:"request"`
	Version    string       `json:"version"`
	Created    bool         `json:"created"`
	Message    string       `json:"message,omitempty"`
	Status     DeployStatus `json:"status"`
	Stage      Stage        `json:"stage"`
	Error      string       `json:"error,omitempty"`
	Pruned     []string     `json:"pruned,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// NewDeployRecord starts a record for a host deploy.
func NewDeployRecord(target, host, request, version string, created bool, message string, now time.Time) DeployRecord {
	return DeployRecord{
		ID:        uuid.New().String(),
		Target:    target,
		Host:      host,
		Request:   request,
		Version:   version,
		Created:   created,
		Message:   message,
		Status:    DeployRunning,
		Stage:     StageNotDeployed,
		StartedAt: now,
	}
}

// Finish returns the record completed at stage with err as its outcome.
// A non-fatal err (a retention failure) still counts as success.
func (r DeployRecord) Finish(stage Stage, pruned []string, err error, now time.Time) DeployRecord {
	r.Stage = stage
	r.Pruned = append([]string(nil), pruned...)
	r.FinishedAt = &now
	r.Status = DeploySucceeded
	if err != nil {
		r.Error = err.Error()
	}
	if IsFatal(err) {
		r.Status = DeployFailed
	}
	return r
}

// IsFinished reports whether the deploy has completed.
func (r DeployRecord) IsFinished() bool {
	return r.FinishedAt != nil
}
