package api

import "github.com/artpar/releaser/internal/core/release"

// =============================================================================
// Response Types
// =============================================================================

// TargetResponse describes a configured deployment target.
type TargetResponse struct {
	Name       string            `json:"name"`
	Repository string            `json:"repository"`
	Hosts      []string          `json:"hosts"`
	BasePath   string            `json:"base_path"`
	EnvPolicy  release.EnvPolicy `json:"env_policy"`
	SourceDir  string            `json:"source_dir"`
	Retain     int               `json:"retain"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

func targetToResponse(t release.DeploymentTarget) TargetResponse {
	return TargetResponse{
		Name:       t.Name,
		Repository: t.Repository,
		Hosts:      t.Hosts,
		BasePath:   t.BasePath,
		EnvPolicy:  t.EnvPolicy,
		SourceDir:  t.SourceDir,
		Retain:     t.Retain,
	}
}
