package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/releaser/internal/core/release"
	"github.com/artpar/releaser/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

type stubReleases struct {
	records []release.ReleaseRecord
	err     error
	hosts   []string
}

func (s *stubReleases) Releases(_ context.Context, _ release.DeploymentTarget, host string) ([]release.ReleaseRecord, error) {
	s.hosts = append(s.hosts, host)
	return s.records, s.err
}

func setupTestHandler(t *testing.T, releases ReleaseLister) (*Handler, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	targets := map[string]release.DeploymentTarget{}
	for _, name := range []string{"prod", "beta"} {
		target, err := release.NewDeploymentTarget(release.DeploymentTarget{
			Name:       name,
			Repository: "git@example.com:acme/shop.git",
			Hosts:      []string{name + "1", name + "2"},
			BasePath:   "/sites/" + name,
			EnvPolicy:  release.EnvShared,
		})
		require.NoError(t, err)
		targets[name] = target
	}
	return NewHandler(s, targets, releases, nil), s
}

func doRequest(t *testing.T, h *Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func seedRecord(t *testing.T, s store.Store, target, host, version string, startedAt time.Time) release.DeployRecord {
	t.Helper()
	record := release.NewDeployRecord(target, host, version, version, false, "", startedAt)
	require.NoError(t, s.CreateDeployRecord(context.Background(), &record))
	return record
}

// =============================================================================
// Tests
// =============================================================================

func TestHealth(t *testing.T) {
	h, _ := setupTestHandler(t, nil)

	rec := doRequest(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "healthy", decode[HealthResponse](t, rec).Status)
}

func TestListTargets(t *testing.T) {
	h, _ := setupTestHandler(t, nil)

	rec := doRequest(t, h, "/api/v1/targets")
	require.Equal(t, http.StatusOK, rec.Code)

	targets := decode[[]TargetResponse](t, rec)
	require.Len(t, targets, 2)
	assert.Equal(t, "beta", targets[0].Name)
	assert.Equal(t, "prod", targets[1].Name)
	assert.Equal(t, []string{"prod1", "prod2"}, targets[1].Hosts)
	assert.Equal(t, release.EnvShared, targets[1].EnvPolicy)
	assert.Equal(t, 10, targets[1].Retain)
}

func TestGetTarget(t *testing.T) {
	h, _ := setupTestHandler(t, nil)

	rec := doRequest(t, h, "/api/v1/targets/prod")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/sites/prod", decode[TargetResponse](t, rec).BasePath)

	rec = doRequest(t, h, "/api/v1/targets/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "target_not_found", decode[ErrorResponse](t, rec).Code)
}

func TestListDeploys(t *testing.T) {
	h, s := setupTestHandler(t, nil)
	start := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	older := seedRecord(t, s, "prod", "prod1", "1.0.0", start)
	newer := seedRecord(t, s, "prod", "prod2", "1.1.0", start.Add(time.Hour))
	seedRecord(t, s, "beta", "beta1", "1.2.0", start.Add(2*time.Hour))

	rec := doRequest(t, h, "/api/v1/targets/prod/deploys")
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode[[]release.DeployRecord](t, rec)
	require.Len(t, records, 2)
	assert.Equal(t, newer.ID, records[0].ID)
	assert.Equal(t, older.ID, records[1].ID)

	rec = doRequest(t, h, "/api/v1/targets/prod/deploys?limit=1&offset=1")
	require.Equal(t, http.StatusOK, rec.Code)
	records = decode[[]release.DeployRecord](t, rec)
	require.Len(t, records, 1)
	assert.Equal(t, older.ID, records[0].ID)

	rec = doRequest(t, h, "/api/v1/targets/prod/deploys?host=prod2")
	require.Equal(t, http.StatusOK, rec.Code)
	records = decode[[]release.DeployRecord](t, rec)
	require.Len(t, records, 1)
	assert.Equal(t, "1.1.0", records[0].Version)

	rec = doRequest(t, h, "/api/v1/targets/nope/deploys")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetDeploy(t *testing.T) {
	h, s := setupTestHandler(t, nil)
	record := seedRecord(t, s, "prod", "prod1", "1.0.0", time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))

	rec := doRequest(t, h, "/api/v1/deploys/"+record.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[release.DeployRecord](t, rec)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, release.DeployRunning, got.Status)

	rec = doRequest(t, h, "/api/v1/deploys/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "deploy_not_found", decode[ErrorResponse](t, rec).Code)
}

func TestListReleases(t *testing.T) {
	created := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	stub := &stubReleases{records: []release.ReleaseRecord{
		{Version: "1.1.0", Path: "/sites/prod/releases/1.1.0", CreatedAt: created, Active: true},
	}}
	h, _ := setupTestHandler(t, stub)

	rec := doRequest(t, h, "/api/v1/targets/prod/hosts/prod2/releases")
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode[[]release.ReleaseRecord](t, rec)
	require.Len(t, records, 1)
	assert.True(t, records[0].Active)
	assert.Equal(t, []string{"prod2"}, stub.hosts)

	rec = doRequest(t, h, "/api/v1/targets/prod/hosts/beta1/releases")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	stub.err = errors.New("ssh: handshake failed")
	rec = doRequest(t, h, "/api/v1/targets/prod/hosts/prod1/releases")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "host_error", decode[ErrorResponse](t, rec).Code)
}

func TestListReleases_Disabled(t *testing.T) {
	h, _ := setupTestHandler(t, nil)

	rec := doRequest(t, h, "/api/v1/targets/prod/hosts/prod1/releases")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
