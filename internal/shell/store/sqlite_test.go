package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/releaser/internal/core/release"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func createTestRecord(t *testing.T, store Store, target, host string, startedAt time.Time) release.DeployRecord {
	t.Helper()
	record := release.NewDeployRecord(target, host, "minor", "1.2.0", true, "release notes", startedAt)
	require.NoError(t, store.CreateDeployRecord(context.Background(), &record))
	return record
}

// =============================================================================
// Deploy Record Tests
// =============================================================================

func TestCreateAndGetDeployRecord(t *testing.T) {
	store := setupTestStore(t)
	record := createTestRecord(t, store, "prod", "web1", baseTime)

	got, err := store.GetDeployRecord(context.Background(), record.ID)
	require.NoError(t, err)

	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, "prod", got.Target)
	assert.Equal(t, "web1", got.Host)
	assert.Equal(t, "minor", got.Request)
	assert.Equal(t, "1.2.0", got.Version)
	assert.True(t, got.Created)
	assert.Equal(t, "release notes", got.Message)
	assert.Equal(t, release.DeployRunning, got.Status)
	assert.Equal(t, release.StageNotDeployed, got.Stage)
	assert.True(t, baseTime.Equal(got.StartedAt))
	assert.Nil(t, got.FinishedAt)
	assert.Empty(t, got.Pruned)
}

func TestCreateDeployRecord_DuplicateID(t *testing.T) {
	store := setupTestStore(t)
	record := createTestRecord(t, store, "prod", "web1", baseTime)

	err := store.CreateDeployRecord(context.Background(), &record)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateID))
}

func TestGetDeployRecord_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetDeployRecord(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "GetDeployRecord", storeErr.Op)
	assert.Equal(t, "missing", storeErr.ID)
}

func TestFinishDeployRecord(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	record := createTestRecord(t, store, "prod", "web1", baseTime)

	finished := record.Finish(release.StageActive, []string{"1.0.0", "1.0.1"}, nil, baseTime.Add(90*time.Second))
	require.NoError(t, store.FinishDeployRecord(ctx, &finished))

	got, err := store.GetDeployRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, release.DeploySucceeded, got.Status)
	assert.Equal(t, release.StageActive, got.Stage)
	assert.Equal(t, []string{"1.0.0", "1.0.1"}, got.Pruned)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, baseTime.Add(90*time.Second).Equal(*got.FinishedAt))

	err = store.FinishDeployRecord(ctx, &finished)
	assert.ErrorIs(t, err, ErrAlreadyFinished)
}

func TestFinishDeployRecord_Failure(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	record := createTestRecord(t, store, "prod", "web1", baseTime)

	cause := release.NewStepError("web1", "pre-activation hook", release.ErrHookFailure, errors.New("exit 1"))
	finished := record.Finish(release.StageEnvironmentReady, nil, cause, baseTime.Add(time.Minute))
	require.NoError(t, store.FinishDeployRecord(ctx, &finished))

	got, err := store.GetDeployRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, release.DeployFailed, got.Status)
	assert.Equal(t, release.StageEnvironmentReady, got.Stage)
	assert.Equal(t, cause.Error(), got.Error)
}

func TestFinishDeployRecord_Errors(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	unknown := release.NewDeployRecord("prod", "web1", "1.0.0", "1.0.0", false, "", baseTime).
		Finish(release.StageActive, nil, nil, baseTime)
	assert.ErrorIs(t, store.FinishDeployRecord(ctx, &unknown), ErrNotFound)

	running := createTestRecord(t, store, "prod", "web1", baseTime)
	assert.ErrorIs(t, store.FinishDeployRecord(ctx, &running), ErrInvalidData)
}

func TestFinishDeployRecord_RejectedFinishRollsBack(t *testing.T) {
	// The :memory: store has a single connection, so a transaction left open
	// by a rejected finish would block every later call.
	store := setupTestStore(t)
	ctx := context.Background()
	record := createTestRecord(t, store, "prod", "web1", baseTime)

	finished := record.Finish(release.StageActive, nil, nil, baseTime.Add(time.Minute))
	require.NoError(t, store.FinishDeployRecord(ctx, &finished))
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, store.FinishDeployRecord(ctx, &finished), ErrAlreadyFinished)
	}

	next := createTestRecord(t, store, "prod", "web1", baseTime.Add(time.Hour))
	done := next.Finish(release.StageActive, nil, nil, baseTime.Add(2*time.Hour))
	require.NoError(t, store.FinishDeployRecord(ctx, &done))

	records, err := store.ListDeployRecords(ctx, "prod", DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, release.DeploySucceeded, records[0].Status)
	assert.Equal(t, release.DeploySucceeded, records[1].Status)
}

func TestListDeployRecords(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := createTestRecord(t, store, "prod", "web1", baseTime)
	second := createTestRecord(t, store, "prod", "web2", baseTime.Add(time.Minute))
	third := createTestRecord(t, store, "prod", "web1", baseTime.Add(2*time.Minute))
	createTestRecord(t, store, "staging", "stage1", baseTime.Add(3*time.Minute))

	t.Run("by target newest first", func(t *testing.T) {
		records, err := store.ListDeployRecords(ctx, "prod", DefaultListOptions())
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, third.ID, records[0].ID)
		assert.Equal(t, second.ID, records[1].ID)
		assert.Equal(t, first.ID, records[2].ID)
	})

	t.Run("all targets", func(t *testing.T) {
		records, err := store.ListDeployRecords(ctx, "", DefaultListOptions())
		require.NoError(t, err)
		assert.Len(t, records, 4)
		assert.Equal(t, "staging", records[0].Target)
	})

	t.Run("by host", func(t *testing.T) {
		records, err := store.ListDeployRecords(ctx, "prod", ListOptions{Host: "web1"})
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, third.ID, records[0].ID)
		assert.Equal(t, first.ID, records[1].ID)
	})

	t.Run("pagination", func(t *testing.T) {
		records, err := store.ListDeployRecords(ctx, "prod", ListOptions{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, second.ID, records[0].ID)
	})

	t.Run("unknown target", func(t *testing.T) {
		records, err := store.ListDeployRecords(ctx, "nope", DefaultListOptions())
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestListOptions_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   ListOptions
		want ListOptions
	}{
		{"defaults", ListOptions{}, ListOptions{Limit: 100}},
		{"cap", ListOptions{Limit: 5000}, ListOptions{Limit: 1000}},
		{"negative offset", ListOptions{Limit: 10, Offset: -3}, ListOptions{Limit: 10}},
		{"host kept", ListOptions{Host: "web1"}, ListOptions{Limit: 100, Host: "web1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

// =============================================================================
// Transaction Tests
// =============================================================================

func TestWithTx_Commit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	record := release.NewDeployRecord("prod", "web1", "patch", "1.2.1", true, "", baseTime)

	err := store.WithTx(ctx, func(tx Store) error {
		return tx.CreateDeployRecord(ctx, &record)
	})
	require.NoError(t, err)

	_, err = store.GetDeployRecord(ctx, record.ID)
	assert.NoError(t, err)
}

func TestWithTx_Rollback(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	record := release.NewDeployRecord("prod", "web1", "patch", "1.2.1", true, "", baseTime)
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx Store) error {
		require.NoError(t, tx.CreateDeployRecord(ctx, &record))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.GetDeployRecord(ctx, record.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewSQLiteStore_File(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "releaser.db")

	store, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	record := createTestRecord(t, store, "prod", "web1", baseTime)
	require.NoError(t, store.Close())

	// Reopening must not reapply migrations.
	store, err = NewSQLiteStore(dsn)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetDeployRecord(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
}

func TestStoreError(t *testing.T) {
	err := NewStoreError("GetDeployRecord", "deploy_record", "abc", "deploy record not found", ErrNotFound)
	assert.Equal(t, "GetDeployRecord deploy_record abc: deploy record not found", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)

	err = NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	assert.Equal(t, "WithTx: failed to commit transaction", err.Error())
}
