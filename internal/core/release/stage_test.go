package release

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition_ForwardSteps(t *testing.T) {
	assert.NoError(t, ValidateTransition(StageNotDeployed, StageMaterializing))
	assert.NoError(t, ValidateTransition(StageMaterializing, StageEnvironmentReady))
	assert.NoError(t, ValidateTransition(StageEnvironmentReady, StagePreActivated))
	assert.NoError(t, ValidateTransition(StagePreActivated, StageActive))
}

func TestValidateTransition_Rejected(t *testing.T) {
	assert.Error(t, ValidateTransition(StageNotDeployed, StageActive))
	assert.Error(t, ValidateTransition(StageActive, StageNotDeployed))
	assert.Error(t, ValidateTransition(StagePreActivated, StageMaterializing))
	assert.Error(t, ValidateTransition(StageMaterializing, StageMaterializing))
}

func TestTracker_Advance(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, StageNotDeployed, tr.Stage())

	require.NoError(t, tr.Advance(StageMaterializing))
	require.Error(t, tr.Advance(StagePreActivated))
	assert.Equal(t, StageMaterializing, tr.Stage())

	require.NoError(t, tr.Advance(StageEnvironmentReady))
	require.NoError(t, tr.Advance(StagePreActivated))
	require.NoError(t, tr.Advance(StageActive))
	assert.True(t, tr.Stage().IsTerminal())
	assert.Error(t, tr.Advance(StageActive))
}
