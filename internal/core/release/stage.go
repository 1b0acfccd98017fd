package release

import "fmt"

// =============================================================================
// Deploy Stages
// =============================================================================

// Stage is the lifecycle position of the release being deployed on one host.
type Stage string

const (
	StageNotDeployed      Stage = "not_deployed"
	StageMaterializing    Stage = "materializing"
	StageEnvironmentReady Stage = "environment_ready"
	StagePreActivated     Stage = "pre_activated"
	StageActive           Stage = "active"
)

// stageOrder lists stages in the only order a deploy may visit them.
var stageOrder = []Stage{
	StageNotDeployed,
	StageMaterializing,
	StageEnvironmentReady,
	StagePreActivated,
	StageActive,
}

// ValidateTransition checks that to directly follows from.
// Active is terminal; pruning old releases is not a stage.
func ValidateTransition(from, to Stage) error {
	for i, s := range stageOrder {
		if s != from {
			continue
		}
		if i+1 < len(stageOrder) && stageOrder[i+1] == to {
			return nil
		}
		break
	}
	return fmt.Errorf("invalid stage transition from %s to %s", from, to)
}

// IsTerminal reports whether no further transition is possible.
func (s Stage) IsTerminal() bool {
	return s == StageActive
}

// Tracker records the stage a host deploy has reached.
type Tracker struct {
	stage Stage
}

// NewTracker starts at StageNotDeployed.
func NewTracker() *Tracker {
	return &Tracker{stage: StageNotDeployed}
}

// Stage returns the current stage.
func (t *Tracker) Stage() Stage {
	return t.stage
}

// Advance moves to the next stage, rejecting skips and repeats.
func (t *Tracker) Advance(to Stage) error {
	if err := ValidateTransition(t.stage, to); err != nil {
		return err
	}
	t.stage = to
	return nil
}
