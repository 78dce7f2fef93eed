package workflow

import (
	"fmt"

	"github.com/hanyki111/workflow-tool/types"
)

// Engine answers stage-graph questions against a loaded configuration.
// It is stateless; the persisted state says where the workflow is, the
// engine says where it can go.
type Engine struct {
	cfg *types.Config
}

func NewEngine(cfg *types.Config) *Engine {
	return &Engine{cfg: cfg}
}

// Stage returns the stage definition for the given id.
func (e *Engine) Stage(id string) (types.Stage, error) {
	stage, ok := e.cfg.Stages[id]
	if !ok {
		return types.Stage{}, fmt.Errorf("%w: %q", ErrStageNotFound, id)
	}
	return stage, nil
}

// Transitions returns the outgoing transitions of a stage in
// declaration order.
func (e *Engine) Transitions(stageID string) ([]types.Transition, error) {
	stage, err := e.Stage(stageID)
	if err != nil {
		return nil, err
	}
	return stage.Transitions, nil
}

// FindTransition looks up the transition from stageID to target.
func (e *Engine) FindTransition(stageID, target string) (types.Transition, bool) {
	stage, ok := e.cfg.Stages[stageID]
	if !ok {
		return types.Transition{}, false
	}
	for _, t := range stage.Transitions {
		if t.Target == target {
			return t, true
		}
	}
	return types.Transition{}, false
}

// Targets lists all transition targets reachable from stageID.
func (e *Engine) Targets(stageID string) []string {
	stage, ok := e.cfg.Stages[stageID]
	if !ok {
		return nil
	}
	targets := make([]string, 0, len(stage.Transitions))
	for _, t := range stage.Transitions {
		targets = append(targets, t.Target)
	}
	return targets
}
