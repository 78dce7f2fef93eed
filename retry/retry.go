// Package retry tracks bounded retry progress for failing actions. The
// loop spans process invocations: each failed check advances the
// persisted counter by one, and the caller (a human or a driving agent)
// remediates and re-invokes. Nothing here sleeps or re-executes.
package retry

import (
	"context"
	"fmt"

	"github.com/hanyki111/workflow-tool/storage"
	"github.com/hanyki111/workflow-tool/types"
)

// Decision is the orchestrator's verdict after one recorded failure.
type Decision struct {
	// Terminal means attempts are exhausted; checking the item now
	// requires an explicit skip-action override.
	Terminal   bool
	Attempts   int
	MaxRetries int
	Hint       string
}

// String renders the retry guidance surfaced to the reinvoking driver.
func (d Decision) String() string {
	if d.Terminal {
		return fmt.Sprintf("retries exhausted (%d/%d); use --skip-action to override", d.Attempts, d.MaxRetries)
	}
	msg := fmt.Sprintf("needs retry (attempt %d/%d)", d.Attempts, d.MaxRetries)
	if d.Hint != "" {
		msg += ": " + d.Hint
	}
	return msg
}

// ItemKey identifies one checklist item's retry record. Index identity
// is stable because the checklist snapshot never reorders and any stage
// change clears all records.
func ItemKey(stageID string, index int) string {
	return fmt.Sprintf("%s#%d", stageID, index)
}

// Orchestrator persists retry progress through a storage.Store.
type Orchestrator struct {
	store storage.Store
}

// NewOrchestrator creates an Orchestrator over the given store.
func NewOrchestrator(store storage.Store) *Orchestrator {
	return &Orchestrator{store: store}
}

// RecordFailure advances the item's attempt counter and decides between
// a retry hint and a terminal failure. The counter never exceeds the
// policy's max attempts.
func (o *Orchestrator) RecordFailure(ctx context.Context, key, goal, detail string, policy *types.RetryPolicy) (Decision, error) {
	rs, err := o.store.LoadRetry(ctx)
	if err != nil {
		return Decision{}, err
	}

	rec := rs.Items[key]
	if rec.Attempts >= policy.MaxRetries {
		return Decision{Terminal: true, Attempts: rec.Attempts, MaxRetries: policy.MaxRetries, Hint: policy.Hint}, nil
	}

	rec.Attempts++
	rec.Goal = goal
	rec.LastFailure = detail
	rs.Items[key] = rec

	if err := o.store.SaveRetry(ctx, rs); err != nil {
		return Decision{}, err
	}

	return Decision{
		Terminal:   rec.Attempts >= policy.MaxRetries,
		Attempts:   rec.Attempts,
		MaxRetries: policy.MaxRetries,
		Hint:       policy.Hint,
	}, nil
}

// Attempts returns the persisted attempt count for an item.
func (o *Orchestrator) Attempts(ctx context.Context, key string) (int, error) {
	rs, err := o.store.LoadRetry(ctx)
	if err != nil {
		return 0, err
	}
	return rs.Items[key].Attempts, nil
}

// ClearItem removes one item's retry record after a successful check.
func (o *Orchestrator) ClearItem(ctx context.Context, key string) error {
	rs, err := o.store.LoadRetry(ctx)
	if err != nil {
		return err
	}
	if _, ok := rs.Items[key]; !ok {
		return nil
	}
	delete(rs.Items, key)
	return o.store.SaveRetry(ctx, rs)
}

// ClearAll removes every retry record; called on any stage change.
func (o *Orchestrator) ClearAll(ctx context.Context) error {
	return o.store.ClearRetry(ctx)
}
