// Package workflow ties the stage graph, condition evaluation, action
// execution, retry orchestration and the audit trail together behind a
// single Controller. Every public operation loads persisted state,
// applies one mutation, and saves — the process exits between
// invocations, so nothing is cached across calls.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hanyki111/workflow-tool/action"
	"github.com/hanyki111/workflow-tool/audit"
	"github.com/hanyki111/workflow-tool/auth"
	"github.com/hanyki111/workflow-tool/events"
	"github.com/hanyki111/workflow-tool/guide"
	"github.com/hanyki111/workflow-tool/plugins"
	"github.com/hanyki111/workflow-tool/retry"
	"github.com/hanyki111/workflow-tool/rules"
	"github.com/hanyki111/workflow-tool/storage"
	"github.com/hanyki111/workflow-tool/types"
	"github.com/hanyki111/workflow-tool/vars"
)

// Controller executes workflow operations against one configuration.
type Controller struct {
	cfg     *types.Config
	store   storage.Store
	engine  *Engine
	eval    *rules.Evaluator
	exec    *action.Executor
	retries *retry.Orchestrator
	audit   *audit.Logger
	bus     *events.Bus
	logger  *slog.Logger
	actor   string
}

// Option customizes a Controller.
type Option func(*Controller)

// WithStore overrides the state store chosen from the configuration.
func WithStore(store storage.Store) Option {
	return func(c *Controller) { c.store = store }
}

// WithExecutor overrides the action executor.
func WithExecutor(exec *action.Executor) Option {
	return func(c *Controller) { c.exec = exec }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithActor sets the actor recorded on audit entries. Defaults to
// "user".
func WithActor(actor string) Option {
	return func(c *Controller) { c.actor = actor }
}

// WithBus overrides the event bus.
func WithBus(bus *events.Bus) Option {
	return func(c *Controller) { c.bus = bus }
}

// New wires a Controller from a validated configuration.
func New(cfg *types.Config, opts ...Option) (*Controller, error) {
	c := &Controller{
		cfg:    cfg,
		engine: NewEngine(cfg),
		logger: slog.Default(),
		actor:  "user",
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.store == nil {
		switch cfg.StateBackend {
		case "redis":
			store, err := storage.NewRedisStore(storage.RedisOptions{
				Addr:      cfg.Redis.Addr,
				Password:  cfg.Redis.Password,
				DB:        cfg.Redis.DB,
				KeyPrefix: cfg.Redis.KeyPrefix,
			})
			if err != nil {
				return nil, fmt.Errorf("redis backend: %w", err)
			}
			c.store = store
		default:
			c.store = storage.NewFileStore(cfg.StateFile, cfg.RetryFile)
		}
	}

	registry := plugins.NewRegistry()
	if err := registry.LoadFromConfig(cfg.Plugins); err != nil {
		return nil, fmt.Errorf("loading plugins: %w", err)
	}
	c.eval = rules.NewEvaluator(registry, cfg.Rulesets)
	c.eval.FileHasher = audit.FileHash

	if c.exec == nil {
		c.exec = action.NewExecutor()
		c.exec.Logger = c.logger
	}
	c.retries = retry.NewOrchestrator(c.store)

	auditLog, err := audit.NewLogger(cfg.AuditDir)
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}
	c.audit = auditLog

	if c.bus == nil {
		c.bus = events.NewBus()
	}
	if cfg.StatusFile != "" {
		c.bus.Subscribe(events.TypeStatusRendered, events.NewStatusFileWriter(cfg.StatusFile))
	}
	return c, nil
}

// Audit exposes the audit logger for read-back inspection.
func (c *Controller) Audit() *audit.Logger {
	return c.audit
}

// Status is the rendered view of the current workflow position.
type Status struct {
	Stage     string
	Label     string
	Module    string
	Milestone string
	Phase     string
	Items     []types.CheckItem
	Checked   int
	Total     int
}

// Status reports the current position. When the persisted checklist
// snapshot is empty it is lazily synchronized from the stage template
// or the guide file.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	state, err := c.store.LoadState(ctx)
	if err != nil {
		return Status{}, err
	}
	if state.CurrentStage == "" {
		return Status{}, nil
	}
	stage, err := c.engine.Stage(state.CurrentStage)
	if err != nil {
		return Status{}, err
	}
	if len(state.Checklist) == 0 {
		items, serr := c.snapshotChecklist(stage)
		if serr != nil {
			c.logger.Warn("checklist sync failed", "stage", stage.ID, "error", serr)
		} else if len(items) > 0 {
			state.Checklist = items
			if err := c.store.SaveState(ctx, state); err != nil {
				return Status{}, err
			}
		}
	}
	st := c.statusOf(state, stage)
	c.publishStatus(ctx, st)
	return st, nil
}

// CheckRequest selects checklist items to check, either by 1-based
// index or by command tag.
type CheckRequest struct {
	Indices    []int
	Tag        string
	Evidence   string
	Token      string
	Agent      string
	Args       string
	SkipAction bool
}

// ItemResult is the per-item outcome of a check call.
type ItemResult struct {
	Index   int
	Text    string
	Checked bool
	Detail  string
}

// CheckReport collects per-item outcomes.
type CheckReport struct {
	Results []ItemResult
}

// Failed reports whether any targeted item could not be checked.
func (r *CheckReport) Failed() bool {
	for _, res := range r.Results {
		if !res.Checked {
			return true
		}
	}
	return false
}

// Check marks checklist items done, running any bound action first.
// Items that require token approval fail the whole call on a bad or
// missing token, validated up front before anything runs; action and
// agent-review failures are reported per item. Checking an
// already-checked item is a no-op. Audit entries and events are
// buffered until the new state is saved, so an aborted call leaves no
// record of checks that never took effect.
func (c *Controller) Check(ctx context.Context, req CheckRequest) (*CheckReport, error) {
	state, err := c.store.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	if state.CurrentStage == "" {
		return nil, ErrNotInitialized
	}
	stage, err := c.engine.Stage(state.CurrentStage)
	if err != nil {
		return nil, err
	}
	changed := false
	if len(state.Checklist) == 0 {
		items, serr := c.snapshotChecklist(stage)
		if serr != nil {
			return nil, serr
		}
		state.Checklist = items
		changed = len(items) > 0
	}

	indices, err := resolveTargets(state, req)
	if err != nil {
		return nil, err
	}
	for _, idx := range indices {
		if item := state.Checklist[idx]; !item.Checked && item.UserApprove() {
			if err := auth.RequireToken(c.cfg.SecretFile, req.Token); err != nil {
				return nil, err
			}
			break
		}
	}
	specs := specsByText(stage)

	var pendingAudit []audit.Entry
	var pendingEvents []events.Event
	inlineReviews := make(map[string]bool)

	report := &CheckReport{}
	for _, idx := range indices {
		item := &state.Checklist[idx]
		res := ItemResult{Index: idx + 1, Text: item.Text}

		if item.Checked {
			res.Checked = true
			res.Detail = "already checked"
			report.Results = append(report.Results, res)
			continue
		}

		if item.RequiredAgent != "" {
			reviewed := inlineReviews[item.RequiredAgent]
			if !reviewed {
				var rerr error
				reviewed, rerr = c.audit.HasAgentReview(item.RequiredAgent, state.CurrentStage)
				if rerr != nil {
					return nil, rerr
				}
			}
			if req.Agent == item.RequiredAgent {
				// The required agent checking its own item counts as a
				// review; record one so sibling items and later
				// invocations see it.
				if !reviewed {
					pendingAudit = append(pendingAudit, audit.Entry{
						Event:   audit.EventAgentReview,
						Actor:   req.Agent,
						Stage:   state.CurrentStage,
						Module:  state.ActiveModule,
						Agent:   req.Agent,
						Summary: fmt.Sprintf("review recorded while checking %q", item.Text),
					})
					inlineReviews[item.RequiredAgent] = true
				}
			} else if !reviewed {
				res.Detail = fmt.Sprintf("requires a recorded review from agent %q", item.RequiredAgent)
				report.Results = append(report.Results, res)
				continue
			}
		}

		key := retry.ItemKey(state.CurrentStage, idx)
		spec, hasSpec := specs[item.Text]
		if hasSpec && !req.SkipAction && (spec.Action != nil || spec.FileCheck != nil) {
			if spec.RequireArgs && strings.TrimSpace(req.Args) == "" {
				res.Detail = "action requires --args"
				report.Results = append(report.Results, res)
				continue
			}
			resolver := c.varsContext(&state, req.Args).Resolver()
			result, rerr := c.exec.RunItem(ctx, spec, resolver)
			if rerr != nil {
				res.Detail = rerr.Error()
				report.Results = append(report.Results, res)
				continue
			}
			if !result.Success {
				res.Detail = result.Detail
				if spec.Retry != nil && spec.Retry.Enabled {
					decision, derr := c.retries.RecordFailure(ctx, key, item.Text, result.Detail, spec.Retry)
					if derr != nil {
						return nil, derr
					}
					pendingAudit = append(pendingAudit, audit.Entry{
						Event:   audit.EventRetryAttempt,
						Actor:   c.actorFor(req.Agent),
						Stage:   state.CurrentStage,
						Module:  state.ActiveModule,
						Item:    item.Text,
						Reason:  result.Detail,
						Attempt: decision.Attempts,
					})
					if decision.Terminal {
						pendingEvents = append(pendingEvents, events.Event{
							Type:  events.TypeRetryExhausted,
							Stage: state.CurrentStage,
							Data:  map[string]interface{}{"item": item.Text, "attempts": decision.Attempts},
						})
					}
					res.Detail = fmt.Sprintf("%s; %s", result.Detail, decision)
				}
				report.Results = append(report.Results, res)
				continue
			}
		}

		if err := c.retries.ClearItem(ctx, key); err != nil {
			c.logger.Warn("clearing retry record", "item", item.Text, "error", err)
		}
		item.Checked = true
		item.Evidence = req.Evidence
		item.CheckedBy = c.actorFor(req.Agent)
		changed = true
		res.Checked = true
		res.Detail = "checked"

		pendingAudit = append(pendingAudit, audit.Entry{
			Event:    audit.EventManualCheck,
			Actor:    c.actorFor(req.Agent),
			Stage:    state.CurrentStage,
			Module:   state.ActiveModule,
			Item:     item.Text,
			Agent:    req.Agent,
			Evidence: req.Evidence,
		})
		pendingEvents = append(pendingEvents, events.Event{
			Type:  events.TypeItemChecked,
			Stage: state.CurrentStage,
			Data:  map[string]interface{}{"item": item.Text},
		})
		report.Results = append(report.Results, res)
	}

	if changed {
		if err := c.store.SaveState(ctx, state); err != nil {
			return nil, err
		}
	}
	for _, entry := range pendingAudit {
		if err := c.audit.Log(entry.Event, entry); err != nil {
			return nil, err
		}
	}
	for _, ev := range pendingEvents {
		c.publish(ctx, ev)
	}
	c.publishStatus(ctx, c.statusOf(state, stage))
	return report, nil
}

// NextRequest controls a transition attempt.
type NextRequest struct {
	Target         string
	Force          bool
	SkipConditions bool
	Token          string
	Reason         string
}

// NextReport describes a completed transition.
type NextReport struct {
	From    string
	To      string
	Forced  bool
	Results []rules.ConditionResult
}

// Next advances to the next stage. Without Force, every checklist item
// must be checked and some transition's conditions must all be
// satisfied; transitions are tried in declaration order and the first
// satisfied one wins. Force requires a valid token and a non-empty
// reason and bypasses both gates.
func (c *Controller) Next(ctx context.Context, req NextRequest) (*NextReport, error) {
	state, err := c.store.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	if state.CurrentStage == "" {
		return nil, ErrNotInitialized
	}
	stage, err := c.engine.Stage(state.CurrentStage)
	if err != nil {
		return nil, err
	}

	if req.Force {
		if err := auth.RequireToken(c.cfg.SecretFile, req.Token); err != nil {
			return nil, err
		}
		if strings.TrimSpace(req.Reason) == "" {
			return nil, ErrReasonRequired
		}
	} else {
		var unchecked []string
		for _, item := range state.Checklist {
			if !item.Checked {
				unchecked = append(unchecked, item.Text)
			}
		}
		if len(unchecked) > 0 {
			return nil, &BlockedError{Unchecked: unchecked}
		}
	}

	if len(stage.Transitions) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoTransitions, state.CurrentStage)
	}
	candidates := stage.Transitions
	if req.Target != "" {
		t, ok := c.engine.FindTransition(state.CurrentStage, req.Target)
		if !ok {
			return nil, fmt.Errorf("%w: %q (valid: %s)", ErrInvalidTarget,
				req.Target, strings.Join(c.engine.Targets(state.CurrentStage), ", "))
		}
		candidates = []types.Transition{t}
	}

	input := rules.Input{
		State:  &state,
		Vars:   c.varsContext(&state, ""),
		Bypass: req.Force || req.SkipConditions,
	}
	var chosen *types.Transition
	var chosenResults, firstFailing []rules.ConditionResult
	for i := range candidates {
		results, ok, err := c.eval.EvaluateAll(candidates[i].Conditions, input)
		if err != nil {
			return nil, err
		}
		if ok {
			chosen = &candidates[i]
			chosenResults = results
			break
		}
		if firstFailing == nil {
			firstFailing = results
		}
	}
	if chosen == nil {
		blocked := &BlockedError{Failed: firstFailing}
		if req.Target == "" && len(candidates) > 1 {
			blocked.Choices = c.engine.Targets(state.CurrentStage)
		}
		return nil, blocked
	}

	targetStage, err := c.engine.Stage(chosen.Target)
	if err != nil {
		return nil, err
	}

	from := state.CurrentStage
	state.CurrentStage = chosen.Target
	items, serr := c.snapshotChecklist(targetStage)
	if serr != nil {
		c.logger.Warn("checklist sync failed", "stage", targetStage.ID, "error", serr)
	}
	state.Checklist = items
	if err := c.retries.ClearAll(ctx); err != nil {
		c.logger.Warn("clearing retry state", "error", err)
	}
	if err := c.store.SaveState(ctx, state); err != nil {
		return nil, err
	}

	if err := c.audit.Log(audit.EventTransition, audit.Entry{
		Actor:     c.actor,
		FromStage: from,
		ToStage:   chosen.Target,
		Module:    state.ActiveModule,
		Forced:    req.Force,
		Reason:    req.Reason,
		Rules:     chosenResults,
	}); err != nil {
		return nil, err
	}

	// On-enter actions run after the transition is durable; a failing
	// hook never rolls the stage back.
	resolver := c.varsContext(&state, "").Resolver()
	for _, spec := range targetStage.OnEnter {
		result, rerr := c.exec.RunSpec(ctx, spec, resolver)
		if rerr != nil {
			c.logger.Warn("on-enter action", "stage", targetStage.ID, "error", rerr)
			continue
		}
		if !result.Success {
			c.logger.Warn("on-enter action failed", "stage", targetStage.ID, "detail", result.Detail)
		}
	}

	c.publish(ctx, events.Event{
		Type:  events.TypeStageChanged,
		Stage: chosen.Target,
		Data:  map[string]interface{}{"from": from, "forced": req.Force},
	})
	c.publishStatus(ctx, c.statusOf(state, targetStage))
	return &NextReport{From: from, To: chosen.Target, Forced: req.Force, Results: chosenResults}, nil
}

// Set jumps directly to a stage, bypassing transitions entirely. It is
// the recovery path: a corrupt persisted state is discarded and rebuilt
// rather than repaired in place.
func (c *Controller) Set(ctx context.Context, stageID, module string) (Status, error) {
	stage, err := c.engine.Stage(stageID)
	if err != nil {
		return Status{}, err
	}
	state, err := c.store.LoadState(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrStateCorrupt) {
			return Status{}, err
		}
		c.logger.Warn("discarding corrupt state", "error", err)
		state = types.WorkflowState{}
	}

	from := state.CurrentStage
	state.CurrentStage = stageID
	if module != "" {
		state.ActiveModule = module
	}
	items, serr := c.snapshotChecklist(stage)
	if serr != nil {
		c.logger.Warn("checklist sync failed", "stage", stage.ID, "error", serr)
	}
	state.Checklist = items
	if err := c.retries.ClearAll(ctx); err != nil {
		c.logger.Warn("clearing retry state", "error", err)
	}
	if err := c.store.SaveState(ctx, state); err != nil {
		return Status{}, err
	}

	if err := c.audit.Log(audit.EventForcedSet, audit.Entry{
		Actor:     c.actor,
		FromStage: from,
		ToStage:   stageID,
		Module:    state.ActiveModule,
	}); err != nil {
		return Status{}, err
	}
	c.publish(ctx, events.Event{
		Type:  events.TypeStageChanged,
		Stage: stageID,
		Data:  map[string]interface{}{"from": from, "forced": true},
	})
	st := c.statusOf(state, stage)
	c.publishStatus(ctx, st)
	return st, nil
}

// SetModule records which module the work currently concerns. It never
// touches the checklist and is never blocked by unchecked items.
func (c *Controller) SetModule(ctx context.Context, module string) error {
	if strings.TrimSpace(module) == "" {
		return errors.New("module name cannot be empty")
	}
	state, err := c.store.LoadState(ctx)
	if err != nil {
		return err
	}
	state.ActiveModule = module
	if err := c.store.SaveState(ctx, state); err != nil {
		return err
	}
	return c.audit.Log(audit.EventModuleSet, audit.Entry{
		Actor:  c.actor,
		Stage:  state.CurrentStage,
		Module: module,
	})
}

// Review records an agent review in the audit log. The check operation
// reads it back when an item names that agent.
func (c *Controller) Review(ctx context.Context, agent, summary string) error {
	if strings.TrimSpace(agent) == "" {
		return errors.New("agent name cannot be empty")
	}
	if strings.TrimSpace(summary) == "" {
		return errors.New("review summary cannot be empty")
	}
	state, err := c.store.LoadState(ctx)
	if err != nil {
		return err
	}
	if err := c.audit.Log(audit.EventAgentReview, audit.Entry{
		Actor:   agent,
		Stage:   state.CurrentStage,
		Module:  state.ActiveModule,
		Agent:   agent,
		Summary: summary,
	}); err != nil {
		return err
	}
	c.publish(ctx, events.Event{
		Type:  events.TypeReviewRecorded,
		Stage: state.CurrentStage,
		Data:  map[string]interface{}{"agent": agent},
	})
	return nil
}

// snapshotChecklist builds the persisted checklist when a stage is
// entered: from the inline stage template when one exists, otherwise
// from the matching guide-file section.
func (c *Controller) snapshotChecklist(stage types.Stage) ([]types.CheckItem, error) {
	if len(stage.Checklist) > 0 {
		items := make([]types.CheckItem, 0, len(stage.Checklist))
		for _, spec := range stage.Checklist {
			items = append(items, types.NewCheckItem(spec.Text, false))
		}
		return items, nil
	}
	if c.cfg.GuideFile == "" {
		return nil, nil
	}
	parser, err := guide.FromFile(c.cfg.GuideFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return parser.ExtractChecklist(stage.Label), nil
}

// specsByText indexes a stage's item templates by their text so items
// synced from the guide resolve to no spec rather than a wrong one.
func specsByText(stage types.Stage) map[string]types.ChecklistItemSpec {
	specs := make(map[string]types.ChecklistItemSpec, len(stage.Checklist))
	for _, spec := range stage.Checklist {
		specs[strings.TrimSpace(spec.Text)] = spec
	}
	return specs
}

// resolveTargets turns a request's 1-based indices or command tag into
// 0-based checklist indices.
func resolveTargets(state types.WorkflowState, req CheckRequest) ([]int, error) {
	if req.Tag != "" {
		tag := strings.TrimPrefix(req.Tag, "CMD:")
		var out []int
		for i, item := range state.Checklist {
			if item.CmdTag == tag {
				out = append(out, i)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no checklist item carries tag %q", req.Tag)
		}
		return out, nil
	}
	if len(req.Indices) == 0 {
		return nil, errors.New("no items selected; pass item numbers or --tag")
	}
	out := make([]int, 0, len(req.Indices))
	for _, n := range req.Indices {
		if n < 1 || n > len(state.Checklist) {
			return nil, fmt.Errorf("item %d out of range (checklist has %d items)", n, len(state.Checklist))
		}
		out = append(out, n-1)
	}
	return out, nil
}

func (c *Controller) varsContext(state *types.WorkflowState, args string) *vars.Context {
	vc := vars.New(c.cfg.Variables)
	vc.Set("active_module", state.ActiveModule)
	vc.Set("stage", state.CurrentStage)
	vc.Set("args", args)
	return vc
}

func (c *Controller) statusOf(state types.WorkflowState, stage types.Stage) Status {
	return Status{
		Stage:     state.CurrentStage,
		Label:     stage.Label,
		Module:    state.ActiveModule,
		Milestone: state.Milestone,
		Phase:     state.Phase,
		Items:     state.Checklist,
		Checked:   state.CheckedCount(),
		Total:     len(state.Checklist),
	}
}

func (c *Controller) actorFor(agent string) string {
	if agent != "" {
		return agent
	}
	return c.actor
}

func (c *Controller) publish(ctx context.Context, event events.Event) {
	for _, err := range c.bus.Publish(ctx, event) {
		c.logger.Warn("event handler", "type", event.Type, "error", err)
	}
}

func (c *Controller) publishStatus(ctx context.Context, st Status) {
	if !c.bus.HasSubscribers(events.TypeStatusRendered) {
		return
	}
	c.publish(ctx, events.Event{
		Type:  events.TypeStatusRendered,
		Stage: st.Stage,
		Data:  map[string]interface{}{"rendered": RenderStatus(st)},
	})
}
