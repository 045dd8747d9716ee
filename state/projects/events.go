package projects

import (
	"context"
	"log/slog"
	"slices"

	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/message"
	"github.com/youwol/ywdash/optree"
	"github.com/youwol/ywdash/pkg/reactive"
	"github.com/youwol/ywdash/projection"
	"github.com/youwol/ywdash/router"
	"github.com/youwol/ywdash/state"
	"github.com/youwol/ywdash/transport"
)

// Message attributes tying a daemon message to a project step.
const (
	AttrProjectID = "projectId"
	AttrFlowID    = "flowId"
	AttrStepID    = "stepId"
)

// StepState is the projected status of one pipeline step. Details is set
// once the status is resolved.
type StepState struct {
	Status  message.StepStatus                  `json:"status"`
	Event   string                              `json:"event,omitempty"`
	Details *message.PipelineStepStatusResponse `json:"details,omitempty"`
}

// StepView is the current status of a step of the selected flow.
type StepView struct {
	StepID string                           `json:"stepId"`
	Status projection.Projection[StepState] `json:"status"`
}

// StepKey is the projector key of a step.
func StepKey(flowID, stepID string) string {
	return flowID + "#" + stepID
}

// Events is the session of one opened project.
type Events struct {
	Project      message.Project
	Router       *router.Router
	Tree         *optree.Tree
	Steps        *projection.Projector[StepState]
	SelectedFlow *reactive.Value[string]
	SelectedStep *reactive.Value[string]

	deps   state.Deps
	logger *slog.Logger
	subs   reactive.Group
}

func newEvents(deps state.Deps, project message.Project) (*Events, error) {
	logger := deps.Logger.With("project_id", project.ID)
	steps, err := projection.NewProjector[StepState](
		projection.WithLogger(logger),
		projection.WithMetrics(deps.Metrics, "project_steps"))
	if err != nil {
		return nil, errors.Wrap(err, "projects", "Open", "create step projector")
	}

	r, feed := deps.Router.Filtered("project:"+project.ID, router.AttributeEquals(AttrProjectID, project.ID))
	e := &Events{
		Project:      project,
		Router:       r,
		Tree:         optree.New(r, optree.WithLogger(logger), optree.WithMetrics(deps.Metrics.CoreMetrics())),
		Steps:        steps,
		SelectedFlow: reactive.NewValue(""),
		SelectedStep: reactive.NewValue(""),
		deps:         deps,
		logger:       logger,
	}
	e.subs.Add(
		feed,
		reactive.SubscriptionFunc(e.Tree.Close),
		reactive.SubscriptionFunc(e.Steps.Close),
		r.Journal().Subscribe(e.recordStepLog),
		state.Dispatch(r, deps.Payloads, logger, state.Handlers{
			message.LabelPipelineStepEvent:          e.onStepEvent,
			message.LabelPipelineStepStatusResponse: e.onStepStatus,
			message.LabelPipelineStatusResponse:     e.onFlowStatus,
		}),
	)

	if flows := project.Pipeline.Flows; len(flows) > 0 {
		if err := e.SelectFlow(flows[0].Name); err != nil {
			logger.Warn("Initial flow status refresh not scheduled", "flow", flows[0].Name, "error", err)
		}
	}
	return e, nil
}

// Close stops every subscription of the session.
func (e *Events) Close() {
	e.subs.Unsubscribe()
}

// DAG returns the parsed step graph of a flow.
func (e *Events) DAG(flowID string) (DAG, error) {
	flow, ok := e.Project.Flow(flowID)
	if !ok {
		return DAG{}, errors.WrapInvalid(errors.ErrEntityNotFound, "projects", "DAG", "find flow "+flowID)
	}
	return ParseDAG(flow.DAG), nil
}

// SelectFlow selects a flow and refreshes its status. Selecting the flow
// already selected refreshes it again.
func (e *Events) SelectFlow(flowID string) error {
	if _, ok := e.Project.Flow(flowID); !ok {
		return errors.WrapInvalid(errors.ErrEntityNotFound, "projects", "SelectFlow", "find flow "+flowID)
	}
	if e.SelectedFlow.Get() != flowID {
		e.SelectedStep.Set("")
	}
	e.SelectedFlow.Set(flowID)
	return e.deps.Submit("refresh-flow", func(ctx context.Context) error {
		return e.RefreshFlow(ctx, flowID)
	})
}

// SelectStep selects a step of a flow, switching flow if needed, and
// refreshes the step status.
func (e *Events) SelectStep(flowID, stepID string) error {
	dag, err := e.DAG(flowID)
	if err != nil {
		return err
	}
	if !slices.Contains(dag.Steps, stepID) {
		return errors.WrapInvalid(errors.ErrEntityNotFound, "projects", "SelectStep", "find step "+stepID)
	}
	if e.SelectedFlow.Get() != flowID {
		if err := e.SelectFlow(flowID); err != nil {
			return err
		}
	}
	e.Steps.GetOrCreate(StepKey(flowID, stepID))
	e.SelectedStep.Set(stepID)
	return e.deps.Submit("refresh-step", func(ctx context.Context) error {
		return e.RefreshStep(ctx, flowID, stepID)
	})
}

// RunStep asks the daemon to run a step. The outcome is observed through
// the message stream only.
func (e *Events) RunStep(flowID, stepID string) error {
	path := transport.ProjectStepRunPath(e.Project.ID, flowID, stepID)
	return e.deps.Submit("run-step", func(ctx context.Context) error {
		return e.deps.Requester.Post(ctx, path, nil, nil)
	})
}

// RefreshFlow fetches the status of every step of a flow.
func (e *Events) RefreshFlow(ctx context.Context, flowID string) error {
	var res message.PipelineStatusResponse
	if err := e.deps.Requester.Get(ctx, transport.ProjectFlowPath(e.Project.ID, flowID), &res); err != nil {
		return errors.Wrap(err, "projects", "RefreshFlow", "fetch flow status")
	}
	for i := range res.Steps {
		e.resolve(flowID, &res.Steps[i])
	}
	return nil
}

// RefreshStep fetches the status of one step.
func (e *Events) RefreshStep(ctx context.Context, flowID, stepID string) error {
	var res message.PipelineStepStatusResponse
	if err := e.deps.Requester.Get(ctx, transport.ProjectStepPath(e.Project.ID, flowID, stepID), &res); err != nil {
		return errors.Wrap(err, "projects", "RefreshStep", "fetch step status")
	}
	if res.StepID == "" {
		res.StepID = stepID
	}
	e.resolve(flowID, &res)
	return nil
}

// FlowSteps returns the current status of every step of a flow, in DAG
// order.
func (e *Events) FlowSteps(flowID string) ([]StepView, error) {
	dag, err := e.DAG(flowID)
	if err != nil {
		return nil, err
	}
	out := make([]StepView, len(dag.Steps))
	for i, step := range dag.Steps {
		out[i] = StepView{StepID: step, Status: e.Steps.Current(StepKey(flowID, step))}
	}
	return out, nil
}

func (e *Events) resolve(flowID string, res *message.PipelineStepStatusResponse) {
	if res.FlowID != "" {
		flowID = res.FlowID
	}
	e.Steps.OnStatusResponse(StepKey(flowID, res.StepID), StepState{Status: res.Status, Details: res})
}

func (e *Events) onStepEvent(_ router.Routed, p message.Payload) {
	ev := p.(*message.PipelineStepEvent)
	e.Steps.OnEvent(StepKey(ev.FlowID, ev.StepID), StepState{Status: message.StepPending, Event: ev.Event})
}

func (e *Events) onStepStatus(_ router.Routed, p message.Payload) {
	e.resolve("", p.(*message.PipelineStepStatusResponse))
}

func (e *Events) onFlowStatus(_ router.Routed, p message.Payload) {
	res := p.(*message.PipelineStatusResponse)
	for i := range res.Steps {
		e.resolve(res.FlowID, &res.Steps[i])
	}
}

func (e *Events) recordStepLog(rt router.Routed) {
	flowID, stepID := rt.Attribute(AttrFlowID), rt.Attribute(AttrStepID)
	if flowID == "" || stepID == "" {
		return
	}
	e.Steps.AppendLog(StepKey(flowID, stepID), rt.Message)
}
