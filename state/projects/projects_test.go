package projects

import (
	"context"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/message"
	"github.com/youwol/ywdash/metric"
	"github.com/youwol/ywdash/optree"
	"github.com/youwol/ywdash/pkg/worker"
	"github.com/youwol/ywdash/projection"
	"github.com/youwol/ywdash/router"
	"github.com/youwol/ywdash/state"
	"github.com/youwol/ywdash/testutil"
	"github.com/youwol/ywdash/transport"
)

func testProject() message.Project {
	return message.Project{
		ID:      "p1",
		Name:    "@youwol/flux-view",
		Version: "1.0.0",
		Pipeline: message.Pipeline{
			Steps: []message.Step{{ID: "init"}, {ID: "build"}, {ID: "test"}},
			Flows: []message.Flow{
				{Name: "prod", DAG: []string{"init > build > test"}},
				{Name: "dev", DAG: []string{"init > build"}},
			},
		},
	}
}

func fixture(t *testing.T) (*State, *router.Router, *testutil.MockRequester) {
	t.Helper()
	r := router.New()
	req := testutil.NewMockRequester().
		Respond(transport.PathProjectsStatus, message.ProjectsLoadingResults{Results: []message.Project{testProject()}})

	s, err := New(state.Deps{Router: r, Requester: req, Runner: &worker.Inline{}})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Refresh(context.Background()))
	return s, r, req
}

func withProject(m message.Message, id string) message.Message {
	m.Attributes = map[string]string{AttrProjectID: id}
	return m
}

func TestRefresh(t *testing.T) {
	s, _, _ := fixture(t)

	p, ok := s.Project("p1")
	require.True(t, ok)
	assert.Equal(t, "@youwol/flux-view", p.Name)
}

func TestSnapshotFollowsLoadingResults(t *testing.T) {
	s, r, _ := fixture(t)

	r.Route(testutil.Data("load", "", &message.ProjectsLoadingResults{
		Results: []message.Project{{ID: "p2", Name: "other"}},
	}))

	_, ok := s.Project("p1")
	assert.False(t, ok)
	_, ok = s.Project("p2")
	assert.True(t, ok)
}

func TestOpen_SelectsFirstFlowAndResolvesSteps(t *testing.T) {
	s, _, req := fixture(t)
	req.Respond(transport.ProjectFlowPath("p1", "prod"), message.PipelineStatusResponse{
		ProjectID: "p1",
		FlowID:    "prod",
		Steps: []message.PipelineStepStatusResponse{
			{ProjectID: "p1", FlowID: "prod", StepID: "init", Status: message.StepOK},
			{ProjectID: "p1", FlowID: "prod", StepID: "build", Status: message.StepKO},
		},
	})

	e, err := s.Open("p1")
	require.NoError(t, err)

	assert.Equal(t, "prod", e.SelectedFlow.Get())
	assert.Equal(t, 1, req.CallCount(transport.ProjectFlowPath("p1", "prod")))

	steps, err := e.FlowSteps("prod")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "init", steps[0].StepID)
	assert.Equal(t, projection.PhaseResolved, steps[0].Status.Phase)
	assert.Equal(t, message.StepOK, steps[0].Status.Value.Status)
	assert.Equal(t, message.StepKO, steps[1].Status.Value.Status)
	assert.Equal(t, projection.PhaseUnset, steps[2].Status.Phase)

	again, err := s.Open("p1")
	require.NoError(t, err)
	assert.Same(t, e, again)
	assert.Equal(t, 1, req.CallCount(transport.ProjectFlowPath("p1", "prod")))
}

func TestSelectFlow_ReselectRefreshes(t *testing.T) {
	s, _, req := fixture(t)
	e, err := s.Open("p1")
	require.NoError(t, err)

	dev := transport.ProjectFlowPath("p1", "dev")
	require.NoError(t, e.SelectFlow("dev"))
	assert.Equal(t, 1, req.CallCount(dev))

	require.NoError(t, e.SelectFlow("dev"))
	assert.Equal(t, 2, req.CallCount(dev))
	assert.Equal(t, 1, req.CallCount(transport.ProjectFlowPath("p1", "prod")))
	assert.Equal(t, "dev", e.SelectedFlow.Get())
}

func TestSelectFlow_Unknown(t *testing.T) {
	s, _, _ := fixture(t)
	e, err := s.Open("p1")
	require.NoError(t, err)

	err = e.SelectFlow("nope")
	assert.ErrorIs(t, err, errors.ErrEntityNotFound)
	assert.Equal(t, "prod", e.SelectedFlow.Get())
}

func TestSelectStep(t *testing.T) {
	s, _, req := fixture(t)
	req.Respond(transport.ProjectStepPath("p1", "dev", "build"), message.PipelineStepStatusResponse{
		ProjectID: "p1", FlowID: "dev", StepID: "build", Status: message.StepOutdated,
	})
	e, err := s.Open("p1")
	require.NoError(t, err)

	require.NoError(t, e.SelectStep("dev", "build"))
	assert.Equal(t, "dev", e.SelectedFlow.Get())
	assert.Equal(t, "build", e.SelectedStep.Get())
	assert.Equal(t, message.StepOutdated, e.Steps.Current(StepKey("dev", "build")).Value.Status)

	assert.Error(t, e.SelectStep("dev", "test"))

	require.NoError(t, e.SelectFlow("prod"))
	assert.Empty(t, e.SelectedStep.Get(), "switching flow clears the step")
}

func TestStepEvents_ResolvedReplacesTransitional(t *testing.T) {
	s, r, _ := fixture(t)
	e, err := s.Open("p1")
	require.NoError(t, err)
	key := StepKey("prod", "build")

	r.Route(testutil.Data("run", "", &message.PipelineStepEvent{
		ProjectID: "p1", FlowID: "prod", StepID: "build", Event: "runStarted",
	}, AttrProjectID, "p1"))

	current := e.Steps.Current(key)
	assert.Equal(t, projection.PhaseTransitional, current.Phase)
	assert.Equal(t, StepState{Status: message.StepPending, Event: "runStarted"}, current.Value)

	r.Route(testutil.Data("run", "", &message.PipelineStepStatusResponse{
		ProjectID: "p1", FlowID: "prod", StepID: "build", Status: message.StepOK,
	}, AttrProjectID, "p1"))

	current = e.Steps.Current(key)
	assert.Equal(t, projection.PhaseResolved, current.Phase)
	assert.Equal(t, message.StepOK, current.Value.Status)
	assert.Empty(t, current.Value.Event)
	require.NotNil(t, current.Value.Details)
	assert.Equal(t, "build", current.Value.Details.StepID)
}

func TestStepProjector_Metrics(t *testing.T) {
	r := router.New()
	req := testutil.NewMockRequester().
		Respond(transport.PathProjectsStatus, message.ProjectsLoadingResults{Results: []message.Project{testProject()}})
	registry := metric.NewMetricsRegistry()
	s, err := New(state.Deps{Router: r, Requester: req, Runner: &worker.Inline{}, Metrics: registry})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Refresh(context.Background()))

	_, err = s.Open("p1")
	require.NoError(t, err)
	r.Route(testutil.Data("run", "", &message.PipelineStepEvent{
		ProjectID: "p1", FlowID: "prod", StepID: "build", Event: "runStarted",
	}, AttrProjectID, "p1"))

	entries := registry.CoreMetrics().TableEntries.WithLabelValues("project_steps")
	assert.GreaterOrEqual(t, promtest.ToFloat64(entries), 1.0)

	require.True(t, s.CloseSession("p1"))
	assert.Equal(t, 0.0, promtest.ToFloat64(entries))
}

func TestStepEvents_OtherProjectsIgnored(t *testing.T) {
	s, r, _ := fixture(t)
	e, err := s.Open("p1")
	require.NoError(t, err)

	r.Route(testutil.Data("run", "", &message.PipelineStepEvent{
		ProjectID: "p2", FlowID: "prod", StepID: "build", Event: "runStarted",
	}, AttrProjectID, "p2"))

	assert.Equal(t, projection.PhaseUnset, e.Steps.Current(StepKey("prod", "build")).Phase)
}

func TestStepEvents_ReplayedOnOpen(t *testing.T) {
	s, r, _ := fixture(t)
	r.Route(testutil.Data("run", "", &message.PipelineStepEvent{
		ProjectID: "p1", FlowID: "dev", StepID: "init", Event: "runStarted",
	}, AttrProjectID, "p1"))

	e, err := s.Open("p1")
	require.NoError(t, err)
	assert.Equal(t, projection.PhaseTransitional, e.Steps.Current(StepKey("dev", "init")).Phase)
}

func TestStepLogs(t *testing.T) {
	s, r, _ := fixture(t)
	e, err := s.Open("p1")
	require.NoError(t, err)

	r.Route(testutil.Log("run", "", "compiling", AttrProjectID, "p1", AttrFlowID, "prod", AttrStepID, "build"))
	r.Route(testutil.Log("run", "", "no step", AttrProjectID, "p1"))

	entry, ok := e.Steps.Get(StepKey("prod", "build"))
	require.True(t, ok)
	logs := entry.Log.Snapshot()
	require.Len(t, logs, 1)
	assert.Equal(t, "compiling", logs[0].Text)
}

func TestOperationTree(t *testing.T) {
	s, r, _ := fixture(t)
	e, err := s.Open("p1")
	require.NoError(t, err)

	r.Route(withProject(testutil.Msg("A", "", message.LabelStarted), "p1"))
	r.Route(withProject(testutil.Msg("B", "A", message.LabelStarted), "p1"))
	r.Route(withProject(testutil.Msg("B", "A", message.LabelDone), "p1"))
	r.Route(withProject(testutil.Msg("X", "", message.LabelStarted), "p2"))

	root, ok := e.Tree.Snapshot(message.RootID)
	require.True(t, ok)
	assert.Equal(t, []string{"A"}, root.Children())

	a, ok := e.Tree.Snapshot("A")
	require.True(t, ok)
	assert.Equal(t, []string{"B"}, a.Children())
	assert.Equal(t, optree.StatusProcessing, a.Status)

	b, _ := e.Tree.Snapshot("B")
	assert.Equal(t, optree.StatusSuccess, b.Status)
}

func TestRunStep(t *testing.T) {
	s, _, req := fixture(t)
	e, err := s.Open("p1")
	require.NoError(t, err)

	require.NoError(t, e.RunStep("prod", "build"))
	call, ok := req.LastCall(transport.ProjectStepRunPath("p1", "prod", "build"))
	require.True(t, ok)
	assert.Equal(t, "POST", call.Method)
}

func TestRunStep_FailureReportedToRunner(t *testing.T) {
	r := router.New()
	run := transport.ProjectStepRunPath("p1", "prod", "build")
	req := testutil.NewMockRequester().
		Respond(transport.PathProjectsStatus, message.ProjectsLoadingResults{Results: []message.Project{testProject()}}).
		Fail(run, errors.FromStatus(500, "transport", "POST", run))

	var failures []error
	runner := &worker.Inline{OnDone: func(task worker.Task, err error) {
		if err != nil {
			failures = append(failures, err)
		}
	}}
	s, err := New(state.Deps{Router: r, Requester: req, Runner: runner})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Refresh(context.Background()))

	e, err := s.Open("p1")
	require.NoError(t, err)
	require.NoError(t, e.RunStep("prod", "build"))

	require.Len(t, failures, 1)
	assert.True(t, errors.IsTransient(failures[0]))
}

func TestOpen_UnknownProject(t *testing.T) {
	s, _, _ := fixture(t)

	_, err := s.Open("missing")
	assert.ErrorIs(t, err, errors.ErrEntityNotFound)
	assert.Equal(t, 0, s.Sessions.Len())

	_, err = s.Session("missing")
	assert.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestCloseSession_StopsFeed(t *testing.T) {
	s, r, _ := fixture(t)
	e, err := s.Open("p1")
	require.NoError(t, err)

	r.Route(withProject(testutil.Msg("A", "", message.LabelStarted), "p1"))
	size := e.Router.Size()

	assert.True(t, s.CloseSession("p1"))
	r.Route(withProject(testutil.Msg("B", "", message.LabelStarted), "p1"))

	assert.Equal(t, size, e.Router.Size())
	_, err = s.Session("p1")
	assert.Error(t, err)
}

func TestParseDAG(t *testing.T) {
	dag := ParseDAG([]string{"init > build > test", "build > doc", " > ", "init>build"})

	assert.Equal(t, []string{"init", "build", "test", "doc"}, dag.Steps)
	assert.Equal(t, [][2]string{{"init", "build"}, {"build", "test"}, {"build", "doc"}}, dag.Edges)
	assert.Empty(t, ParseDAG(nil).Steps)
}
