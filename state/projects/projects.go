// Package projects is the projects domain: the list of local projects and
// one session per opened project tracking its pipeline steps.
package projects

import (
	"context"

	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/message"
	"github.com/youwol/ywdash/pkg/reactive"
	"github.com/youwol/ywdash/router"
	"github.com/youwol/ywdash/session"
	"github.com/youwol/ywdash/state"
	"github.com/youwol/ywdash/transport"
)

// State owns the projects snapshot and the project sessions.
type State struct {
	deps     state.Deps
	Projects *reactive.Value[message.ProjectsLoadingResults]
	Sessions *session.Cache[*Events]
	sub      reactive.Subscription
}

// New creates the projects state. The snapshot stays empty until Refresh or
// a ProjectsLoadingResults message.
func New(deps state.Deps) (*State, error) {
	deps, err := deps.WithDefaults("projects")
	if err != nil {
		return nil, err
	}
	s := &State{
		deps:     deps,
		Projects: reactive.NewValue(message.ProjectsLoadingResults{}),
	}
	s.Sessions, err = session.New("projects", s.newEvents, deps.SessionOptions()...)
	if err != nil {
		return nil, err
	}
	s.sub = state.Dispatch(deps.Router, deps.Payloads, deps.Logger, state.Handlers{
		message.LabelProjectsLoadingResults: func(_ router.Routed, p message.Payload) {
			s.Projects.Set(*p.(*message.ProjectsLoadingResults))
		},
	})
	return s, nil
}

// Refresh fetches the projects snapshot.
func (s *State) Refresh(ctx context.Context) error {
	var res message.ProjectsLoadingResults
	if err := s.deps.Requester.Get(ctx, transport.PathProjectsStatus, &res); err != nil {
		return errors.Wrap(err, "projects", "Refresh", "fetch projects status")
	}
	s.Projects.Set(res)
	return nil
}

// Project returns a project of the snapshot.
func (s *State) Project(id string) (message.Project, bool) {
	for _, p := range s.Projects.Get().Results {
		if p.ID == id {
			return p, true
		}
	}
	return message.Project{}, false
}

// Open returns the session of project id, opening it if needed.
func (s *State) Open(id string) (*Events, error) {
	return s.Sessions.Open(id)
}

// Session returns the live session of project id.
func (s *State) Session(id string) (*Events, error) {
	return s.Sessions.Lookup(id)
}

// CloseSession disposes the session of project id.
func (s *State) CloseSession(id string) bool {
	return s.Sessions.Close(id)
}

// Close disposes every session and stops listening to the router.
func (s *State) Close() {
	s.sub.Unsubscribe()
	s.Sessions.CloseAll()
}

func (s *State) newEvents(id string) (*Events, error) {
	project, ok := s.Project(id)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrEntityNotFound, "projects", "Open", "find project "+id)
	}
	return newEvents(s.deps, project)
}
