// Package cdn is the local CDN domain: the packages list, the download
// queue, the update check table and one session per opened package.
package cdn

import (
	"context"

	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/message"
	"github.com/youwol/ywdash/pkg/reactive"
	"github.com/youwol/ywdash/queue"
	"github.com/youwol/ywdash/router"
	"github.com/youwol/ywdash/session"
	"github.com/youwol/ywdash/state"
	"github.com/youwol/ywdash/transport"
)

// State owns the CDN view models. Every derived cell is recomputed from the
// latest value of all its inputs.
type State struct {
	deps state.Deps

	Status     *reactive.Value[message.CdnStatusResponse]
	Downloaded *reactive.Value[[]message.DownloadedPackageResponse]
	Events     *reactive.Value[[]message.DownloadEvent]
	Packages   *reactive.Value[[]PackageRow]

	Queue   *queue.Queue
	Pending *reactive.Value[[]queue.Entry]

	// UpdateRows holds update check rows in arrival order; Updates is the
	// same rows ordered by status priority.
	UpdateRows *reactive.Value[[]message.UpdateStatusRow]
	Updates    *reactive.Value[[]message.UpdateStatusRow]

	Sessions *session.Cache[*PackageEvents]

	downloadedFeed *reactive.Replay[message.DownloadedPackageResponse]
	eventFeed      *reactive.Replay[message.DownloadEvent]
	subs           reactive.Group
}

// New creates the CDN state.
func New(deps state.Deps) (*State, error) {
	deps, err := deps.WithDefaults("cdn")
	if err != nil {
		return nil, err
	}

	s := &State{
		deps:           deps,
		Status:         reactive.NewValue(message.CdnStatusResponse{}),
		Packages:       reactive.NewValue[[]PackageRow](nil),
		Pending:        reactive.NewValue[[]queue.Entry](nil),
		UpdateRows:     reactive.NewValue[[]message.UpdateStatusRow](nil),
		Queue:          queue.New(deps.Requester, queue.WithLogger(deps.Logger), queue.WithMetrics(deps.Metrics.CoreMetrics())),
		downloadedFeed: reactive.NewReplay[message.DownloadedPackageResponse](),
		eventFeed:      reactive.NewReplay[message.DownloadEvent](),
	}

	var downloadedSub, eventsSub, updatesSub reactive.Subscription
	s.Downloaded, downloadedSub = reactive.Accumulate(s.downloadedFeed, nil, foldDownloaded)
	s.Events, eventsSub = reactive.Accumulate(s.eventFeed, nil, foldEvents)
	s.Updates, updatesSub = reactive.Map(s.UpdateRows, sortedUpdates)

	s.subs.Add(
		downloadedSub,
		eventsSub,
		updatesSub,
		reactive.Derive(s.Packages, func() []PackageRow {
			return combinePackages(s.Status.Get(), s.Downloaded.Get(), s.Events.Get())
		}, s.Status, s.Downloaded, s.Events),
		reactive.Derive(s.Pending, func() []queue.Entry {
			return pendingEntries(s.Queue.Entries(), s.Status.Get(), s.Downloaded.Get())
		}, s.Queue.Value(), s.Status, s.Downloaded),
	)

	s.Sessions, err = session.New("packages", s.newPackageEvents, deps.SessionOptions()...)
	if err != nil {
		s.subs.Unsubscribe()
		return nil, err
	}

	s.subs.Add(state.Dispatch(deps.Router, deps.Payloads, deps.Logger, state.Handlers{
		message.LabelCdnStatusResponse: func(_ router.Routed, p message.Payload) {
			s.Status.Set(*p.(*message.CdnStatusResponse))
		},
		message.LabelDownloadedPackageResponse: func(_ router.Routed, p message.Payload) {
			s.downloadedFeed.Publish(*p.(*message.DownloadedPackageResponse))
		},
		message.LabelDownloadEvent: func(_ router.Routed, p message.Payload) {
			s.eventFeed.Publish(*p.(*message.DownloadEvent))
		},
		message.LabelCheckUpdateResponse: func(_ router.Routed, p message.Payload) {
			s.appendUpdates(p.(*message.CheckUpdateResponse).Status)
		},
		message.LabelCheckUpdatesResponse: func(_ router.Routed, p message.Payload) {
			s.appendUpdates(p.(*message.CheckUpdatesResponse).Updates...)
		},
	}))
	return s, nil
}

// Refresh fetches the CDN snapshot.
func (s *State) Refresh(ctx context.Context) error {
	var res message.CdnStatusResponse
	if err := s.deps.Requester.Get(ctx, transport.PathCdnStatus, &res); err != nil {
		return errors.Wrap(err, "cdn", "Refresh", "fetch local cdn status")
	}
	s.Status.Set(res)
	return nil
}

// SubmitQueue sends the queued entries as one download batch.
func (s *State) SubmitQueue() error {
	return s.deps.Submit("download-packages", s.Queue.DrainAndSubmit)
}

// CheckUpdates starts a new update check. The table restarts empty and
// fills up as results arrive on the message stream.
func (s *State) CheckUpdates() error {
	s.UpdateRows.Set(nil)
	return s.deps.Submit("check-updates", func(ctx context.Context) error {
		return s.deps.Requester.Get(ctx, transport.PathCdnCollectUpdates, nil)
	})
}

// Open returns the session of package name, opening it if needed.
func (s *State) Open(name string) (*PackageEvents, error) {
	return s.Sessions.Open(name)
}

// Session returns the live session of package name.
func (s *State) Session(name string) (*PackageEvents, error) {
	return s.Sessions.Lookup(name)
}

// CloseSession disposes the session of package name.
func (s *State) CloseSession(name string) bool {
	return s.Sessions.Close(name)
}

// Close disposes every session and derived cell.
func (s *State) Close() {
	s.subs.Unsubscribe()
	s.Sessions.CloseAll()
}

func (s *State) appendUpdates(rows ...message.UpdateStatusRow) {
	s.UpdateRows.Update(func(cur []message.UpdateStatusRow) []message.UpdateStatusRow {
		out := make([]message.UpdateStatusRow, 0, len(cur)+len(rows))
		return append(append(out, cur...), rows...)
	})
}

func (s *State) newPackageEvents(name string) (*PackageEvents, error) {
	return newPackageEvents(s.deps, name)
}
