// Package queue holds the (name, version) pairs waiting to be downloaded
// into the local CDN and submits them to the daemon as one batch.
package queue

import (
	"context"
	"log/slog"
	"slices"

	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/metric"
	"github.com/youwol/ywdash/pkg/reactive"
	"github.com/youwol/ywdash/transport"
)

// Entry is one package version waiting for download.
type Entry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type downloadItem struct {
	PackageName string `json:"packageName"`
	Version     string `json:"version"`
}

type downloadBody struct {
	Packages    []downloadItem `json:"packages"`
	CheckUpdate bool           `json:"checkUpdate"`
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithMetrics records the queue size.
func WithMetrics(m *metric.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// Queue is a submission buffer. Submitting does not clear it: entries leave
// the derived pending view once they show up in the CDN snapshot.
type Queue struct {
	entries   *reactive.Value[[]Entry]
	requester transport.Requester
	logger    *slog.Logger
	metrics   *metric.Metrics
}

// New creates an empty queue submitting through requester.
func New(requester transport.Requester, opts ...Option) *Queue {
	q := &Queue{
		entries:   reactive.NewValue[[]Entry](nil),
		requester: requester,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Value exposes the queue content as a current-value cell.
func (q *Queue) Value() *reactive.Value[[]Entry] {
	return q.entries
}

// Entries returns a copy of the queue content.
func (q *Queue) Entries() []Entry {
	return slices.Clone(q.entries.Get())
}

// Contains reports whether (name, version) is queued.
func (q *Queue) Contains(name, version string) bool {
	return slices.Contains(q.entries.Get(), Entry{Name: name, Version: version})
}

// Insert queues (name, version) once. Inserting an entry already queued
// moves it to the back.
func (q *Queue) Insert(name, version string) {
	q.update(func(cur []Entry) []Entry {
		return insert(cur, Entry{Name: name, Version: version})
	})
}

// Remove drops every entry matching (name, version).
func (q *Queue) Remove(name, version string) {
	q.update(func(cur []Entry) []Entry {
		return without(cur, Entry{Name: name, Version: version})
	})
}

// Toggle removes (name, version) if queued, inserts it otherwise. The check
// and the write happen on the same snapshot.
func (q *Queue) Toggle(name, version string) {
	e := Entry{Name: name, Version: version}
	q.update(func(cur []Entry) []Entry {
		if slices.Contains(cur, e) {
			return without(cur, e)
		}
		return insert(cur, e)
	})
}

// DrainAndSubmit sends every queued entry in a single download request.
// The queue is left untouched whatever the outcome.
func (q *Queue) DrainAndSubmit(ctx context.Context) error {
	entries := q.entries.Get()
	if len(entries) == 0 {
		return nil
	}
	body := downloadBody{Packages: make([]downloadItem, len(entries)), CheckUpdate: true}
	for i, e := range entries {
		body.Packages[i] = downloadItem{PackageName: e.Name, Version: e.Version}
	}
	if err := q.requester.Post(ctx, transport.PathCdnDownload, body, nil); err != nil {
		return errors.Wrap(err, "queue", "DrainAndSubmit", "submit download batch")
	}
	q.logger.Info("Download batch submitted", "count", len(entries))
	return nil
}

func (q *Queue) update(fn func([]Entry) []Entry) {
	next := q.entries.Update(fn)
	q.metrics.RecordQueueSize(len(next))
}

func insert(cur []Entry, e Entry) []Entry {
	return append(without(cur, e), e)
}

// without never aliases cur, so published snapshots stay immutable.
func without(cur []Entry, e Entry) []Entry {
	out := make([]Entry, 0, len(cur)+1)
	for _, x := range cur {
		if x != e {
			out = append(out, x)
		}
	}
	return out
}
