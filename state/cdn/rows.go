package cdn

import (
	"slices"

	"github.com/youwol/ywdash/message"
	"github.com/youwol/ywdash/projection"
	"github.com/youwol/ywdash/queue"
)

// Source tells which input a package row comes from.
type Source string

// Row sources, by decreasing precedence.
const (
	SourceSnapshot   Source = "snapshot"
	SourceDownloaded Source = "downloaded"
	SourceEvent      Source = "event"
)

// PackageRow is one entry of the combined packages list.
type PackageRow struct {
	Name     string                    `json:"name"`
	ID       string                    `json:"id"`
	Versions []string                  `json:"versions"`
	Source   Source                    `json:"source"`
	Event    message.DownloadEventType `json:"event,omitempty"`
}

var packageTable = projection.NewDedupTable(
	func(r PackageRow) string { return r.ID },
	func(a, b PackageRow) int { return projection.CompareFold(a.Name, b.Name) },
)

var updateTable = projection.NewAppendOnlyTable(projection.CompareUpdateRows)

func versions(vs []message.PackageVersion) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Version
	}
	return out
}

// combinePackages merges the snapshot, the packages downloaded during this
// session and the in-flight download events into one list. A package
// appears once, taken from the first input holding it. Succeeded events are
// left out: the package shows up in one of the other inputs instead.
func combinePackages(snapshot message.CdnStatusResponse, downloaded []message.DownloadedPackageResponse, events []message.DownloadEvent) []PackageRow {
	fromSnapshot := make([]PackageRow, len(snapshot.Packages))
	for i, p := range snapshot.Packages {
		id := p.ID
		if id == "" {
			id = message.PackageID(p.Name)
		}
		fromSnapshot[i] = PackageRow{Name: p.Name, ID: id, Versions: versions(p.Versions), Source: SourceSnapshot}
	}

	fromDownloads := make([]PackageRow, len(downloaded))
	for i, d := range downloaded {
		fromDownloads[i] = PackageRow{
			Name:     d.PackageName,
			ID:       message.PackageID(d.PackageName),
			Versions: versions(d.Versions),
			Source:   SourceDownloaded,
		}
	}

	fromEvents := make([]PackageRow, 0, len(events))
	for _, ev := range events {
		if ev.Type == message.DownloadSucceeded {
			continue
		}
		fromEvents = append(fromEvents, PackageRow{
			Name:     ev.PackageName,
			ID:       message.PackageID(ev.PackageName),
			Versions: []string{ev.Version},
			Source:   SourceEvent,
			Event:    ev.Type,
		})
	}

	return packageTable.Merge(fromSnapshot, fromDownloads, fromEvents)
}

// foldEvents keeps the latest event of each (package, version), in order
// of first appearance.
func foldEvents(acc []message.DownloadEvent, ev message.DownloadEvent) []message.DownloadEvent {
	i := slices.IndexFunc(acc, func(x message.DownloadEvent) bool {
		return x.PackageName == ev.PackageName && x.Version == ev.Version
	})
	out := slices.Clone(acc)
	if i < 0 {
		return append(out, ev)
	}
	out[i] = ev
	return out
}

func foldDownloaded(acc []message.DownloadedPackageResponse, d message.DownloadedPackageResponse) []message.DownloadedPackageResponse {
	return append(slices.Clone(acc), d)
}

// pendingEntries lists the queued entries not yet present locally.
func pendingEntries(entries []queue.Entry, snapshot message.CdnStatusResponse, downloaded []message.DownloadedPackageResponse) []queue.Entry {
	local := make(map[queue.Entry]bool)
	for _, p := range snapshot.Packages {
		for _, v := range p.Versions {
			local[queue.Entry{Name: p.Name, Version: v.Version}] = true
		}
	}
	for _, d := range downloaded {
		for _, v := range d.Versions {
			local[queue.Entry{Name: d.PackageName, Version: v.Version}] = true
		}
	}
	out := make([]queue.Entry, 0, len(entries))
	for _, e := range entries {
		if !local[e] {
			out = append(out, e)
		}
	}
	return out
}

func sortedUpdates(rows []message.UpdateStatusRow) []message.UpdateStatusRow {
	return updateTable.Merge(rows)
}
