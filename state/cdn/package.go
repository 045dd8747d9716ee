package cdn

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

// AttrPackageName ties a daemon message to a package.
const AttrPackageName = "packageName"

// PackageEvents is the session of one opened package.
type PackageEvents struct {
	Name   string
	ID     string
	Router *router.Router
	Tree   *optree.Tree
	// Downloads projects the download status of each version.
	Downloads       *projection.Projector[message.DownloadEventType]
	Details         *reactive.Value[*message.CdnPackage]
	SelectedVersion *reactive.Value[string]

	deps   state.Deps
	logger *slog.Logger
	subs   reactive.Group
}

func newPackageEvents(deps state.Deps, name string) (*PackageEvents, error) {
	logger := deps.Logger.With("package", name)
	downloads, err := projection.NewProjector[message.DownloadEventType](
		projection.WithLogger(logger),
		projection.WithMetrics(deps.Metrics, "package_downloads"))
	if err != nil {
		return nil, errors.Wrap(err, "cdn", "Open", "create download projector")
	}

	r, feed := deps.Router.Filtered("package:"+name, router.AttributeEquals(AttrPackageName, name))
	e := &PackageEvents{
		Name:            name,
		ID:              message.PackageID(name),
		Router:          r,
		Tree:            optree.New(r, optree.WithLogger(logger), optree.WithMetrics(deps.Metrics.CoreMetrics())),
		Downloads:       downloads,
		Details:         reactive.NewValue[*message.CdnPackage](nil),
		SelectedVersion: reactive.NewValue(""),
		deps:            deps,
		logger:          logger,
	}
	e.subs.Add(
		feed,
		reactive.SubscriptionFunc(e.Tree.Close),
		reactive.SubscriptionFunc(e.Downloads.Close),
		state.Dispatch(r, deps.Payloads, logger, state.Handlers{
			message.LabelDownloadEvent: e.onDownloadEvent,
		}),
	)

	if err := deps.Submit("fetch-package", e.RefreshDetails); err != nil {
		logger.Warn("Package details fetch not scheduled", "error", err)
	}
	return e, nil
}

// Close stops every subscription of the session.
func (e *PackageEvents) Close() {
	e.subs.Unsubscribe()
}

// RefreshDetails fetches the package details. The first successful fetch
// selects the latest version unless one is already selected.
func (e *PackageEvents) RefreshDetails(ctx context.Context) error {
	var pkg message.CdnPackage
	if err := e.deps.Requester.Get(ctx, transport.CdnPackagePath(e.Name), &pkg); err != nil {
		return errors.Wrap(err, "cdn", "RefreshDetails", "fetch package "+e.Name)
	}
	e.Details.Set(&pkg)
	if latest := LatestVersion(versions(pkg.Versions)); latest != "" {
		e.SelectedVersion.Update(func(cur string) string {
			if cur == "" {
				return latest
			}
			return cur
		})
	}
	return nil
}

// SelectVersion selects a version of the package.
func (e *PackageEvents) SelectVersion(version string) error {
	if details := e.Details.Get(); details != nil {
		known := func(v message.PackageVersion) bool { return v.Version == version }
		if !slices.ContainsFunc(details.Versions, known) {
			return errors.WrapInvalid(errors.ErrEntityNotFound, "cdn", "SelectVersion", "find version "+version)
		}
	}
	e.SelectedVersion.Set(version)
	return nil
}

// VersionStatus returns the download status of a version.
func (e *PackageEvents) VersionStatus(version string) projection.Projection[message.DownloadEventType] {
	return e.Downloads.Current(version)
}

func (e *PackageEvents) onDownloadEvent(rt router.Routed, p message.Payload) {
	ev := p.(*message.DownloadEvent)
	if ev.PackageName != e.Name {
		return
	}
	switch ev.Type {
	case message.DownloadSucceeded, message.DownloadFailed:
		e.Downloads.OnStatusResponse(ev.Version, ev.Type)
	default:
		e.Downloads.OnEvent(ev.Version, ev.Type)
	}
	e.Downloads.AppendLog(ev.Version, rt.Message)
}
