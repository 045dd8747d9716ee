package transport

import (
	"net/url"
	"strings"

	"github.com/youwol/ywdash/message"
)

// Websocket channels of the daemon.
const (
	ChannelLogs = "ws-logs"
	ChannelData = "ws-data"
)

const adminPrefix = "/admin"

// Daemon admin endpoints.
const (
	PathProjectsStatus    = adminPrefix + "/projects/status"
	PathCdnStatus         = adminPrefix + "/local-cdn/status"
	PathCdnDownload       = adminPrefix + "/local-cdn/download"
	PathCdnCollectUpdates = adminPrefix + "/local-cdn/collect-updates"
	PathEnvironmentStatus = adminPrefix + "/environment/status"
	PathEnvironmentReload = adminPrefix + "/environment/configuration/reload"
	PathSystemLogs        = adminPrefix + "/system/logs"
	PathFolderContent     = adminPrefix + "/system/folder-content"
)

// ProjectFlowPath is the status endpoint of one project flow.
func ProjectFlowPath(projectID, flowID string) string {
	return adminPrefix + "/projects/" + url.PathEscape(projectID) + "/flows/" + url.PathEscape(flowID)
}

// ProjectStepRunPath runs one step of a project flow.
func ProjectStepRunPath(projectID, flowID, stepID string) string {
	return ProjectFlowPath(projectID, flowID) + "/steps/" + url.PathEscape(stepID) + "/run"
}

// ProjectStepPath is the status endpoint of one step.
func ProjectStepPath(projectID, flowID, stepID string) string {
	return ProjectFlowPath(projectID, flowID) + "/steps/" + url.PathEscape(stepID)
}

// CdnPackagePath is the details endpoint of a package, addressed by name.
func CdnPackagePath(name string) string {
	return adminPrefix + "/local-cdn/packages/" + url.PathEscape(message.PackageID(name))
}

// CustomCommandPath executes a custom command.
func CustomCommandPath(name string) string {
	return adminPrefix + "/custom-commands/" + url.PathEscape(name)
}

// FilePath returns the content endpoint of a file on the daemon host.
func FilePath(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return adminPrefix + "/system/file/" + strings.Join(segments, "/")
}

// WebsocketURL turns the daemon base URL into the URL of a websocket channel.
func WebsocketURL(base, channel string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + channel
	return u.String(), nil
}
