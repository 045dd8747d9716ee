package message

import "encoding/base64"

// StepStatus is the status of one pipeline step.
type StepStatus string

// Step statuses. Pending is transitional, the others are resolved.
const (
	StepPending  StepStatus = "pending"
	StepOK       StepStatus = "OK"
	StepKO       StepStatus = "KO"
	StepOutdated StepStatus = "outdated"
	StepNone     StepStatus = "none"
)

// UpdateStatus is the comparison between a local and a remote package version.
type UpdateStatus string

// Update statuses.
const (
	UpdateRemoteAhead UpdateStatus = "remoteAhead"
	UpdateLocalAhead  UpdateStatus = "localAhead"
	UpdateMismatch    UpdateStatus = "mismatch"
	UpdateUpToDate    UpdateStatus = "upToDate"
	UpdatePending     UpdateStatus = "pending"
	UpdateError       UpdateStatus = "error"
)

// DownloadEventType is the lifecycle step of one package download.
type DownloadEventType string

// Download event types.
const (
	DownloadEnqueued  DownloadEventType = "enqueued"
	DownloadStarted   DownloadEventType = "started"
	DownloadSucceeded DownloadEventType = "succeeded"
	DownloadFailed    DownloadEventType = "failed"
)

// PipelineStepEvent signals a transition of a step run (runStarted, runDone,
// statusCheckStarted).
type PipelineStepEvent struct {
	ProjectID string `json:"projectId"`
	FlowID    string `json:"flowId"`
	StepID    string `json:"stepId"`
	Event     string `json:"event"`
}

func (*PipelineStepEvent) Label() Label { return LabelPipelineStepEvent }

// Manifest is the record of a step's last successful run.
type Manifest struct {
	Succeeded    bool     `json:"succeeded"`
	Fingerprint  string   `json:"fingerprint,omitempty"`
	CreationDate string   `json:"creationDate,omitempty"`
	Files        []string `json:"files,omitempty"`
	CmdOutputs   []string `json:"cmdOutputs,omitempty"`
}

// Artifact is a build output of a step.
type Artifact struct {
	ID    string   `json:"id"`
	Path  string   `json:"path,omitempty"`
	Files []string `json:"files,omitempty"`
}

// PipelineStepStatusResponse is the resolved status of one step.
type PipelineStepStatusResponse struct {
	ProjectID      string     `json:"projectId"`
	FlowID         string     `json:"flowId"`
	StepID         string     `json:"stepId"`
	ArtifactFolder string     `json:"artifactFolder,omitempty"`
	Artifacts      []Artifact `json:"artifacts,omitempty"`
	Manifest       *Manifest  `json:"manifest,omitempty"`
	Status         StepStatus `json:"status"`
}

func (*PipelineStepStatusResponse) Label() Label { return LabelPipelineStepStatusResponse }

// PipelineStatusResponse is the status of every step of a flow.
type PipelineStatusResponse struct {
	ProjectID string                       `json:"projectId"`
	FlowID    string                       `json:"flowId"`
	Steps     []PipelineStepStatusResponse `json:"steps"`
}

func (*PipelineStatusResponse) Label() Label { return LabelPipelineStatusResponse }

// Flow is a named DAG of steps. Each branch is written "a > b > c".
type Flow struct {
	Name string   `json:"name"`
	DAG  []string `json:"dag"`
}

// Step is a pipeline step.
type Step struct {
	ID string `json:"id"`
}

// Pipeline describes how a project is built.
type Pipeline struct {
	Target string   `json:"target,omitempty"`
	Tags   []string `json:"tags,omitempty"`
	Steps  []Step   `json:"steps"`
	Flows  []Flow   `json:"flows"`
}

// Project is a local project known to the daemon.
type Project struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Path     string   `json:"path"`
	Pipeline Pipeline `json:"pipeline"`
}

// Flow returns the named flow.
func (p Project) Flow(name string) (Flow, bool) {
	for _, f := range p.Pipeline.Flows {
		if f.Name == name {
			return f, true
		}
	}
	return Flow{}, false
}

// ProjectLoadingFailure is a project folder the daemon could not load.
type ProjectLoadingFailure struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ProjectsLoadingResults lists loaded projects and loading failures.
type ProjectsLoadingResults struct {
	Results  []Project               `json:"results"`
	Failures []ProjectLoadingFailure `json:"failures,omitempty"`
}

func (*ProjectsLoadingResults) Label() Label { return LabelProjectsLoadingResults }

// DownloadEvent reports progress of one package download.
type DownloadEvent struct {
	PackageName string            `json:"packageName"`
	Version     string            `json:"version"`
	Type        DownloadEventType `json:"type"`
}

func (*DownloadEvent) Label() Label { return LabelDownloadEvent }

// PackageVersion is one version of a package in the local CDN.
type PackageVersion struct {
	Version     string `json:"version"`
	FilesCount  int    `json:"filesCount,omitempty"`
	EntryPoint  string `json:"entryPointSize,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// CdnPackage is a package present in the local CDN.
type CdnPackage struct {
	Name     string           `json:"name"`
	ID       string           `json:"id"`
	Versions []PackageVersion `json:"versions"`
}

// DownloadedPackageResponse reports a package fetched during this session.
type DownloadedPackageResponse struct {
	PackageName string           `json:"packageName"`
	Versions    []PackageVersion `json:"versions"`
}

func (*DownloadedPackageResponse) Label() Label { return LabelDownloadedPackageResponse }

// CdnStatusResponse is the local CDN content.
type CdnStatusResponse struct {
	Packages []CdnPackage `json:"packages"`
}

func (*CdnStatusResponse) Label() Label { return LabelCdnStatusResponse }

// PackageVersionInfo is a version of a package on one side of an update check.
type PackageVersionInfo struct {
	Version     string `json:"version"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// UpdateStatusRow compares the local and remote versions of a package.
type UpdateStatusRow struct {
	PackageName   string             `json:"packageName"`
	LocalVersion  PackageVersionInfo `json:"localVersionInfo"`
	RemoteVersion PackageVersionInfo `json:"remoteVersionInfo"`
	Status        UpdateStatus       `json:"status"`
}

// CheckUpdateResponse is the update check result of one package.
type CheckUpdateResponse struct {
	Status UpdateStatusRow `json:"status"`
}

func (*CheckUpdateResponse) Label() Label { return LabelCheckUpdateResponse }

// CheckUpdatesResponse is the result of a full update check.
type CheckUpdatesResponse struct {
	Updates []UpdateStatusRow `json:"updates"`
}

func (*CheckUpdatesResponse) Label() Label { return LabelCheckUpdatesResponse }

// CustomCommand is a command declared in the daemon configuration.
// Schema, when present, is the JSON schema of the command body.
type CustomCommand struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema,omitempty"`
}

// RemoteInfo is a remote environment the daemon can reach.
type RemoteInfo struct {
	Host      string `json:"host"`
	Connected bool   `json:"connected"`
}

// EnvironmentStatusResponse describes the running daemon environment.
type EnvironmentStatusResponse struct {
	Configuration  map[string]any  `json:"configuration"`
	Users          []string        `json:"users,omitempty"`
	RemotesInfo    []RemoteInfo    `json:"remotesInfo,omitempty"`
	CustomCommands []CustomCommand `json:"customCommands,omitempty"`
}

func (*EnvironmentStatusResponse) Label() Label { return LabelEnvironmentStatusResponse }

// PackageID is the id the daemon uses for a package name.
func PackageID(name string) string {
	return base64.StdEncoding.EncodeToString([]byte(name))
}

func builtinPayloads() []*Registration {
	return []*Registration{
		{Label: LabelPipelineStepEvent, Description: "step run transition",
			Factory: func() Payload { return &PipelineStepEvent{} }},
		{Label: LabelPipelineStepStatusResponse, Description: "resolved step status",
			Factory: func() Payload { return &PipelineStepStatusResponse{} }},
		{Label: LabelPipelineStatusResponse, Description: "flow status",
			Factory: func() Payload { return &PipelineStatusResponse{} }},
		{Label: LabelProjectsLoadingResults, Description: "projects list",
			Factory: func() Payload { return &ProjectsLoadingResults{} }},
		{Label: LabelDownloadEvent, Description: "download progress",
			Factory: func() Payload { return &DownloadEvent{} }},
		{Label: LabelDownloadedPackageResponse, Description: "downloaded package",
			Factory: func() Payload { return &DownloadedPackageResponse{} }},
		{Label: LabelCheckUpdateResponse, Description: "single update check",
			Factory: func() Payload { return &CheckUpdateResponse{} }},
		{Label: LabelCheckUpdatesResponse, Description: "full update check",
			Factory: func() Payload { return &CheckUpdatesResponse{} }},
		{Label: LabelCdnStatusResponse, Description: "local CDN content",
			Factory: func() Payload { return &CdnStatusResponse{} }},
		{Label: LabelEnvironmentStatusResponse, Description: "environment status",
			Factory: func() Payload { return &EnvironmentStatusResponse{} }},
	}
}
