// Package message defines the log/status record pushed by the daemon over its
// websocket channels, the lifecycle and domain labels carried on it, and the
// registry that decodes label-tagged data into typed payloads.
package message

import (
	"bytes"
	"encoding/json"
	"slices"
	"time"

	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/pkg/timestamp"
)

// RootID is the synthetic context every parentless or orphaned message
// attaches to.
const RootID = "root"

// Label tags a message with lifecycle or domain meaning.
type Label string

// Lifecycle labels.
const (
	LabelStarted Label = "STARTED"
	LabelDone    Label = "DONE"
	LabelFailed  Label = "FAILED"
)

// Domain labels emitted by the daemon alongside DATA-level messages.
const (
	LabelPipelineStepEvent          Label = "PipelineStepEvent"
	LabelPipelineStepStatusResponse Label = "PipelineStepStatusResponse"
	LabelPipelineStatusResponse     Label = "PipelineStatusResponse"
	LabelProjectsLoadingResults     Label = "ProjectsLoadingResults"
	LabelDownloadEvent              Label = "DownloadEvent"
	LabelDownloadedPackageResponse  Label = "DownloadedPackageResponse"
	LabelCheckUpdateResponse        Label = "CheckUpdateResponse"
	LabelCheckUpdatesResponse       Label = "CheckUpdatesResponse"
	LabelCdnStatusResponse          Label = "CdnStatusResponse"
	LabelEnvironmentStatusResponse  Label = "EnvironmentStatusResponse"
)

// Level is the severity or kind of a message.
type Level string

// Known levels.
const (
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
	LevelData    Level = "DATA"
)

// Message is one immutable record from the daemon. Messages sharing a
// ContextID belong to the same traced operation.
type Message struct {
	ContextID       string            `json:"contextId"`
	ParentContextID string            `json:"parentContextId,omitempty"`
	Level           Level             `json:"level,omitempty"`
	Text            string            `json:"text,omitempty"`
	Labels          []Label           `json:"labels,omitempty"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	Data            json.RawMessage   `json:"data,omitempty"`
	Timestamp       float64           `json:"timestamp,omitempty"`
}

// Has reports whether the message carries label.
func (m Message) Has(label Label) bool {
	return slices.Contains(m.Labels, label)
}

// Attribute returns an attribute value, empty when absent.
func (m Message) Attribute(key string) string {
	return m.Attributes[key]
}

// UnixMilli returns the message timestamp in Unix milliseconds, 0 if unset.
func (m Message) UnixMilli() int64 {
	return timestamp.Normalize(m.Timestamp)
}

// Time returns the message timestamp, zero if unset.
func (m Message) Time() time.Time {
	return timestamp.ToTime(m.UnixMilli())
}

// IsTerminal reports whether the message ends its operation.
func (m Message) IsTerminal() bool {
	return m.Has(LabelDone) || m.Has(LabelFailed)
}

// UnmarshalJSON accepts attribute values of any JSON type. Strings are kept
// as is, other scalars use their JSON text and null becomes empty.
func (m *Message) UnmarshalJSON(raw []byte) error {
	type plain Message
	var wire struct {
		*plain
		Attributes map[string]json.RawMessage `json:"attributes,omitempty"`
	}
	wire.plain = (*plain)(m)
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	m.Attributes = nil
	if wire.Attributes != nil {
		m.Attributes = make(map[string]string, len(wire.Attributes))
		for k, v := range wire.Attributes {
			m.Attributes[k] = attributeText(v)
		}
	}
	return nil
}

func attributeText(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	if string(v) == "null" {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return string(v)
	}
	return buf.String()
}

// Decode parses one websocket frame. Frames without a contextId are
// rejected; everything else is accepted as is.
func Decode(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, errors.WrapInvalid(err, "message", "Decode", "unmarshal frame")
	}
	if m.ContextID == "" {
		return Message{}, errors.WrapInvalid(errors.ErrInvalidData, "message", "Decode", "contextId check")
	}
	return m, nil
}
