// Package environment is the environment domain: the daemon configuration
// snapshot, the global operation tree, custom commands and file browsing.
package environment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/message"
	"github.com/youwol/ywdash/optree"
	"github.com/youwol/ywdash/pkg/reactive"
	"github.com/youwol/ywdash/router"
	"github.com/youwol/ywdash/state"
	"github.com/youwol/ywdash/transport"
)

// LogsResponse is the daemon's backlog of root log entries.
type LogsResponse struct {
	Logs []message.Message `json:"logs"`
}

// FolderContent lists a folder on the daemon host.
type FolderContent struct {
	Files   []string `json:"files"`
	Folders []string `json:"folders"`
}

// CommandResult is the outcome of one custom command execution.
type CommandResult struct {
	Command string          `json:"command"`
	Output  json.RawMessage `json:"output,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// State owns the environment view models.
type State struct {
	deps state.Deps

	Status *reactive.Value[message.EnvironmentStatusResponse]
	// Tree is the operation tree of the global router.
	Tree *optree.Tree
	// LastCommand holds the result of the latest finished custom command.
	LastCommand *reactive.Value[CommandResult]

	subs reactive.Group
}

// New creates the environment state.
func New(deps state.Deps) (*State, error) {
	deps, err := deps.WithDefaults("environment")
	if err != nil {
		return nil, err
	}
	s := &State{
		deps:        deps,
		Status:      reactive.NewValue(message.EnvironmentStatusResponse{}),
		Tree:        optree.New(deps.Router, optree.WithLogger(deps.Logger), optree.WithMetrics(deps.Metrics.CoreMetrics())),
		LastCommand: reactive.NewValue(CommandResult{}),
	}
	s.subs.Add(
		reactive.SubscriptionFunc(s.Tree.Close),
		state.Dispatch(deps.Router, deps.Payloads, deps.Logger, state.Handlers{
			message.LabelEnvironmentStatusResponse: func(_ router.Routed, p message.Payload) {
				s.Status.Set(*p.(*message.EnvironmentStatusResponse))
			},
		}),
	)
	return s, nil
}

// Close stops every subscription.
func (s *State) Close() {
	s.subs.Unsubscribe()
}

// Refresh fetches the environment snapshot.
func (s *State) Refresh(ctx context.Context) error {
	var res message.EnvironmentStatusResponse
	if err := s.deps.Requester.Get(ctx, transport.PathEnvironmentStatus, &res); err != nil {
		return errors.Wrap(err, "environment", "Refresh", "fetch environment status")
	}
	s.Status.Set(res)
	return nil
}

// Backfill routes the daemon log backlog through the global router. Call it
// before the live feed starts so the backlog comes first.
func (s *State) Backfill(ctx context.Context) (int, error) {
	var res LogsResponse
	if err := s.deps.Requester.Get(ctx, transport.PathSystemLogs, &res); err != nil {
		return 0, errors.Wrap(err, "environment", "Backfill", "fetch logs")
	}
	n := 0
	for _, m := range res.Logs {
		if m.ContextID == "" {
			continue
		}
		s.deps.Router.Route(m)
		n++
	}
	s.deps.Logger.Info("Log backlog routed", "count", n)
	return n, nil
}

// Reload asks the daemon to reload its configuration. The new snapshot
// arrives on the message stream.
func (s *State) Reload() error {
	return s.deps.Submit("reload-configuration", func(ctx context.Context) error {
		return s.deps.Requester.Post(ctx, transport.PathEnvironmentReload, nil, nil)
	})
}

// Command returns a custom command of the snapshot.
func (s *State) Command(name string) (message.CustomCommand, bool) {
	for _, c := range s.Status.Get().CustomCommands {
		if c.Name == name {
			return c, true
		}
	}
	return message.CustomCommand{}, false
}

// Execute validates body and schedules the custom command. A body that is
// not JSON, or that does not match the command schema, fails here with
// ErrInvalidCommandBody; later failures land in LastCommand.
func (s *State) Execute(name string, body []byte) error {
	cmd, ok := s.Command(name)
	if !ok {
		return errors.WrapInvalid(errors.ErrEntityNotFound, "environment", "Execute", "find command "+name)
	}

	var payload any
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidCommandBody, err),
				"environment", "Execute", "parse body")
		}
	}
	if err := validateBody(cmd, payload); err != nil {
		return err
	}

	return s.deps.Submit("custom-command", func(ctx context.Context) error {
		var out json.RawMessage
		err := s.deps.Requester.Post(ctx, transport.CustomCommandPath(name), payload, &out)
		result := CommandResult{Command: name, Output: out}
		if err != nil {
			result.Error = err.Error()
		}
		s.LastCommand.Set(result)
		return err
	})
}

func validateBody(cmd message.CustomCommand, payload any) error {
	if len(cmd.Schema) == 0 {
		return nil
	}
	if payload == nil {
		payload = map[string]any{}
	}
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(cmd.Schema), gojsonschema.NewGoLoader(payload))
	if err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidCommandBody, err),
			"environment", "Execute", "load command schema")
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidCommandBody, strings.Join(problems, "; ")),
		"environment", "Execute", "validate body")
}

// Folder lists a folder on the daemon host.
func (s *State) Folder(ctx context.Context, path string) (FolderContent, error) {
	var res FolderContent
	body := map[string]string{"path": path}
	if err := s.deps.Requester.Post(ctx, transport.PathFolderContent, body, &res); err != nil {
		return FolderContent{}, errors.Wrap(err, "environment", "Folder", "list "+path)
	}
	return res, nil
}

// File returns the content of a file on the daemon host.
func (s *State) File(ctx context.Context, path string) ([]byte, error) {
	var content []byte
	if err := s.deps.Requester.Get(ctx, transport.FilePath(path), &content); err != nil {
		return nil, errors.Wrap(err, "environment", "File", "read "+path)
	}
	return content, nil
}
