package optree

import (
	"github.com/youwol/ywdash/message"
	"github.com/youwol/ywdash/pkg/timestamp"
)

// View is an immutable rendering model of a node and its subtree.
type View struct {
	ID       string           `json:"contextId"`
	ParentID string           `json:"parentContextId,omitempty"`
	Status   Status           `json:"status"`
	Header   *message.Message `json:"header,omitempty"`
	Entries  []ViewEntry      `json:"entries"`

	StartedAt string `json:"startedAt,omitempty"`
	// ElapsedMs is set once the node is terminal and both ends carry a timestamp.
	ElapsedMs int64 `json:"elapsedMs,omitempty"`
}

// ViewEntry is a log line or a nested child view.
type ViewEntry struct {
	Kind    EntryKind        `json:"kind"`
	Message *message.Message `json:"message,omitempty"`
	Child   *View            `json:"child,omitempty"`
}

// Snapshot returns the view of the subtree rooted at id.
func (t *Tree) Snapshot(id string) (View, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok {
		return View{}, false
	}
	return t.viewLocked(n), true
}

func (t *Tree) viewLocked(n *Node) View {
	v := View{
		ID:       n.ID,
		ParentID: n.ParentID,
		Status:   n.status.Get(),
		Entries:  make([]ViewEntry, 0, len(n.entries)),
	}
	if n.header != nil {
		h := *n.header
		v.Header = &h
	}
	for _, e := range n.entries {
		switch e.Kind {
		case EntryLog:
			m := e.Message
			v.Entries = append(v.Entries, ViewEntry{Kind: EntryLog, Message: &m})
		case EntryChild:
			if child, ok := t.nodes[e.ChildID]; ok {
				cv := t.viewLocked(child)
				v.Entries = append(v.Entries, ViewEntry{Kind: EntryChild, Child: &cv})
			}
		}
	}
	v.StartedAt, v.ElapsedMs = timing(n, v.Status)
	return v
}

// timing measures a node from its header, or first log line, to its last
// log line.
func timing(n *Node, status Status) (string, int64) {
	var start, end int64
	if n.header != nil {
		start = n.header.UnixMilli()
	}
	for _, e := range n.entries {
		if e.Kind != EntryLog {
			continue
		}
		ts := e.Message.UnixMilli()
		if start == 0 {
			start = ts
		}
		if ts != 0 {
			end = ts
		}
	}
	if status == StatusProcessing {
		return timestamp.Format(start), 0
	}
	return timestamp.Format(start), timestamp.Between(start, end).Milliseconds()
}

// Children returns the child ids of a node in discovery order.
func (v View) Children() []string {
	var out []string
	for _, e := range v.Entries {
		if e.Kind == EntryChild {
			out = append(out, e.Child.ID)
		}
	}
	return out
}
