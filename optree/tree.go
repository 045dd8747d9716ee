// Package optree materializes the operation tree of a router.
//
// Nodes live in an arena keyed by contextId. A node folds the messages of its
// own router stream (its own log lines plus the messages of its direct
// children) into an ordered list of entries, materializing each child the
// first time one of the child's messages appears. A node's own STARTED
// message becomes its header rather than an entry. Node status
// moves from processing to success or error on the node's own DONE or FAILED
// message and never changes again.
package optree

import (
	"log/slog"
	"sync"

	"github.com/youwol/ywdash/message"
	"github.com/youwol/ywdash/metric"
	"github.com/youwol/ywdash/pkg/reactive"
	"github.com/youwol/ywdash/router"
)

// Status is the lifecycle state of an operation.
type Status string

// Node statuses. Success and Error are terminal.
const (
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// EntryKind distinguishes log lines from child references.
type EntryKind string

// Entry kinds.
const (
	EntryLog   EntryKind = "log"
	EntryChild EntryKind = "child"
)

// Entry is one line of a node, in arrival order.
type Entry struct {
	Kind    EntryKind
	Message message.Message // EntryLog
	ChildID string          // EntryChild
}

// Node is one traced operation.
type Node struct {
	ID       string
	ParentID string

	header   *message.Message
	entries  []Entry
	children map[string]struct{}
	status   *reactive.Value[Status]
}

// Status returns the status cell of the node.
func (n *Node) Status() *reactive.Value[Status] {
	return n.status
}

// Option configures a Tree.
type Option func(*Tree)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tree) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics records node transitions.
func WithMetrics(m *metric.Metrics) Option {
	return func(t *Tree) { t.metrics = m }
}

// Tree is the arena of operation nodes built from one router.
type Tree struct {
	router  *router.Router
	logger  *slog.Logger
	metrics *metric.Metrics

	mu    sync.RWMutex
	nodes map[string]*Node
	order []string
	subs  reactive.Group

	// version increments on every change so views can watch the tree.
	version *reactive.Value[uint64]
}

// New builds the tree of r, starting at the root node. Messages already
// routed are replayed.
func New(r *router.Router, opts ...Option) *Tree {
	t := &Tree{
		router:  r,
		logger:  slog.Default(),
		nodes:   make(map[string]*Node),
		version: reactive.NewValue[uint64](0),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("router", r.Name())

	if root := t.add(message.RootID, ""); root != nil {
		t.attach(root)
	}
	return t
}

// add inserts a node into the arena. Returns nil if the id already exists.
func (t *Tree) add(id, parentID string) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.nodes[id]; exists {
		return nil
	}
	n := &Node{
		ID:       id,
		ParentID: parentID,
		children: make(map[string]struct{}),
		status:   reactive.NewValue(StatusProcessing),
	}
	t.nodes[id] = n
	t.order = append(t.order, id)
	return n
}

// attach subscribes the node to its router stream: one subscription folds
// entries, another watches for the terminal label and then detaches.
func (t *Tree) attach(n *Node) {
	stream, ok := t.router.Stream(n.ID)
	if !ok {
		t.logger.Warn("No router stream for operation node", "context_id", n.ID)
		return
	}
	t.metrics.RecordNodeTransition("materialized")

	t.subs.Add(stream.Subscribe(func(rt router.Routed) {
		if child := t.reduce(n, rt); child != nil {
			t.attach(child)
		}
		t.bump()
	}))

	if n.ID == message.RootID {
		return
	}
	t.subs.Add(stream.SubscribeUntil(func(rt router.Routed) bool {
		if rt.ContextID != n.ID {
			return false
		}
		var next Status
		switch {
		case rt.Has(message.LabelDone):
			next = StatusSuccess
		case rt.Has(message.LabelFailed):
			next = StatusError
		default:
			return false
		}
		n.status.Set(next)
		t.metrics.RecordNodeTransition(string(next))
		t.bump()
		return true
	}))
}

// reduce folds one message of n's stream into n. It returns a newly
// materialized child, which the caller must attach outside the lock.
func (t *Tree) reduce(n *Node, rt router.Routed) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case rt.ContextID == n.ID:
		if rt.Has(message.LabelStarted) && n.header == nil {
			m := rt.Message
			n.header = &m
			return nil
		}
		n.entries = append(n.entries, Entry{Kind: EntryLog, Message: rt.Message})
		return nil

	case rt.Parent == n.ID:
		if _, done := n.children[rt.ContextID]; done {
			return nil
		}
		if _, exists := t.nodes[rt.ContextID]; exists {
			// first attached under root before its parent was known
			t.logger.Debug("Context already materialized under another parent",
				"context_id", rt.ContextID, "parent_context_id", n.ID)
			return nil
		}
		n.children[rt.ContextID] = struct{}{}
		n.entries = append(n.entries, Entry{Kind: EntryChild, ChildID: rt.ContextID})

		child := &Node{
			ID:       rt.ContextID,
			ParentID: n.ID,
			children: make(map[string]struct{}),
			status:   reactive.NewValue(StatusProcessing),
		}
		t.nodes[child.ID] = child
		t.order = append(t.order, child.ID)
		return child
	}
	return nil
}

func (t *Tree) bump() {
	t.version.Update(func(v uint64) uint64 { return v + 1 })
}

// Node returns a node by context id.
func (t *Tree) Node(id string) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return n, ok
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	n, _ := t.Node(message.RootID)
	return n
}

// Size returns the number of materialized nodes, root included.
func (t *Tree) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// IDs returns node ids in materialization order.
func (t *Tree) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Version returns a cell that changes whenever the tree does.
func (t *Tree) Version() *reactive.Value[uint64] {
	return t.version
}

// Close detaches the tree from the router.
func (t *Tree) Close() {
	t.subs.Unsubscribe()
}
