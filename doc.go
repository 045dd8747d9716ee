// Package ywdash is the event-aggregation backend of the py-youwol admin
// dashboard. It follows a running daemon over its websocket channels and
// turns the flat stream of log and status messages into live view models:
// operation trees, per-project step statuses, the local CDN download queue,
// package sessions and the environment status.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│      Daemon (py-youwol)             │  /ws-logs, /ws-data,
//	│                                     │  /admin/* JSON API
//	└─────────────────────────────────────┘
//	           ↓ transport.Feed
//	┌─────────────────────────────────────┐
//	│      Inbox + dispatch loop          │  bounded, blocking,
//	│      (single goroutine)             │  never drops
//	└─────────────────────────────────────┘
//	           ↓ router.Route
//	┌─────────────────────────────────────┐
//	│      Router (per-context streams)   │  replay, root fallback
//	└─────────────────────────────────────┘
//	     ↓              ↓              ↓
//	┌──────────┐  ┌────────────┐  ┌──────────┐
//	│  optree  │  │ projection │  │  relay   │
//	│  trees   │  │  statuses  │  │  (NATS)  │
//	└──────────┘  └────────────┘  └──────────┘
//	     ↓              ↓
//	┌─────────────────────────────────────┐
//	│  state/projects, state/cdn,         │  sessions, queue,
//	│  state/environment                  │  derived cells
//	└─────────────────────────────────────┘
//	           ↓
//	┌─────────────────────────────────────┐
//	│      gateway (JSON over HTTP)       │  /api/*, /healthz,
//	│                                     │  /metrics
//	└─────────────────────────────────────┘
//
// # Packages
//
//   - message: the daemon record, labels and the typed payload registry
//   - router: demultiplexes messages into per-context replay streams
//   - optree: folds router streams into operation trees
//   - projection: keyed status projection and the aggregation table
//   - queue: the download queue with atomic toggle
//   - session: at-most-one session per entity key
//   - state/...: the three dashboard domains built on the above
//   - transport, relay, gateway: the daemon, the bus and the view layer
//   - app: wiring, lifecycle and health
//
// Actions triggered from the view layer (run a step, download packages,
// check updates) are fire-and-forget: they run on a worker pool and their
// outcome comes back as messages through the router.
//
// # Running
//
//	ywdash --config=ywdash.yaml --log-format=text
//
// See the config package for the file format and YWDASH_* overrides.
package ywdash
