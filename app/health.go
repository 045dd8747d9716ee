package app

import (
	"github.com/youwol/ywdash/health"
)

func (a *App) registerChecks() {
	a.Health.Register("feed", func() health.Status {
		stats := a.Feed.Stats()
		var s health.Status
		if a.Feed.Connected() {
			s = health.NewHealthy("", "connected to the daemon")
		} else {
			s = health.NewDegraded("", "waiting for the daemon websocket")
		}
		return s.WithDetail("received", stats.Received).
			WithDetail("decode_errors", stats.DecodeErrors).
			WithDetail("reconnects", stats.Reconnects)
	})

	a.Health.Register("actions", func() health.Status {
		stats := a.Actions.Stats()
		s := health.NewHealthy("", "accepting actions")
		if stats.Saturated() {
			s = health.NewDegraded("", "action backlog full")
		}
		return s.WithDetail("running", stats.Running).
			WithDetail("completed", stats.Completed).
			WithDetail("failed", stats.Failed).
			WithDetail("rejected", stats.Rejected)
	})

	a.Health.Register("inbox", func() health.Status {
		size, capacity := a.Inbox.Size(), a.Inbox.Capacity()
		s := health.NewHealthy("", "dispatch keeping up")
		if size >= capacity {
			s = health.NewDegraded("", "inbox full, daemon feed is throttled")
		}
		return s.WithDetail("size", size).WithDetail("capacity", capacity)
	})

	if a.cfg.Relay.Enabled {
		a.Health.Register("relay", func() health.Status {
			if a.Relay == nil {
				return health.NewDegraded("", "relay not started")
			}
			stats := a.Relay.Stats()
			s := health.NewHealthy("", "relaying")
			if a.relayClient != nil && !a.relayClient.Healthy() {
				s = health.NewDegraded("", "relay "+a.relayClient.Status().String())
			}
			return s.WithDetail("published", stats.Published).WithDetail("failed", stats.Failed)
		})
	}
}
