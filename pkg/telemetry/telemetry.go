// Package telemetry keeps the gateway's runtime counters. Plain atomics, no
// external metrics system: the numbers surface through the status endpoint
// and shutdown logs.
package telemetry

import "sync/atomic"

// Counters aggregates gateway activity since process start.
type Counters struct {
	Admitted      atomic.Int64 // sessions started
	Refused       atomic.Int64 // admission refusals (ban, rate, capacity, credential)
	Messages      atomic.Int64 // visitor messages delivered to a specimen
	Blocked       atomic.Int64 // messages refused by the inbound filter
	Warned        atomic.Int64 // messages delivered with a warning
	Redacted      atomic.Int64 // responses with at least one redaction
	DistressFlags atomic.Int64 // responses flagged by the distress scorer
	Terminated    atomic.Int64 // sessions ended by termination
	Bans          atomic.Int64 // identities banned
	BackendErrors atomic.Int64 // failed specimen backend calls
}

// Snapshot is a point-in-time copy for the status endpoint.
type Snapshot struct {
	Admitted      int64 `json:"admitted"`
	Refused       int64 `json:"refused"`
	Messages      int64 `json:"messages"`
	Blocked       int64 `json:"blocked"`
	Warned        int64 `json:"warned"`
	Redacted      int64 `json:"redacted"`
	DistressFlags int64 `json:"distress_flags"`
	Terminated    int64 `json:"terminated"`
	Bans          int64 `json:"bans"`
	BackendErrors int64 `json:"backend_errors"`
}

// Snapshot returns current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Admitted:      c.Admitted.Load(),
		Refused:       c.Refused.Load(),
		Messages:      c.Messages.Load(),
		Blocked:       c.Blocked.Load(),
		Warned:        c.Warned.Load(),
		Redacted:      c.Redacted.Load(),
		DistressFlags: c.DistressFlags.Load(),
		Terminated:    c.Terminated.Load(),
		Bans:          c.Bans.Load(),
		BackendErrors: c.BackendErrors.Load(),
	}
}
