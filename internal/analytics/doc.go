// Package analytics computes windowed sales reports from persisted state.
//
// Every numeric option is a Knob with a default and bounds. Caller input is
// never rejected: it is parsed leniently and clamped (see Knob.Parse), so an
// analytics request cannot fail because of its options. Reads never touch
// upstream; a report reflects whatever the last sync durably committed.
//
// Slow movers are selected by a versioned Rule (v1, v2, v3) so that changes
// to the heuristic are explicit and comparable.
package analytics
