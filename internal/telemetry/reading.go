// Package telemetry defines the data model flowing through the pipeline.
//
// A Reading is one complete modem status snapshot, shaped exactly as the
// ClickHouse row layout expects it. Readings are value objects: constructed
// once by a parse backend, then owned by exactly one pipeline stage at a
// time until inserted or dropped.
package telemetry

import "time"

// DownstreamChannel is one bonded downstream channel's state.
//
// Error counters are signed: the source hardware is observed to roll its
// counters over, and a signed column tolerates the wrap without rejecting
// the row.
type DownstreamChannel struct {
	ChannelID         uint8
	FrequencyHz       float64
	Modulation        string
	PowerDBmV         float64
	SNRdB             float64
	CorrectedErrors   int64
	UncorrectedErrors int64
}

// UpstreamChannel is one bonded upstream channel's state.
type UpstreamChannel struct {
	ChannelID   uint8
	FrequencyHz float64
	Modulation  string
	PowerDBmV   float64
	WidthHz     float64
}

// Reading is a single modem status snapshot.
//
// Channel slices may be empty (the device transiently reports zero
// channels) but are never nil. Channel IDs are not guaranteed unique
// within a list; the device occasionally repeats them.
type Reading struct {
	ModemName       string
	ConfigFilename  *string
	UptimeSeconds   uint64
	FirmwareVersion string
	Model           string
	Downstream      []DownstreamChannel
	Upstream        []UpstreamChannel

	// ScrapeLatency is the elapsed wall time of fetch+parse, in seconds.
	// Assigned by the sampler after a successful parse.
	ScrapeLatency float64

	// Timestamp is assigned at successful parse time.
	Timestamp time.Time
}

// ChannelCounts returns the downstream and upstream channel counts.
func (r *Reading) ChannelCounts() (down, up int) {
	return len(r.Downstream), len(r.Upstream)
}

// Normalize replaces nil channel slices with empty ones. Parse backends
// call this before handing a Reading to the pipeline so the never-nil
// invariant holds regardless of how the slices were built.
func (r *Reading) Normalize() {
	if r.Downstream == nil {
		r.Downstream = []DownstreamChannel{}
	}
	if r.Upstream == nil {
		r.Upstream = []UpstreamChannel{}
	}
}
