// Package modem provides the status fetch and parse backends.
//
// Each backend implements the same narrow contract: Fetch retrieves the raw
// status from the device, Parse is a pure function turning those bytes into
// a validated Reading or a typed parse error. The split isolates the one
// part of the system that changes with device firmware from the pipeline
// logic, and keeps Parse trivially testable without a live modem.
//
// Backends:
//   - hnap: Motorola/Arris HNAP1 SOAP interface (MB8600 and friends)
//   - snmp: DOCSIS-IF MIB over SNMPv2c
//   - html: connection-status page scraping (Technicolor-style devices)
package modem

import (
	"context"
	"time"

	"github.com/cablewatch/cablewatch/internal/errors"
	"github.com/cablewatch/cablewatch/internal/telemetry"
)

// Backend is a fetch/parse pair for one device family.
type Backend interface {
	// Fetch authenticates as needed and retrieves raw modem status.
	// Failures are fetch errors: transient, retried on the next cycle.
	Fetch(ctx context.Context) ([]byte, error)

	// Parse converts raw status into a Reading. Failures are parse
	// errors: the data came back in an unexpected shape.
	Parse(raw []byte) (*telemetry.Reading, error)
}

// Config holds backend construction parameters.
type Config struct {
	// Name is the logical modem name recorded in every reading.
	Name string

	// Backend selects the device family: "hnap", "snmp" or "html".
	Backend string

	// URL is the management endpoint (http/https base URL for hnap and
	// html, host for snmp).
	URL      string
	Username string
	Password string

	HTTPTimeout time.Duration

	// SNMP backend settings.
	SNMPCommunity string
	SNMPPort      uint16
	SNMPTimeout   time.Duration
	SNMPRetries   int
}

// New constructs the backend named by cfg.Backend.
func New(cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "hnap":
		return NewHNAP(cfg), nil
	case "snmp":
		return NewSNMP(cfg), nil
	case "html":
		return NewHTMLStatus(cfg), nil
	default:
		return nil, errors.Configf("unknown modem backend %q", cfg.Backend)
	}
}
