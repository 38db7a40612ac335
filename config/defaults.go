// Package config provides configuration defaults and utilities
// for the cablewatch application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via environment variables or a YAML
// config file.
package config

import "time"

// =============================================================================
// Scrape Defaults
// =============================================================================

const (
	// DefaultScrapeIntervalSec is how often the modem is scraped.
	// Override via env: SCRAPE_INTERVAL
	DefaultScrapeIntervalSec = 30

	// MinScrapeIntervalSec is the minimum allowed scrape interval.
	// Intervals below this are rejected at startup.
	MinScrapeIntervalSec = 1

	// DefaultModemName is the logical modem name stored with each reading.
	// Override via env: MODEM_NAME
	DefaultModemName = "MB8600"

	// DefaultModemBackend selects the fetch/parse backend.
	// Valid values: "hnap", "snmp", "html".
	// Override via env: MODEM_BACKEND
	DefaultModemBackend = "hnap"

	// DefaultHTTPTimeout is the timeout for a single modem HTTP request.
	DefaultHTTPTimeout = 10 * time.Second

	// DefaultSNMPCommunity is the SNMPv2c community for the snmp backend.
	// Override via env: MODEM_SNMP_COMMUNITY
	DefaultSNMPCommunity = "public"

	// DefaultSNMPPort is the SNMP agent port on the modem.
	DefaultSNMPPort = 161

	// DefaultSNMPTimeout is the timeout for a single SNMP request.
	DefaultSNMPTimeout = 5 * time.Second

	// DefaultSNMPRetries is the number of retry attempts after an SNMP timeout.
	DefaultSNMPRetries = 2
)

// =============================================================================
// Queue Defaults
// =============================================================================

const (
	// DefaultQueueLimit is the maximum number of pending readings.
	// When full, the oldest pending reading is dropped.
	// Override via env: CLICKHOUSE_QUEUE_LIMIT
	DefaultQueueLimit = 1000

	// MinQueueLimit is the minimum allowed queue capacity.
	// Limits below this are rejected at startup.
	MinQueueLimit = 25
)

// =============================================================================
// Writer Defaults
// =============================================================================

const (
	// DefaultWriterPollInterval is how often the writer drains the queue.
	// Kept shorter than the scrape interval so the queue stays shallow.
	DefaultWriterPollInterval = 5 * time.Second

	// DefaultWriterMaxBackoff caps the writer poll interval under
	// consecutive insert failures.
	DefaultWriterMaxBackoff = 2 * time.Minute

	// DefaultWriterBatchSize is the maximum readings per insert.
	DefaultWriterBatchSize = 100

	// DefaultBatchMaxAttempts is how many insert attempts a reading
	// survives before it is dropped as undeliverable.
	DefaultBatchMaxAttempts = 8
)

// =============================================================================
// Datastore Defaults
// =============================================================================

const (
	// DefaultClickHouseTable is the target table for readings.
	// Override via env: CLICKHOUSE_TABLE
	DefaultClickHouseTable = "docsis"

	// DefaultClickHouseDialTimeout is the connect timeout to ClickHouse.
	DefaultClickHouseDialTimeout = 5 * time.Second
)

// =============================================================================
// Observability Defaults
// =============================================================================

const (
	// DefaultLogLevel is the log verbosity when LOG_LEVEL is unset.
	DefaultLogLevel = "INFO"

	// DefaultLatencySketchAccuracy is the DDSketch relative accuracy
	// used for the scrape latency summary.
	DefaultLatencySketchAccuracy = 0.01

	// DefaultLatencyReportCycles is how many successful scrape cycles
	// pass between latency percentile summaries in the log.
	DefaultLatencyReportCycles = 20
)
