// Package store persists readings to ClickHouse over the native
// protocol.
//
// Channel lists are stored as Nested columns, which the native protocol
// carries as one array per subcolumn. The column shaping helpers are
// split out so they stay testable without a server.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/cablewatch/cablewatch/internal/errors"
	"github.com/cablewatch/cablewatch/internal/logging"
	"github.com/cablewatch/cablewatch/internal/telemetry"
)

var log = logging.Component("store")

// =============================================================================
// Store Configuration
// =============================================================================

// Config holds ClickHouse connection options.
type Config struct {
	// Addr is the native protocol address, host:port.
	Addr string

	// Database is the target database name.
	Database string

	// Table is the readings table name.
	Table string

	Username string
	Password string

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration
}

// =============================================================================
// Store
// =============================================================================

// Store provides batched reading inserts.
//
// Store is safe for concurrent use.
type Store struct {
	conn  driver.Conn
	table string
}

// New opens a ClickHouse connection and verifies it with a ping.
func New(ctx context.Context, cfg Config) (*Store, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, errors.Insertf("open clickhouse %s: %v", cfg.Addr, err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, errors.Insertf("ping clickhouse %s: %v", cfg.Addr, err)
	}

	log.Info("clickhouse connected", "addr", cfg.Addr, "database", cfg.Database)

	return &Store{conn: conn, table: cfg.Table}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}

// InsertReadings writes a batch of readings. The batch is atomic: on
// error nothing was persisted and the whole batch is safe to retry.
func (s *Store) InsertReadings(ctx context.Context, readings []*telemetry.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s (modem_name, modem_config_filename, modem_uptime, modem_version, modem_model, "+
			"downstream_channels.channel_id, downstream_channels.frequency, downstream_channels.modulation, "+
			"downstream_channels.power, downstream_channels.snr, downstream_channels.correcteds, downstream_channels.uncorrecteds, "+
			"upstream_channels.channel_id, upstream_channels.frequency, upstream_channels.modulation, "+
			"upstream_channels.power, upstream_channels.width, "+
			"scrape_latency, timestamp)", s.table))
	if err != nil {
		return errors.Insertf("prepare batch: %v", err)
	}

	for _, r := range readings {
		down := downstreamColumns(r.Downstream)
		up := upstreamColumns(r.Upstream)

		if err := batch.Append(
			r.ModemName,
			r.ConfigFilename,
			r.UptimeSeconds,
			r.FirmwareVersion,
			r.Model,
			down.channelID, down.frequency, down.modulation,
			down.power, down.snr, down.correcteds, down.uncorrecteds,
			up.channelID, up.frequency, up.modulation,
			up.power, up.width,
			r.ScrapeLatency,
			r.Timestamp,
		); err != nil {
			return errors.Insertf("append reading: %v", err)
		}
	}

	if err := batch.Send(); err != nil {
		return errors.Insertf("send batch of %d: %v", len(readings), err)
	}
	return nil
}

// =============================================================================
// Column Shaping
// =============================================================================

// downstreamArrays holds one array per Nested subcolumn, all the same
// length.
type downstreamArrays struct {
	channelID    []uint8
	frequency    []float64
	modulation   []string
	power        []float64
	snr          []float64
	correcteds   []int64
	uncorrecteds []int64
}

type upstreamArrays struct {
	channelID  []uint8
	frequency  []float64
	modulation []string
	power      []float64
	width      []float64
}

func downstreamColumns(channels []telemetry.DownstreamChannel) downstreamArrays {
	n := len(channels)
	cols := downstreamArrays{
		channelID:    make([]uint8, n),
		frequency:    make([]float64, n),
		modulation:   make([]string, n),
		power:        make([]float64, n),
		snr:          make([]float64, n),
		correcteds:   make([]int64, n),
		uncorrecteds: make([]int64, n),
	}
	for i, ch := range channels {
		cols.channelID[i] = ch.ChannelID
		cols.frequency[i] = ch.FrequencyHz
		cols.modulation[i] = ch.Modulation
		cols.power[i] = ch.PowerDBmV
		cols.snr[i] = ch.SNRdB
		cols.correcteds[i] = ch.CorrectedErrors
		cols.uncorrecteds[i] = ch.UncorrectedErrors
	}
	return cols
}

func upstreamColumns(channels []telemetry.UpstreamChannel) upstreamArrays {
	n := len(channels)
	cols := upstreamArrays{
		channelID:  make([]uint8, n),
		frequency:  make([]float64, n),
		modulation: make([]string, n),
		power:      make([]float64, n),
		width:      make([]float64, n),
	}
	for i, ch := range channels {
		cols.channelID[i] = ch.ChannelID
		cols.frequency[i] = ch.FrequencyHz
		cols.modulation[i] = ch.Modulation
		cols.power[i] = ch.PowerDBmV
		cols.width[i] = ch.WidthHz
	}
	return cols
}
