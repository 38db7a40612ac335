package store

import (
	"context"
	"fmt"

	"github.com/cablewatch/cablewatch/internal/errors"
)

// schemaDDL is the readings table layout. Nullable config filename
// distinguishes "no config file reported" from an empty name.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS %s (
    modem_name String,
    modem_config_filename Nullable(String),
    modem_uptime UInt64,
    modem_version String,
    modem_model String,
    downstream_channels Nested (
        channel_id UInt8,
        frequency Float64,
        modulation String,
        power Float64,
        snr Float64,
        correcteds Int64,
        uncorrecteds Int64
    ),
    upstream_channels Nested (
        channel_id UInt8,
        frequency Float64,
        modulation String,
        power Float64,
        width Float64
    ),
    scrape_latency Float64,
    timestamp DateTime64(3, 'UTC')
)
ENGINE = MergeTree
PARTITION BY toDate(timestamp)
ORDER BY (modem_name, timestamp)
`

// InitSchema creates the readings table if it does not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, fmt.Sprintf(schemaDDL, s.table)); err != nil {
		return errors.Insertf("create table %s: %v", s.table, err)
	}
	log.Info("schema ready", "table", s.table)
	return nil
}
