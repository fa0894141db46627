// Package archive provides an optional ClickHouse sink for long-term
// position history. The SQLite derived store remains the source of truth;
// the archive only accumulates each load's retained position rows for
// analytics over many days.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"adsb_pipeline/internal/store"
)

// Config holds ClickHouse connection settings.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouse wraps a ClickHouse connection for position archiving.
type ClickHouse struct {
	conn driver.Conn
}

// Open opens a connection to ClickHouse and ensures the archive schema.
func Open(ctx context.Context, cfg Config) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	ch := &ClickHouse{conn: conn}
	if err := ch.createSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return ch, nil
}

// Close closes the ClickHouse connection.
func (c *ClickHouse) Close() error {
	return c.conn.Close()
}

func (c *ClickHouse) createSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS positions_archive (
		partition      LowCardinality(String),
		icao           LowCardinality(String),
		timestamp      Int64,
		lat            Float64,
		lon            Float64,
		altitude_baro  Nullable(Int64),
		ground_speed   Nullable(Float64),
		emergency      Nullable(String),
		archived_at    DateTime64(3) DEFAULT now64(3)
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(toDateTime(timestamp))
	ORDER BY (icao, timestamp)
	SETTINGS index_granularity = 8192`

	if err := c.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create archive schema: %w", err)
	}
	return nil
}

// ArchivePositions bulk-inserts one load's retained position rows.
func (c *ClickHouse) ArchivePositions(ctx context.Context, partition string, rows []store.Row) error {
	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO positions_archive (partition, icao, timestamp, lat, lon, altitude_baro, ground_speed, emergency)
	`)
	if err != nil {
		return fmt.Errorf("prepare archive batch: %w", err)
	}

	for _, r := range rows {
		var emergency *string
		if r.Emergency != "" {
			emergency = &r.Emergency
		}
		err := batch.Append(partition, r.ICAO, r.Timestamp, *r.Lat, *r.Lon, r.AltBaro, r.GroundSpeed, emergency)
		if err != nil {
			return fmt.Errorf("append archive row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send archive batch: %w", err)
	}
	return nil
}
