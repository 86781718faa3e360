package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"Replaya/internal/config"
	"Replaya/internal/replay"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS replay_history (
    ReplayID    String,
    File        String,
    Interface   String,
    Speed       Float64,
    SpeedUnit   String,
    Continuous  UInt8,
    Status      String,
    PacketsSent UInt64,
    LoopCount   UInt32,
    Error       String,
    StartedAt   DateTime,
    FinishedAt  DateTime
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(StartedAt)
ORDER BY (StartedAt, ReplayID);
`

// ClickHouseStore persists replay history in a ClickHouse table.
type ClickHouseStore struct {
	conn driver.Conn
}

func NewClickHouseStore(cfg config.ClickHouseConfig) (*ClickHouseStore, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	logrus.Info("Connected to ClickHouse and ensured replay_history table exists")

	return &ClickHouseStore{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

func (s *ClickHouseStore) Record(rec replay.HistoryRecord) error {
	batch, err := s.conn.PrepareBatch(context.Background(), "INSERT INTO replay_history")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	continuous := uint8(0)
	if rec.Continuous {
		continuous = 1
	}
	err = batch.Append(
		rec.ReplayID,
		rec.File,
		rec.Interface,
		rec.Speed,
		rec.SpeedUnit,
		continuous,
		rec.Status,
		uint64(rec.PacketsSent),
		uint32(rec.LoopCount),
		rec.Error,
		rec.StartedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append record to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) List(q Query) (Page, error) {
	where := []string{"1 = 1"}
	args := []any{}
	if q.Status != "" {
		where = append(where, "Status = ?")
		args = append(args, q.Status)
	}
	if q.Search != "" {
		where = append(where, "(positionCaseInsensitive(File, ?) > 0 OR positionCaseInsensitive(Interface, ?) > 0)")
		args = append(args, q.Search, q.Search)
	}
	cond := strings.Join(where, " AND ")

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM replay_history WHERE %s", cond)
	if err := s.conn.QueryRow(context.Background(), countQuery, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("failed to count history: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = maxEntries
	}
	query := fmt.Sprintf(
		"SELECT ReplayID, File, Interface, Speed, SpeedUnit, Continuous, Status, PacketsSent, LoopCount, Error, StartedAt, FinishedAt FROM replay_history WHERE %s ORDER BY StartedAt DESC LIMIT %d OFFSET %d",
		cond, limit, q.Offset)
	rows, err := s.conn.Query(context.Background(), query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	page := Page{Entries: []replay.HistoryRecord{}, Total: int(total)}
	for rows.Next() {
		var (
			rec        replay.HistoryRecord
			continuous uint8
			packets    uint64
			loops      uint32
		)
		err := rows.Scan(&rec.ReplayID, &rec.File, &rec.Interface, &rec.Speed,
			&rec.SpeedUnit, &continuous, &rec.Status, &packets, &loops,
			&rec.Error, &rec.StartedAt, &rec.FinishedAt)
		if err != nil {
			return Page{}, fmt.Errorf("failed to scan history row: %w", err)
		}
		rec.Continuous = continuous != 0
		rec.PacketsSent = int64(packets)
		rec.LoopCount = int(loops)
		page.Entries = append(page.Entries, rec)
	}
	return page, rows.Err()
}

func (s *ClickHouseStore) Clear() error {
	if err := s.conn.Exec(context.Background(), "TRUNCATE TABLE replay_history"); err != nil {
		return fmt.Errorf("failed to truncate history: %w", err)
	}
	return nil
}
