package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"
	pkgch "SignalFuse/pkg/clickhouse"
	applogger "SignalFuse/pkg/logger"
)

// CandlesSchema creates the candles table the store reads from.
func CandlesSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    symbol LowCardinality(String),
    tf LowCardinality(String),
    bucket DateTime64(3, 'UTC'),
    open Float64,
    high Float64,
    low Float64,
    close Float64,
    volume Float64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, tf, bucket)`, database, table),
	}
}

// CHFeatureStore implements FeatureStore backed by ClickHouse.
type CHFeatureStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHFeatureStore(ch *pkgch.Client, database, table string, l *applogger.Logger) *CHFeatureStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHFeatureStore{db: ch.DB(), table: database + "." + table, l: l}
}

func (s *CHFeatureStore) GetCandlesBefore(ctx context.Context, symbol string, asOf time.Time, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	return s.query(ctx, "candles_before", symbol, tf, n, asOf)
}

func (s *CHFeatureStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	return s.query(ctx, "latest_candles", symbol, tf, n, time.Time{})
}

// candlesQuery selects the newest n rows; callers reverse to oldest first.
func candlesQuery(table string, bounded bool) string {
	where := "symbol = ? AND tf = ?"
	if bounded {
		where += " AND bucket <= ?"
	}
	return fmt.Sprintf(`
        SELECT bucket, symbol, open, high, low, close, volume
        FROM %s FINAL
        WHERE %s
        ORDER BY bucket DESC
        LIMIT ?
    `, table, where)
}

func (s *CHFeatureStore) query(ctx context.Context, op, symbol string, tf domrepo.Timeframe, n int, asOf time.Time) ([]models.Candle, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	if n <= 0 {
		return nil, nil
	}
	start := time.Now()
	fields := []applogger.Field{
		applogger.String("table", s.table),
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("limit", n),
	}

	args := []interface{}{symbol, string(tf)}
	bounded := !asOf.IsZero()
	if bounded {
		args = append(args, asOf.UTC())
	}
	args = append(args, n)

	rows, err := s.db.QueryContext(ctx, candlesQuery(s.table, bounded), args...)
	if err != nil {
		s.l.Error("clickhouse "+op+" query error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, n)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			s.l.Error("clickhouse "+op+" scan error", append(fields, applogger.Error(err))...)
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		s.l.Error("clickhouse "+op+" rows error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverseCandles(out)
	s.l.Debug("clickhouse "+op+" ok", append(fields,
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)))...)
	return out, nil
}

func reverseCandles(c []models.Candle) {
	for i, j := 0, len(c)-1; i < j; i, j = i+1, j-1 {
		c[i], c[j] = c[j], c[i]
	}
}

var _ domrepo.FeatureStore = (*CHFeatureStore)(nil)
