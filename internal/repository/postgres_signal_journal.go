package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var journalSchema = []string{
	`create table if not exists final_signals (
		analysis_id text not null,
		horizon text not null,
		symbol text not null,
		as_of timestamptz not null,
		direction text not null,
		confidence double precision not null,
		risk_reward double precision not null,
		payload jsonb not null,
		created_at timestamptz not null default now(),
		primary key (analysis_id, horizon)
	);`,
	`create index if not exists final_signals_symbol_as_of on final_signals (symbol, as_of desc);`,
}

const insertSignal = `
	insert into final_signals (analysis_id, horizon, symbol, as_of, direction, confidence, risk_reward, payload)
	values ($1, $2, $3, $4, $5, $6, $7, $8)
	on conflict (analysis_id, horizon) do nothing`

const selectHistory = `
	select analysis_id, symbol, as_of, payload
	from final_signals
	where symbol = $1
	order by as_of desc, horizon asc
	limit $2`

// PostgresSignalJournal keeps every published final signal.
type PostgresSignalJournal struct {
	pool *pgxpool.Pool
}

func NewPostgresSignalJournal(pool *pgxpool.Pool) *PostgresSignalJournal {
	return &PostgresSignalJournal{pool: pool}
}

func (j *PostgresSignalJournal) Init(ctx context.Context) error {
	for _, stmt := range journalSchema {
		if _, err := j.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("journal schema: %w", err)
		}
	}
	return nil
}

// recordArgs maps a record onto insertSignal's placeholders.
func recordArgs(r models.SignalRecord) ([]interface{}, error) {
	payload, err := json.Marshal(r.Signal)
	if err != nil {
		return nil, fmt.Errorf("marshal signal: %w", err)
	}
	return []interface{}{
		r.AnalysisID,
		string(r.Signal.Horizon),
		r.Symbol,
		time.UnixMilli(r.AsOf).UTC(),
		string(r.Signal.Direction),
		r.Signal.Confidence,
		r.Signal.RiskRewardRatio,
		payload,
	}, nil
}

func (j *PostgresSignalJournal) Save(ctx context.Context, a *models.Analysis) error {
	if a == nil {
		return nil
	}
	recs := a.Records()
	if len(recs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range recs {
		args, err := recordArgs(r)
		if err != nil {
			return err
		}
		batch.Queue(insertSignal, args...)
	}
	if err := j.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("journal save: %w", err)
	}
	return nil
}

func (j *PostgresSignalJournal) History(ctx context.Context, symbol string, limit int) ([]models.SignalRecord, error) {
	rows, err := j.pool.Query(ctx, selectHistory, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("journal history: %w", err)
	}
	defer rows.Close()

	out := make([]models.SignalRecord, 0, limit)
	for rows.Next() {
		var (
			r       models.SignalRecord
			asOf    time.Time
			payload []byte
		)
		if err := rows.Scan(&r.AnalysisID, &r.Symbol, &asOf, &payload); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		if err := json.Unmarshal(payload, &r.Signal); err != nil {
			return nil, fmt.Errorf("decode signal %s: %w", r.AnalysisID, err)
		}
		r.AsOf = asOf.UnixMilli()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (j *PostgresSignalJournal) Health(ctx context.Context) error {
	return j.pool.Ping(ctx)
}

func (j *PostgresSignalJournal) Close() error {
	j.pool.Close()
	return nil
}

var _ domrepo.SignalJournal = (*PostgresSignalJournal)(nil)
