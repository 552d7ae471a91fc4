package repository

import (
	"context"
	"time"

	"karpet/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

const createPriceHistoryTable = `
CREATE TABLE IF NOT EXISTS price_history (
    source      TEXT        NOT NULL,
    coin        TEXT        NOT NULL,
    day         DATE        NOT NULL,
    open        NUMERIC     NOT NULL,
    high        NUMERIC     NOT NULL,
    low         NUMERIC     NOT NULL,
    close       NUMERIC     NOT NULL,
    volume      NUMERIC     NOT NULL DEFAULT 0,
    market_cap  NUMERIC     NOT NULL DEFAULT 0,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (source, coin, day)
);
`

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PriceRepository archives daily history keyed by source, coin and day.
// Sources name coins differently, so rows from one never shadow another's.
type PriceRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewPriceRepository(pool PgxPool, tracer trace.Tracer) *PriceRepository {
	return &PriceRepository{pool: pool, tracer: tracer}
}

func (r *PriceRepository) RunMigrations(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "price-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createPriceHistoryTable)
	return err
}

func (r *PriceRepository) UpsertHistory(ctx context.Context, source string, rows []domain.HistoricalPrice) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "price-repo.upsert-history")
	defer span.End()

	batch := &pgx.Batch{}
	for _, p := range rows {
		batch.Queue(
			`INSERT INTO price_history (source, coin, day, open, high, low, close, volume, market_cap)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (source, coin, day) DO UPDATE SET
			     open = EXCLUDED.open,
			     high = EXCLUDED.high,
			     low = EXCLUDED.low,
			     close = EXCLUDED.close,
			     volume = EXCLUDED.volume,
			     market_cap = EXCLUDED.market_cap,
			     updated_at = NOW()`,
			source, p.Coin, p.Date.UTC(), p.Open, p.High, p.Low, p.Close, p.Volume, p.MarketCap,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range rows {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// GetHistory returns rows archived from source for coin in [from, to],
// oldest first.
func (r *PriceRepository) GetHistory(ctx context.Context, source, coin string, from, to time.Time) ([]domain.HistoricalPrice, error) {
	ctx, span := r.tracer.Start(ctx, "price-repo.get-history")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT coin, day, open, high, low, close, volume, market_cap
		 FROM price_history
		 WHERE source = $1 AND coin = $2 AND day >= $3 AND day <= $4
		 ORDER BY day ASC`,
		source, coin, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []domain.HistoricalPrice
	for rows.Next() {
		var p domain.HistoricalPrice
		if err := rows.Scan(&p.Coin, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume, &p.MarketCap); err != nil {
			return nil, err
		}
		p.Date = p.Date.UTC()
		history = append(history, p)
	}
	return history, rows.Err()
}
