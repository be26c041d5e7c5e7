package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinPolicy/internal/domain/models"
	pkgch "FinPolicy/pkg/clickhouse"
	applogger "FinPolicy/pkg/logger"
)

// CHCandleStore reads OHLCV bars from ClickHouse.
type CHCandleStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client, l *applogger.Logger) *CHCandleStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHCandleStore{db: ch.DB(), l: l.Component("candle_store")}
}

// RecentCandles returns up to limit bars ending at or before to, oldest first.
func (s *CHCandleStore) RecentCandles(ctx context.Context, symbol, tf string, to time.Time, limit int) ([]models.Candle, error) {
	if !models.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe %q", tf)
	}
	const q = `
        SELECT bucket, symbol, open, high, low, close, volume
        FROM (
            SELECT bucket, symbol, open, high, low, close, volume
            FROM candles FINAL
            WHERE symbol = ? AND timeframe = ? AND bucket <= ?
            ORDER BY bucket DESC
            LIMIT ?
        )
        ORDER BY bucket ASC`
	rows, err := s.db.QueryContext(ctx, q, symbol, tf, to.UTC(), limit)
	if err != nil {
		s.l.Error("clickhouse recent_candles query error",
			applogger.String("symbol", symbol),
			applogger.String("tf", tf),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, limit)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
