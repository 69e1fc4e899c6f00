// Package storage persists executed trades and engine metadata in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/domain"
)

// TradeRecord is one persisted fill with the analysis context that produced it.
type TradeRecord struct {
	ID        string              `json:"id"`
	Market    string              `json:"market"`
	Side      domain.Side         `json:"side"`
	Kind      domain.OrderKind    `json:"kind"`
	Size      string              `json:"size"`
	Price     string              `json:"price"`
	Status    domain.OrderStatus  `json:"status"`
	Signal    domain.SignalAction `json:"signal,omitempty"`
	Regime    domain.Regime       `json:"regime,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// TradeStore handles persistent storage of trades in SQLite.
type TradeStore struct {
	db *sql.DB
}

// NewTradeStore opens (or creates) a SQLite trade store with WAL mode enabled.
func NewTradeStore(dbPath string) (*TradeStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	// KV table for small engine state (last sync time, run id).
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			market TEXT NOT NULL,
			ts INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_market_ts ON trades(market, ts);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create trades table: %w", err)
	}

	return &TradeStore{db: db}, nil
}

// SaveTrade stores one trade record.
func (s *TradeStore) SaveTrade(ctx context.Context, tr TradeRecord) error {
	payload, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("failed to marshal trade: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO trades (id, market, ts, payload) VALUES (?, ?, ?, ?)",
		tr.ID, tr.Market, tr.CreatedAt.UnixMilli(), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// TradesForMarket loads trades for one market, oldest first.
func (s *TradeStore) TradesForMarket(ctx context.Context, market string) ([]TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM trades WHERE market = ? ORDER BY ts ASC", market,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		var tr TradeRecord
		if err := json.Unmarshal(payload, &tr); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trade: %w", err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// Count returns the total number of stored trades.
func (s *TradeStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trades").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return n, nil
}

// UpsertMetadata saves a key-value pair to the metadata table.
func (s *TradeStore) UpsertMetadata(ctx context.Context, key, value string, ts int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
		key, value, ts,
	)
	return err
}

// GetMetadata retrieves a value from the metadata table. Missing keys
// return the empty string without error.
func (s *TradeStore) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Close closes the database connection.
func (s *TradeStore) Close() error {
	return s.db.Close()
}
