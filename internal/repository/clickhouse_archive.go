package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"CopyRelay/internal/domain/models"
)

// ClickHouseArchive appends signals to a MergeTree table, keeping the raw
// payload as JSON so caller-supplied trade fields survive verbatim.
type ClickHouseArchive struct {
	db    *sql.DB
	table string
}

// ArchiveSchema are the idempotent statements run at startup.
func ArchiveSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			signal_id String,
			ts DateTime64(3),
			master_account String,
			action String,
			symbol String,
			payload String
		) ENGINE=MergeTree ORDER BY (master_account, ts)`, table),
	}
}

func NewClickHouseArchive(db *sql.DB, table string) *ClickHouseArchive {
	return &ClickHouseArchive{db: db, table: table}
}

func (a *ClickHouseArchive) Archive(ctx context.Context, sig models.Signal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (signal_id, ts, master_account, action, symbol, payload) VALUES (?, ?, ?, ?, ?, ?)",
		a.table,
	)
	_, err = a.db.ExecContext(ctx, query,
		sig.ID,
		sig.Timestamp,
		sig.Master,
		stringField(sig.Fields, "action"),
		stringField(sig.Fields, "symbol"),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool; the archive owns it.
func (a *ClickHouseArchive) Close() error { return a.db.Close() }

func stringField(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}
