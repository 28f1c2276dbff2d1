package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chatpoll/pkg/config"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) a SQLite database at path, ensuring the
// parent directory exists.
func OpenSQLite(path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("database path is required")
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database %s: %w", path, err)
	}

	return db, nil
}

// EnsureChatSchema creates the count table and the chat table described by
// cfg, plus a trigger that bumps the count column for every inserted chat
// line. Existing tables are left untouched.
func EnsureChatSchema(ctx context.Context, db *sql.DB, cfg config.PollingConfig) error {
	names := []string{cfg.Table, cfg.ChatIDCol, cfg.CountCol, cfg.ChatTable.Name, cfg.ChatTable.ChatIDCol, cfg.ChatTable.TextCol}
	if cfg.ChatTable.UserCol != "" {
		names = append(names, cfg.ChatTable.UserCol)
	}
	for _, name := range names {
		if err := validIdent("schema", name); err != nil {
			return err
		}
	}

	orderCol := cfg.ChatTable.OrderCol
	if orderCol == "" {
		orderCol = "id"
	}
	if err := validIdent("order column", orderCol); err != nil {
		return err
	}

	counts := quoteIdent(cfg.Table)
	countID := quoteIdent(cfg.ChatIDCol)
	countCol := quoteIdent(cfg.CountCol)
	lines := quoteIdent(cfg.ChatTable.Name)
	lineChat := quoteIdent(cfg.ChatTable.ChatIDCol)

	userColumn := ""
	if cfg.ChatTable.UserCol != "" {
		userColumn = fmt.Sprintf("\n\t\t%s TEXT NOT NULL DEFAULT '',", quoteIdent(cfg.ChatTable.UserCol))
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		%[2]s TEXT PRIMARY KEY,
		%[3]s INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS %[4]s (
		%[5]s INTEGER PRIMARY KEY AUTOINCREMENT,
		%[6]s TEXT NOT NULL,
		%[7]s TEXT NOT NULL DEFAULT '',%[8]s
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS %[9]s ON %[4]s(%[6]s, %[5]s);

	CREATE TRIGGER IF NOT EXISTS %[10]s AFTER INSERT ON %[4]s
	BEGIN
		INSERT INTO %[1]s (%[2]s, %[3]s) VALUES (NEW.%[6]s, 1)
		ON CONFLICT(%[2]s) DO UPDATE SET %[3]s = %[3]s + 1;
	END;
	`,
		counts, countID, countCol,
		lines, quoteIdent(orderCol), lineChat, quoteIdent(cfg.ChatTable.TextCol), userColumn,
		quoteIdent("idx_"+cfg.ChatTable.Name+"_chat"),
		quoteIdent("trg_"+cfg.ChatTable.Name+"_count"),
	)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create chat schema: %w", err)
	}

	return nil
}
