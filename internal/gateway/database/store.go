package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"kestrel/internal/logger"
)

// 中文说明：
// 留痕层：决策、周期结局、成交、生命周期事件各一张表，全部 sqlite。
// 时间戳统一毫秒整数；写入方拿 Store 即可，不自己管连接。

type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open 打开（必要时创建）数据库并完成建表。
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建数据目录 %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开数据库 %s: %w", path, err)
	}
	// 单写多读场景，WAL 足够
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("设置 PRAGMA: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Infof("✓ 数据库就绪: %s", path)
	return s, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}

// handle 取当前连接；Close 之后的调用统一报未初始化。
func (s *Store) handle() (*sql.DB, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("store 未初始化")
	}
	return db, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id            TEXT PRIMARY KEY,
			pair          TEXT NOT NULL,
			action        TEXT NOT NULL,
			confidence    REAL NOT NULL DEFAULT 0,
			size_pct      REAL NOT NULL DEFAULT 0,
			stop_loss_pct REAL NOT NULL DEFAULT 0,
			reasoning     TEXT,
			providers     TEXT,
			created_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS cycles (
			cycle_id      TEXT PRIMARY KEY,
			pair          TEXT NOT NULL,
			outcome       TEXT NOT NULL,
			decision_id   TEXT,
			action        TEXT,
			confidence    REAL NOT NULL DEFAULT 0,
			reject_reason TEXT,
			trade_id      TEXT,
			failure       TEXT,
			started_at    INTEGER NOT NULL,
			finished_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at DESC)`,
		`CREATE TABLE IF NOT EXISTS trades (
			trade_id    TEXT PRIMARY KEY,
			decision_id TEXT,
			pair        TEXT NOT NULL,
			side        TEXT NOT NULL,
			quantity    REAL NOT NULL DEFAULT 0,
			avg_price   REAL NOT NULL DEFAULT 0,
			notional    REAL NOT NULL DEFAULT 0,
			executed_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_executed ON trades(executed_at DESC)`,
		`CREATE TABLE IF NOT EXISTS events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			type        TEXT NOT NULL,
			pair        TEXT,
			decision_id TEXT,
			reason      TEXT,
			fields      TEXT,
			at          INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type_at ON events(type, at DESC)`,
	}
	db, err := s.handle()
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("建表失败: %w", err)
		}
	}
	return nil
}
