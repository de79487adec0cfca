package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

// sqliteConn 嵌入式SQLite后端，适合单机部署和测试
type sqliteConn struct {
	db     *sql.DB
	closed atomic.Bool
}

// OpenSQLite 打开SQLite数据库并应用幂等的建表脚本。
// descriptor 形如 "sqlite:/var/lib/stats.db"、"file:stats.db?cache=shared" 或 "stats.db"。
func OpenSQLite(ctx context.Context, descriptor string) (Conn, error) {
	path := strings.TrimPrefix(strings.TrimSpace(descriptor), "sqlite:")
	if path == "" {
		return nil, fmt.Errorf("empty sqlite path")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// 单连接：事件按调用顺序写入
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, SQLiteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &sqliteConn{db: db}, nil
}

func (c *sqliteConn) Alive() bool {
	return !c.closed.Load()
}

func (c *sqliteConn) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *sqliteConn) CreateSession(ctx context.Context) (SessionID, error) {
	var id int64
	err := c.db.QueryRowContext(ctx,
		`INSERT INTO GameSession (Heartbeat) VALUES (CURRENT_TIMESTAMP) RETURNING Id`,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("INSERT INTO GameSession: %w", err)
	}
	return SessionID(formatID(id)), nil
}

func (c *sqliteConn) TouchSession(ctx context.Context, id SessionID) error {
	sid, err := parseID(string(id))
	if err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, `UPDATE GameSession SET Heartbeat = CURRENT_TIMESTAMP WHERE Id = ?`, sid); err != nil {
		return fmt.Errorf("UPDATE GameSession SET Heartbeat: %w", err)
	}
	return nil
}

func (c *sqliteConn) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("BEGIN TRANSACTION: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

func (c *sqliteConn) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.db.Close()
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) InsertEvent(ctx context.Context, session SessionID, name string) (EventID, error) {
	sid, err := parseID(string(session))
	if err != nil {
		return "", err
	}

	var id int64
	err = t.tx.QueryRowContext(ctx,
		`INSERT INTO Event (GameSessionId, Name) VALUES (?, ?) RETURNING Id`,
		sid, name,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("INSERT INTO Event: %w", err)
	}
	return EventID(formatID(id)), nil
}

// InsertAttribute 依赖列的类型亲和性把文本转换为 INTEGER/REAL
func (t *sqliteTx) InsertAttribute(ctx context.Context, event EventID, key string, column Column, text string) error {
	eid, err := parseID(string(event))
	if err != nil {
		return err
	}
	query, err := attributeInsertSQL(column, "?", "?", "?")
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, query, eid, key, text); err != nil {
		return fmt.Errorf("INSERT INTO EventData (%s): %w", column.Name(), err)
	}
	return nil
}

func (t *sqliteTx) Commit(ctx context.Context) error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback()
}

// SQLDB 取出SQLite连接底层的 *sql.DB，其他后端返回 false
func SQLDB(conn Conn) (*sql.DB, bool) {
	c, ok := conn.(*sqliteConn)
	if !ok {
		return nil, false
	}
	return c.db, true
}
