package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// DefaultConnectTimeout 未在描述符中指定 connect_timeout 时使用
const DefaultConnectTimeout = 5 * time.Second

// pgConn PostgreSQL后端，单连接，所有调用都在控制循环上同步执行
type pgConn struct {
	conn *pgx.Conn
}

// ConnectPostgres 连接PostgreSQL。descriptor 可以是 postgres:// URL，
// 也可以是 "host=127.0.0.1 port=5432 dbname=tfstats user=tfstats" 形式的关键字串。
func ConnectPostgres(ctx context.Context, descriptor string) (Conn, error) {
	config, err := pgx.ParseConfig(descriptor)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}

	conn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	// 测试连接
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &pgConn{conn: conn}, nil
}

func (c *pgConn) Alive() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

func (c *pgConn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *pgConn) CreateSession(ctx context.Context) (SessionID, error) {
	var id int64
	err := c.conn.QueryRow(ctx, `INSERT INTO GameSession (Heartbeat) VALUES (NOW()) RETURNING Id`).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("INSERT INTO GameSession: %w", err)
	}
	return SessionID(formatID(id)), nil
}

func (c *pgConn) TouchSession(ctx context.Context, id SessionID) error {
	sid, err := parseID(string(id))
	if err != nil {
		return err
	}
	if _, err := c.conn.Exec(ctx, `UPDATE GameSession SET Heartbeat = NOW() WHERE Id = $1`, sid); err != nil {
		return fmt.Errorf("UPDATE GameSession SET Heartbeat: %w", err)
	}
	return nil
}

func (c *pgConn) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("BEGIN TRANSACTION: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

func (c *pgConn) Close(ctx context.Context) error {
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) InsertEvent(ctx context.Context, session SessionID, name string) (EventID, error) {
	sid, err := parseID(string(session))
	if err != nil {
		return "", err
	}

	var id int64
	err = t.tx.QueryRow(ctx,
		`INSERT INTO Event (GameSessionId, Name) VALUES ($1, $2) RETURNING Id`,
		sid, name,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("INSERT INTO Event: %w", err)
	}
	return EventID(formatID(id)), nil
}

// InsertAttribute 值以文本格式发送，由服务端按目标列类型解析
func (t *pgTx) InsertAttribute(ctx context.Context, event EventID, key string, column Column, text string) error {
	eid, err := parseID(string(event))
	if err != nil {
		return err
	}
	query, err := attributeInsertSQL(column, "$1", "$2", "$3")
	if err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, query, eid, key, text); err != nil {
		return fmt.Errorf("INSERT INTO EventData (%s): %w", column.Name(), err)
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
