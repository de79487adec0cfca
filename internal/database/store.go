package database

import (
	"context"
	"fmt"
	"strconv"
)

// SessionID 存储端生成的会话标识，对调用方不透明
type SessionID string

// EventID 存储端生成的事件标识
type EventID string

// Column EventData 表中的类型化值列
type Column int

const (
	ColumnString Column = iota
	ColumnInt
	ColumnFloat
)

// Name 返回列名
func (c Column) Name() string {
	switch c {
	case ColumnString:
		return "ValueString"
	case ColumnInt:
		return "ValueInt"
	case ColumnFloat:
		return "ValueFloat"
	default:
		return fmt.Sprintf("Column(%d)", int(c))
	}
}

// Conn 与关系型存储的单个连接。
// 只允许控制循环所在的单一调用者使用，不做并发保护。
type Conn interface {
	// Alive 本地状态检查，不产生网络往返
	Alive() bool
	// Ping 一次真实往返
	Ping(ctx context.Context) error
	// CreateSession 插入会话行（心跳时间由服务端生成）并返回其ID
	CreateSession(ctx context.Context) (SessionID, error)
	// TouchSession 将会话心跳时间更新为当前时间，只绑定一个参数
	TouchSession(ctx context.Context, id SessionID) error
	// Begin 开启事务
	Begin(ctx context.Context) (Tx, error)
	// Close 释放连接
	Close(ctx context.Context) error
}

// Tx 一个事件的写入事务
type Tx interface {
	InsertEvent(ctx context.Context, session SessionID, name string) (EventID, error)
	InsertAttribute(ctx context.Context, event EventID, key string, column Column, text string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Dialer 按连接描述符建立连接
type Dialer func(ctx context.Context, descriptor string) (Conn, error)

// parseID 将存储端ID转换为整数参数
func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", id, err)
	}
	return n, nil
}

func formatID(n int64) string {
	return strconv.FormatInt(n, 10)
}

// attributeInsertSQL 每个类型列一条语句，占位符由方言决定
func attributeInsertSQL(column Column, p1, p2, p3 string) (string, error) {
	switch column {
	case ColumnString, ColumnInt, ColumnFloat:
		return fmt.Sprintf("INSERT INTO EventData (EventId, Key, %s) VALUES (%s, %s, %s)",
			column.Name(), p1, p2, p3), nil
	default:
		return "", fmt.Errorf("unknown column %s", column.Name())
	}
}
