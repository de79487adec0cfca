package database

import (
	_ "embed"
	"fmt"
)

// PostgresSchema PostgreSQL建表脚本，由运维执行
//
//go:embed schema/postgres.sql
var PostgresSchema string

// SQLiteSchema SQLite建表脚本，连接时自动执行
//
//go:embed schema/sqlite.sql
var SQLiteSchema string

// Dialect 存储方言
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Schema 返回指定方言的建表脚本
func Schema(dialect Dialect) (string, error) {
	switch dialect {
	case DialectPostgres:
		return PostgresSchema, nil
	case DialectSQLite:
		return SQLiteSchema, nil
	default:
		return "", fmt.Errorf("unknown dialect %q", dialect)
	}
}

// DialectOf 返回描述符对应的方言
func DialectOf(descriptor string) Dialect {
	if IsSQLiteDescriptor(descriptor) {
		return DialectSQLite
	}
	return DialectPostgres
}
