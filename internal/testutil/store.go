package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"GoEventLogger/internal/database"
)

// TestStore 临时目录中的SQLite统计库
type TestStore struct {
	Path       string
	Descriptor string
	t          *testing.T
	reader     *sql.DB
}

// EventRow Event表的一行
type EventRow struct {
	ID        int64
	SessionID int64
	Name      string
}

// AttrRow EventData表的一行
type AttrRow struct {
	EventID     int64
	Key         string
	ValueString sql.NullString
	ValueInt    sql.NullInt64
	ValueFloat  sql.NullFloat64
}

// NewTestStore 创建临时SQLite库（首次连接时建表）
func NewTestStore(t *testing.T) *TestStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stats.db")
	return &TestStore{
		Path:       path,
		Descriptor: "sqlite:" + path,
		t:          t,
	}
}

// NewManager 创建指向该库的连接管理器，测试结束时断开
func (s *TestStore) NewManager(opts ...database.ManagerOption) *database.Manager {
	s.t.Helper()
	mgr := database.NewManager(s.Descriptor, opts...)
	s.t.Cleanup(func() {
		mgr.Disconnect(context.Background())
	})
	return mgr
}

// Reader 返回独立的只读连接，断开管理器后仍可查询
func (s *TestStore) Reader() *sql.DB {
	s.t.Helper()
	if s.reader != nil {
		return s.reader
	}

	db, err := sql.Open("sqlite", s.Path)
	require.NoError(s.t, err)
	db.SetMaxOpenConns(1)
	_, err = db.Exec(database.SQLiteSchema)
	require.NoError(s.t, err)

	s.t.Cleanup(func() { db.Close() })
	s.reader = db
	return db
}

// Events 按ID顺序返回所有事件
func (s *TestStore) Events() []EventRow {
	s.t.Helper()
	rows, err := s.Reader().Query(`SELECT Id, GameSessionId, Name FROM Event ORDER BY Id`)
	require.NoError(s.t, err)
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var r EventRow
		require.NoError(s.t, rows.Scan(&r.ID, &r.SessionID, &r.Name))
		out = append(out, r)
	}
	require.NoError(s.t, rows.Err())
	return out
}

// EventsNamed 返回指定名称的事件
func (s *TestStore) EventsNamed(name string) []EventRow {
	var out []EventRow
	for _, e := range s.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Attrs 返回事件的属性行，按插入顺序
func (s *TestStore) Attrs(eventID int64) []AttrRow {
	s.t.Helper()
	rows, err := s.Reader().Query(
		`SELECT EventId, Key, ValueString, ValueInt, ValueFloat FROM EventData WHERE EventId = ? ORDER BY rowid`,
		eventID,
	)
	require.NoError(s.t, err)
	defer rows.Close()

	var out []AttrRow
	for rows.Next() {
		var r AttrRow
		require.NoError(s.t, rows.Scan(&r.EventID, &r.Key, &r.ValueString, &r.ValueInt, &r.ValueFloat))
		out = append(out, r)
	}
	require.NoError(s.t, rows.Err())
	return out
}

// Count 返回表的行数
func (s *TestStore) Count(table string) int {
	s.t.Helper()
	var n int
	require.NoError(s.t, s.Reader().QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n))
	return n
}

// SessionIDs 返回所有会话ID
func (s *TestStore) SessionIDs() []int64 {
	s.t.Helper()
	rows, err := s.Reader().Query(`SELECT Id FROM GameSession ORDER BY Id`)
	require.NoError(s.t, err)
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		require.NoError(s.t, rows.Scan(&id))
		out = append(out, id)
	}
	return out
}

// FailAttributeWrites 安装触发器，使指定键的属性写入在存储层失败
func (s *TestStore) FailAttributeWrites(key string) {
	s.t.Helper()
	s.exec(fmt.Sprintf(`CREATE TRIGGER fail_attr_%s BEFORE INSERT ON EventData
		WHEN NEW.Key = '%s'
		BEGIN SELECT RAISE(ABORT, 'injected attribute failure'); END`, sanitize(key), key))
}

// FailEventWrites 安装触发器，使指定名称的事件头写入失败
func (s *TestStore) FailEventWrites(name string) {
	s.t.Helper()
	s.exec(fmt.Sprintf(`CREATE TRIGGER fail_event_%s BEFORE INSERT ON Event
		WHEN NEW.Name = '%s'
		BEGIN SELECT RAISE(ABORT, 'injected event failure'); END`, sanitize(name), name))
}

// FailSessionWrites 使会话行写入失败
func (s *TestStore) FailSessionWrites() {
	s.t.Helper()
	s.exec(`CREATE TRIGGER fail_session BEFORE INSERT ON GameSession
		BEGIN SELECT RAISE(ABORT, 'injected session failure'); END`)
}

// ClearFailures 删除所有注入的触发器
func (s *TestStore) ClearFailures() {
	s.t.Helper()
	rows, err := s.Reader().Query(`SELECT name FROM sqlite_master WHERE type = 'trigger'`)
	require.NoError(s.t, err)
	var names []string
	for rows.Next() {
		var n string
		require.NoError(s.t, rows.Scan(&n))
		names = append(names, n)
	}
	rows.Close()
	for _, n := range names {
		s.exec("DROP TRIGGER " + n)
	}
}

func (s *TestStore) exec(stmt string) {
	s.t.Helper()
	_, err := s.Reader().Exec(stmt)
	require.NoError(s.t, err)
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, name)
}
