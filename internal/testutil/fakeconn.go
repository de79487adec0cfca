package testutil

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"GoEventLogger/internal/database"
)

// FakeConn 内存中的 database.Conn，用于不需要真实存储的测试
type FakeConn struct {
	mu sync.Mutex

	Dead         bool
	CloseCalls   int
	TouchCalls   []database.SessionID
	TouchErr     error
	SessionErr   error
	BeginErr     error
	nextSession  int64
	Committed    int
	RolledBack   int
	sessionsMade int
}

// NewFakeConn 创建假连接
func NewFakeConn() *FakeConn {
	return &FakeConn{}
}

// Dialer 返回总是交出该连接的拨号函数
func (c *FakeConn) Dialer() database.Dialer {
	return func(ctx context.Context, descriptor string) (database.Conn, error) {
		c.mu.Lock()
		c.Dead = false
		c.mu.Unlock()
		return c, nil
	}
}

// FailingDialer 总是失败的拨号函数
func FailingDialer(err error) database.Dialer {
	if err == nil {
		err = errors.New("connection refused")
	}
	return func(ctx context.Context, descriptor string) (database.Conn, error) {
		return nil, err
	}
}

// Kill 模拟连接在后台断开
func (c *FakeConn) Kill() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Dead = true
}

// SessionsMade 已创建的会话数
func (c *FakeConn) SessionsMade() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionsMade
}

func (c *FakeConn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.Dead
}

func (c *FakeConn) Ping(ctx context.Context) error {
	if !c.Alive() {
		return errors.New("connection closed")
	}
	return nil
}

func (c *FakeConn) CreateSession(ctx context.Context) (database.SessionID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SessionErr != nil {
		return "", c.SessionErr
	}
	c.nextSession++
	c.sessionsMade++
	return database.SessionID(strconv.FormatInt(c.nextSession, 10)), nil
}

func (c *FakeConn) TouchSession(ctx context.Context, id database.SessionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TouchCalls = append(c.TouchCalls, id)
	return c.TouchErr
}

func (c *FakeConn) Begin(ctx context.Context) (database.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.BeginErr != nil {
		return nil, c.BeginErr
	}
	return &fakeTx{conn: c}, nil
}

func (c *FakeConn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCalls++
	c.Dead = true
	return nil
}

type fakeTx struct {
	conn   *FakeConn
	events int64
}

func (t *fakeTx) InsertEvent(ctx context.Context, session database.SessionID, name string) (database.EventID, error) {
	t.events++
	return database.EventID(strconv.FormatInt(t.events, 10)), nil
}

func (t *fakeTx) InsertAttribute(ctx context.Context, event database.EventID, key string, column database.Column, text string) error {
	return nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.Committed++
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.RolledBack++
	return nil
}
