package recorder_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoEventLogger/internal/database"
	"GoEventLogger/internal/event"
	"GoEventLogger/internal/recorder"
	"GoEventLogger/internal/session"
	"GoEventLogger/internal/testutil"
)

func TestEngineLifecycle(t *testing.T) {
	store := testutil.NewTestStore(t)
	sa := testutil.NewStoreAssertions(t, store)
	ctx := context.Background()

	roster := session.NewRoster()
	engine := recorder.NewEngine(recorder.EngineConfig{
		Descriptor:        store.Descriptor,
		HeartbeatInterval: 4,
		Host:              roster,
	})

	require.NoError(t, engine.Start(ctx))
	assert.True(t, engine.Ready())
	sa.AssertSingleEvent(event.NameNewGameSession)
	sa.AssertSingleEvent(event.NamePluginLoad)

	_, err := engine.Log(ctx, event.New(event.NameLevelInit, event.StringAttr(event.KeyMapName, "koth_harvest")))
	require.NoError(t, err)
	assert.Equal(t, "koth_harvest", roster.MapName(), "engine feeds the roster")

	for i := 0; i < 4; i++ {
		engine.Tick(ctx, true)
	}

	status := engine.Status()
	assert.Equal(t, "CONNECTED", status.State)
	assert.True(t, status.Healthy)
	assert.Equal(t, database.DialectSQLite, status.Dialect)
	require.NotNil(t, status.Session)
	assert.Equal(t, int64(1), status.SessionsOpened)
	assert.Equal(t, 4, status.HeartbeatInterval)
	assert.Zero(t, status.HeartbeatPending)
	assert.Equal(t, int64(1), status.Stats.Heartbeats)
	assert.Equal(t, int64(3), status.Stats.Committed)

	engine.Stop(ctx)
	sa.AssertSingleEvent(event.NamePluginUnload)
	assert.False(t, engine.Ready())
	assert.Equal(t, "DISCONNECTED", engine.Status().State)

	// 重复停止无副作用
	engine.Stop(ctx)
	sa.AssertEventCount(4)
}

func TestEngineStartWithoutStore(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewFakeConn()
	down := true
	dialer := func(ctx context.Context, descriptor string) (database.Conn, error) {
		if down {
			return testutil.FailingDialer(nil)(ctx, descriptor)
		}
		return conn.Dialer()(ctx, descriptor)
	}

	engine := recorder.NewEngine(recorder.EngineConfig{
		Descriptor:        "postgres://stats@db/stats",
		HeartbeatInterval: 2,
		Dialer:            dialer,
	})

	require.Error(t, engine.Start(ctx))
	assert.False(t, engine.Ready())

	res, err := engine.Log(ctx, event.New("while_down"))
	require.NoError(t, err)
	assert.Equal(t, recorder.OutcomeDropped, res.Outcome)

	down = false
	engine.Tick(ctx, true)
	assert.True(t, engine.Tick(ctx, true))
	assert.True(t, engine.Ready())

	res, err = engine.Log(ctx, event.New("after_recovery"))
	require.NoError(t, err)
	assert.Equal(t, recorder.OutcomeCommitted, res.Outcome)

	status := engine.Status()
	assert.Equal(t, database.DialectPostgres, status.Dialect)
	assert.Equal(t, int64(1), status.Stats.Reconnects)
	// _plugin_load 与 while_down
	assert.Equal(t, int64(2), status.Stats.Dropped)
}
