package recorder_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoEventLogger/internal/database"
	"GoEventLogger/internal/event"
	"GoEventLogger/internal/recorder"
	"GoEventLogger/internal/session"
	"GoEventLogger/internal/testutil"
)

type fakeRig struct {
	conn      *testutil.FakeConn
	mgr       *database.Manager
	tracker   *session.Tracker
	stats     *recorder.Stats
	heartbeat *recorder.Heartbeat
}

func newFakeRig(t *testing.T, interval int) *fakeRig {
	t.Helper()
	conn := testutil.NewFakeConn()
	mgr := database.NewManager("fake", database.WithDialer(conn.Dialer()))
	stats := &recorder.Stats{}
	tracker := session.NewTracker(mgr, nil, nil)
	_, err := tracker.Establish(context.Background())
	require.NoError(t, err)

	return &fakeRig{
		conn:      conn,
		mgr:       mgr,
		tracker:   tracker,
		stats:     stats,
		heartbeat: recorder.NewHeartbeat(mgr, tracker, interval, stats, nil),
	}
}

func TestHeartbeatFiresOncePerInterval(t *testing.T) {
	rig := newFakeRig(t, 5)
	ctx := context.Background()

	fired := 0
	for i := 1; i <= 23; i++ {
		if rig.heartbeat.Tick(ctx, true) {
			fired++
			assert.Zero(t, i%5, "fired on tick %d", i)
		}
	}
	assert.Equal(t, 4, fired)
	assert.Equal(t, 3, rig.heartbeat.Pending())
	assert.Len(t, rig.conn.TouchCalls, 4)
	assert.Equal(t, int64(4), rig.stats.Snapshot().Heartbeats)
	assert.Equal(t, recorder.HeartbeatIdle, rig.heartbeat.State())
}

func TestHeartbeatIgnoresTicksWhileNotSimulating(t *testing.T) {
	rig := newFakeRig(t, 3)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		assert.False(t, rig.heartbeat.Tick(ctx, false))
	}
	assert.Zero(t, rig.heartbeat.Pending())

	rig.heartbeat.Tick(ctx, true)
	rig.heartbeat.Tick(ctx, false)
	rig.heartbeat.Tick(ctx, true)
	assert.True(t, rig.heartbeat.Tick(ctx, true), "third simulating tick fires")
	assert.Len(t, rig.conn.TouchCalls, 1)
}

func TestHeartbeatDefaultInterval(t *testing.T) {
	rig := newFakeRig(t, 0)
	assert.Equal(t, recorder.DefaultHeartbeatInterval, rig.heartbeat.Interval())

	ctx := context.Background()
	for i := 1; i < recorder.DefaultHeartbeatInterval; i++ {
		require.False(t, rig.heartbeat.Tick(ctx, true))
	}
	assert.True(t, rig.heartbeat.Tick(ctx, true))
}

func TestHeartbeatReconnectsDeadConnection(t *testing.T) {
	rig := newFakeRig(t, 2)
	ctx := context.Background()
	first := rig.tracker.Current()
	require.NotNil(t, first)

	rig.conn.Kill()
	require.False(t, rig.mgr.IsHealthy())

	rig.heartbeat.Tick(ctx, true)
	assert.True(t, rig.heartbeat.Tick(ctx, true))

	second := rig.tracker.Current()
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID, "reconnect opens a new session")
	assert.True(t, rig.mgr.IsHealthy())
	assert.Empty(t, rig.conn.TouchCalls, "no update on the cycle that reconnected")
	assert.Equal(t, int64(1), rig.stats.Snapshot().Reconnects)
	assert.Equal(t, 2, rig.conn.SessionsMade())

	// 下一周期正常刷新心跳
	rig.heartbeat.Tick(ctx, true)
	rig.heartbeat.Tick(ctx, true)
	require.Len(t, rig.conn.TouchCalls, 1)
	assert.Equal(t, second.ID, rig.conn.TouchCalls[0])
}

func TestHeartbeatReconnectFailureRetriesNextCycle(t *testing.T) {
	ctx := context.Background()
	dialErr := errors.New("no route to host")
	fake := testutil.NewFakeConn()
	failing := true
	dialer := func(ctx context.Context, descriptor string) (database.Conn, error) {
		if failing {
			return nil, dialErr
		}
		return fake.Dialer()(ctx, descriptor)
	}

	mgr := database.NewManager("fake", database.WithDialer(dialer))
	tracker := session.NewTracker(mgr, nil, nil)
	stats := &recorder.Stats{}
	hb := recorder.NewHeartbeat(mgr, tracker, 1, stats, nil)

	_, err := tracker.Establish(ctx)
	require.Error(t, err)

	assert.True(t, hb.Tick(ctx, true))
	assert.Nil(t, tracker.Current())
	assert.Equal(t, int64(1), stats.Snapshot().ReconnectFailures)

	failing = false
	assert.True(t, hb.Tick(ctx, true))
	assert.NotNil(t, tracker.Current())
	assert.Equal(t, int64(1), stats.Snapshot().Reconnects)
}

func TestHeartbeatUpdateFailureIsCounted(t *testing.T) {
	rig := newFakeRig(t, 1)
	ctx := context.Background()
	rig.conn.TouchErr = errors.New("statement timeout")

	assert.True(t, rig.heartbeat.Tick(ctx, true))
	assert.Equal(t, int64(1), rig.stats.Snapshot().HeartbeatFailures)
	assert.Zero(t, rig.stats.Snapshot().Heartbeats)

	// 连接仍健康，不重连
	assert.Equal(t, 1, rig.conn.SessionsMade())
}

func TestHeartbeatReconnectUsesNewSessionForEvents(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx := context.Background()

	mgr := store.NewManager()
	tracker := session.NewTracker(mgr, nil, nil)
	rec := recorder.New(mgr)
	tracker.SetSink(rec)
	hb := recorder.NewHeartbeat(mgr, tracker, 1, nil, nil)

	first, err := tracker.Establish(ctx)
	require.NoError(t, err)

	// 连接在后台关闭
	mgr.Conn().Close(ctx)
	res, err := rec.Record(ctx, event.New("lost"), first.ID)
	require.NoError(t, err)
	assert.Equal(t, recorder.OutcomeDropped, res.Outcome)

	require.True(t, hb.Tick(ctx, true))
	second := tracker.Current()
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)

	_, err = rec.Record(ctx, event.New("after_reconnect"), second.ID)
	require.NoError(t, err)

	assert.Len(t, store.SessionIDs(), 2)
	assert.Empty(t, store.EventsNamed("lost"))
	rows := store.EventsNamed("after_reconnect")
	require.Len(t, rows, 1)
	assert.Equal(t, string(second.ID), strconv.FormatInt(rows[0].SessionID, 10))
	// 两次建立会话各补录一次 _new_gamesession
	assert.Len(t, store.EventsNamed(event.NameNewGameSession), 2)
}
