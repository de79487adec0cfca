package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoEventLogger/internal/database"
	recerrors "GoEventLogger/internal/errors"
	"GoEventLogger/internal/event"
	"GoEventLogger/internal/session"
	"GoEventLogger/internal/testutil"
)

type submitted struct {
	ev *event.Event
	id database.SessionID
}

type captureSink struct {
	got []submitted
}

func (s *captureSink) Submit(ctx context.Context, ev *event.Event, id database.SessionID) {
	s.got = append(s.got, submitted{ev: ev, id: id})
}

type staticHost struct {
	mapName string
	clients []session.Client
}

func (h staticHost) MapName() string           { return h.mapName }
func (h staticHost) Clients() []session.Client { return h.clients }

func TestEstablishOpensSessionAndSeeds(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewFakeConn()
	mgr := database.NewManager("fake", database.WithDialer(conn.Dialer()))
	host := staticHost{
		mapName: "cp_badlands",
		clients: []session.Client{
			{Slot: 1, Info: &session.PlayerInfo{Name: "alice", UserID: 2, Team: 3, NetworkID: "STEAM_0:1:1", Health: 125}},
			{Slot: 2},
			{Slot: 3, Info: &session.PlayerInfo{Name: "bot", UserID: 5, Team: 2, Health: 100}},
		},
	}
	sink := &captureSink{}
	tracker := session.NewTracker(mgr, host, sink)

	sess, err := tracker.Establish(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "cp_badlands", sess.MapName)
	assert.Same(t, sess, tracker.Current())

	// _new_gamesession + 两个有玩家信息的客户端
	require.Len(t, sink.got, 3)
	for _, s := range sink.got {
		assert.Equal(t, sess.ID, s.id)
	}

	opened := sink.got[0].ev
	assert.Equal(t, event.NameNewGameSession, opened.Name)
	mapName, ok := opened.Lookup(event.KeyMapName)
	require.True(t, ok)
	assert.Equal(t, "cp_badlands", mapName.Str())

	alice := sink.got[1].ev
	assert.Equal(t, event.NameExistingClient, alice.Name)
	keys := make([]string, 0, len(alice.Attrs))
	for _, a := range alice.Attrs {
		keys = append(keys, a.Key)
	}
	assert.Equal(t, []string{"player_name", "userid", "team", "networkid", "health"}, keys)

	bot := sink.got[2].ev
	_, hasNetworkID := bot.Lookup(event.KeyNetworkID)
	assert.False(t, hasNetworkID, "networkid is omitted when absent")
}

func TestSeedWithoutMapName(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewFakeConn()
	mgr := database.NewManager("fake", database.WithDialer(conn.Dialer()))
	sink := &captureSink{}
	tracker := session.NewTracker(mgr, nil, sink)

	_, err := tracker.Establish(ctx)
	require.NoError(t, err)
	require.Len(t, sink.got, 1)
	assert.Empty(t, sink.got[0].ev.Attrs)
}

func TestOpenFailureTearsDownConnection(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewTestStore(t)
	mgr := store.NewManager()
	sink := &captureSink{}
	tracker := session.NewTracker(mgr, nil, sink)

	// 先建表，再让会话写入失败
	_, err := tracker.Establish(ctx)
	require.NoError(t, err)
	store.FailSessionWrites()

	sess, err := tracker.Establish(ctx)
	require.Error(t, err)
	assert.Nil(t, sess)
	assert.ErrorIs(t, err, recerrors.ErrSessionInsertFailed)
	assert.Nil(t, tracker.Current())
	assert.Equal(t, database.StateDisconnected, mgr.State())
	assert.False(t, mgr.IsHealthy())
}

func TestConnectFailureLeavesNoSession(t *testing.T) {
	mgr := database.NewManager("host=nowhere", database.WithDialer(testutil.FailingDialer(nil)))
	tracker := session.NewTracker(mgr, nil, &captureSink{})

	_, err := tracker.Establish(context.Background())
	assert.ErrorIs(t, err, recerrors.ErrConnectFailed)
	assert.Nil(t, tracker.Current())
	assert.Zero(t, tracker.Opened())
}

func TestOpenRequiresConnection(t *testing.T) {
	mgr := database.NewManager("fake")
	tracker := session.NewTracker(mgr, nil, nil)

	_, err := tracker.Open(context.Background())
	assert.ErrorIs(t, err, recerrors.ErrConnectionLost)
}

func TestReconnectMintsNewSessionID(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewTestStore(t)
	mgr := store.NewManager()
	tracker := session.NewTracker(mgr, nil, nil)

	first, err := tracker.Establish(ctx)
	require.NoError(t, err)
	second, err := tracker.Establish(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, int64(2), tracker.Opened())
	assert.Len(t, store.SessionIDs(), 2)
}

func TestCloseDropsSession(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewFakeConn()
	mgr := database.NewManager("fake", database.WithDialer(conn.Dialer()))
	tracker := session.NewTracker(mgr, nil, nil)

	_, err := tracker.Establish(ctx)
	require.NoError(t, err)

	tracker.Close(ctx)
	tracker.Close(ctx)
	assert.Nil(t, tracker.Current())
	assert.Equal(t, database.StateDisconnected, mgr.State())
}
