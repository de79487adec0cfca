package grpcserver_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"GoEventLogger/internal/event"
	"GoEventLogger/internal/grpcserver"
	"GoEventLogger/internal/recorder"
	"GoEventLogger/internal/testutil"
)

const bufSize = 1024 * 1024

// startServer 在内存监听器上启动服务并返回客户端
func startServer(t *testing.T, rec grpcserver.Recorder) *grpcserver.Client {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	srv := grpcserver.NewServer("bufnet", rec, nil)
	go srv.Serve(lis)
	t.Cleanup(func() { srv.Stop(context.Background()) })

	client, err := grpcserver.Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func newEngine(t *testing.T) (*recorder.Engine, *testutil.TestStore) {
	t.Helper()
	store := testutil.NewTestStore(t)
	engine := recorder.NewEngine(recorder.EngineConfig{Descriptor: store.Descriptor})
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(func() { engine.Stop(context.Background()) })
	return engine, store
}

func TestRecordOverGRPC(t *testing.T) {
	engine, store := newEngine(t)
	sa := testutil.NewStoreAssertions(t, store)
	client := startServer(t, engine)

	ev := event.New("player_death",
		event.StringAttr("weapon", "minigun"),
		event.IntAttr("attacker", 1<<60),
		event.FloatAttr("distance", 77.125),
	)
	res, err := client.Record(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, "committed", res.Outcome)
	assert.Equal(t, 3, res.Written)
	assert.Empty(t, res.Error)

	row := sa.AssertSingleEvent("player_death")
	sa.AssertAttributes(row.ID, ev.Attrs)
	t.Logf("🚀 event %s recorded over gRPC", res.EventID)
}

func TestRecordOverGRPCSkipsUnknownTypes(t *testing.T) {
	engine, store := newEngine(t)
	sa := testutil.NewStoreAssertions(t, store)
	client := startServer(t, engine)

	ev := event.New("round_start").SetInt("round", 2).Set("overtime", true)
	res, err := client.Record(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, "committed", res.Outcome)
	assert.Equal(t, []string{"overtime"}, res.Skipped)

	row := sa.AssertSingleEvent("round_start")
	sa.AssertAttributes(row.ID, []event.Attr{event.IntAttr("round", 2)})
}

func TestRecordOverGRPCReportsStoreFailure(t *testing.T) {
	engine, store := newEngine(t)
	client := startServer(t, engine)
	store.FailAttributeWrites("health")

	res, err := client.Record(context.Background(), event.New("player_hurt", event.IntAttr("health", 10)))
	require.NoError(t, err, "store failures are results, not transport errors")
	assert.Equal(t, "rolled_back", res.Outcome)
	assert.Contains(t, res.Error, "ATTRIBUTE_WRITE_FAILED")
	assert.Empty(t, store.EventsNamed("player_hurt"))
}

func TestRecordOverGRPCRejectsMalformedRequest(t *testing.T) {
	engine, _ := newEngine(t)
	lis := bufconn.Listen(bufSize)
	srv := grpcserver.NewServer("bufnet", engine, nil)
	go srv.Serve(lis)
	defer srv.Stop(context.Background())

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	cases := map[string]map[string]any{
		"missing name": {"attributes": []any{}},
		"bad int": {"name": "x", "attributes": []any{
			map[string]any{"key": "n", "type": "int", "value": "twelve"},
		}},
		"string as number": {"name": "x", "attributes": []any{
			map[string]any{"key": "s", "type": "string", "value": 3},
		}},
		"missing key": {"name": "x", "attributes": []any{
			map[string]any{"type": "int", "value": 3},
		}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req, err := structpb.NewStruct(body)
			require.NoError(t, err)
			err = conn.Invoke(context.Background(), grpcserver.RecordMethod, req, new(structpb.Struct))
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestRequestIDHeader(t *testing.T) {
	engine, _ := newEngine(t)
	client := startServer(t, engine)

	var header metadata.MD
	ctx := grpcserver.WithRequestID(context.Background(), "replay-42")
	_, err := client.Record(ctx, event.New("ping"), grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, []string{"replay-42"}, header.Get(grpcserver.RequestIDHeader))

	header = nil
	_, err = client.Record(context.Background(), event.New("ping"), grpc.Header(&header))
	require.NoError(t, err)
	generated := header.Get(grpcserver.RequestIDHeader)
	require.Len(t, generated, 1)
	assert.Len(t, generated[0], 36, "uuid")
}

func TestRecordWhileStoreDown(t *testing.T) {
	engine := recorder.NewEngine(recorder.EngineConfig{
		Descriptor: "postgres://stats@db/stats",
		Dialer:     testutil.FailingDialer(nil),
	})
	require.Error(t, engine.Start(context.Background()))
	client := startServer(t, engine)

	res, err := client.Record(context.Background(), event.New("lost"))
	require.NoError(t, err)
	assert.Equal(t, "dropped", res.Outcome)
}
