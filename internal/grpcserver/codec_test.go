package grpcserver

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"GoEventLogger/internal/event"
	"GoEventLogger/internal/recorder"
)

func TestEventCodecRoundTrip(t *testing.T) {
	ev := event.New("_server_activate",
		event.IntAttr(event.KeyClientMax, 32),
		event.IntAttr(event.KeyAppID, math.MaxInt64),
		event.StringAttr(event.KeyGameDir, "tf"),
		event.FloatAttr("tick_interval", 0.015),
	)
	msg, err := EncodeEvent(ev)
	require.NoError(t, err)

	got, err := DecodeEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestDecodeEventAcceptsNumbersForInts(t *testing.T) {
	msg, err := structpb.NewStruct(map[string]any{
		"name": "player_team",
		"attributes": []any{
			map[string]any{"key": "team", "type": "int", "value": 3},
			map[string]any{"key": "ratio", "type": "float", "value": "0.5"},
			map[string]any{"key": "blob", "type": "bytes", "value": "AAE="},
			map[string]any{"key": "untagged", "value": 1},
		},
	})
	require.NoError(t, err)

	ev, err := DecodeEvent(msg)
	require.NoError(t, err)
	require.Len(t, ev.Attrs, 4)
	assert.Equal(t, event.Int(3), ev.Attrs[0].Value)
	assert.Equal(t, event.Float(0.5), ev.Attrs[1].Value)
	assert.Equal(t, event.KindUnsupported, ev.Attrs[2].Value.Kind())
	assert.Equal(t, "bytes", ev.Attrs[2].Value.TypeName())
	assert.Equal(t, event.KindUnsupported, ev.Attrs[3].Value.Kind())
}

func TestDecodeEventRejectsFractionalInt(t *testing.T) {
	msg, err := structpb.NewStruct(map[string]any{
		"name":       "x",
		"attributes": []any{map[string]any{"key": "n", "type": "int", "value": 1.5}},
	})
	require.NoError(t, err)

	_, err = DecodeEvent(msg)
	assert.ErrorContains(t, err, "invalid int")
}

func TestResultCodec(t *testing.T) {
	msg, err := EncodeResult(recorder.Result{
		Outcome: recorder.OutcomeRolledBack,
		EventID: "12",
		Written: 2,
		Skipped: []string{"flags"},
	}, errors.New("boom"))
	require.NoError(t, err)

	assert.Equal(t, RecordResult{
		Outcome: "rolled_back",
		EventID: "12",
		Written: 2,
		Skipped: []string{"flags"},
		Error:   "boom",
	}, DecodeResult(msg))
}

func TestEventCodecProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("ints survive the wire exactly", prop.ForAll(
		func(n int64, s string) bool {
			ev := event.New("p", event.IntAttr("n", n), event.StringAttr("s", s))
			msg, err := EncodeEvent(ev)
			if err != nil {
				return false
			}
			got, err := DecodeEvent(msg)
			if err != nil {
				return false
			}
			return got.Attrs[0].Value.Int64() == n && got.Attrs[1].Value.Str() == s
		},
		gen.Int64(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
