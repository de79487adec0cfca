package event

import (
	"math"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueText(t *testing.T) {
	assert.Equal(t, "de_dust2", String("de_dust2").Text())
	assert.Equal(t, "-42", Int(-42).Text())
	assert.Equal(t, "1.500000", Float(1.5).Text())
	assert.Equal(t, "0.000000", Float(0).Text())
	assert.Equal(t, "", Unsupported("bool").Text())
}

func TestValueFinite(t *testing.T) {
	assert.True(t, Float(1.5).Finite())
	assert.True(t, Int(math.MaxInt64).Finite())
	assert.True(t, String("NaN").Finite())
	assert.False(t, Float(math.NaN()).Finite())
	assert.False(t, Float(math.Inf(1)).Finite())
	assert.False(t, Float(math.Inf(-1)).Finite())
	assert.Equal(t, "+Inf", Float(math.Inf(1)).Text())
}

func TestValueOf(t *testing.T) {
	tests := []struct {
		name string
		in   any
		kind Kind
	}{
		{"string", "x", KindString},
		{"int", 7, KindInt},
		{"int32", int32(7), KindInt},
		{"uint16", uint16(7), KindInt},
		{"uint64 fits", uint64(7), KindInt},
		{"uint64 overflow", uint64(math.MaxUint64), KindUnsupported},
		{"float32", float32(1.25), KindFloat},
		{"float64", 1.25, KindFloat},
		{"bool", true, KindUnsupported},
		{"nil", nil, KindUnsupported},
		{"struct", struct{}{}, KindUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, ValueOf(tt.in).Kind())
		})
	}
}

func TestUnsupportedTypeName(t *testing.T) {
	assert.Equal(t, "bool", ValueOf(true).TypeName())
	assert.Equal(t, "unknown", Value{}.TypeName())
	assert.Equal(t, "int", Int(1).TypeName())
}

func TestEventBuilders(t *testing.T) {
	ev := New(NameExistingClient).
		SetString(KeyPlayerName, "alice").
		SetInt(KeyUserID, 3).
		SetFloat("speed", 2.5).
		Set("flag", true).
		SetInt(KeyUserID, 4)

	require.NoError(t, ev.Validate())
	require.Len(t, ev.Attrs, 5)
	assert.Equal(t, KindUnsupported, ev.Attrs[3].Value.Kind())

	v, ok := ev.Lookup(KeyUserID)
	require.True(t, ok)
	assert.Equal(t, int64(3), v.Int64())

	_, ok = ev.Lookup("missing")
	assert.False(t, ok)
}

func TestEventValidate(t *testing.T) {
	assert.ErrorIs(t, New("").Validate(), ErrEmptyName)

	var ev *Event
	assert.ErrorIs(t, ev.Validate(), ErrEmptyName)
}

func TestFromMapSortsKeys(t *testing.T) {
	ev := FromMap("x", map[string]any{"b": 1, "a": "s", "c": 2.0})
	require.Len(t, ev.Attrs, 3)
	assert.Equal(t, "a", ev.Attrs[0].Key)
	assert.Equal(t, "b", ev.Attrs[1].Key)
	assert.Equal(t, "c", ev.Attrs[2].Key)
}

func TestValueTextRoundTripProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("integers round-trip exactly", prop.ForAll(
		func(i int64) bool {
			parsed, err := strconv.ParseInt(Int(i).Text(), 10, 64)
			return err == nil && parsed == i
		},
		gen.Int64(),
	))

	properties.Property("floats keep six fractional digits", prop.ForAll(
		func(f float64) bool {
			text := Float(f).Text()
			parsed, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return false
			}
			return FormatFloat(parsed) == text
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("strings are untouched", prop.ForAll(
		func(s string) bool {
			return String(s).Text() == s
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
