package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoEventLogger/internal/event"
)

// StoreAssertions 针对统计库内容的断言助手
type StoreAssertions struct {
	t     *testing.T
	store *TestStore
}

// NewStoreAssertions 创建断言助手
func NewStoreAssertions(t *testing.T, store *TestStore) *StoreAssertions {
	return &StoreAssertions{t: t, store: store}
}

// AssertEventCount 断言事件总数
func (sa *StoreAssertions) AssertEventCount(expected int) {
	sa.t.Helper()
	assert.Equal(sa.t, expected, sa.store.Count("Event"), "unexpected event row count")
	sa.t.Logf("✅ Event count assertion passed: %d", expected)
}

// AssertNothingWritten 断言没有任何事件和属性行
func (sa *StoreAssertions) AssertNothingWritten() {
	sa.t.Helper()
	assert.Zero(sa.t, sa.store.Count("Event"), "event rows present")
	assert.Zero(sa.t, sa.store.Count("EventData"), "attribute rows present")
}

// AssertSingleEvent 断言指定名称恰好有一个事件并返回它
func (sa *StoreAssertions) AssertSingleEvent(name string) EventRow {
	sa.t.Helper()
	rows := sa.store.EventsNamed(name)
	require.Len(sa.t, rows, 1, "expected exactly one %s event", name)
	return rows[0]
}

// AssertAttributes 断言事件的属性行与期望完全一致（包括顺序与类型列）
func (sa *StoreAssertions) AssertAttributes(eventID int64, expected []event.Attr) {
	sa.t.Helper()
	rows := sa.store.Attrs(eventID)
	require.Len(sa.t, rows, len(expected), "attribute row count")

	for i, want := range expected {
		got := rows[i]
		assert.Equal(sa.t, want.Key, got.Key, "attribute %d key", i)

		switch want.Value.Kind() {
		case event.KindString:
			assert.True(sa.t, got.ValueString.Valid, "%s: ValueString not set", want.Key)
			assert.Equal(sa.t, want.Value.Str(), got.ValueString.String)
			assert.False(sa.t, got.ValueInt.Valid || got.ValueFloat.Valid, "%s: extra columns set", want.Key)
		case event.KindInt:
			assert.True(sa.t, got.ValueInt.Valid, "%s: ValueInt not set", want.Key)
			assert.Equal(sa.t, want.Value.Int64(), got.ValueInt.Int64)
			assert.False(sa.t, got.ValueString.Valid || got.ValueFloat.Valid, "%s: extra columns set", want.Key)
		case event.KindFloat:
			assert.True(sa.t, got.ValueFloat.Valid, "%s: ValueFloat not set", want.Key)
			assert.Equal(sa.t, event.FormatFloat(want.Value.Float64()), event.FormatFloat(got.ValueFloat.Float64))
			assert.False(sa.t, got.ValueString.Valid || got.ValueInt.Valid, "%s: extra columns set", want.Key)
		default:
			sa.t.Fatalf("expected attributes must be storable, got %s for %s", want.Value.TypeName(), want.Key)
		}
	}
}
