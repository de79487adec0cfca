package event

import (
	"errors"
	"sort"
)

// ErrEmptyName 事件名为空
var ErrEmptyName = errors.New("event name must not be empty")

// Attr 事件上的一个键值对
type Attr struct {
	Key   string
	Value Value
}

// Event 命名事件，属性按添加顺序保存。
// 重复的键不会去重，每个都会生成一行属性记录。
type Event struct {
	Name  string
	Attrs []Attr
}

// New 创建事件
func New(name string, attrs ...Attr) *Event {
	return &Event{Name: name, Attrs: attrs}
}

// FromMap 由map创建事件，键按字典序排列以保证落库顺序稳定
func FromMap(name string, fields map[string]any) *Event {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ev := New(name)
	for _, k := range keys {
		ev.Set(k, fields[k])
	}
	return ev
}

// StringAttr 构造字符串属性
func StringAttr(key, value string) Attr { return Attr{Key: key, Value: String(value)} }

// IntAttr 构造整数属性
func IntAttr(key string, value int64) Attr { return Attr{Key: key, Value: Int(value)} }

// FloatAttr 构造浮点属性
func FloatAttr(key string, value float64) Attr { return Attr{Key: key, Value: Float(value)} }

// SetString 追加字符串属性
func (e *Event) SetString(key, value string) *Event {
	e.Attrs = append(e.Attrs, StringAttr(key, value))
	return e
}

// SetInt 追加整数属性
func (e *Event) SetInt(key string, value int64) *Event {
	e.Attrs = append(e.Attrs, IntAttr(key, value))
	return e
}

// SetFloat 追加浮点属性
func (e *Event) SetFloat(key string, value float64) *Event {
	e.Attrs = append(e.Attrs, FloatAttr(key, value))
	return e
}

// Set 追加任意类型属性，无法识别的类型会成为 Unsupported 值
func (e *Event) Set(key string, value any) *Event {
	e.Attrs = append(e.Attrs, Attr{Key: key, Value: ValueOf(value)})
	return e
}

// Lookup 返回第一个匹配键的值
func (e *Event) Lookup(key string) (Value, bool) {
	for _, a := range e.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return Value{}, false
}

// Validate 校验事件
func (e *Event) Validate() error {
	if e == nil || e.Name == "" {
		return ErrEmptyName
	}
	return nil
}
