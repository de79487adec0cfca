package event

import (
	"fmt"
	"math"
	"strconv"
)

// Kind 属性值的类型标签
type Kind uint8

const (
	KindUnsupported Kind = iota
	KindString
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "unsupported"
	}
}

// FloatPrecision 浮点值写入存储时的小数位数
const FloatPrecision = 6

// Value 不可变的属性值，String/Int/Float 三选一。
// 零值是 KindUnsupported，记录器会跳过它。
type Value struct {
	kind     Kind
	str      string
	num      int64
	flt      float64
	typeName string
}

// String 创建字符串值
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Int 创建整数值
func Int(i int64) Value {
	return Value{kind: KindInt, num: i}
}

// Float 创建浮点值
func Float(f float64) Value {
	return Value{kind: KindFloat, flt: f}
}

// Unsupported 创建无法落库的值，typeName 仅用于日志
func Unsupported(typeName string) Value {
	return Value{kind: KindUnsupported, typeName: typeName}
}

// ValueOf 将任意Go值映射为属性值，无法映射的类型返回 Unsupported
func ValueOf(v any) Value {
	switch x := v.(type) {
	case Value:
		return x
	case string:
		return String(x)
	case int:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint8:
		return Int(int64(x))
	case uint16:
		return Int(int64(x))
	case uint32:
		return Int(int64(x))
	case uint:
		if uint64(x) > math.MaxInt64 {
			return Unsupported("uint")
		}
		return Int(int64(x))
	case uint64:
		if x > math.MaxInt64 {
			return Unsupported("uint64")
		}
		return Int(int64(x))
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case nil:
		return Unsupported("nil")
	default:
		return Unsupported(fmt.Sprintf("%T", v))
	}
}

// Kind 返回类型标签
func (v Value) Kind() Kind { return v.kind }

// Str 返回字符串内容，非字符串值返回空串
func (v Value) Str() string { return v.str }

// Int64 返回整数内容
func (v Value) Int64() int64 { return v.num }

// Float64 返回浮点内容
func (v Value) Float64() float64 { return v.flt }

// Finite 非浮点值总是 true；浮点值为 NaN 或 ±Inf 时返回 false
func (v Value) Finite() bool {
	return v.kind != KindFloat || !(math.IsNaN(v.flt) || math.IsInf(v.flt, 0))
}

// TypeName 描述值的来源类型
func (v Value) TypeName() string {
	if v.kind == KindUnsupported {
		if v.typeName == "" {
			return "unknown"
		}
		return v.typeName
	}
	return v.kind.String()
}

// Text 返回交给驱动的文本形式：字符串原样、整数十进制、浮点固定六位小数
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return FormatFloat(v.flt)
	default:
		return ""
	}
}

// Any 返回底层Go值，Unsupported 返回 nil
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.num
	case KindFloat:
		return v.flt
	default:
		return nil
	}
}

func (v Value) String() string {
	if v.kind == KindUnsupported {
		return "<" + v.TypeName() + ">"
	}
	return v.Text()
}

// FormatFloat 按落库精度格式化浮点数
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', FloatPrecision, 64)
}
