package grpcserver

import (
	"fmt"
	"math"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"GoEventLogger/internal/event"
	"GoEventLogger/internal/recorder"
)

// 属性类型标签
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeFloat  = "float"
)

// RecordResult Record 调用的结果
type RecordResult struct {
	Outcome string
	EventID string
	Written int
	Skipped []string
	Error   string
}

// EncodeEvent 将事件编码为请求消息：{name, attributes: [{key, type, value}]}。
// 整数以十进制字符串传输，避免超过 2^53 时丢失精度。
func EncodeEvent(ev *event.Event) (*structpb.Struct, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	attrs := make([]any, 0, len(ev.Attrs))
	for _, a := range ev.Attrs {
		item := map[string]any{"key": a.Key}
		switch a.Value.Kind() {
		case event.KindString:
			item["type"] = TypeString
			item["value"] = a.Value.Str()
		case event.KindInt:
			item["type"] = TypeInt
			item["value"] = strconv.FormatInt(a.Value.Int64(), 10)
		case event.KindFloat:
			item["type"] = TypeFloat
			item["value"] = a.Value.Float64()
		default:
			item["type"] = a.Value.TypeName()
		}
		attrs = append(attrs, item)
	}

	return structpb.NewStruct(map[string]any{
		"name":       ev.Name,
		"attributes": attrs,
	})
}

// DecodeEvent 解析请求消息。未知的类型标签解码为不受支持的值，由记录器跳过。
func DecodeEvent(msg *structpb.Struct) (*event.Event, error) {
	fields := msg.GetFields()
	name := fields["name"].GetStringValue()
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	ev := event.New(name)
	list := fields["attributes"].GetListValue()
	for i, item := range list.GetValues() {
		obj := item.GetStructValue()
		if obj == nil {
			return nil, fmt.Errorf("attributes[%d]: expected object", i)
		}
		f := obj.GetFields()
		key := f["key"].GetStringValue()
		if key == "" {
			return nil, fmt.Errorf("attributes[%d]: key is required", i)
		}

		value, err := decodeValue(f["type"].GetStringValue(), f["value"])
		if err != nil {
			return nil, fmt.Errorf("attributes[%d] %s: %w", i, key, err)
		}
		ev.Attrs = append(ev.Attrs, event.Attr{Key: key, Value: value})
	}
	return ev, nil
}

func decodeValue(typ string, v *structpb.Value) (event.Value, error) {
	switch typ {
	case TypeString:
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return event.Value{}, fmt.Errorf("string attribute needs a string value")
		}
		return event.String(s.StringValue), nil

	case TypeInt:
		switch k := v.GetKind().(type) {
		case *structpb.Value_StringValue:
			n, err := strconv.ParseInt(k.StringValue, 10, 64)
			if err != nil {
				return event.Value{}, fmt.Errorf("invalid int %q", k.StringValue)
			}
			return event.Int(n), nil
		case *structpb.Value_NumberValue:
			f := k.NumberValue
			if f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
				return event.Value{}, fmt.Errorf("invalid int %v", f)
			}
			return event.Int(int64(f)), nil
		}
		return event.Value{}, fmt.Errorf("int attribute needs a number or decimal string")

	case TypeFloat:
		switch k := v.GetKind().(type) {
		case *structpb.Value_NumberValue:
			return event.Float(k.NumberValue), nil
		case *structpb.Value_StringValue:
			f, err := strconv.ParseFloat(k.StringValue, 64)
			if err != nil {
				return event.Value{}, fmt.Errorf("invalid float %q", k.StringValue)
			}
			return event.Float(f), nil
		}
		return event.Value{}, fmt.Errorf("float attribute needs a number")

	case "":
		return event.Unsupported("unknown"), nil
	default:
		return event.Unsupported(typ), nil
	}
}

// EncodeResult 将记录结果编码为响应消息
func EncodeResult(res recorder.Result, recErr error) (*structpb.Struct, error) {
	skipped := make([]any, 0, len(res.Skipped))
	for _, k := range res.Skipped {
		skipped = append(skipped, k)
	}
	fields := map[string]any{
		"outcome":  res.Outcome.String(),
		"event_id": string(res.EventID),
		"written":  res.Written,
		"skipped":  skipped,
	}
	if recErr != nil {
		fields["error"] = recErr.Error()
	}
	return structpb.NewStruct(fields)
}

// DecodeResult 解析响应消息
func DecodeResult(msg *structpb.Struct) RecordResult {
	f := msg.GetFields()
	out := RecordResult{
		Outcome: f["outcome"].GetStringValue(),
		EventID: f["event_id"].GetStringValue(),
		Written: int(f["written"].GetNumberValue()),
		Error:   f["error"].GetStringValue(),
	}
	for _, v := range f["skipped"].GetListValue().GetValues() {
		out.Skipped = append(out.Skipped, v.GetStringValue())
	}
	return out
}
