package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"GoEventLogger/internal/event"
)

// Scenario 回放场景文件
//
//	events:
//	  - name: player_death
//	    delay: 50ms
//	    attributes:
//	      - {key: weapon, value: minigun}
//	      - {key: attacker, type: int, value: 7}
type Scenario struct {
	Events []ScenarioEvent `yaml:"events"`
}

// ScenarioEvent 场景中的一个事件，Delay 为发送前的等待时间
type ScenarioEvent struct {
	Name       string         `yaml:"name"`
	Delay      time.Duration  `yaml:"delay"`
	Attributes []ScenarioAttr `yaml:"attributes"`
}

// ScenarioAttr 事件属性。省略 type 时按 YAML 标量类型推断。
type ScenarioAttr struct {
	Key   string    `yaml:"key"`
	Type  string    `yaml:"type"`
	Value yaml.Node `yaml:"value"`
}

// LoadScenario 读取并解析场景文件
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario 解析场景内容
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if len(s.Events) == 0 {
		return nil, fmt.Errorf("scenario has no events")
	}
	for i, ev := range s.Events {
		if ev.Name == "" {
			return nil, fmt.Errorf("events[%d]: name is required", i)
		}
		for j, a := range ev.Attributes {
			if a.Key == "" {
				return nil, fmt.Errorf("events[%d].attributes[%d]: key is required", i, j)
			}
		}
	}
	return &s, nil
}

// Event 转换为记录事件。显式声明但无法解析的值返回错误，未知类型保留为不受支持的值。
func (e ScenarioEvent) Event() (*event.Event, error) {
	ev := event.New(e.Name)
	for _, a := range e.Attributes {
		v, err := a.value()
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", e.Name, a.Key, err)
		}
		ev.Attrs = append(ev.Attrs, event.Attr{Key: a.Key, Value: v})
	}
	return ev, nil
}

func (a ScenarioAttr) value() (event.Value, error) {
	typ := a.Type
	if typ == "" {
		switch a.Value.ShortTag() {
		case "!!int":
			typ = "int"
		case "!!float":
			typ = "float"
		case "!!str":
			typ = "string"
		default:
			return event.Unsupported(a.Value.ShortTag()), nil
		}
	}

	raw := a.Value.Value
	switch typ {
	case "string":
		return event.String(raw), nil
	case "int":
		n, err := strconv.ParseInt(raw, 0, 64)
		if err != nil {
			return event.Value{}, fmt.Errorf("invalid int %q", raw)
		}
		return event.Int(n), nil
	case "float":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return event.Value{}, fmt.Errorf("invalid float %q", raw)
		}
		return event.Float(f), nil
	default:
		return event.Unsupported(typ), nil
	}
}
