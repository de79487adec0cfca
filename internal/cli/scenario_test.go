package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoEventLogger/internal/event"
)

const roundScenario = `
events:
  - name: round_start
    attributes:
      - {key: round, value: 1}
      - {key: map, value: ctf_2fort}
  - name: player_death
    delay: 10ms
    attributes:
      - {key: attacker, type: int, value: "7"}
      - {key: weapon, type: string, value: 12}
      - {key: distance, value: 12.5}
      - {key: crit, value: true}
`

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(roundScenario))
	require.NoError(t, err)
	require.Len(t, s.Events, 2)
	assert.Equal(t, 10*time.Millisecond, s.Events[1].Delay)

	start, err := s.Events[0].Event()
	require.NoError(t, err)
	assert.Equal(t, event.New("round_start",
		event.IntAttr("round", 1),
		event.StringAttr("map", "ctf_2fort"),
	), start)

	death, err := s.Events[1].Event()
	require.NoError(t, err)
	require.Len(t, death.Attrs, 4)
	assert.Equal(t, event.Int(7), death.Attrs[0].Value)
	assert.Equal(t, event.String("12"), death.Attrs[1].Value, "explicit type wins over the YAML tag")
	assert.Equal(t, event.Float(12.5), death.Attrs[2].Value)
	assert.Equal(t, event.KindUnsupported, death.Attrs[3].Value.Kind())
}

func TestParseScenarioErrors(t *testing.T) {
	cases := map[string]string{
		"empty":     `events: []`,
		"no name":   "events:\n  - attributes: []\n",
		"no key":    "events:\n  - name: x\n    attributes:\n      - {value: 1}\n",
		"not yaml":  "events: [",
		"bad delay": "events:\n  - name: x\n    delay: soon\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScenario([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestScenarioEventRejectsBadValue(t *testing.T) {
	s, err := ParseScenario([]byte("events:\n  - name: x\n    attributes:\n      - {key: n, type: int, value: lots}\n"))
	require.NoError(t, err)

	_, err = s.Events[0].Event()
	assert.ErrorContains(t, err, `invalid int "lots"`)
}
