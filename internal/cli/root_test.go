package cli

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoEventLogger/internal/loadtest"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "eventlogger", cmd.Use)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Empty(t, configFlag.DefValue)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"run", "schema", "replay", "tail", "bench"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "command %s should exist", name)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestReplayCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	replay, _, err := cmd.Find([]string{"replay"})
	require.NoError(t, err)

	addr := replay.Flags().Lookup("addr")
	require.NotNil(t, addr)
	assert.Equal(t, "localhost:9090", addr.DefValue)

	file := replay.Flags().Lookup("file")
	require.NotNil(t, file)
	assert.Equal(t, "f", file.Shorthand)
	assert.Equal(t, "30s", replay.Flags().Lookup("max-elapsed").DefValue)
}

func TestReplayRequiresFile(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"replay"})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))

	err := cmd.Execute()
	assert.ErrorContains(t, err, `required flag(s) "file" not set`)
}

func TestSchemaCommand(t *testing.T) {
	// 与存储包共用同一份基准文件
	g := goldie.New(t,
		goldie.WithFixtureDir("../database/testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, dialect := range []string{"postgres", "sqlite"} {
		t.Run(dialect, func(t *testing.T) {
			var out bytes.Buffer
			cmd := NewRootCommand()
			cmd.SetOut(&out)
			cmd.SetArgs([]string{"schema", "--dialect", dialect})

			require.NoError(t, cmd.Execute())
			g.Assert(t, "schema_"+dialect, out.Bytes())
		})
	}
}

func TestSchemaCommandUnknownDialect(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"schema", "--dialect", "mysql"})

	assert.ErrorContains(t, cmd.Execute(), `unknown dialect "mysql"`)
}

func TestPrintBenchResult(t *testing.T) {
	var out bytes.Buffer
	printBenchResult(&out, &loadtest.IngestLoadTestResult{
		TotalRequests:      10,
		SuccessfulRequests: 9,
		FailedRequests:     1,
		Outcomes:           map[string]int64{"committed": 9, "rolled_back": 1},
		ErrorsByType:       map[string]int64{},
	})
	assert.Contains(t, out.String(), "10 requests")
	assert.Contains(t, out.String(), "committed 9, failed 1")
	assert.Contains(t, out.String(), "outcome rolled_back  1")
}
