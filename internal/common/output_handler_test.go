package common

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"missioncontrol/internal/errors"
	"missioncontrol/internal/formatters"
	"missioncontrol/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleOutputToWriter(t *testing.T) {
	var buf bytes.Buffer
	oh := NewOutputHandlerTo(&buf, errors.Nop(), formatters.NewFormatterRegistry())

	err := oh.HandleOutput(types.ProbeResult{State: types.ProbeOnline}, CommandConfig{OutputFormat: "text"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "State: ONLINE")

	err = oh.HandleOutput(types.ProbeResult{}, CommandConfig{OutputFormat: "xml"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidFormat))
}

func TestHandleOutputToFile(t *testing.T) {
	var buf bytes.Buffer
	oh := NewOutputHandlerTo(&buf, errors.Nop(), formatters.NewFormatterRegistry())
	path := filepath.Join(t.TempDir(), "nested", "probe.json")

	err := oh.HandleOutput(types.ProbeResult{State: types.ProbeOffline, Error: "refused"}, CommandConfig{OutputFile: path, OutputFormat: "json"})
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state": "OFFLINE"`)
}

func TestReadJobDescription(t *testing.T) {
	fp := NewFileProcessor(errors.Nop())

	jd, err := fp.ReadJobDescription("  Backend Engineer, Go, Kubernetes \n")
	require.NoError(t, err)
	assert.Equal(t, "Backend Engineer, Go, Kubernetes", jd)

	path := filepath.Join(t.TempDir(), "jd.txt")
	require.NoError(t, os.WriteFile(path, []byte("\nSenior SRE\n"), 0600))
	jd, err = fp.ReadJobDescription("@" + path)
	require.NoError(t, err)
	assert.Equal(t, "Senior SRE", jd)

	_, err = fp.ReadJobDescription("   ")
	assert.True(t, errors.HasCode(err, errors.ErrCodeMissingJobDescription))

	_, err = fp.ReadJobDescription("@" + filepath.Join(t.TempDir(), "missing.txt"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotFound))
}

func TestRunCommand(t *testing.T) {
	var buf bytes.Buffer
	oh := NewOutputHandlerTo(&buf, errors.Nop(), formatters.NewFormatterRegistry())
	cfg := CommandConfig{OutputFormat: "text"}

	err := RunCommand(context.Background(), errors.Nop(), oh, cfg, "grade",
		func(context.Context) (*types.GradeResult, error) {
			return &types.GradeResult{Score: 9, Verdict: types.VerdictExceptional}, nil
		},
		func(g *types.GradeResult) any { return *g },
	)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Verdict: Exceptional")

	failure := errors.NewNetworkError(errors.ErrCodeBackendTimeout, "timed out", nil)
	err = RunCommand(context.Background(), errors.Nop(), oh, cfg, "grade",
		func(context.Context) (types.ProbeResult, error) { return types.ProbeResult{}, failure },
		nil,
	)
	assert.ErrorIs(t, err, failure)
}
