package commands

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVersionCommand(t *testing.T) {
	cmd := NewVersionCommand(BuildInfo{Version: "1.2.3", BuildDate: "2026-10-01", GitCommit: "abc1234"})
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	require.NoError(t, cmd.Execute())

	out := buf.String()
	for _, want := range []string{"leapask v1.2.3", "Starlark", "commit:   abc1234", "built:    2026-10-01", "go:       go1."} {
		assert.Contains(t, out, want)
	}
	assert.Equal(t, "version", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
}

func TestWriteVersion(t *testing.T) {
	tests := []struct {
		name string
		info BuildInfo
		mods map[string]string
		want []string
	}{
		{
			name: "release",
			info: BuildInfo{Version: "0.1.0", BuildDate: "2026-09-30", GitCommit: "deadbeef"},
			mods: map[string]string{"go": "go1.25.1", starlarkModule: "v0.0.0-20251109183026-be02852a5e1f"},
			want: []string{"leapask v0.1.0", "commit:   deadbeef", "go:       go1.25.1", "starlark: v0.0.0-20251109183026-be02852a5e1f"},
		},
		{
			name: "dev build without module data",
			info: BuildInfo{Version: "dev", BuildDate: "unknown", GitCommit: "unknown"},
			mods: map[string]string{"go": runtime.Version()},
			want: []string{"leapask vdev", "built:    unknown", "starlark: unknown"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writeVersion(&buf, tt.info, tt.mods)
			for _, want := range tt.want {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestReadModules(t *testing.T) {
	mods := readModules()
	assert.NotEmpty(t, mods["go"])
}
