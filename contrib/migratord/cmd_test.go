package migratord

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckConfig(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "migratord.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	out, err := execute(t, "check-config", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "dual_write")
	assert.Contains(t, out, "postgres://app:***@db:5432/countries")

	_, err = execute(t, "check-config", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestPhaseCommand(t *testing.T) {
	fx := newFixture(t, phaseConfig("source_only"))

	out, err := execute(t, "phase", "--addr", fx.server.URL)
	require.NoError(t, err)
	assert.Equal(t, "source_only\n", out)

	out, err = execute(t, "phase", "dual_read", "--addr", fx.server.URL)
	require.NoError(t, err)
	assert.Equal(t, "dual_read\n", out)

	_, err = execute(t, "phase", "destination_only", "--addr", fx.server.URL)
	assert.ErrorContains(t, err, "409")
	assert.ErrorContains(t, err, "skips a phase")
}
