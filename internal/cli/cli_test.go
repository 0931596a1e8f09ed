package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(viper.New(), fstest.MapFS{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "controllersync "+Version+"\n", out)

	out, err = execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestRoot_NoArgsPrintsHelp(t *testing.T) {
	out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Drive game controls from a physical controller")
	assert.Contains(t, out, "run")
}

func TestRun_MissingConfigFile(t *testing.T) {
	_, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestRun_InvalidFlagValue(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, "run", "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestRun_RejectsArgs(t *testing.T) {
	_, err := execute(t, "run", "extra")
	assert.Error(t, err)
}

func TestBindFlags(t *testing.T) {
	v := viper.New()
	cmd := newRunCmd(v, fstest.MapFS{}, new(string))
	require.NoError(t, cmd.Flags().Parse([]string{"--addr", "127.0.0.1:9999", "--mqtt"}))
	require.NoError(t, bindFlags(v, cmd.Flags()))

	assert.Equal(t, "127.0.0.1:9999", v.GetString("server.addr"))
	assert.True(t, v.GetBool("mqtt.enabled"))
	assert.Equal(t, "info", v.GetString("log.level"))
}
