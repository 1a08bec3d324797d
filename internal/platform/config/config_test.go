package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name    string        `yaml:"name" env:"TESTCFG_NAME" default:"fallback"`
	Timeout time.Duration `yaml:"timeout" env:"TESTCFG_TIMEOUT" default:"1s"`
}

func TestLoadFromEnv_AppliesDefaultWhenUnset(t *testing.T) {
	var c testConfig
	require.NoError(t, LoadFromEnv(&c))
	assert.Equal(t, "fallback", c.Name)
	assert.Equal(t, time.Second, c.Timeout)
}

func TestLoadFromEnv_EnvVarOverridesDefault(t *testing.T) {
	t.Setenv("TESTCFG_NAME", "from-env")
	var c testConfig
	require.NoError(t, LoadFromEnv(&c))
	assert.Equal(t, "from-env", c.Name)
}

func TestLoadFromEnv_DoesNotClobberValueAlreadySetFromFile(t *testing.T) {
	c := testConfig{Name: "from-yaml"}
	require.NoError(t, LoadFromEnv(&c))
	assert.Equal(t, "from-yaml", c.Name, "struct-tag default must not overwrite a value already loaded from YAML")
}

func TestLoadFromFile_PopulatesFromYAMLAndIsOverlaidByEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: from-file\ntimeout: 5s\n"), 0o644))

	var c testConfig
	require.NoError(t, LoadFromFile(path, &c))
	require.NoError(t, LoadFromEnv(&c))
	assert.Equal(t, "from-file", c.Name)
	assert.Equal(t, 5*time.Second, c.Timeout)
}

func TestLoadFromFile_MissingFileIsNotAnError(t *testing.T) {
	var c testConfig
	err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"), &c)
	require.NoError(t, err)
	assert.Empty(t, c.Name)
}

func TestLoad_EnvOverridesFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis:\n  url: redis://file:6379/0\n"), 0o644))
	t.Setenv("REDIS_URL", "redis://env:6379/0")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis://env:6379/0", c.Redis.URL)
}
