package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const profileYAML = `
profiles:
  momentum:
    description: 简单动量策略
    interval: 1m
    lookback: 30
    schema:
      type: object
      required: [threshold]
      properties:
        threshold:
          type: number
          minimum: 0
  passive:
    version: 2
`

func writeProfileFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profileYAML), 0o644))
	return path
}

func TestRegistryLoad(t *testing.T) {
	reg, err := NewRegistry(writeProfileFile(t))
	require.NoError(t, err)

	snap := reg.Snapshot()
	assert.Len(t, snap.Profiles, 2)

	p, ok := reg.Profile("momentum")
	require.True(t, ok)
	assert.Equal(t, "momentum", p.ID, "缺省 ID 取映射键名")
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, 30, p.Lookback)

	p, ok = reg.Profile("passive")
	require.True(t, ok)
	assert.Equal(t, 2, p.Version)
	assert.Equal(t, 50, p.Lookback, "缺省回看窗口")
	assert.Equal(t, "1m", p.Interval)
}

func TestRegistryValidateParams(t *testing.T) {
	reg, err := NewRegistry(writeProfileFile(t))
	require.NoError(t, err)

	assert.NoError(t, reg.ValidateParams("momentum", map[string]any{"threshold": 1.5}))
	assert.Error(t, reg.ValidateParams("momentum", map[string]any{"threshold": -1}))
	assert.Error(t, reg.ValidateParams("momentum", map[string]any{}))
	assert.NoError(t, reg.ValidateParams("passive", map[string]any{"anything": true}), "无 schema 放行")
	assert.Error(t, reg.ValidateParams("missing", nil))
}

func TestRegistryRequiresPath(t *testing.T) {
	_, err := NewRegistry("  ")
	assert.Error(t, err)
}
