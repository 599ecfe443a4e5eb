package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLimitsHolderDefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	holder, err := NewLimitsHolder(Config{LimitsFile: filepath.Join(dir, "absent.yml")}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultLimits(), holder.Get())
}

func TestNewLimitsHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "limits.yml")
	content := []byte(`limits:
  ordersPerHour:
    perAccount: 3
    perAccountForCollective: 2
    perEmail: 4
    perEmailForCollective: 1
    perIp: 7
  githubFlow:
    minNbStars: 42
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewLimitsHolder(Config{LimitsFile: path}, zap.NewNop())
	require.NoError(t, err)

	got := holder.Get()
	assert.Equal(t, int64(3), got.OrdersPerHour.PerAccount)
	assert.Equal(t, int64(7), got.OrdersPerHour.PerIP)
	assert.Equal(t, 42, got.GithubFlow.MinNbStars)
}

func TestNewLimitsHolderRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "limits.yml")
	require.NoError(t, os.WriteFile(path, []byte("limits:\n  ordersPerHour:\n    perAccount: 0\n"), 0o600))

	_, err := NewLimitsHolder(Config{LimitsFile: path}, zap.NewNop())
	assert.Error(t, err)
}

func TestIsTestEnv(t *testing.T) {
	for _, env := range []string{EnvTest, EnvCI, EnvCircleCI} {
		assert.True(t, Config{Environment: env}.IsTestEnv(), env)
	}
	assert.False(t, Config{Environment: EnvDevelopment}.IsTestEnv())
	assert.False(t, Config{Environment: EnvProduction}.IsTestEnv())
}
