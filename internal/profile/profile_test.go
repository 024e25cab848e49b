package profile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefaults(t *testing.T) {
	dir := t.TempDir()
	p := &Profile{Mode: "unknown", Data: dir}

	require.NoError(t, p.Validate())

	assert.Equal(t, "demo", p.Mode)
	assert.Equal(t, "sqlite", p.Driver)
	assert.Equal(t, "gpt-4o-mini", p.AIChatModel)
	assert.Equal(t, 10*time.Minute, p.SessionTTL)
	assert.Equal(t, 30*time.Second, p.SweepInterval)
	assert.Equal(t, filepath.Join(dir, "cookforge_demo.db"), p.DSN)
}

func TestValidatePostgresRequiresDSN(t *testing.T) {
	p := &Profile{Mode: "dev", Data: t.TempDir(), Driver: "postgres"}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dsn is required")
}

func TestValidateMissingDataDir(t *testing.T) {
	p := &Profile{Mode: "dev", Data: "/nonexistent/cookforge-data"}
	assert.Error(t, p.Validate())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("COOKFORGE_AI_API_KEY", "sk-test")
	t.Setenv("COOKFORGE_SESSION_TTL", "5m")
	t.Setenv("COOKFORGE_FANOUT_PARALLELISM", "4")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "sk-test", p.AIAPIKey)
	assert.Equal(t, 5*time.Minute, p.SessionTTL)
	assert.Equal(t, 4, p.FanoutParallelism)
	assert.True(t, p.IsAIEnabled())
}

func TestFromEnvInvalidValuesKeepDefaults(t *testing.T) {
	t.Setenv("COOKFORGE_SESSION_TTL", "not-a-duration")
	t.Setenv("COOKFORGE_FANOUT_PARALLELISM", "many")

	p := &Profile{SessionTTL: time.Minute, FanoutParallelism: 2}
	p.FromEnv()

	assert.Equal(t, time.Minute, p.SessionTTL)
	assert.Equal(t, 2, p.FanoutParallelism)
}

func TestIsDev(t *testing.T) {
	assert.True(t, (&Profile{Mode: "dev"}).IsDev())
	assert.True(t, (&Profile{Mode: "demo"}).IsDev())
	assert.False(t, (&Profile{Mode: "prod"}).IsDev())
}
