package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/questiontime/internal/config"
)

type testConfig struct {
	HTTP struct {
		Port int32
	}

	Game struct {
		Duration       time.Duration
		TotalQuestions int
	}

	Grader struct {
		Kind   string
		APIKey string
	}
}

func defaults() testConfig {
	var c testConfig
	c.HTTP.Port = 8080
	c.Game.Duration = 2 * time.Minute
	c.Grader.Kind = "openai"
	return c
}

func TestLoad(t *testing.T) {
	file := writeFile(t, "config.yaml", `
http:
  port: 9090
game:
  totalquestions: 3
`)

	c := defaults()
	require.NoError(t, config.Load(file, &c))

	assert.Equal(t, int32(9090), c.HTTP.Port)
	assert.Equal(t, 3, c.Game.TotalQuestions)
	assert.Equal(t, 2*time.Minute, c.Game.Duration, "defaults are kept")
	assert.Equal(t, "openai", c.Grader.Kind)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	file := writeFile(t, "config.yaml", `
game:
  duration: 30s
`)
	t.Setenv("GAME_DURATION", "45s")

	c := defaults()
	require.NoError(t, config.Load(file, &c))
	assert.Equal(t, 45*time.Second, c.Game.Duration)
}

func TestLoad_EnvAlias(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	c := defaults()
	require.NoError(t, config.Load("", &c, config.WithEnvAlias("grader.apikey", "OPENAI_API_KEY")))
	assert.Equal(t, "sk-test", c.Grader.APIKey)
}

func TestLoad_EnvFile(t *testing.T) {
	env := writeFile(t, ".env", "GRADER_KIND=exact\n")
	t.Cleanup(func() { os.Unsetenv("GRADER_KIND") })

	c := defaults()
	require.NoError(t, config.Load("", &c, config.WithEnvFiles(env, filepath.Join(t.TempDir(), "missing.env"))))
	assert.Equal(t, "exact", c.Grader.Kind)
}

func TestLoad_MissingFile(t *testing.T) {
	c := defaults()
	assert.Error(t, config.Load(filepath.Join(t.TempDir(), "missing.yaml"), &c))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	f := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(f, []byte(content), 0o600))
	return f
}
